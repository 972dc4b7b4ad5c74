package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/UniReviews/community-service/internal/config"
	"github.com/UniReviews/community-service/internal/dto"
	"github.com/UniReviews/community-service/internal/model"
	"github.com/UniReviews/community-service/internal/repository"
	"github.com/UniReviews/community-service/internal/repository/postgres"
	"github.com/UniReviews/community-service/internal/repository/realtime"
	"github.com/UniReviews/community-service/internal/service"
	"github.com/UniReviews/community-service/internal/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type fakeUsers struct {
	postgres.User
	users map[uuid.UUID]*model.User
}

func (f *fakeUsers) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) FindIDByDisplayName(ctx context.Context, displayName string) (uuid.UUID, error) {
	for _, u := range f.users {
		if u.DisplayName != nil && strings.EqualFold(*u.DisplayName, displayName) {
			return u.ID, nil
		}
	}
	return uuid.Nil, pgx.ErrNoRows
}

type fakeAdmins struct {
	postgres.Admin
	admins map[uuid.UUID]bool
}

func (f *fakeAdmins) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	return f.admins[userID], nil
}

func (f *fakeAdmins) IsSuperAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	return false, nil
}

// testDecoder verifies HS256 tokens the way the auth service issues them.
func testDecoder(token string) (*Claims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errTokenExpired
		}
		return nil, errInvalidJWT
	}

	claims := parsed.Claims.(jwt.MapClaims)
	id, err := uuid.Parse(fmt.Sprint(claims["id"]))
	if err != nil {
		return nil, errInvalidUserID
	}
	email, _ := claims["email"].(string)
	return &Claims{UserID: id, Email: email}, nil
}

type testEnv struct {
	t        *testing.T
	handler  *Handler
	server   http.Handler
	services *service.Service
	users    *fakeUsers
	admins   *fakeAdmins
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := &fakeUsers{users: map[uuid.UUID]*model.User{}}
	admins := &fakeAdmins{admins: map[uuid.UUID]bool{}}
	repo := &repository.Repository{
		Postgres: &postgres.PGRepo{User: users, Admin: admins},
		Realtime: realtime.NewMemory(),
	}
	cfg := &config.Config{
		App:   config.AppConfig{AllowedOrigins: []string{"*"}},
		Toast: config.ToastConfig{TTL: time.Hour},
		Chat:  config.ChatConfig{MaxLength: 500, PageSize: 50},
		Forum: config.ForumConfig{PageMaxLimit: 20},
		Cache: config.CacheConfig{AdminTTL: time.Minute},
		WS:    config.WSConfig{PingInterval: time.Minute},
	}

	logger := zap.NewNop()
	services := service.New(logger, cfg, repo, nil, nil)
	h := newHandler(logger, services, cfg, testDecoder)

	return &testEnv{
		t:        t,
		handler:  h,
		server:   h.SetupRoutes(),
		services: services,
		users:    users,
		admins:   admins,
	}
}

func (e *testEnv) user(name string, admin bool) (uuid.UUID, string) {
	e.t.Helper()
	id := uuid.New()
	email := strings.ToLower(name) + "@uni.edu"
	e.users.users[id] = &model.User{ID: id, Username: strings.ToLower(name), Email: email, DisplayName: &name}
	e.admins.admins[id] = admin
	return id, e.token(id, email, time.Hour)
}

func (e *testEnv) token(id uuid.UUID, email string, ttl time.Duration) string {
	e.t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":    id.String(),
		"email": email,
		"exp":   time.Now().Add(ttl).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		e.t.Fatalf("sign token: %v", err)
	}
	return token
}

func (e *testEnv) do(method, path, token string, body any) (int, map[string]any) {
	e.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		e.t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, resp
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrUnauthenticated, http.StatusUnauthorized},
		{service.ErrNotificationNotFound, http.StatusNotFound},
		{service.ErrNotAdmin, http.StatusForbidden},
		{service.ErrInvalidNotification, http.StatusBadRequest},
		{service.ErrInternal, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusOf(tt.err); got != tt.want {
			t.Errorf("statusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := newTestEnv(t)
	id, _ := e.user("Ana", false)

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"no token", "", errNoToken.Error()},
		{"garbage", "not-a-jwt", errInvalidJWT.Error()},
		{"expired", e.token(id, "ana@uni.edu", -time.Minute), errTokenExpired.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := e.do(http.MethodGet, "/api/v1/notifications", tt.token, nil)
			if code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", code)
			}
			if resp["success"] != false || resp["error"] != tt.want {
				t.Errorf("body = %v, want error %q", resp, tt.want)
			}
		})
	}
}

func TestNotificationsFlow(t *testing.T) {
	e := newTestEnv(t)
	_, adminToken := e.user("Root", true)
	_, userToken := e.user("Ana", false)

	code, resp := e.do(http.MethodPost, "/api/v1/notifications", adminToken, dto.CreateNotification{
		Title:   "Maintenance",
		Message: "Down 10pm",
		Type:    "warning",
	})
	if code != http.StatusCreated || resp["success"] != true {
		t.Fatalf("create = %d %v", code, resp)
	}
	id := resp["id"].(string)
	if resp["partition"] != string(model.PartitionBroadcast) {
		t.Errorf("partition = %v, want broadcast", resp["partition"])
	}

	code, resp = e.do(http.MethodGet, "/api/v1/notifications", userToken, nil)
	if code != http.StatusOK {
		t.Fatalf("list = %d %v", code, resp)
	}
	notifications := resp["notifications"].([]any)
	if len(notifications) != 1 {
		t.Fatalf("notifications = %v", notifications)
	}
	first := notifications[0].(map[string]any)
	if first["title"] != "Maintenance" || first["read"] != false || first["createdByEmail"] != "root@uni.edu" {
		t.Errorf("notification = %v", first)
	}

	if code, resp = e.do(http.MethodGet, "/api/v1/notifications/unread/count", userToken, nil); resp["count"] != float64(1) {
		t.Errorf("unread count = %d %v, want 1", code, resp)
	}

	if code, resp = e.do(http.MethodPatch, "/api/v1/notifications/"+id+"/read", userToken, nil); code != http.StatusOK {
		t.Fatalf("mark read = %d %v", code, resp)
	}
	if _, resp = e.do(http.MethodGet, "/api/v1/notifications/unread/count", userToken, nil); resp["count"] != float64(0) {
		t.Errorf("unread count after read = %v, want 0", resp)
	}

	if code, _ = e.do(http.MethodDelete, "/api/v1/notifications/"+id, userToken, nil); code != http.StatusForbidden {
		t.Errorf("delete by user = %d, want 403", code)
	}
	if code, resp = e.do(http.MethodDelete, "/api/v1/notifications/"+id, adminToken, nil); code != http.StatusOK {
		t.Fatalf("delete = %d %v", code, resp)
	}
	if _, resp = e.do(http.MethodGet, "/api/v1/notifications", userToken, nil); len(resp["notifications"].([]any)) != 0 {
		t.Errorf("notifications after delete = %v", resp["notifications"])
	}
}

func TestNotificationsErrors(t *testing.T) {
	e := newTestEnv(t)
	_, adminToken := e.user("Root", true)
	userID, userToken := e.user("Ana", false)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"list all as user", http.MethodGet, "/api/v1/notifications/all", userToken, nil, http.StatusForbidden},
		{"create as user", http.MethodPost, "/api/v1/notifications", userToken, dto.CreateNotification{Title: "t", Message: "m"}, http.StatusForbidden},
		{"empty title", http.MethodPost, "/api/v1/notifications", adminToken, dto.CreateNotification{Message: "m"}, http.StatusBadRequest},
		{"bad type", http.MethodPost, "/api/v1/notifications", adminToken, dto.CreateNotification{Title: "t", Message: "m", Type: "loud"}, http.StatusBadRequest},
		{"unknown display name", http.MethodPost, "/api/v1/notifications", adminToken, dto.CreateNotification{Title: "t", Message: "m", TargetDisplayName: "nobody"}, http.StatusNotFound},
		{"targeted", http.MethodPost, "/api/v1/notifications", adminToken, dto.CreateNotification{Title: "t", Message: "m", TargetUserID: &userID}, http.StatusCreated},
		{"unknown id", http.MethodPatch, "/api/v1/notifications/nope/read", userToken, nil, http.StatusNotFound},
		{"bad partition", http.MethodPatch, "/api/v1/notifications/nope/read?partition=weird", userToken, nil, http.StatusBadRequest},
		{"read all", http.MethodPost, "/api/v1/notifications/read-all", userToken, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := e.do(tt.method, tt.path, tt.token, tt.body)
			if code != tt.want {
				t.Errorf("status = %d (%v), want %d", code, resp, tt.want)
			}
			if success := code < 300; resp["success"] != success {
				t.Errorf("success = %v, want %v", resp["success"], success)
			}
		})
	}
}

func TestChatEndpoints(t *testing.T) {
	e := newTestEnv(t)
	_, adminToken := e.user("Root", true)
	_, userToken := e.user("Ana", false)

	code, resp := e.do(http.MethodPost, "/api/v1/chat/messages", userToken, dto.SendChatMessage{Text: "hola"})
	if code != http.StatusCreated {
		t.Fatalf("send = %d %v", code, resp)
	}
	id := resp["id"].(string)

	if code, _ := e.do(http.MethodPost, "/api/v1/chat/messages", "", dto.SendChatMessage{Text: "hola"}); code != http.StatusUnauthorized {
		t.Errorf("send without token = %d, want 401", code)
	}

	code, resp = e.do(http.MethodGet, "/api/v1/chat/messages", "", nil)
	if code != http.StatusOK || resp["count"] != float64(1) {
		t.Fatalf("list = %d %v", code, resp)
	}
	msg := resp["messages"].([]any)[0].(map[string]any)
	if msg["text"] != "hola" || msg["username"] != "Ana" || msg["id"] != id {
		t.Errorf("message = %v", msg)
	}

	if code, _ := e.do(http.MethodDelete, "/api/v1/chat/messages/"+id, userToken, nil); code != http.StatusForbidden {
		t.Errorf("delete by user = %d, want 403", code)
	}
	if code, _ := e.do(http.MethodDelete, "/api/v1/chat/messages/"+id, adminToken, nil); code != http.StatusOK {
		t.Errorf("delete by admin = %d, want 200", code)
	}
}

func TestBadParams(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.user("Ana", false)

	tests := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/forum/topics?limit=ten"},
		{http.MethodGet, "/api/v1/forum/topics/not-a-uuid/messages"},
		{http.MethodDelete, "/api/v1/forum/topics/not-a-uuid"},
		{http.MethodDelete, "/api/v1/admins/not-a-uuid"},
		{http.MethodGet, "/api/v1/chat/messages?limit=x"},
	}
	for _, tt := range tests {
		if code, _ := e.do(tt.method, tt.path, token, nil); code != http.StatusBadRequest {
			t.Errorf("%s %s = %d, want 400", tt.method, tt.path, code)
		}
	}
}

func readFeedEvent(t *testing.T, conn *websocket.Conn, typ string) dto.FeedEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var event dto.FeedEvent
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("read %s event: %v", typ, err)
		}
		if event.Type == typ {
			return event
		}
	}
}

func TestNotificationsWebsocket(t *testing.T) {
	e := newTestEnv(t)
	adminID, _ := e.user("Root", true)
	_, userToken := e.user("Ana", false)

	srv := httptest.NewServer(e.server)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/notifications/ws?token=" + userToken
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if event := readFeedEvent(t, conn, dto.FeedEventFeed); len(event.Notifications) != 0 {
		t.Fatalf("initial feed = %+v", event.Notifications)
	}

	adminCtx := session.WithSession(context.Background(), session.New(adminID, "root@uni.edu"))
	ref, err := e.services.Notification.Create(adminCtx, "Exams", "Friday", model.NotificationWarning, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	event := readFeedEvent(t, conn, dto.FeedEventFeed)
	if len(event.Notifications) != 1 || event.UnreadCount != 1 {
		t.Fatalf("feed after create = %+v", event)
	}
	toasts := readFeedEvent(t, conn, dto.FeedEventToasts)
	if len(toasts.Toasts) != 1 || toasts.Toasts[0].Ref() != ref {
		t.Errorf("toasts = %+v", toasts.Toasts)
	}

	if err := conn.WriteJSON(dto.FeedCommand{Action: dto.FeedActionDismiss, ID: ref.ID, Partition: ref.Partition}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if toasts := readFeedEvent(t, conn, dto.FeedEventToasts); len(toasts.Toasts) != 0 {
		t.Errorf("toasts after dismiss = %+v", toasts.Toasts)
	}

	if err := conn.WriteJSON(dto.FeedCommand{Action: dto.FeedActionMarkRead, ID: ref.ID, Partition: ref.Partition}); err != nil {
		t.Fatalf("write: %v", err)
	}
	event = readFeedEvent(t, conn, dto.FeedEventFeed)
	if event.UnreadCount != 0 || !event.Notifications[0].Read {
		t.Errorf("feed after mark_read = %+v", event)
	}

	if err := conn.WriteJSON(dto.FeedCommand{Action: "explode"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if event := readFeedEvent(t, conn, dto.FeedEventError); event.Error != errUnknownAction.Error() {
		t.Errorf("error event = %+v", event)
	}
}

func TestNotificationsWebsocketRequiresToken(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.server)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/notifications/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("handshake response = %v, want 401", resp)
	}
}
