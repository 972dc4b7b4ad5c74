package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/UniReviews/community-service/internal/config"
	"github.com/UniReviews/community-service/internal/model"
	"github.com/UniReviews/community-service/internal/repository"
	"github.com/UniReviews/community-service/internal/repository/postgres"
	"github.com/UniReviews/community-service/internal/repository/realtime"
	"github.com/UniReviews/community-service/internal/session"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var errBackend = errors.New("backend unavailable")

type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
	// renamed records display-name propagation calls.
	renamed map[uuid.UUID]string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[uuid.UUID]*model.User{}, renamed: map[uuid.UUID]string{}}
}

func (f *fakeUsers) add(username, email, displayName string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &model.User{ID: uuid.New(), Username: username, Email: email}
	if displayName != "" {
		u.DisplayName = &displayName
	}
	f.users[u.ID] = u
	return u.ID
}

func (f *fakeUsers) Create(ctx context.Context, user model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; !ok {
		u := user
		f.users[user.ID] = &u
	}
	return nil
}

func (f *fakeUsers) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) UpdateByID(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil
	}
	for k, v := range updates {
		s, _ := v.(string)
		switch k {
		case "username":
			u.Username = s
		case "email":
			u.Email = s
		case "avatar_url":
			u.AvatarURL = &s
		}
	}
	return nil
}

func (f *fakeUsers) UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.DisplayName = &displayName
	f.renamed[id] = displayName
	return nil
}

func (f *fakeUsers) FindIDByDisplayName(ctx context.Context, displayName string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.DisplayName != nil && strings.EqualFold(strings.TrimSpace(*u.DisplayName), strings.TrimSpace(displayName)) {
			return u.ID, nil
		}
	}
	return uuid.Nil, pgx.ErrNoRows
}

func (f *fakeUsers) SearchByDisplayName(ctx context.Context, term string, limit int) ([]*model.UserSearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.UserSearchResult
	for _, u := range f.users {
		if u.DisplayName != nil && strings.Contains(strings.ToLower(*u.DisplayName), strings.ToLower(term)) {
			out = append(out, &model.UserSearchResult{ID: u.ID, DisplayName: *u.DisplayName, Email: u.Email})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeAdmins struct {
	mu     sync.Mutex
	admins map[uuid.UUID]model.Admin
	supers map[uuid.UUID]bool
	calls  int
}

func newFakeAdmins() *fakeAdmins {
	return &fakeAdmins{admins: map[uuid.UUID]model.Admin{}, supers: map[uuid.UUID]bool{}}
}

func (f *fakeAdmins) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	_, ok := f.admins[userID]
	return ok || f.supers[userID], nil
}

func (f *fakeAdmins) IsSuperAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supers[userID], nil
}

func (f *fakeAdmins) Add(ctx context.Context, admin model.Admin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admins[admin.UserID] = admin
	return nil
}

func (f *fakeAdmins) Remove(ctx context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.admins, userID)
	return nil
}

func (f *fakeAdmins) List(ctx context.Context) ([]*model.Admin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Admin, 0, len(f.admins))
	for _, a := range f.admins {
		a := a
		out = append(out, &a)
	}
	return out, nil
}

type fakeForum struct {
	mu       sync.Mutex
	topics   map[uuid.UUID]*model.Topic
	messages map[uuid.UUID]*model.Message
	// failDeleteAfter makes DeleteMessage fail once this many deletes succeeded; -1 disables it.
	failDeleteAfter int
	deleted         int
	// beforeDelete runs at the start of DeleteMessage, without f.mu held.
	beforeDelete func(id uuid.UUID)
}

func newFakeForum() *fakeForum {
	return &fakeForum{topics: map[uuid.UUID]*model.Topic{}, messages: map[uuid.UUID]*model.Message{}, failDeleteAfter: -1}
}

func (f *fakeForum) ListTopics(ctx context.Context, limit, offset int) ([]*model.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Topic, 0, len(f.topics))
	for _, t := range f.topics {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeForum) FindTopic(ctx context.Context, id uuid.UUID) (*model.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.topics[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (f *fakeForum) CreateTopic(ctx context.Context, topic model.Topic) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := topic
	f.topics[t.ID] = &t
	return t.ID, nil
}

func (f *fakeForum) DeleteTopic(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.topics, id)
	return nil
}

func (f *fakeForum) ListMessages(ctx context.Context, topicID uuid.UUID) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Message
	for _, m := range f.messages {
		if m.TopicID == topicID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeForum) FindMessage(ctx context.Context, topicID, id uuid.UUID) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || m.TopicID != topicID {
		return nil, pgx.ErrNoRows
	}
	cp := *m
	return &cp, nil
}

func (f *fakeForum) CreateMessage(ctx context.Context, msg model.Message) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := msg
	f.messages[m.ID] = &m
	return m.ID, nil
}

func (f *fakeForum) DeleteMessage(ctx context.Context, topicID, id uuid.UUID) (bool, error) {
	if f.beforeDelete != nil {
		f.beforeDelete(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDeleteAfter >= 0 && f.deleted >= f.failDeleteAfter {
		return false, errBackend
	}
	m, ok := f.messages[id]
	if !ok || m.TopicID != topicID {
		return false, nil
	}
	delete(f.messages, id)
	f.deleted++
	return true, nil
}

func (f *fakeForum) IncrementMessageCount(ctx context.Context, topicID uuid.UUID, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.topics[topicID]; ok {
		t.MessageCount += delta
		if t.MessageCount < 0 {
			t.MessageCount = 0
		}
	}
	return nil
}

type fakeBroker struct {
	mu        sync.Mutex
	queued    map[string][]any
	published map[string][]any
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{queued: map[string][]any{}, published: map[string][]any{}}
}

func (f *fakeBroker) PublishJSON(ctx context.Context, queue string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[queue] = append(f.queued[queue], v)
	return nil
}

func (f *fakeBroker) PublishExchangeJSON(ctx context.Context, exchange string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[exchange] = append(f.published[exchange], v)
	return nil
}

func (f *fakeBroker) Consume(queue string) (<-chan amqp.Delivery, error) {
	return nil, errBackend
}

func (f *fakeBroker) ConsumeExchange(exchange string) (<-chan amqp.Delivery, error) {
	return nil, errBackend
}

// env is a fully wired set of services over in-memory backends.
type env struct {
	store  *realtime.Memory
	users  *fakeUsers
	admins *fakeAdmins
	forum  *fakeForum
	broker *fakeBroker

	admin        *adminService
	user         *userService
	notification *notificationService
	forumSvc     *forumService
	chat         *chatService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		store:  realtime.NewMemory(),
		users:  newFakeUsers(),
		admins: newFakeAdmins(),
		forum:  newFakeForum(),
		broker: newFakeBroker(),
	}
	repo := &repository.Repository{
		Postgres: &postgres.PGRepo{User: e.users, Admin: e.admins, Forum: e.forum},
		Realtime: e.store,
	}
	logger := zap.NewNop()

	e.admin = newAdminService(logger, repo, nil, time.Minute)
	e.user = newUserService(logger, repo, e.broker)
	e.notification = newNotificationService(logger, repo, e.admin, e.broker, config.JobsConfig{})
	e.forumSvc = newForumService(logger, repo, e.admin, e.broker, config.ForumConfig{PageMaxLimit: 20})
	e.chat = newChatService(logger, repo, e.admin, config.ChatConfig{MaxLength: 500, PageSize: 50}, config.JobsConfig{})
	return e
}

// login registers a user and returns a context carrying their session.
func (e *env) login(name string) (context.Context, uuid.UUID) {
	email := strings.ToLower(name) + "@uni.edu"
	id := e.users.add(strings.ToLower(name), email, name)
	return session.WithSession(context.Background(), session.New(id, email)), id
}

func (e *env) loginAdmin(name string) (context.Context, uuid.UUID) {
	ctx, id := e.login(name)
	e.admins.admins[id] = model.Admin{UserID: id}
	return ctx, id
}

// fixedClock returns a clock that advances by step on every call.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(step)
		return t
	}
}
