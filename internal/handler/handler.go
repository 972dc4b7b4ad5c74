package handler

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"

	"github.com/UniReviews/community-service/internal/config"
	"github.com/UniReviews/community-service/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Resp map[string]interface{}

type Handler struct {
	logger   *zap.Logger
	services *service.Service
	cfg      *config.Config
	decode   TokenDecoder
	upgrader websocket.Upgrader
}

func New(logger *zap.Logger, services *service.Service, cfg *config.Config) *Handler {
	return newHandler(logger, services, cfg, JWTDecoder(cfg.AccessSecret))
}

func newHandler(logger *zap.Logger, services *service.Service, cfg *config.Config, decode TokenDecoder) *Handler {
	h := &Handler{
		logger:   logger,
		services: services,
		cfg:      cfg,
		decode:   decode,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(h.cfg.App.AllowedOrigins, "*") || slices.Contains(h.cfg.App.AllowedOrigins, origin)
}

func (h *Handler) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.App.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Get("/", h.notificationsGet)
		r.Get("/unread/count", h.notificationsUnreadCount)
		r.Patch("/{nId}/read", h.notificationsMarkRead)
		r.Post("/read-all", h.notificationsMarkAllRead)
		r.Get("/ws", h.notificationsWS)

		r.Group(func(r chi.Router) {
			r.Use(h.adminMiddleware)

			r.Get("/all", h.notificationsGetAll)
			r.Post("/", h.notificationsCreate)
			r.Delete("/{nId}", h.notificationsDelete)
		})
	})

	r.Route("/api/v1/forum/topics", func(r chi.Router) {
		r.Get("/", h.forumTopicsGet)
		r.Get("/{topicId}/messages", h.forumMessagesGet)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware)

			r.Post("/", h.forumTopicsCreate)
			r.Delete("/{topicId}", h.forumTopicsDelete)
			r.Post("/{topicId}/messages", h.forumMessagesCreate)
			r.Delete("/{topicId}/messages/{messageId}", h.forumMessagesDelete)
		})
	})

	r.Route("/api/v1/chat", func(r chi.Router) {
		r.Get("/messages", h.chatMessagesGet)
		r.Get("/ws", h.chatWS)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware)

			r.Post("/messages", h.chatMessagesSend)
			r.Delete("/messages/{messageId}", h.chatMessagesDelete)
		})
	})

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Get("/search", h.usersSearch)
		r.Get("/me", h.usersMe)
		r.Patch("/me", h.usersUpdateMe)
	})

	r.Route("/api/v1/admins", func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Get("/", h.adminsGet)
		r.Post("/", h.adminsAdd)
		r.Delete("/{userId}", h.adminsRemove)
	})

	return r
}

func (h *Handler) Respond(w http.ResponseWriter, resp any, statusCode int) {
	respJSON, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(respJSON)
}

// Fail reports err as {"success": false, "error": ...}.
func (h *Handler) Fail(w http.ResponseWriter, err error) {
	h.Respond(w, Resp{"success": false, "error": err.Error()}, statusOf(err))
}

func (h *Handler) badRequest(w http.ResponseWriter, err error) {
	h.Respond(w, Resp{"success": false, "error": err.Error()}, http.StatusBadRequest)
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
