package service

import (
	"context"

	"github.com/UniReviews/community-service/internal/config"
	"github.com/UniReviews/community-service/internal/dto"
	"github.com/UniReviews/community-service/internal/model"
	"github.com/UniReviews/community-service/internal/rabbitmq"
	"github.com/UniReviews/community-service/internal/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type User interface {
	create(ctx context.Context, user model.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	updateByID(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateProfile(ctx context.Context, input dto.UpdateProfile) (*model.User, error)
	Search(ctx context.Context, term string) ([]*model.UserSearchResult, error)
	StartCreating(ctx context.Context)
	StartUpdating(ctx context.Context)
}

// Authorizer answers whether a user holds the admin role.
type Authorizer interface {
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

type Admin interface {
	Authorizer
	IsSuperAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
	List(ctx context.Context) ([]*model.Admin, error)
	Add(ctx context.Context, userID uuid.UUID) error
	Remove(ctx context.Context, userID uuid.UUID) error
}

type Notification interface {
	// Subscribe calls fn with the merged feed of the session on ctx after every
	// change to any of its partitions. Without a session it does nothing.
	Subscribe(ctx context.Context, fn func([]model.Notification)) (unsubscribe func())
	UserNotifications(ctx context.Context) ([]model.Notification, error)
	AllBroadcasts(ctx context.Context) ([]model.Notification, error)
	UnreadCount(ctx context.Context) (int, error)
	// Create writes a broadcast when target is nil and a targeted notification otherwise.
	Create(ctx context.Context, title, message string, typ model.NotificationType, target *uuid.UUID) (model.NotificationRef, error)
	CreateForDisplayName(ctx context.Context, displayName, title, message string, typ model.NotificationType) (model.NotificationRef, error)
	Notify(ctx context.Context, recipient uuid.UUID, title, message string, typ model.NotificationType) (model.NotificationRef, error)
	MarkRead(ctx context.Context, id string) error
	MarkRefRead(ctx context.Context, ref model.NotificationRef) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	StartProcessingInbound(ctx context.Context)
	StartProcessingForumEvents(ctx context.Context)
	StartJobs() error
	StopJobs() error
}

type Forum interface {
	ListTopics(ctx context.Context, limit, offset int) ([]*model.Topic, error)
	GetTopicMessages(ctx context.Context, topicID uuid.UUID) ([]*model.Message, error)
	CreateTopic(ctx context.Context, title, description string) (uuid.UUID, error)
	CreateMessage(ctx context.Context, topicID uuid.UUID, content string) (uuid.UUID, error)
	DeleteTopic(ctx context.Context, topicID uuid.UUID) error
	DeleteMessage(ctx context.Context, topicID, messageID uuid.UUID) error
}

type Chat interface {
	Send(ctx context.Context, text string, photoURL *string) (string, error)
	Recent(ctx context.Context, before string, limit int) ([]model.ChatMessage, error)
	Delete(ctx context.Context, id string) error
	MessageCount(ctx context.Context) (int64, error)
	Subscribe(ctx context.Context, fn func([]model.ChatMessage)) (unsubscribe func())
	StartJobs() error
	StopJobs() error
}

type Service struct {
	User         User
	Admin        Admin
	Notification Notification
	Forum        Forum
	Chat         Chat
}

// New wires the services. rdb and broker may be nil, which disables the admin
// cache and event publishing respectively.
func New(logger *zap.Logger, cfg *config.Config, repo *repository.Repository, rdb *redis.Client, broker rabbitmq.Broker) *Service {
	admin := newAdminService(logger, repo, rdb, cfg.Cache.AdminTTL)
	user := newUserService(logger, repo, broker)

	return &Service{
		User:         user,
		Admin:        admin,
		Notification: newNotificationService(logger, repo, admin, broker, cfg.Jobs),
		Forum:        newForumService(logger, repo, admin, broker, cfg.Forum),
		Chat:         newChatService(logger, repo, admin, cfg.Chat, cfg.Jobs),
	}
}
