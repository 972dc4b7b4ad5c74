package postgres

import (
	"context"

	"github.com/UniReviews/community-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type User interface {
	Create(ctx context.Context, user model.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateByID(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName string) error
	FindIDByDisplayName(ctx context.Context, displayName string) (uuid.UUID, error)
	SearchByDisplayName(ctx context.Context, term string, limit int) ([]*model.UserSearchResult, error)
}

type Admin interface {
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
	IsSuperAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
	Add(ctx context.Context, admin model.Admin) error
	Remove(ctx context.Context, userID uuid.UUID) error
	List(ctx context.Context) ([]*model.Admin, error)
}

type Forum interface {
	ListTopics(ctx context.Context, limit, offset int) ([]*model.Topic, error)
	FindTopic(ctx context.Context, id uuid.UUID) (*model.Topic, error)
	CreateTopic(ctx context.Context, topic model.Topic) (uuid.UUID, error)
	DeleteTopic(ctx context.Context, id uuid.UUID) error
	ListMessages(ctx context.Context, topicID uuid.UUID) ([]*model.Message, error)
	FindMessage(ctx context.Context, topicID, id uuid.UUID) (*model.Message, error)
	CreateMessage(ctx context.Context, msg model.Message) (uuid.UUID, error)
	DeleteMessage(ctx context.Context, topicID, id uuid.UUID) (bool, error)
	IncrementMessageCount(ctx context.Context, topicID uuid.UUID, delta int) error
}

type PGRepo struct {
	User
	Admin
	Forum
}

func New(db *pgxpool.Pool) *PGRepo {
	return &PGRepo{
		User:  newUserRepo(db),
		Admin: newAdminRepo(db),
		Forum: newForumRepo(db),
	}
}
