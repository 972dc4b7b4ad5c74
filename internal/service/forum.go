package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/UniReviews/community-service/internal/config"
	"github.com/UniReviews/community-service/internal/dto"
	"github.com/UniReviews/community-service/internal/model"
	"github.com/UniReviews/community-service/internal/rabbitmq"
	"github.com/UniReviews/community-service/internal/repository"
	"github.com/UniReviews/community-service/internal/session"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	TOPIC_TITLE_MAX_LENGTH   = 255
	FORUM_MESSAGE_MAX_LENGTH = 5000
	FALLBACK_AUTHOR_NAME     = "Anonymous"
)

type forumService struct {
	logger *zap.Logger
	repo   *repository.Repository
	authz  Authorizer
	broker rabbitmq.Broker
	cfg    config.ForumConfig
	now    func() time.Time
}

func newForumService(logger *zap.Logger, repo *repository.Repository, authz Authorizer, broker rabbitmq.Broker, cfg config.ForumConfig) *forumService {
	return &forumService{
		logger: logger,
		repo:   repo,
		authz:  authz,
		broker: broker,
		cfg:    cfg,
		now:    time.Now,
	}
}

func (s *forumService) ListTopics(ctx context.Context, limit, offset int) ([]*model.Topic, error) {
	if limit <= 0 || (s.cfg.PageMaxLimit > 0 && limit > s.cfg.PageMaxLimit) {
		limit = s.cfg.PageMaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	topics, err := s.repo.Postgres.Forum.ListTopics(ctx, limit, offset)
	if err != nil {
		s.logger.Sugar().Errorf("failed to list topics(limit=%d, offset=%d): %s", limit, offset, err.Error())
		return nil, ErrInternal
	}
	return topics, nil
}

func (s *forumService) findTopic(ctx context.Context, topicID uuid.UUID) (*model.Topic, error) {
	topic, err := s.repo.Postgres.Forum.FindTopic(ctx, topicID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTopicNotFound
		}
		s.logger.Sugar().Errorf("failed to get topic(%s): %s", topicID.String(), err.Error())
		return nil, ErrInternal
	}
	return topic, nil
}

func (s *forumService) GetTopicMessages(ctx context.Context, topicID uuid.UUID) ([]*model.Message, error) {
	if _, err := s.findTopic(ctx, topicID); err != nil {
		return nil, err
	}

	messages, err := s.repo.Postgres.Forum.ListMessages(ctx, topicID)
	if err != nil {
		s.logger.Sugar().Errorf("failed to list topic(%s) messages: %s", topicID.String(), err.Error())
		return nil, ErrInternal
	}
	return messages, nil
}

// authorName is the name stored with forum records written by the caller.
func (s *forumService) authorName(ctx context.Context, sess *session.Session) string {
	user, err := s.repo.Postgres.User.FindByID(ctx, sess.UserID)
	if err == nil {
		if name := user.Name(); name != "" {
			return name
		}
	} else if err != pgx.ErrNoRows {
		s.logger.Sugar().Errorf("failed to get author(%s): %s", sess.UserID.String(), err.Error())
	}

	if sess.Email != "" {
		return strings.Split(sess.Email, "@")[0]
	}
	return FALLBACK_AUTHOR_NAME
}

func (s *forumService) CreateTopic(ctx context.Context, title, description string) (uuid.UUID, error) {
	sess, err := userSession(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > TOPIC_TITLE_MAX_LENGTH {
		return uuid.Nil, ErrInvalidTopic
	}

	id, err := s.repo.Postgres.Forum.CreateTopic(ctx, model.Topic{
		ID:          uuid.New(),
		Title:       title,
		Description: strings.TrimSpace(description),
		CreatorID:   sess.UserID,
		CreatorName: s.authorName(ctx, sess),
		CreatedAt:   s.now(),
	})
	if err != nil {
		s.logger.Sugar().Errorf("failed to create topic by user(%s): %s", sess.UserID.String(), err.Error())
		return uuid.Nil, ErrInternal
	}
	return id, nil
}

func (s *forumService) CreateMessage(ctx context.Context, topicID uuid.UUID, content string) (uuid.UUID, error) {
	sess, err := userSession(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > FORUM_MESSAGE_MAX_LENGTH {
		return uuid.Nil, ErrInvalidMessage
	}

	topic, err := s.findTopic(ctx, topicID)
	if err != nil {
		return uuid.Nil, err
	}

	msg := model.Message{
		ID:         uuid.New(),
		TopicID:    topicID,
		Content:    content,
		AuthorID:   sess.UserID,
		AuthorName: s.authorName(ctx, sess),
		CreatedAt:  s.now(),
	}
	id, err := s.repo.Postgres.Forum.CreateMessage(ctx, msg)
	if err != nil {
		s.logger.Sugar().Errorf("failed to create message in topic(%s): %s", topicID.String(), err.Error())
		return uuid.Nil, ErrInternal
	}

	// The message exists at this point, a stale counter is not worth failing the call.
	if err := s.repo.Postgres.Forum.IncrementMessageCount(ctx, topicID, 1); err != nil {
		s.logger.Sugar().Errorf("failed to increment topic(%s) message count: %s", topicID.String(), err.Error())
	}

	if topic.CreatorID != sess.UserID {
		s.publishMessageCreated(ctx, topic, id, msg)
	}

	return id, nil
}

func (s *forumService) publishMessageCreated(ctx context.Context, topic *model.Topic, id uuid.UUID, msg model.Message) {
	if s.broker == nil {
		return
	}

	if err := s.broker.PublishExchangeJSON(ctx, rabbitmq.FORUM_EVENTS_EXCHANGE, dto.MQForumMessageCreated{
		TopicID:      topic.ID,
		TopicTitle:   topic.Title,
		TopicOwnerID: topic.CreatorID,
		MessageID:    id,
		AuthorID:     msg.AuthorID,
		AuthorName:   msg.AuthorName,
		CreatedAt:    msg.CreatedAt,
	}); err != nil {
		s.logger.Sugar().Errorf("failed to publish message(%s) created event: %s", id.String(), err.Error())
	}
}

func (s *forumService) canModerate(ctx context.Context, sess *session.Session, ownerID uuid.UUID) (bool, error) {
	if sess.UserID == ownerID {
		return true, nil
	}

	ok, err := s.authz.IsAdmin(ctx, sess.UserID)
	if err != nil {
		s.logger.Sugar().Errorf("failed to check whether user(%s) is admin: %s", sess.UserID.String(), err.Error())
		return false, ErrInternal
	}
	return ok, nil
}

// DeleteTopic removes every message of the topic one by one, then the topic.
// A failure halfway leaves the remaining messages and the topic in place.
func (s *forumService) DeleteTopic(ctx context.Context, topicID uuid.UUID) error {
	sess, err := userSession(ctx)
	if err != nil {
		return err
	}

	topic, err := s.findTopic(ctx, topicID)
	if err != nil {
		return err
	}

	ok, err := s.canModerate(ctx, sess, topic.CreatorID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCannotDeleteTopic
	}

	messages, err := s.repo.Postgres.Forum.ListMessages(ctx, topicID)
	if err != nil {
		s.logger.Sugar().Errorf("failed to list topic(%s) messages: %s", topicID.String(), err.Error())
		return ErrInternal
	}

	for _, msg := range messages {
		if _, err := s.repo.Postgres.Forum.DeleteMessage(ctx, topicID, msg.ID); err != nil {
			s.logger.Sugar().Errorf("failed to delete message(%s) of topic(%s): %s", msg.ID.String(), topicID.String(), err.Error())
			return ErrInternal
		}
	}

	if err := s.repo.Postgres.Forum.DeleteTopic(ctx, topicID); err != nil {
		s.logger.Sugar().Errorf("failed to delete topic(%s): %s", topicID.String(), err.Error())
		return ErrInternal
	}
	return nil
}

func (s *forumService) DeleteMessage(ctx context.Context, topicID, messageID uuid.UUID) error {
	sess, err := userSession(ctx)
	if err != nil {
		return err
	}

	msg, err := s.repo.Postgres.Forum.FindMessage(ctx, topicID, messageID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrMessageNotFound
		}
		s.logger.Sugar().Errorf("failed to get message(%s): %s", messageID.String(), err.Error())
		return ErrInternal
	}

	ok, err := s.canModerate(ctx, sess, msg.AuthorID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCannotDeleteMessage
	}

	deleted, err := s.repo.Postgres.Forum.DeleteMessage(ctx, topicID, messageID)
	if err != nil {
		s.logger.Sugar().Errorf("failed to delete message(%s): %s", messageID.String(), err.Error())
		return ErrInternal
	}
	// Someone else removed it between the lookup and the delete.
	if !deleted {
		return ErrMessageNotFound
	}

	if err := s.repo.Postgres.Forum.IncrementMessageCount(ctx, topicID, -1); err != nil {
		s.logger.Sugar().Errorf("failed to decrement topic(%s) message count: %s", topicID.String(), err.Error())
	}
	return nil
}
