package service

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/UniReviews/community-service/internal/dto"
	"github.com/UniReviews/community-service/internal/model"
	"github.com/UniReviews/community-service/internal/rabbitmq"
	"github.com/UniReviews/community-service/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const DISPLAY_NAME_MAX_LENGTH = 64

type userService struct {
	logger *zap.Logger
	repo   *repository.Repository
	broker rabbitmq.Broker
}

func newUserService(logger *zap.Logger, repo *repository.Repository, broker rabbitmq.Broker) *userService {
	return &userService{
		logger: logger,
		repo:   repo,
		broker: broker,
	}
}

func (s *userService) create(ctx context.Context, user model.User) error {
	return s.repo.Postgres.User.Create(ctx, user)
}

func (s *userService) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.repo.Postgres.User.FindByID(ctx, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		s.logger.Sugar().Errorf("failed to get user(%s): %s", id.String(), err.Error())
		return nil, ErrInternal
	}
	return user, nil
}

func (s *userService) updateByID(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	allowedFields := []string{"username", "email", "avatar_url"}
	allowedFieldsSet := make(map[string]struct{}, len(allowedFields))
	for _, field := range allowedFields {
		allowedFieldsSet[field] = struct{}{}
	}

	// display_name also lives in forum records, so it goes through its own path.
	if raw, ok := updates["display_name"]; ok {
		if name, ok := raw.(string); ok {
			if err := s.updateDisplayName(ctx, id, name); err != nil {
				return err
			}
		}
	}

	for field := range updates {
		if _, ok := allowedFieldsSet[field]; !ok {
			delete(updates, field)
		}
	}

	if len(updates) == 0 {
		return nil
	}

	return s.repo.Postgres.User.UpdateByID(ctx, id, updates)
}

func normalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > DISPLAY_NAME_MAX_LENGTH {
		return "", ErrInvalidDisplayName
	}
	return name, nil
}

func (s *userService) updateDisplayName(ctx context.Context, id uuid.UUID, name string) error {
	name, err := normalizeDisplayName(name)
	if err != nil {
		return err
	}

	if err := s.repo.Postgres.User.UpdateDisplayName(ctx, id, name); err != nil {
		if err == pgx.ErrNoRows {
			return ErrUserNotFound
		}
		s.logger.Sugar().Errorf("failed to update user(%s)'s display name: %s", id.String(), err.Error())
		return ErrInternal
	}
	return nil
}

func (s *userService) UpdateProfile(ctx context.Context, input dto.UpdateProfile) (*model.User, error) {
	sess, err := userSession(ctx)
	if err != nil {
		return nil, err
	}

	if input.DisplayName != nil {
		if err := s.updateDisplayName(ctx, sess.UserID, *input.DisplayName); err != nil {
			return nil, err
		}
	}

	if input.AvatarURL != nil {
		if err := s.repo.Postgres.User.UpdateByID(ctx, sess.UserID, map[string]interface{}{
			"avatar_url": *input.AvatarURL,
		}); err != nil {
			if err == pgx.ErrNoRows {
				return nil, ErrUserNotFound
			}
			s.logger.Sugar().Errorf("failed to update user(%s)'s avatar: %s", sess.UserID.String(), err.Error())
			return nil, ErrInternal
		}
	}

	return s.FindByID(ctx, sess.UserID)
}

func (s *userService) Search(ctx context.Context, term string) ([]*model.UserSearchResult, error) {
	if _, err := userSession(ctx); err != nil {
		return nil, err
	}

	term = strings.TrimSpace(term)
	if term == "" {
		return []*model.UserSearchResult{}, nil
	}

	users, err := s.repo.Postgres.User.SearchByDisplayName(ctx, term, 10)
	if err != nil {
		s.logger.Sugar().Errorf("failed to search users by display name(%s): %s", term, err.Error())
		return nil, ErrInternal
	}
	return users, nil
}

func (s *userService) StartCreating(ctx context.Context) {
	msgs, err := s.broker.ConsumeExchange(rabbitmq.USERS_CREATED_EXCHANGE)
	if err != nil {
		panic(err)
	}

	for msg := range msgs {
		var userCreatedDto dto.MQUserCreated
		if err := json.Unmarshal(msg.Body, &userCreatedDto); err != nil {
			msg.Ack(false)
			continue
		}

		if err := s.create(ctx, model.User{
			ID:          userCreatedDto.ID,
			Username:    userCreatedDto.Username,
			Email:       userCreatedDto.Email,
			DisplayName: userCreatedDto.DisplayName,
			AvatarURL:   userCreatedDto.AvatarURL,
		}); err != nil {
			s.logger.Sugar().Errorf("failed to create user(%s): %s", userCreatedDto.ID.String(), err.Error())
			msg.Ack(false)
			continue
		}

		msg.Ack(false)
	}
}

func (s *userService) StartUpdating(ctx context.Context) {
	msgs, err := s.broker.ConsumeExchange(rabbitmq.USERS_UPDATE_EXCHANGE)
	if err != nil {
		panic(err)
	}

	for msg := range msgs {
		var updates map[string]interface{}
		if err := json.Unmarshal(msg.Body, &updates); err != nil {
			msg.Ack(false)
			continue
		}

		userIDString, ok := updates["user_id"].(string)
		if !ok {
			msg.Ack(false)
			continue
		}
		userID, err := uuid.Parse(userIDString)
		if err != nil {
			msg.Ack(false)
			continue
		}

		delete(updates, "user_id")

		if err := s.updateByID(ctx, userID, updates); err != nil {
			s.logger.Sugar().Errorf("failed to update user(%s): %s", userID.String(), err.Error())
		}

		msg.Ack(false)
	}
}
