package service

import (
	"context"
	"time"

	"github.com/UniReviews/community-service/internal/model"
	"github.com/UniReviews/community-service/internal/repository"
	"github.com/UniReviews/community-service/internal/repository/redisrepo"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type adminService struct {
	logger   *zap.Logger
	repo     *repository.Repository
	rdb      *redis.Client
	cacheTTL time.Duration
	now      func() time.Time
}

func newAdminService(logger *zap.Logger, repo *repository.Repository, rdb *redis.Client, cacheTTL time.Duration) *adminService {
	return &adminService{
		logger:   logger,
		repo:     repo,
		rdb:      rdb,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// cachedRole answers from redis first and falls back to lookup. Cache errors
// never fail the check.
func (s *adminService) cachedRole(ctx context.Context, key string, lookup func() (bool, error)) (bool, error) {
	if s.rdb != nil {
		cached, err := redisrepo.Get[bool](s.rdb, ctx, key)
		if err == nil {
			return *cached, nil
		}
		if err != redis.Nil {
			s.logger.Sugar().Errorf("failed to get role from cache(%s): %s", key, err.Error())
		}
	}

	ok, err := lookup()
	if err != nil {
		return false, err
	}

	if s.rdb != nil {
		if err := redisrepo.SetJSON(s.rdb, ctx, key, ok, s.cacheTTL); err != nil {
			s.logger.Sugar().Errorf("failed to set role in cache(%s): %s", key, err.Error())
		}
	}

	return ok, nil
}

func (s *adminService) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.cachedRole(ctx, redisrepo.UserAdminKey(userID.String()), func() (bool, error) {
		return s.repo.Postgres.Admin.IsAdmin(ctx, userID)
	})
}

func (s *adminService) IsSuperAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.cachedRole(ctx, redisrepo.UserSuperAdminKey(userID.String()), func() (bool, error) {
		return s.repo.Postgres.Admin.IsSuperAdmin(ctx, userID)
	})
}

func (s *adminService) List(ctx context.Context) ([]*model.Admin, error) {
	sess, err := userSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(ctx, s.logger, s, sess); err != nil {
		return nil, err
	}

	admins, err := s.repo.Postgres.Admin.List(ctx)
	if err != nil {
		s.logger.Sugar().Errorf("failed to list admins: %s", err.Error())
		return nil, ErrInternal
	}
	return admins, nil
}

func (s *adminService) requireSuperAdmin(ctx context.Context) (uuid.UUID, error) {
	sess, err := userSession(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	ok, err := s.IsSuperAdmin(ctx, sess.UserID)
	if err != nil {
		s.logger.Sugar().Errorf("failed to check whether user(%s) is superadmin: %s", sess.UserID.String(), err.Error())
		return uuid.Nil, ErrInternal
	}
	if !ok {
		return uuid.Nil, ErrNotSuperAdmin
	}
	return sess.UserID, nil
}

func (s *adminService) Add(ctx context.Context, userID uuid.UUID) error {
	addedBy, err := s.requireSuperAdmin(ctx)
	if err != nil {
		return err
	}

	if _, err := s.repo.Postgres.User.FindByID(ctx, userID); err != nil {
		if err == pgx.ErrNoRows {
			return ErrUserNotFound
		}
		s.logger.Sugar().Errorf("failed to get user(%s): %s", userID.String(), err.Error())
		return ErrInternal
	}

	if err := s.repo.Postgres.Admin.Add(ctx, model.Admin{
		UserID:  userID,
		AddedBy: addedBy,
		AddedAt: s.now(),
	}); err != nil {
		s.logger.Sugar().Errorf("failed to add admin(%s): %s", userID.String(), err.Error())
		return ErrInternal
	}

	s.dropCachedRole(ctx, userID)
	return nil
}

func (s *adminService) Remove(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.requireSuperAdmin(ctx); err != nil {
		return err
	}

	if err := s.repo.Postgres.Admin.Remove(ctx, userID); err != nil {
		s.logger.Sugar().Errorf("failed to remove admin(%s): %s", userID.String(), err.Error())
		return ErrInternal
	}

	s.dropCachedRole(ctx, userID)
	return nil
}

func (s *adminService) dropCachedRole(ctx context.Context, userID uuid.UUID) {
	if s.rdb == nil {
		return
	}
	if err := redisrepo.Del(s.rdb, ctx, redisrepo.UserAdminKey(userID.String())); err != nil {
		s.logger.Sugar().Errorf("failed to delete admin(%s) from cache: %s", userID.String(), err.Error())
	}
}
