package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/UniReviews/community-service/internal/config"
	"github.com/UniReviews/community-service/internal/model"
	"github.com/UniReviews/community-service/internal/repository"
	"github.com/UniReviews/community-service/internal/repository/realtime"
	"github.com/UniReviews/community-service/internal/session"
	"github.com/go-co-op/gocron/v2"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var chatCounterPath = realtime.Join(realtime.ChatStatsPath, "messages")

type chatService struct {
	logger    *zap.Logger
	repo      *repository.Repository
	store     realtime.Store
	authz     Authorizer
	cfg       config.ChatConfig
	jobs      config.JobsConfig
	scheduler gocron.Scheduler
	now       func() time.Time
}

func newChatService(logger *zap.Logger, repo *repository.Repository, authz Authorizer, cfg config.ChatConfig, jobs config.JobsConfig) *chatService {
	return &chatService{
		logger: logger,
		repo:   repo,
		store:  repo.Realtime,
		authz:  authz,
		cfg:    cfg,
		jobs:   jobs,
		now:    time.Now,
	}
}

// sender resolves the name, admin flag and photo shown next to a message.
func (s *chatService) sender(ctx context.Context, sess *session.Session) (string, bool, *string) {
	var (
		name  string
		photo *string
	)

	if s.repo.Postgres != nil {
		user, err := s.repo.Postgres.User.FindByID(ctx, sess.UserID)
		if err == nil {
			name = user.Name()
			photo = user.AvatarURL
		} else if err != pgx.ErrNoRows {
			s.logger.Sugar().Errorf("failed to get chat sender(%s): %s", sess.UserID.String(), err.Error())
		}
	}
	if name == "" && sess.Email != "" {
		name = strings.Split(sess.Email, "@")[0]
	}
	if name == "" {
		name = FALLBACK_AUTHOR_NAME
	}

	isAdmin, err := s.authz.IsAdmin(ctx, sess.UserID)
	if err != nil {
		s.logger.Sugar().Errorf("failed to check whether user(%s) is admin: %s", sess.UserID.String(), err.Error())
	}

	return name, isAdmin, photo
}

func (s *chatService) Send(ctx context.Context, text string, photoURL *string) (string, error) {
	sess, err := userSession(ctx)
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > s.cfg.MaxLength {
		return "", ErrInvalidChatMessage
	}

	name, isAdmin, photo := s.sender(ctx, sess)
	if photoURL != nil && *photoURL != "" {
		photo = photoURL
	}

	id, err := s.store.Push(ctx, realtime.ChatMessagesPath, model.ChatMessage{
		Text:      text,
		UserID:    sess.UserID.String(),
		Username:  name,
		IsAdmin:   isAdmin,
		PhotoURL:  photo,
		CreatedAt: s.now().UnixMilli(),
	})
	if err != nil {
		s.logger.Sugar().Errorf("failed to send chat message by user(%s): %s", sess.UserID.String(), err.Error())
		return "", ErrInternal
	}

	if _, err := s.store.Increment(ctx, chatCounterPath, 1); err != nil {
		s.logger.Sugar().Errorf("failed to increment chat message counter: %s", err.Error())
	}

	return id, nil
}

func (s *chatService) decode(snap realtime.Snapshot) []model.ChatMessage {
	messages := make([]model.ChatMessage, 0, len(snap.Children))
	for _, child := range snap.Children {
		var msg model.ChatMessage
		if err := json.Unmarshal(child.Value, &msg); err != nil {
			s.logger.Sugar().Errorf("failed to decode chat message(%s): %s", child.Key, err.Error())
			continue
		}
		msg.ID = child.Key
		messages = append(messages, msg)
	}
	return messages
}

// page returns up to limit messages older than before (all when before is
// empty), oldest first. messages must be ordered by key.
func page(messages []model.ChatMessage, before string, limit int) []model.ChatMessage {
	end := len(messages)
	if before != "" {
		end = 0
		for end < len(messages) && messages[end].ID < before {
			end++
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	return messages[start:end]
}

func (s *chatService) pageSize(limit int) int {
	if limit <= 0 || limit > s.cfg.PageSize {
		return s.cfg.PageSize
	}
	return limit
}

func (s *chatService) Recent(ctx context.Context, before string, limit int) ([]model.ChatMessage, error) {
	snap, err := s.store.Get(ctx, realtime.ChatMessagesPath)
	if err != nil {
		s.logger.Sugar().Errorf("failed to get chat messages: %s", err.Error())
		return nil, ErrInternal
	}

	return page(s.decode(snap), before, s.pageSize(limit)), nil
}

func (s *chatService) Delete(ctx context.Context, id string) error {
	sess, err := userSession(ctx)
	if err != nil {
		return err
	}
	if err := requireAdmin(ctx, s.logger, s.authz, sess); err != nil {
		return err
	}

	if id == "" || strings.Contains(id, "/") || realtime.ValidatePath(id) != nil {
		return ErrChatMessageNotFound
	}
	path := realtime.Join(realtime.ChatMessagesPath, id)

	if _, err := s.store.GetChild(ctx, path); err != nil {
		if errors.Is(err, realtime.ErrNotFound) {
			return ErrChatMessageNotFound
		}
		s.logger.Sugar().Errorf("failed to get chat message(%s): %s", id, err.Error())
		return ErrInternal
	}

	if err := s.store.Remove(ctx, path); err != nil {
		s.logger.Sugar().Errorf("failed to delete chat message(%s): %s", id, err.Error())
		return ErrInternal
	}

	if _, err := s.store.Increment(ctx, chatCounterPath, -1); err != nil {
		s.logger.Sugar().Errorf("failed to decrement chat message counter: %s", err.Error())
	}
	return nil
}

func (s *chatService) MessageCount(ctx context.Context) (int64, error) {
	raw, err := s.store.GetChild(ctx, chatCounterPath)
	if err != nil {
		if errors.Is(err, realtime.ErrNotFound) {
			return 0, nil
		}
		s.logger.Sugar().Errorf("failed to get chat message counter: %s", err.Error())
		return 0, ErrInternal
	}

	count, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		s.logger.Sugar().Errorf("failed to parse chat message counter(%s): %s", string(raw), err.Error())
		return 0, ErrInternal
	}
	return count, nil
}

// Subscribe streams the latest page of the chat after every change. Reading
// the chat does not need a session.
func (s *chatService) Subscribe(ctx context.Context, fn func([]model.ChatMessage)) func() {
	var (
		mu     sync.Mutex
		closed bool
	)

	unsubscribe, err := s.store.Subscribe(ctx, realtime.ChatMessagesPath, func(snap realtime.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		fn(page(s.decode(snap), "", s.cfg.PageSize))
	})
	if err != nil {
		s.logger.Sugar().Errorf("failed to subscribe to chat messages: %s", err.Error())
		return func() {}
	}

	return func() {
		mu.Lock()
		closed = true
		mu.Unlock()
		unsubscribe()
	}
}

// pruneOlderThan removes messages created before cutoff and returns how many went.
func (s *chatService) pruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	snap, err := s.store.Get(ctx, realtime.ChatMessagesPath)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, msg := range s.decode(snap) {
		if msg.CreatedAt >= cutoff.UnixMilli() {
			continue
		}
		if err := s.store.Remove(ctx, realtime.Join(realtime.ChatMessagesPath, msg.ID)); err != nil {
			return pruned, err
		}
		pruned++
	}

	if pruned > 0 {
		if _, err := s.store.Increment(ctx, chatCounterPath, -int64(pruned)); err != nil {
			return pruned, err
		}
	}
	return pruned, nil
}

func (s *chatService) newPruneJob() error {
	interval := s.jobs.ChatPruneInterval
	if interval <= 0 {
		interval = 12 * time.Hour
	}

	_, err := s.scheduler.NewJob(gocron.DurationJob(interval), gocron.NewTask(func(ctx context.Context) {
		pruned, err := s.pruneOlderThan(ctx, s.now().Add(-s.jobs.ChatRetention))
		if err != nil {
			s.logger.Sugar().Errorf("failed to prune chat messages: %s", err.Error())
			return
		}
		if pruned > 0 {
			s.logger.Sugar().Infof("pruned %d chat messages", pruned)
		}
	}))
	return err
}

func (s *chatService) StartJobs() error {
	if s.jobs.ChatRetention <= 0 {
		return nil
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.scheduler = scheduler

	if err := s.newPruneJob(); err != nil {
		return err
	}

	s.scheduler.Start()
	return nil
}

func (s *chatService) StopJobs() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}
