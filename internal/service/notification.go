package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/UniReviews/community-service/internal/config"
	"github.com/UniReviews/community-service/internal/dto"
	"github.com/UniReviews/community-service/internal/model"
	"github.com/UniReviews/community-service/internal/rabbitmq"
	"github.com/UniReviews/community-service/internal/repository"
	"github.com/UniReviews/community-service/internal/repository/realtime"
	"github.com/UniReviews/community-service/internal/session"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	NOTIFICATION_TITLE_MAX_LENGTH = 255
	DEFAULT_SENDER_EMAIL          = "Admin"
)

type notificationService struct {
	logger    *zap.Logger
	repo      *repository.Repository
	store     realtime.Store
	authz     Authorizer
	broker    rabbitmq.Broker
	jobs      config.JobsConfig
	scheduler gocron.Scheduler
	now       func() time.Time
}

func newNotificationService(logger *zap.Logger, repo *repository.Repository, authz Authorizer, broker rabbitmq.Broker, jobs config.JobsConfig) *notificationService {
	return &notificationService{
		logger: logger,
		repo:   repo,
		store:  repo.Realtime,
		authz:  authz,
		broker: broker,
		jobs:   jobs,
		now:    time.Now,
	}
}

// userSession returns the session of a human caller.
func userSession(ctx context.Context) (*session.Session, error) {
	sess, ok := session.FromContext(ctx)
	if !ok || sess.System {
		return nil, ErrUnauthenticated
	}
	return sess, nil
}

func requireAdmin(ctx context.Context, logger *zap.Logger, authz Authorizer, sess *session.Session) error {
	if sess.System {
		return nil
	}
	ok, err := authz.IsAdmin(ctx, sess.UserID)
	if err != nil {
		logger.Sugar().Errorf("failed to check whether user(%s) is admin: %s", sess.UserID.String(), err.Error())
		return ErrInternal
	}
	if !ok {
		return ErrNotAdmin
	}
	return nil
}

func (s *notificationService) Subscribe(ctx context.Context, fn func([]model.Notification)) func() {
	sess, err := userSession(ctx)
	if err != nil {
		return func() {}
	}

	uid := sess.UserID.String()
	sub := &feedSubscription{
		logger: s.logger,
		fn:     fn,
	}

	parts := []struct {
		part feedPart
		path string
	}{
		{partBroadcast, realtime.BroadcastPath},
		{partTargeted, realtime.TargetedPath(uid)},
		{partReadStatus, realtime.ReadStatusPath(uid)},
	}

	var unsubs []func()
	for _, p := range parts {
		part := p.part
		unsubscribe, err := s.store.Subscribe(ctx, p.path, func(snap realtime.Snapshot) {
			sub.apply(part, snap)
		})
		if err != nil {
			s.logger.Sugar().Errorf("failed to subscribe user(%s) to %s: %s", uid, p.path, err.Error())
			sub.fail(part)
			continue
		}
		unsubs = append(unsubs, unsubscribe)
	}

	sub.mu.Lock()
	sub.unsubs = unsubs
	sub.mu.Unlock()

	return sub.close
}

func (s *notificationService) UserNotifications(ctx context.Context) ([]model.Notification, error) {
	sess, err := userSession(ctx)
	if err != nil {
		return nil, err
	}
	uid := sess.UserID.String()

	broadcast, err := s.store.Get(ctx, realtime.BroadcastPath)
	if err != nil {
		s.logger.Sugar().Errorf("failed to get broadcast notifications for user(%s): %s", uid, err.Error())
		return nil, ErrInternal
	}
	targeted, err := s.store.Get(ctx, realtime.TargetedPath(uid))
	if err != nil {
		s.logger.Sugar().Errorf("failed to get user(%s)'s notifications: %s", uid, err.Error())
		return nil, ErrInternal
	}
	status, err := s.store.Get(ctx, realtime.ReadStatusPath(uid))
	if err != nil {
		s.logger.Sugar().Errorf("failed to get user(%s)'s read status: %s", uid, err.Error())
		return nil, ErrInternal
	}

	return mergeFeed(
		decodeNotifications(s.logger, broadcast, model.PartitionBroadcast),
		decodeNotifications(s.logger, targeted, model.PartitionTargeted),
		decodeReadStatus(s.logger, status),
	), nil
}

func (s *notificationService) AllBroadcasts(ctx context.Context) ([]model.Notification, error) {
	sess, err := userSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(ctx, s.logger, s.authz, sess); err != nil {
		return nil, err
	}

	snap, err := s.store.Get(ctx, realtime.BroadcastPath)
	if err != nil {
		s.logger.Sugar().Errorf("failed to get broadcast notifications: %s", err.Error())
		return nil, ErrInternal
	}

	notifications := decodeNotifications(s.logger, snap, model.PartitionBroadcast)
	sortFeed(notifications)
	return notifications, nil
}

func (s *notificationService) UnreadCount(ctx context.Context) (int, error) {
	feed, err := s.UserNotifications(ctx)
	if err != nil {
		return 0, err
	}

	unread := 0
	for _, n := range feed {
		if !n.Read {
			unread++
		}
	}
	return unread, nil
}

func validNotification(title, message string, typ model.NotificationType) bool {
	return strings.TrimSpace(title) != "" &&
		utf8.RuneCountInString(title) <= NOTIFICATION_TITLE_MAX_LENGTH &&
		strings.TrimSpace(message) != "" &&
		typ.Valid()
}

func (s *notificationService) Create(ctx context.Context, title, message string, typ model.NotificationType, target *uuid.UUID) (model.NotificationRef, error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return model.NotificationRef{}, ErrUnauthenticated
	}
	if !validNotification(title, message, typ) {
		return model.NotificationRef{}, ErrInvalidNotification
	}

	record := model.NotificationRecord{
		Title:          title,
		Message:        message,
		Type:           typ,
		CreatedAt:      s.now().UnixMilli(),
		CreatedBy:      sess.UserID.String(),
		CreatedByEmail: sess.Email,
	}
	if sess.System {
		record.CreatedBy = session.SystemEmail
	}
	if record.CreatedByEmail == "" {
		record.CreatedByEmail = DEFAULT_SENDER_EMAIL
	}

	if target == nil {
		if err := requireAdmin(ctx, s.logger, s.authz, sess); err != nil {
			return model.NotificationRef{}, err
		}

		key, err := s.store.Push(ctx, realtime.BroadcastPath, record)
		if err != nil {
			s.logger.Sugar().Errorf("failed to create broadcast notification by user(%s): %s", sess.UserID.String(), err.Error())
			return model.NotificationRef{}, ErrInternal
		}
		return model.Broadcast(key), nil
	}

	unread := false
	record.Read = &unread
	key, err := s.store.Push(ctx, realtime.TargetedPath(target.String()), record)
	if err != nil {
		s.logger.Sugar().Errorf("failed to create notification for user(%s): %s", target.String(), err.Error())
		return model.NotificationRef{}, ErrInternal
	}

	s.queueEmail(ctx, *target, record)

	return model.Targeted(key), nil
}

// queueEmail hands a targeted notification to the mailer. Failures only get logged.
func (s *notificationService) queueEmail(ctx context.Context, receiverID uuid.UUID, record model.NotificationRecord) {
	if s.broker == nil || s.repo.Postgres == nil || s.repo.Postgres.User == nil {
		return
	}

	receiver, err := s.repo.Postgres.User.FindByID(ctx, receiverID)
	if err != nil {
		if err != pgx.ErrNoRows {
			s.logger.Sugar().Errorf("failed to get notification receiver(%s): %s", receiverID.String(), err.Error())
		}
		return
	}
	if receiver.Email == "" {
		return
	}

	if err := s.broker.PublishJSON(ctx, rabbitmq.NOTIFICATION_EMAIL_QUEUE, model.NotificationEmail{
		ReceiverID: receiverID,
		Email:      receiver.Email,
		Title:      record.Title,
		Message:    record.Message,
	}); err != nil {
		s.logger.Sugar().Errorf("failed to queue notification email for user(%s): %s", receiverID.String(), err.Error())
	}
}

func (s *notificationService) CreateForDisplayName(ctx context.Context, displayName, title, message string, typ model.NotificationType) (model.NotificationRef, error) {
	if _, ok := session.FromContext(ctx); !ok {
		return model.NotificationRef{}, ErrUnauthenticated
	}

	name := strings.TrimSpace(displayName)
	if name == "" {
		return model.NotificationRef{}, ErrUserNotFound
	}

	userID, err := s.repo.Postgres.User.FindIDByDisplayName(ctx, name)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.NotificationRef{}, ErrUserNotFound
		}
		s.logger.Sugar().Errorf("failed to find user by display name(%s): %s", name, err.Error())
		return model.NotificationRef{}, ErrInternal
	}

	return s.Create(ctx, title, message, typ, &userID)
}

func (s *notificationService) Notify(ctx context.Context, recipient uuid.UUID, title, message string, typ model.NotificationType) (model.NotificationRef, error) {
	return s.Create(session.WithSession(ctx, session.System()), title, message, typ, &recipient)
}

// resolve finds the partition an id belongs to for the caller. A targeted
// record of the caller wins over a broadcast with the same id.
func (s *notificationService) resolve(ctx context.Context, sess *session.Session, id string) (model.NotificationRef, error) {
	for _, ref := range []model.NotificationRef{model.Targeted(id), model.Broadcast(id)} {
		ok, err := s.exists(ctx, sess, ref)
		if err != nil {
			return model.NotificationRef{}, err
		}
		if ok {
			return ref, nil
		}
	}
	return model.NotificationRef{}, ErrNotificationNotFound
}

func recordPath(sess *session.Session, ref model.NotificationRef) string {
	if ref.Partition == model.PartitionTargeted {
		return realtime.Join(realtime.TargetedPath(sess.UserID.String()), ref.ID)
	}
	return realtime.Join(realtime.BroadcastPath, ref.ID)
}

func (s *notificationService) exists(ctx context.Context, sess *session.Session, ref model.NotificationRef) (bool, error) {
	if ref.ID == "" || realtime.ValidatePath(ref.ID) != nil || strings.Contains(ref.ID, "/") {
		return false, nil
	}

	_, err := s.store.GetChild(ctx, recordPath(sess, ref))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, realtime.ErrNotFound) {
		return false, nil
	}
	s.logger.Sugar().Errorf("failed to get notification(%s) for user(%s): %s", ref.String(), sess.UserID.String(), err.Error())
	return false, ErrInternal
}

func (s *notificationService) MarkRead(ctx context.Context, id string) error {
	sess, err := userSession(ctx)
	if err != nil {
		return err
	}

	ref, err := s.resolve(ctx, sess, id)
	if err != nil {
		return err
	}

	return s.markRead(ctx, sess, ref)
}

func (s *notificationService) MarkRefRead(ctx context.Context, ref model.NotificationRef) error {
	sess, err := userSession(ctx)
	if err != nil {
		return err
	}
	if !ref.Partition.Valid() {
		return ErrInvalidPartition
	}

	ok, err := s.exists(ctx, sess, ref)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotificationNotFound
	}

	return s.markRead(ctx, sess, ref)
}

func readPath(sess *session.Session, ref model.NotificationRef) string {
	switch ref.Partition {
	case model.PartitionTargeted:
		return realtime.Join(realtime.TargetedPath(sess.UserID.String()), ref.ID)
	default:
		return realtime.Join(realtime.ReadStatusPath(sess.UserID.String()), ref.ID)
	}
}

func (s *notificationService) readFields() map[string]any {
	return map[string]any{
		"read":   true,
		"readAt": s.now().UnixMilli(),
	}
}

func (s *notificationService) markRead(ctx context.Context, sess *session.Session, ref model.NotificationRef) error {
	if err := s.store.Update(ctx, readPath(sess, ref), s.readFields()); err != nil {
		s.logger.Sugar().Errorf("failed to mark notification(%s) as read for user(%s): %s", ref.String(), sess.UserID.String(), err.Error())
		return ErrInternal
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context) error {
	sess, err := userSession(ctx)
	if err != nil {
		return err
	}

	feed, err := s.UserNotifications(ctx)
	if err != nil {
		return err
	}

	updates := map[string]map[string]any{}
	for _, n := range feed {
		if !n.Read {
			updates[readPath(sess, n.Ref())] = s.readFields()
		}
	}
	if len(updates) == 0 {
		return nil
	}

	if err := s.store.MultiUpdate(ctx, updates); err != nil {
		s.logger.Sugar().Errorf("failed to mark %d notifications as read for user(%s): %s", len(updates), sess.UserID.String(), err.Error())
		return ErrInternal
	}
	return nil
}

// Delete removes a broadcast notification. Read-status entries that point at it
// are left in place; the orphan audit job reports them.
func (s *notificationService) Delete(ctx context.Context, id string) error {
	sess, err := userSession(ctx)
	if err != nil {
		return err
	}
	if err := requireAdmin(ctx, s.logger, s.authz, sess); err != nil {
		return err
	}

	ref := model.Broadcast(id)
	ok, err := s.exists(ctx, sess, ref)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotificationNotFound
	}

	if err := s.store.Remove(ctx, recordPath(sess, ref)); err != nil {
		s.logger.Sugar().Errorf("failed to delete notification(%s): %s", id, err.Error())
		return ErrInternal
	}
	return nil
}

func (s *notificationService) StartProcessingInbound(ctx context.Context) {
	msgs, err := s.broker.Consume(rabbitmq.NOTIFICATIONS_CREATE_QUEUE)
	if err != nil {
		panic(err)
	}

	systemCtx := session.WithSession(ctx, session.System())
	for msg := range msgs {
		var input dto.MQCreateNotification
		if err := json.Unmarshal(msg.Body, &input); err != nil {
			msg.Ack(false)
			continue
		}

		typ := model.NotificationType(input.Type)
		if typ == "" {
			typ = model.NotificationInfo
		}

		switch {
		case input.ReceiverID != nil:
			_, err = s.Create(systemCtx, input.Title, input.Message, typ, input.ReceiverID)
		case input.ReceiverDisplayName != "":
			_, err = s.CreateForDisplayName(systemCtx, input.ReceiverDisplayName, input.Title, input.Message, typ)
		default:
			_, err = s.Create(systemCtx, input.Title, input.Message, typ, nil)
		}
		if err != nil {
			s.logger.Sugar().Errorf("failed to create notification from queue(%s): %s", rabbitmq.NOTIFICATIONS_CREATE_QUEUE, err.Error())
		}

		msg.Ack(false)
	}
}

func (s *notificationService) StartProcessingForumEvents(ctx context.Context) {
	msgs, err := s.broker.ConsumeExchange(rabbitmq.FORUM_EVENTS_EXCHANGE)
	if err != nil {
		panic(err)
	}

	for msg := range msgs {
		var event dto.MQForumMessageCreated
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			msg.Ack(false)
			continue
		}

		if err := s.notifyTopicOwner(ctx, event); err != nil {
			s.logger.Sugar().Errorf("failed to notify topic(%s) owner(%s) about message(%s): %s", event.TopicID.String(), event.TopicOwnerID.String(), event.MessageID.String(), err.Error())
		}

		msg.Ack(false)
	}
}

func (s *notificationService) notifyTopicOwner(ctx context.Context, event dto.MQForumMessageCreated) error {
	if event.AuthorID == event.TopicOwnerID {
		return nil
	}

	_, err := s.Notify(
		ctx,
		event.TopicOwnerID,
		"New reply in your topic",
		fmt.Sprintf("%s replied to \"%s\"", event.AuthorName, event.TopicTitle),
		model.NotificationInfo,
	)
	return err
}

// auditOrphanedReadStatus counts read-status entries whose broadcast no longer
// exists. They are reported, not removed.
func (s *notificationService) auditOrphanedReadStatus(ctx context.Context) (int, error) {
	broadcast, err := s.store.Get(ctx, realtime.BroadcastPath)
	if err != nil {
		return 0, err
	}
	live := make(map[string]struct{}, len(broadcast.Children))
	for _, child := range broadcast.Children {
		live[child.Key] = struct{}{}
	}

	collections, err := s.store.Collections(ctx, realtime.ReadStatusRoot+"/")
	if err != nil {
		return 0, err
	}

	orphans := 0
	for _, coll := range collections {
		snap, err := s.store.Get(ctx, coll)
		if err != nil {
			return orphans, err
		}
		for _, child := range snap.Children {
			if _, ok := live[child.Key]; !ok {
				orphans++
			}
		}
	}
	return orphans, nil
}

func (s *notificationService) newOrphanAuditJob() error {
	interval := s.jobs.OrphanAuditInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	_, err := s.scheduler.NewJob(gocron.DurationJob(interval), gocron.NewTask(func(ctx context.Context) {
		orphans, err := s.auditOrphanedReadStatus(ctx)
		if err != nil {
			s.logger.Sugar().Errorf("failed to audit read status entries: %s", err.Error())
			return
		}
		if orphans > 0 {
			s.logger.Sugar().Infof("found %d read status entries pointing at deleted notifications", orphans)
		}
	}))
	return err
}

func (s *notificationService) StartJobs() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.scheduler = scheduler

	if err := s.newOrphanAuditJob(); err != nil {
		return err
	}

	s.scheduler.Start()
	return nil
}

func (s *notificationService) StopJobs() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}
