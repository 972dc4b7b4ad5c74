package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/UniReviews/community-service/internal/dto"
	"github.com/UniReviews/community-service/internal/model"
	"github.com/UniReviews/community-service/internal/service"
	"github.com/UniReviews/community-service/internal/session"
)

func unreadCount(notifications []model.Notification) int {
	unread := 0
	for _, n := range notifications {
		if !n.Read {
			unread++
		}
	}
	return unread
}

// notificationsWS streams the caller's merged feed and toasts and accepts
// mark-read and dismiss commands.
func (h *Handler) notificationsWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.Fail(w, service.ErrUnauthenticated)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Sugar().Errorf("failed to upgrade user(%s)'s connection: %s", sess.UserID.String(), err.Error())
		return
	}
	defer conn.Close()
	c := &wsConn{conn: conn}

	toasts := service.NewToastStack(h.cfg.Toast.TTL, func(visible []model.Notification) {
		c.writeJSON(dto.FeedEvent{Type: dto.FeedEventToasts, Toasts: visible})
	})
	feed := service.NewFeedLifecycle(h.services.Notification, func(notifications []model.Notification) {
		c.writeJSON(dto.FeedEvent{
			Type:          dto.FeedEventFeed,
			Notifications: notifications,
			UnreadCount:   unreadCount(notifications),
		})
	}, toasts.Push)

	ctx := r.Context()
	feed.SessionChanged(ctx, sess)
	defer func() {
		feed.Close()
		toasts.Clear()
	}()

	done := make(chan struct{})
	defer close(done)
	h.keepAlive(c, done)
	conn.SetReadLimit(maxCommandSize)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd dto.FeedCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.writeJSON(dto.FeedEvent{Type: dto.FeedEventError, Error: errInvalidBody.Error()})
			continue
		}

		if err := h.handleFeedCommand(ctx, toasts, cmd); err != nil {
			c.writeJSON(dto.FeedEvent{Type: dto.FeedEventError, Error: err.Error()})
		}
	}
}

func (h *Handler) handleFeedCommand(ctx context.Context, toasts *service.ToastStack, cmd dto.FeedCommand) error {
	switch cmd.Action {
	case dto.FeedActionMarkRead:
		if cmd.Partition == "" {
			return h.services.Notification.MarkRead(ctx, cmd.ID)
		}
		return h.services.Notification.MarkRefRead(ctx, model.NotificationRef{Partition: cmd.Partition, ID: cmd.ID})
	case dto.FeedActionMarkAllRead:
		return h.services.Notification.MarkAllRead(ctx)
	case dto.FeedActionDismiss:
		toasts.Dismiss(model.NotificationRef{Partition: cmd.Partition, ID: cmd.ID})
		return nil
	}
	return errUnknownAction
}
