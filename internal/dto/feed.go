package dto

import "github.com/UniReviews/community-service/internal/model"

const (
	FeedEventFeed   = "feed"
	FeedEventToasts = "toasts"
	FeedEventError  = "error"

	FeedActionMarkRead    = "mark_read"
	FeedActionMarkAllRead = "mark_all_read"
	FeedActionDismiss     = "dismiss"
)

// FeedEvent is written to a feed websocket.
type FeedEvent struct {
	Type          string               `json:"type"`
	Notifications []model.Notification `json:"notifications,omitempty"`
	UnreadCount   int                  `json:"unread_count"`
	Toasts        []model.Notification `json:"toasts,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// FeedCommand is read from a feed websocket.
type FeedCommand struct {
	Action    string          `json:"action"`
	ID        string          `json:"id"`
	Partition model.Partition `json:"partition"`
}

type ChatEvent struct {
	Type     string              `json:"type"`
	Messages []model.ChatMessage `json:"messages"`
}
