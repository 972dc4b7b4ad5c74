package dto

import (
	"time"

	"github.com/google/uuid"
)

type MQUserCreated struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url"`
}

type MQForumMessageCreated struct {
	TopicID      uuid.UUID `json:"topic_id"`
	TopicTitle   string    `json:"topic_title"`
	TopicOwnerID uuid.UUID `json:"topic_owner_id"`
	MessageID    uuid.UUID `json:"message_id"`
	AuthorID     uuid.UUID `json:"author_id"`
	AuthorName   string    `json:"author_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// MQCreateNotification lets other services raise a notification. A nil
// ReceiverID (and empty ReceiverDisplayName) means a broadcast.
type MQCreateNotification struct {
	ReceiverID          *uuid.UUID `json:"receiver_id"`
	ReceiverDisplayName string     `json:"receiver_display_name"`
	Title               string     `json:"title"`
	Message             string     `json:"message"`
	Type                string     `json:"type"`
}
