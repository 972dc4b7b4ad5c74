package model

import "github.com/google/uuid"

// NotificationEmail is queued for the mailer when a targeted notification is created.
type NotificationEmail struct {
	ReceiverID uuid.UUID `json:"receiver_id"`
	Email      string    `json:"email"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
}
