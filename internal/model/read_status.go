package model

import "github.com/google/uuid"

// ReadStatus marks one broadcast notification as read for one user.
// It is stored at userNotificationStatus/<userID>/<notificationID>.
type ReadStatus struct {
	UserID         uuid.UUID `json:"-"`
	NotificationID string    `json:"-"`
	Read           bool      `json:"read"`
	ReadAt         int64     `json:"readAt,omitempty"`
}
