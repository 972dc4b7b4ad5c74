package model

import (
	"time"

	"github.com/google/uuid"
)

type Admin struct {
	UserID  uuid.UUID `json:"user_id"`
	AddedBy uuid.UUID `json:"added_by"`
	AddedAt time.Time `json:"added_at"`
}
