// Package session carries the identity of the current caller on a context.
package session

import (
	"context"

	"github.com/google/uuid"
)

// SystemEmail attributes notifications that no human sent.
const SystemEmail = "system"

type Session struct {
	UserID uuid.UUID
	Email  string
	// System sessions are used by background consumers and bypass admin checks.
	System bool
}

func New(userID uuid.UUID, email string) *Session {
	return &Session{UserID: userID, Email: email}
}

func System() *Session {
	return &Session{UserID: uuid.Nil, Email: SystemEmail, System: true}
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored on ctx, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}
