package service

import "errors"

// Kinds. Every error a service returns is, or wraps, one of these.
var (
	ErrInternal         = errors.New("internal server error")
	ErrUnauthenticated  = errors.New("user is not authenticated")
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
)

// Error is a user-facing message tied to one of the kinds above.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

var (
	ErrNotificationNotFound = &Error{ErrNotFound, "notification not found"}
	ErrUserNotFound         = &Error{ErrNotFound, "user not found"}
	ErrTopicNotFound        = &Error{ErrNotFound, "topic not found"}
	ErrMessageNotFound      = &Error{ErrNotFound, "message not found"}
	ErrChatMessageNotFound  = &Error{ErrNotFound, "chat message not found"}

	ErrNotAdmin            = &Error{ErrPermissionDenied, "you are not an admin"}
	ErrNotSuperAdmin       = &Error{ErrPermissionDenied, "only superadmins can manage admins"}
	ErrCannotDeleteTopic   = &Error{ErrPermissionDenied, "you are not allowed to delete this topic"}
	ErrCannotDeleteMessage = &Error{ErrPermissionDenied, "you are not allowed to delete this message"}

	ErrInvalidNotification = &Error{ErrInvalidInput, "title and message are required, title must not be over 255 and type must be one of info, warning, success, error"}
	ErrInvalidPartition    = &Error{ErrInvalidInput, "partition must be broadcast or targeted"}
	ErrInvalidTopic        = &Error{ErrInvalidInput, "title is required and must not be over 255"}
	ErrInvalidMessage      = &Error{ErrInvalidInput, "message content is required and must not be over 5000"}
	ErrInvalidChatMessage  = &Error{ErrInvalidInput, "chat message is empty or too long"}
	ErrInvalidDisplayName  = &Error{ErrInvalidInput, "display name must be between 1 and 64 characters"}
)
