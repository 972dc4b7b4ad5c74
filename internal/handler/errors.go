package handler

import (
	"errors"
	"net/http"

	"github.com/UniReviews/community-service/internal/service"
)

var (
	errNoToken            = errors.New("there is no token")
	errInvalidJWT         = errors.New("invalid jwt")
	errTokenExpired       = errors.New("token expired")
	errInvalidUserID      = errors.New("invalid user ID")
	errInvalidID          = errors.New("invalid id")
	errInvalidBody        = errors.New("invalid request body")
	errInvalidLimitOffset = errors.New("limit and offset must be integer")
	errUnknownAction      = errors.New("unknown action")
)

// statusOf maps a service error to the HTTP status it is reported with.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
