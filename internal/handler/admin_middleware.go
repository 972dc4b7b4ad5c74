package handler

import (
	"net/http"

	"github.com/UniReviews/community-service/internal/service"
	"github.com/UniReviews/community-service/internal/session"
)

// adminMiddleware must run after authMiddleware.
func (h *Handler) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session.FromContext(r.Context())
		if !ok {
			h.Fail(w, service.ErrUnauthenticated)
			return
		}

		isAdmin, err := h.services.Admin.IsAdmin(r.Context(), sess.UserID)
		if err != nil {
			h.logger.Sugar().Errorf("failed to check whether user(%s) is admin: %s", sess.UserID.String(), err.Error())
			h.Fail(w, service.ErrInternal)
			return
		}
		if !isAdmin {
			h.Fail(w, service.ErrNotAdmin)
			return
		}

		next.ServeHTTP(w, r)
	})
}
