package handler

import (
	"encoding/json"
	"net/http"

	"github.com/UniReviews/community-service/internal/dto"
	"github.com/UniReviews/community-service/internal/service"
	"github.com/UniReviews/community-service/internal/session"
)

func (h *Handler) usersSearch(w http.ResponseWriter, r *http.Request) {
	users, err := h.services.User.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true, "users": users}, http.StatusOK)
}

func (h *Handler) usersMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.Fail(w, service.ErrUnauthenticated)
		return
	}

	user, err := h.services.User.FindByID(r.Context(), sess.UserID)
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true, "user": user}, http.StatusOK)
}

func (h *Handler) usersUpdateMe(w http.ResponseWriter, r *http.Request) {
	var input dto.UpdateProfile
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.badRequest(w, errInvalidBody)
		return
	}

	user, err := h.services.User.UpdateProfile(r.Context(), input)
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true, "user": user}, http.StatusOK)
}
