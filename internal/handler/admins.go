package handler

import (
	"encoding/json"
	"net/http"

	"github.com/UniReviews/community-service/internal/dto"
)

func (h *Handler) adminsGet(w http.ResponseWriter, r *http.Request) {
	admins, err := h.services.Admin.List(r.Context())
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true, "admins": admins}, http.StatusOK)
}

func (h *Handler) adminsAdd(w http.ResponseWriter, r *http.Request) {
	var input dto.AddAdmin
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.badRequest(w, errInvalidBody)
		return
	}

	if err := h.services.Admin.Add(r.Context(), input.UserID); err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true}, http.StatusCreated)
}

func (h *Handler) adminsRemove(w http.ResponseWriter, r *http.Request) {
	userID, err := uuidParam(r, "userId")
	if err != nil {
		h.badRequest(w, err)
		return
	}

	if err := h.services.Admin.Remove(r.Context(), userID); err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true}, http.StatusOK)
}
