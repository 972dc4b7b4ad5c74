package handler

import (
	"encoding/json"
	"net/http"

	"github.com/UniReviews/community-service/internal/dto"
	"github.com/UniReviews/community-service/internal/model"
	"github.com/go-chi/chi/v5"
)

func (h *Handler) notificationsGet(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.services.Notification.UserNotifications(r.Context())
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true, "notifications": notifications}, http.StatusOK)
}

func (h *Handler) notificationsUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.services.Notification.UnreadCount(r.Context())
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true, "count": count}, http.StatusOK)
}

// notificationsMarkRead accepts an optional ?partition= to skip partition resolution.
func (h *Handler) notificationsMarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "nId")
	partition := model.Partition(r.URL.Query().Get("partition"))

	var err error
	if partition == "" {
		err = h.services.Notification.MarkRead(r.Context(), id)
	} else {
		err = h.services.Notification.MarkRefRead(r.Context(), model.NotificationRef{Partition: partition, ID: id})
	}
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true}, http.StatusOK)
}

func (h *Handler) notificationsMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Notification.MarkAllRead(r.Context()); err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true}, http.StatusOK)
}

func (h *Handler) notificationsGetAll(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.services.Notification.AllBroadcasts(r.Context())
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true, "notifications": notifications}, http.StatusOK)
}

func (h *Handler) notificationsCreate(w http.ResponseWriter, r *http.Request) {
	var input dto.CreateNotification
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.badRequest(w, errInvalidBody)
		return
	}

	typ := model.NotificationType(input.Type)
	if typ == "" {
		typ = model.NotificationInfo
	}

	var (
		ref model.NotificationRef
		err error
	)
	if input.TargetUserID == nil && input.TargetDisplayName != "" {
		ref, err = h.services.Notification.CreateForDisplayName(r.Context(), input.TargetDisplayName, input.Title, input.Message, typ)
	} else {
		ref, err = h.services.Notification.Create(r.Context(), input.Title, input.Message, typ, input.TargetUserID)
	}
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true, "id": ref.ID, "partition": ref.Partition}, http.StatusCreated)
}

func (h *Handler) notificationsDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Notification.Delete(r.Context(), chi.URLParam(r, "nId")); err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true}, http.StatusOK)
}
