package handler

import (
	"encoding/json"
	"net/http"

	"github.com/UniReviews/community-service/internal/dto"
	"github.com/UniReviews/community-service/internal/model"
	"github.com/go-chi/chi/v5"
)

const chatEventMessages = "messages"

func (h *Handler) chatMessagesGet(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.badRequest(w, errInvalidLimitOffset)
		return
	}

	messages, err := h.services.Chat.Recent(r.Context(), r.URL.Query().Get("before"), limit)
	if err != nil {
		h.Fail(w, err)
		return
	}
	count, err := h.services.Chat.MessageCount(r.Context())
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true, "messages": messages, "count": count}, http.StatusOK)
}

func (h *Handler) chatMessagesSend(w http.ResponseWriter, r *http.Request) {
	var input dto.SendChatMessage
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.badRequest(w, errInvalidBody)
		return
	}

	id, err := h.services.Chat.Send(r.Context(), input.Text, input.PhotoURL)
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true, "id": id}, http.StatusCreated)
}

func (h *Handler) chatMessagesDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Chat.Delete(r.Context(), chi.URLParam(r, "messageId")); err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true}, http.StatusOK)
}

// chatWS streams the latest chat page after every change. It is read-only.
func (h *Handler) chatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Sugar().Errorf("failed to upgrade chat connection: %s", err.Error())
		return
	}
	defer conn.Close()
	c := &wsConn{conn: conn}

	unsubscribe := h.services.Chat.Subscribe(r.Context(), func(messages []model.ChatMessage) {
		c.writeJSON(dto.ChatEvent{Type: chatEventMessages, Messages: messages})
	})
	defer unsubscribe()

	done := make(chan struct{})
	defer close(done)
	h.keepAlive(c, done)
	conn.SetReadLimit(maxCommandSize)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
