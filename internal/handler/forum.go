package handler

import (
	"encoding/json"
	"net/http"

	"github.com/UniReviews/community-service/internal/dto"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errInvalidID
	}
	return id, nil
}

func (h *Handler) forumTopicsGet(w http.ResponseWriter, r *http.Request) {
	limit, err0 := queryInt(r, "limit", 0)
	offset, err1 := queryInt(r, "offset", 0)
	if err0 != nil || err1 != nil {
		h.badRequest(w, errInvalidLimitOffset)
		return
	}

	topics, err := h.services.Forum.ListTopics(r.Context(), limit, offset)
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true, "topics": topics}, http.StatusOK)
}

func (h *Handler) forumTopicsCreate(w http.ResponseWriter, r *http.Request) {
	var input dto.CreateTopic
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.badRequest(w, errInvalidBody)
		return
	}

	id, err := h.services.Forum.CreateTopic(r.Context(), input.Title, input.Description)
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true, "id": id}, http.StatusCreated)
}

func (h *Handler) forumTopicsDelete(w http.ResponseWriter, r *http.Request) {
	topicID, err := uuidParam(r, "topicId")
	if err != nil {
		h.badRequest(w, err)
		return
	}

	if err := h.services.Forum.DeleteTopic(r.Context(), topicID); err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true}, http.StatusOK)
}

func (h *Handler) forumMessagesGet(w http.ResponseWriter, r *http.Request) {
	topicID, err := uuidParam(r, "topicId")
	if err != nil {
		h.badRequest(w, err)
		return
	}

	messages, err := h.services.Forum.GetTopicMessages(r.Context(), topicID)
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true, "messages": messages}, http.StatusOK)
}

func (h *Handler) forumMessagesCreate(w http.ResponseWriter, r *http.Request) {
	topicID, err := uuidParam(r, "topicId")
	if err != nil {
		h.badRequest(w, err)
		return
	}

	var input dto.CreateMessage
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.badRequest(w, errInvalidBody)
		return
	}

	id, err := h.services.Forum.CreateMessage(r.Context(), topicID, input.Content)
	if err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true, "id": id}, http.StatusCreated)
}

func (h *Handler) forumMessagesDelete(w http.ResponseWriter, r *http.Request) {
	topicID, err := uuidParam(r, "topicId")
	if err != nil {
		h.badRequest(w, err)
		return
	}
	messageID, err := uuidParam(r, "messageId")
	if err != nil {
		h.badRequest(w, err)
		return
	}

	if err := h.services.Forum.DeleteMessage(r.Context(), topicID, messageID); err != nil {
		h.Fail(w, err)
		return
	}

	h.Respond(w, Resp{"success": true}, http.StatusOK)
}
