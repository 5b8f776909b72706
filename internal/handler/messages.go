package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/whatsapp-inbox/internal/middleware"
	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
	"github.com/capitalize-ai/whatsapp-inbox/internal/service"
	"github.com/capitalize-ai/whatsapp-inbox/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	controller *service.HandoffController
	logger     *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(ctrl *service.HandoffController, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		controller: ctrl,
		logger:     log,
	}
}

func messageID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateMessageID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List handles GET /api/v1/conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var (
		filter model.MessageFilter
		err    error
	)
	if filter.Before, err = parseTime(q.Get("before")); err != nil {
		writeError(w, http.StatusBadRequest, "before must be an RFC 3339 timestamp")
		return
	}
	if filter.After, err = parseTime(q.Get("after")); err != nil {
		writeError(w, http.StatusBadRequest, "after must be an RFC 3339 timestamp")
		return
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = l
	}

	resp, err := h.controller.GetMessages(ctx, middleware.GetTenantID(ctx), id, filter)
	if err != nil {
		writeServiceError(w, h.logger, "get messages", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Compose handles POST /api/v1/conversations/{id}/messages
func (h *MessageHandler) Compose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.ComposeMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.controller.ComposeMessage(ctx, middleware.GetTenantID(ctx), middleware.GetOperatorID(ctx), id, req.Content)
	if err != nil {
		writeServiceError(w, h.logger, "compose message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Edit handles PATCH /api/v1/messages/{id}
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := messageID(w, r)
	if !ok {
		return
	}

	var req model.EditMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.controller.EditMessage(ctx, middleware.GetTenantID(ctx), middleware.GetOperatorID(ctx), id, req.Content)
	if err != nil {
		writeServiceError(w, h.logger, "edit message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// Delete handles DELETE /api/v1/messages/{id}?scope=me|everyone
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := messageID(w, r)
	if !ok {
		return
	}

	scope := model.DeleteScope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = model.DeleteForMe
	}

	msg, err := h.controller.DeleteMessage(ctx, middleware.GetTenantID(ctx), middleware.GetOperatorID(ctx), id, scope)
	if err != nil {
		writeServiceError(w, h.logger, "delete message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// AddReaction handles POST /api/v1/messages/{id}/reactions
func (h *MessageHandler) AddReaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := messageID(w, r)
	if !ok {
		return
	}

	var req model.ReactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateLabel(req.Emoji); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.controller.AddReaction(ctx, middleware.GetTenantID(ctx), middleware.GetOperatorID(ctx), id, req.Emoji)
	if err != nil {
		writeServiceError(w, h.logger, "add reaction", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// RemoveReaction handles DELETE /api/v1/messages/{id}/reactions/{emoji}
func (h *MessageHandler) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := messageID(w, r)
	if !ok {
		return
	}

	emoji, err := url.PathUnescape(chi.URLParam(r, "emoji"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid emoji")
		return
	}

	msg, err := h.controller.RemoveReaction(ctx, middleware.GetTenantID(ctx), middleware.GetOperatorID(ctx), id, emoji)
	if err != nil {
		writeServiceError(w, h.logger, "remove reaction", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}
