// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/whatsapp-inbox/internal/middleware"
	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
	"github.com/capitalize-ai/whatsapp-inbox/internal/service"
	"github.com/capitalize-ai/whatsapp-inbox/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	controller *service.HandoffController
	logger     *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(ctrl *service.HandoffController, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		controller: ctrl,
		logger:     log,
	}
}

// conversationID reads and validates the {id} path parameter.
func conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

func writeMissing(w http.ResponseWriter, field string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error: field + " is required",
		Kind:  string(service.KindMissingField),
	})
}

func parseFilter(r *http.Request) model.ConversationFilter {
	q := r.URL.Query()
	f := model.ConversationFilter{
		Status:             model.Status(q.Get("status")),
		AssignedOperatorID: q.Get("assigned_to"),
	}

	for _, raw := range q["tags"] {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				f.Tags = append(f.Tags, tag)
			}
		}
	}

	f.UnreadOnly, _ = strconv.ParseBool(q.Get("unread"))
	f.FavoriteOnly, _ = strconv.ParseBool(q.Get("favorite"))

	if p, err := strconv.Atoi(q.Get("page")); err == nil {
		f.Page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = l
	}
	return f
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := h.controller.ListConversations(ctx, middleware.GetTenantID(ctx), parseFilter(r))
	if err != nil {
		writeServiceError(w, h.logger, "list conversations", err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	resp, err := h.controller.Get(ctx, middleware.GetTenantID(ctx), id)
	if err != nil {
		writeServiceError(w, h.logger, "get conversation", err)
		return
	}
	resp.Selected = h.controller.Selected(middleware.GetOperatorID(ctx)) == id

	writeJSON(w, http.StatusOK, resp)
}

// Select handles POST /api/v1/conversations/{id}/select
func (h *ConversationHandler) Select(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	resp, err := h.controller.SelectConversation(ctx, middleware.GetTenantID(ctx), middleware.GetOperatorID(ctx), id)
	if err != nil {
		writeServiceError(w, h.logger, "select conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// MarkRead handles PATCH /api/v1/conversations/{id}/mark-read
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	conv, err := h.controller.MarkRead(ctx, middleware.GetTenantID(ctx), middleware.GetOperatorID(ctx), id)
	if err != nil {
		writeServiceError(w, h.logger, "mark read", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// ToggleAI handles PATCH /api/v1/conversations/{id}/ai
func (h *ConversationHandler) ToggleAI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.ToggleAIRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeMissing(w, "enabled")
		return
	}

	conv, err := h.controller.ToggleAI(ctx, middleware.GetTenantID(ctx), middleware.GetOperatorID(ctx), id, *req.Enabled)
	if err != nil {
		writeServiceError(w, h.logger, "toggle ai", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// AIReply handles POST /api/v1/conversations/{id}/ai/reply
func (h *ConversationHandler) AIReply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	msg, err := h.controller.GenerateAIReply(ctx, middleware.GetTenantID(ctx), id)
	if err != nil {
		writeServiceError(w, h.logger, "ai reply", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Inbound handles POST /api/v1/conversations/{id}/inbound
func (h *ConversationHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.InboundMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.controller.ReceiveInbound(ctx, middleware.GetTenantID(ctx), id, req)
	if err != nil {
		writeServiceError(w, h.logger, "receive inbound", err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// Assign handles PATCH /api/v1/conversations/{id}/assign
func (h *ConversationHandler) Assign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.AssignRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conv, err := h.controller.Assign(ctx, middleware.GetTenantID(ctx), middleware.GetOperatorID(ctx), id, req.OperatorID)
	if err != nil {
		writeServiceError(w, h.logger, "assign", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Favorite handles PATCH /api/v1/conversations/{id}/favorite
func (h *ConversationHandler) Favorite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	conv, err := h.controller.ToggleFavorite(ctx, middleware.GetTenantID(ctx), id)
	if err != nil {
		writeServiceError(w, h.logger, "toggle favorite", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// AddTag handles POST /api/v1/conversations/{id}/tags
func (h *ConversationHandler) AddTag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.TagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateLabel(req.Tag); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.controller.AddTag(ctx, middleware.GetTenantID(ctx), middleware.GetOperatorID(ctx), id, req.Tag)
	if err != nil {
		writeServiceError(w, h.logger, "add tag", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// AddNote handles POST /api/v1/conversations/{id}/notes
func (h *ConversationHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateMessageContent(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	note, err := h.controller.AddNote(ctx, middleware.GetTenantID(ctx), middleware.GetOperatorID(ctx), id, req.Text)
	if err != nil {
		writeServiceError(w, h.logger, "add note", err)
		return
	}

	writeJSON(w, http.StatusCreated, note)
}

// PutDraft handles PUT /api/v1/conversations/{id}/draft
func (h *ConversationHandler) PutDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.DraftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.controller.SetDraft(ctx, middleware.GetTenantID(ctx), id, req.Content); err != nil {
		writeServiceError(w, h.logger, "set draft", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetDraft handles GET /api/v1/conversations/{id}/draft
func (h *ConversationHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	draft, err := h.controller.Draft(ctx, middleware.GetTenantID(ctx), id)
	if err != nil {
		writeServiceError(w, h.logger, "get draft", err)
		return
	}

	writeJSON(w, http.StatusOK, model.DraftRequest{Content: draft})
}
