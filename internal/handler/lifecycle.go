package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/whatsapp-inbox/internal/middleware"
	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
	"github.com/capitalize-ai/whatsapp-inbox/internal/service"
	"github.com/capitalize-ai/whatsapp-inbox/pkg/logger"
)

// LifecycleHandler handles two-step resolve/archive, scheduled actions and
// event replay.
type LifecycleHandler struct {
	controller *service.HandoffController
	logger     *logger.Logger
}

// NewLifecycleHandler creates a new lifecycle handler.
func NewLifecycleHandler(ctrl *service.HandoffController, log *logger.Logger) *LifecycleHandler {
	return &LifecycleHandler{
		controller: ctrl,
		logger:     log,
	}
}

// Request handles POST /api/v1/conversations/{id}/lifecycle
func (h *LifecycleHandler) Request(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.LifecycleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conf, err := h.controller.RequestLifecycle(ctx, middleware.GetTenantID(ctx), id, req.Action)
	if err != nil {
		writeServiceError(w, h.logger, "request lifecycle", err)
		return
	}

	writeJSON(w, http.StatusAccepted, conf)
}

// Confirm handles POST /api/v1/conversations/{id}/lifecycle/confirm
func (h *LifecycleHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.ConfirmLifecycleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		writeMissing(w, "token")
		return
	}

	conv, err := h.controller.ConfirmLifecycle(ctx, tenantID, middleware.GetOperatorID(ctx), id, req.Token)
	if err != nil {
		writeServiceError(w, h.logger, "confirm lifecycle", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Cancel handles DELETE /api/v1/conversations/{id}/lifecycle/{token}
func (h *LifecycleHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	h.controller.CancelLifecycle(tenantID, id, chi.URLParam(r, "token"))

	w.WriteHeader(http.StatusNoContent)
}

// Schedule handles POST /api/v1/conversations/{id}/schedule
func (h *LifecycleHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.ScheduleActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateMessageContent(req.Details); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	action, err := h.controller.ScheduleAction(ctx, middleware.GetTenantID(ctx), middleware.GetOperatorID(ctx), id, req)
	if err != nil {
		writeServiceError(w, h.logger, "schedule action", err)
		return
	}

	writeJSON(w, http.StatusCreated, action)
}

// ListScheduled handles GET /api/v1/conversations/{id}/schedule
func (h *LifecycleHandler) ListScheduled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	actions, err := h.controller.ScheduledActions(ctx, middleware.GetTenantID(ctx), id)
	if err != nil {
		writeServiceError(w, h.logger, "list scheduled actions", err)
		return
	}
	if actions == nil {
		actions = []model.ScheduledAction{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": actions})
}

// Events handles GET /api/v1/conversations/{id}/events
func (h *LifecycleHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	afterSequence := uint64(0)
	limit := 50

	if seq := r.URL.Query().Get("after_sequence"); seq != "" {
		if parsed, err := strconv.ParseUint(seq, 10, 64); err == nil {
			afterSequence = parsed
		}
	}

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	resp, err := h.controller.Events(ctx, middleware.GetTenantID(ctx), id, afterSequence, limit)
	if err != nil {
		writeServiceError(w, h.logger, "list events", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
