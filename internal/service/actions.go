package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
	"github.com/capitalize-ai/whatsapp-inbox/pkg/metrics"
)

// ScheduleAction records a deferred action for the conversation. Execution
// belongs to whatever consumes the scheduler.
func (c *HandoffController) ScheduleAction(ctx context.Context, tenantID, actorID, id string, req model.ScheduleActionRequest) (*model.ScheduledAction, error) {
	ctx, span := c.startSpan(ctx, "ScheduleAction", tenantID, id)
	defer span.End()

	action, err := c.recordAction(ctx, tenantID, id, actorID, req)
	if err != nil {
		return nil, c.fail(span, "ScheduleAction", err)
	}
	return action, nil
}

func (c *HandoffController) recordAction(ctx context.Context, tenantID, id, actorID string, req model.ScheduleActionRequest) (*model.ScheduledAction, error) {
	c.mu.Lock()
	st, err := c.lookupLocked(ctx, tenantID, id)
	var conv *model.Conversation
	if err == nil {
		conv = st.conv.Clone()
	}
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if !req.Type.Valid() {
		return nil, newError(KindMissingField, "type must be one of message, task, followup, reminder")
	}
	if req.DueAt == nil || req.DueAt.IsZero() {
		return nil, newError(KindMissingField, "due_at is required")
	}

	action := &model.ScheduledAction{
		ID:             newID(),
		ConversationID: id,
		TenantID:       tenantID,
		Type:           req.Type,
		DueAt:          req.DueAt.UTC(),
		Details:        strings.TrimSpace(req.Details),
		CreatedBy:      actorID,
		CreatedAt:      c.now(),
	}
	if err := c.scheduler.Schedule(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to schedule action: %w", err)
	}

	metrics.ScheduledActionsTotal.WithLabelValues(string(action.Type)).Inc()

	ev := c.event(conv, model.EventTypeScheduled, actorID)
	ev.Metadata = map[string]any{
		"action_id": action.ID,
		"type":      string(action.Type),
		"due_at":    action.DueAt,
	}
	c.publishEvents(ctx, ev)

	return action, nil
}

// ScheduledActions lists the conversation's recorded actions by due time.
func (c *HandoffController) ScheduledActions(ctx context.Context, tenantID, id string) ([]model.ScheduledAction, error) {
	ctx, span := c.startSpan(ctx, "ScheduledActions", tenantID, id)
	defer span.End()

	c.mu.Lock()
	_, err := c.lookupLocked(ctx, tenantID, id)
	c.mu.Unlock()
	if err != nil {
		return nil, c.fail(span, "ScheduledActions", err)
	}

	actions, err := c.scheduler.List(ctx, tenantID, id)
	if err != nil {
		return nil, c.fail(span, "ScheduledActions", fmt.Errorf("failed to list actions: %w", err))
	}
	return actions, nil
}

// Events replays the conversation's published events after a stream sequence.
func (c *HandoffController) Events(ctx context.Context, tenantID, id string, afterSequence uint64, limit int) (*model.ListEventsResponse, error) {
	ctx, span := c.startSpan(ctx, "Events", tenantID, id)
	defer span.End()

	c.mu.Lock()
	_, err := c.lookupLocked(ctx, tenantID, id)
	c.mu.Unlock()
	if err != nil {
		return nil, c.fail(span, "Events", err)
	}
	if c.eventLog == nil {
		return nil, c.fail(span, "Events", newError(KindInvalidState, "event stream is disabled"))
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	events, last, hasMore, err := c.eventLog.Events(ctx, tenantID, id, afterSequence, limit)
	if err != nil {
		return nil, c.fail(span, "Events", fmt.Errorf("failed to read events: %w", err))
	}

	return &model.ListEventsResponse{
		Events:       events,
		LastSequence: last,
		HasMore:      hasMore,
	}, nil
}
