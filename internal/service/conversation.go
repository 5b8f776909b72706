package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/capitalize-ai/whatsapp-inbox/internal/agent"
	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
	"github.com/capitalize-ai/whatsapp-inbox/pkg/metrics"
)

// ListConversations returns one page of the tenant's conversations.
func (c *HandoffController) ListConversations(ctx context.Context, tenantID string, filter model.ConversationFilter) (*model.ConversationPage, error) {
	ctx, span := c.startSpan(ctx, "ListConversations", tenantID, "")
	defer span.End()

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, c.fail(span, "ListConversations", newError(KindMissingField, "unknown status %q", filter.Status))
	}

	page, err := c.store.ListConversations(ctx, tenantID, filter)
	if err != nil {
		return nil, c.fail(span, "ListConversations", fmt.Errorf("failed to list conversations: %w", err))
	}
	return page, nil
}

// Get returns a conversation and its composer gate.
func (c *HandoffController) Get(ctx context.Context, tenantID, id string) (*model.ConversationResponse, error) {
	ctx, span := c.startSpan(ctx, "Get", tenantID, id)
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.lookupLocked(ctx, tenantID, id)
	if err != nil {
		return nil, c.fail(span, "Get", err)
	}
	return &model.ConversationResponse{
		Conversation: st.conv.Clone(),
		CanCompose:   st.conv.CanCompose(),
	}, nil
}

// SelectConversation opens a conversation in the operator's view and returns
// its loaded history, composer gate and saved draft.
func (c *HandoffController) SelectConversation(ctx context.Context, tenantID, operatorID, id string) (*model.SelectConversationResponse, error) {
	ctx, span := c.startSpan(ctx, "SelectConversation", tenantID, id)
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.lookupLocked(ctx, tenantID, id)
	if err != nil {
		return nil, c.fail(span, "SelectConversation", err)
	}
	if err := c.loadMessagesLocked(ctx, st); err != nil {
		return nil, c.fail(span, "SelectConversation", err)
	}

	c.selected[operatorID] = id

	msgs := make([]model.Message, len(st.messages))
	for i, m := range st.messages {
		msgs[i] = *m.Redacted()
	}

	return &model.SelectConversationResponse{
		Conversation: st.conv.Clone(),
		Messages:     msgs,
		CanCompose:   st.conv.CanCompose(),
		Draft:        st.draft,
	}, nil
}

// Selected returns the conversation the operator has open, or "".
func (c *HandoffController) Selected(operatorID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected[operatorID]
}

// CanCompose reports whether an operator may send in the conversation now.
// Unknown conversations report false.
func (c *HandoffController) CanCompose(ctx context.Context, tenantID, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.lookupLocked(ctx, tenantID, id)
	if err != nil {
		return false
	}
	return st.conv.CanCompose()
}

// MarkRead clears the unread counter.
func (c *HandoffController) MarkRead(ctx context.Context, tenantID, operatorID, id string) (*model.Conversation, error) {
	return c.mutate(ctx, "MarkRead", tenantID, id, func(conv *model.Conversation) (*change, error) {
		if conv.UnreadCount == 0 {
			return nil, nil
		}
		conv.UnreadCount = 0

		return &change{
			events: []*model.ConversationEvent{c.event(conv, model.EventTypeMarkedRead, operatorID)},
			persist: func(ctx context.Context, conv *model.Conversation) error {
				return c.store.MarkRead(ctx, conv.TenantID, conv.ID)
			},
			commit: func(st *conversationState) {
				// Read receipts changed in the store; reload on next select.
				st.messages = nil
			},
		}, nil
	})
}

// ToggleAI switches the automated agent on or off for an active conversation.
// Switching it off hands the conversation to the operator; switching it back
// on resets the reply counter used by the handoff policy.
func (c *HandoffController) ToggleAI(ctx context.Context, tenantID, operatorID, id string, enabled bool) (*model.Conversation, error) {
	return c.mutate(ctx, "ToggleAI", tenantID, id, func(conv *model.Conversation) (*change, error) {
		if conv.Status != model.StatusActive {
			return nil, newError(KindInvalidState, "conversation is %s", conv.Status)
		}
		if conv.AIEnabled == enabled {
			return nil, nil
		}

		conv.AIEnabled = enabled
		ev := c.event(conv, model.EventTypeAIToggled, operatorID)
		ev.Metadata = map[string]any{"enabled": enabled}
		if enabled {
			conv.HandoffReason = ""
			conv.AIReplyCount = 0
		} else {
			conv.HandoffReason = string(agent.HandoffOperatorTakeover)
			ev.Reason = conv.HandoffReason
		}

		return &change{
			events: []*model.ConversationEvent{ev},
			commit: func(*conversationState) {
				metrics.AIToggleTotal.WithLabelValues(strconv.FormatBool(enabled)).Inc()
			},
		}, nil
	})
}

// Resolve marks the conversation resolved. Resolving twice is a no-op;
// resolving an archived conversation is InvalidState.
func (c *HandoffController) Resolve(ctx context.Context, tenantID, operatorID, id string) (*model.Conversation, error) {
	return c.mutate(ctx, "Resolve", tenantID, id, func(conv *model.Conversation) (*change, error) {
		switch conv.Status {
		case model.StatusResolved:
			return nil, nil
		case model.StatusArchived:
			// Archive is terminal for the inbox. Resolving would pull the
			// conversation back into the default list, so it is refused
			// rather than treated as a status change.
			return nil, newError(KindInvalidState, "conversation is archived")
		}

		conv.Status = model.StatusResolved
		return &change{
			events: []*model.ConversationEvent{c.event(conv, model.EventTypeResolved, operatorID)},
			commit: func(*conversationState) {
				metrics.LifecycleTransitionsTotal.WithLabelValues(string(model.StatusResolved)).Inc()
			},
		}, nil
	})
}

// Archive moves the conversation out of the default list. Archiving twice is a no-op.
func (c *HandoffController) Archive(ctx context.Context, tenantID, operatorID, id string) (*model.Conversation, error) {
	return c.mutate(ctx, "Archive", tenantID, id, func(conv *model.Conversation) (*change, error) {
		if conv.Status == model.StatusArchived {
			return nil, nil
		}

		conv.Status = model.StatusArchived
		return &change{
			events: []*model.ConversationEvent{c.event(conv, model.EventTypeArchived, operatorID)},
			persist: func(ctx context.Context, conv *model.Conversation) error {
				return c.store.SetArchived(ctx, conv.TenantID, conv.ID, true)
			},
			commit: func(*conversationState) {
				metrics.LifecycleTransitionsTotal.WithLabelValues(string(model.StatusArchived)).Inc()
			},
		}, nil
	})
}

// Assign routes the conversation to an operator.
func (c *HandoffController) Assign(ctx context.Context, tenantID, actorID, id, operatorID string) (*model.Conversation, error) {
	operatorID = strings.TrimSpace(operatorID)

	return c.mutate(ctx, "Assign", tenantID, id, func(conv *model.Conversation) (*change, error) {
		if operatorID == "" {
			return nil, newError(KindMissingField, "operator_id is required")
		}
		if conv.AssignedOperatorID == operatorID {
			return nil, nil
		}

		previous := conv.AssignedOperatorID
		conv.AssignedOperatorID = operatorID

		ev := c.event(conv, model.EventTypeAssigned, actorID)
		ev.Metadata = map[string]any{"operator_id": operatorID, "previous_operator_id": previous}
		return &change{events: []*model.ConversationEvent{ev}}, nil
	})
}

// ToggleFavorite flips the favorite flag.
func (c *HandoffController) ToggleFavorite(ctx context.Context, tenantID, id string) (*model.Conversation, error) {
	return c.mutate(ctx, "ToggleFavorite", tenantID, id, func(conv *model.Conversation) (*change, error) {
		conv.Favorite = !conv.Favorite
		return &change{}, nil
	})
}

// AddTag adds a tag. Tags form a set; adding an existing tag is a no-op.
func (c *HandoffController) AddTag(ctx context.Context, tenantID, actorID, id, tag string) (*model.Conversation, error) {
	tag = strings.TrimSpace(tag)

	return c.mutate(ctx, "AddTag", tenantID, id, func(conv *model.Conversation) (*change, error) {
		if tag == "" {
			return nil, newError(KindEmptyContent, "tag is empty")
		}
		if conv.HasTag(tag) {
			return nil, nil
		}

		conv.Tags = append(conv.Tags, tag)

		ev := c.event(conv, model.EventTypeTagged, actorID)
		ev.Metadata = map[string]any{"tag": tag}
		return &change{events: []*model.ConversationEvent{ev}}, nil
	})
}

// AddNote appends an operator note.
func (c *HandoffController) AddNote(ctx context.Context, tenantID, authorID, id, text string) (*model.Note, error) {
	text = strings.TrimSpace(text)

	var note model.Note
	_, err := c.mutate(ctx, "AddNote", tenantID, id, func(conv *model.Conversation) (*change, error) {
		if text == "" {
			return nil, newError(KindEmptyContent, "note text is empty")
		}

		note = model.Note{
			ID:        newID(),
			Text:      text,
			AuthorID:  authorID,
			CreatedAt: c.now(),
		}
		conv.Notes = append(conv.Notes, note)

		ev := c.event(conv, model.EventTypeNoteAdded, authorID)
		ev.Metadata = map[string]any{"note_id": note.ID}
		return &change{events: []*model.ConversationEvent{ev}}, nil
	})
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// SetDraft stores the operator's unsent compose text. Drafts live in memory only.
func (c *HandoffController) SetDraft(ctx context.Context, tenantID, id, content string) error {
	ctx, span := c.startSpan(ctx, "SetDraft", tenantID, id)
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.lookupLocked(ctx, tenantID, id)
	if err != nil {
		return c.fail(span, "SetDraft", err)
	}
	st.draft = content
	return nil
}

// Draft returns the saved compose text.
func (c *HandoffController) Draft(ctx context.Context, tenantID, id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.lookupLocked(ctx, tenantID, id)
	if err != nil {
		return "", err
	}
	return st.draft, nil
}
