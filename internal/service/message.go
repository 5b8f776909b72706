package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
	"github.com/capitalize-ai/whatsapp-inbox/internal/store"
	"github.com/capitalize-ai/whatsapp-inbox/pkg/metrics"
)

// GetMessages returns a page of history in send order.
func (c *HandoffController) GetMessages(ctx context.Context, tenantID, id string, filter model.MessageFilter) (*model.ListMessagesResponse, error) {
	ctx, span := c.startSpan(ctx, "GetMessages", tenantID, id)
	defer span.End()

	c.mu.Lock()
	_, err := c.lookupLocked(ctx, tenantID, id)
	c.mu.Unlock()
	if err != nil {
		return nil, c.fail(span, "GetMessages", err)
	}

	filter = filter.Normalize()
	fetch := filter
	fetch.Limit++

	msgs, err := c.store.GetMessages(ctx, tenantID, id, fetch)
	if err != nil {
		return nil, c.fail(span, "GetMessages", fmt.Errorf("failed to get messages: %w", err))
	}

	hasMore := false
	if len(msgs) > filter.Limit {
		hasMore = true
		msgs = msgs[len(msgs)-filter.Limit:]
	}
	for i := range msgs {
		msgs[i] = *msgs[i].Redacted()
	}

	return &model.ListMessagesResponse{
		Messages: msgs,
		HasMore:  hasMore,
	}, nil
}

// ComposeMessage sends an operator message. It is only allowed while the
// conversation is active and the AI is off; the draft is cleared on success.
func (c *HandoffController) ComposeMessage(ctx context.Context, tenantID, operatorID, id, content string) (*model.Message, error) {
	ctx, span := c.startSpan(ctx, "ComposeMessage", tenantID, id)
	defer span.End()

	c.mu.Lock()
	st, err := c.lookupLocked(ctx, tenantID, id)
	if err != nil {
		c.mu.Unlock()
		return nil, c.fail(span, "ComposeMessage", err)
	}

	switch {
	case st.conv.Status != model.StatusActive:
		err = newError(KindInvalidState, "conversation is %s", st.conv.Status)
	case st.conv.AIEnabled:
		err = newError(KindGated, "AI is answering this conversation")
	case strings.TrimSpace(content) == "":
		err = newError(KindEmptyContent, "message content is empty")
	}
	if err != nil {
		c.mu.Unlock()
		return nil, c.fail(span, "ComposeMessage", err)
	}

	saved, err := c.store.PersistMessage(ctx, &model.Message{
		ConversationID: id,
		TenantID:       tenantID,
		Sender:         model.SenderHumanOperator,
		AuthorID:       operatorID,
		Content:        strings.TrimSpace(content),
		SentAt:         c.now(),
	})
	if err != nil {
		c.mu.Unlock()
		return nil, c.fail(span, "ComposeMessage", fmt.Errorf("failed to persist message: %w", err))
	}

	c.appendLocked(st, saved)
	st.draft = ""
	out := saved.Clone()
	c.mu.Unlock()

	metrics.MessagesTotal.WithLabelValues(tenantID, string(model.SenderHumanOperator)).Inc()
	c.publishMessage(ctx, out)
	c.publishEvents(ctx, c.messageEvent(out, model.EventTypeMessageCreated, operatorID))

	return out, nil
}

// appendLocked records a persisted message in memory.
func (c *HandoffController) appendLocked(st *conversationState, msg *model.Message) {
	sentAt := msg.SentAt
	st.conv.LastMessageAt = &sentAt
	st.conv.UpdatedAt = c.now()
	if st.messages != nil {
		st.messages = append(st.messages, msg.Clone())
	}
}

func (c *HandoffController) messageEvent(msg *model.Message, typ model.EventType, actorID string) *model.ConversationEvent {
	return &model.ConversationEvent{
		ID:             newID(),
		ConversationID: msg.ConversationID,
		TenantID:       msg.TenantID,
		Type:           typ,
		ActorID:        actorID,
		Metadata:       map[string]any{"message_id": msg.ID, "sender": string(msg.Sender)},
		CreatedAt:      c.now(),
	}
}

// findMessageLocked locates a message, preferring the in-memory copy.
func (c *HandoffController) findMessageLocked(ctx context.Context, tenantID, messageID string) (*model.Message, error) {
	for _, st := range c.conversations {
		if st.conv.TenantID != tenantID {
			continue
		}
		if m := st.message(messageID); m != nil {
			return m, nil
		}
	}

	m, err := c.store.GetMessage(ctx, tenantID, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindNotFound, "message %s not found", messageID)
		}
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	return m, nil
}

// mutateMessage applies fn to a copy of the message, persists it and then
// updates memory. A nil event means no change. The returned copy is redacted.
func (c *HandoffController) mutateMessage(
	ctx context.Context,
	op, tenantID, messageID string,
	fn func(msg *model.Message) (*model.ConversationEvent, error),
) (*model.Message, error) {
	ctx, span := c.startSpan(ctx, op, tenantID, messageID)
	defer span.End()

	c.mu.Lock()
	current, err := c.findMessageLocked(ctx, tenantID, messageID)
	if err != nil {
		c.mu.Unlock()
		return nil, c.fail(span, op, err)
	}

	next := current.Clone()
	ev, err := fn(next)
	if err != nil {
		c.mu.Unlock()
		return nil, c.fail(span, op, err)
	}
	if ev == nil {
		c.mu.Unlock()
		return next.Redacted(), nil
	}

	if err := c.store.UpdateMessage(ctx, next); err != nil {
		c.mu.Unlock()
		return nil, c.fail(span, op, fmt.Errorf("failed to update message: %w", err))
	}
	*current = *next
	out := next.Redacted()
	c.mu.Unlock()

	c.publishEvents(ctx, ev)
	return out, nil
}

// EditMessage replaces the body of an operator message.
func (c *HandoffController) EditMessage(ctx context.Context, tenantID, operatorID, messageID, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)

	return c.mutateMessage(ctx, "EditMessage", tenantID, messageID, func(msg *model.Message) (*model.ConversationEvent, error) {
		if msg.Sender != model.SenderHumanOperator {
			return nil, newError(KindForbidden, "only operator messages can be edited")
		}
		if msg.Deleted {
			return nil, newError(KindInvalidState, "message is deleted")
		}
		if content == "" {
			return nil, newError(KindEmptyContent, "message content is empty")
		}

		now := c.now()
		msg.Content = content
		msg.Edited = true
		msg.EditedAt = &now

		return c.messageEvent(msg, model.EventTypeMessageEdited, operatorID), nil
	})
}

// DeleteMessage marks an operator message deleted for the operator or for
// everyone. Deleting again is a no-op unless it widens "me" to "everyone".
func (c *HandoffController) DeleteMessage(ctx context.Context, tenantID, operatorID, messageID string, scope model.DeleteScope) (*model.Message, error) {
	return c.mutateMessage(ctx, "DeleteMessage", tenantID, messageID, func(msg *model.Message) (*model.ConversationEvent, error) {
		if msg.Sender != model.SenderHumanOperator {
			return nil, newError(KindForbidden, "only operator messages can be deleted")
		}
		if !scope.Valid() {
			return nil, newError(KindMissingField, "unknown delete scope %q", scope)
		}

		if msg.Deleted && (msg.DeleteScope == model.DeleteForEveryone || msg.DeleteScope == scope) {
			return nil, nil
		}

		msg.Deleted = true
		msg.DeleteScope = scope

		ev := c.messageEvent(msg, model.EventTypeMessageDeleted, operatorID)
		ev.Metadata["scope"] = string(scope)
		return ev, nil
	})
}

// AddReaction toggles an emoji on a message.
func (c *HandoffController) AddReaction(ctx context.Context, tenantID, actorID, messageID, emoji string) (*model.Message, error) {
	emoji = strings.TrimSpace(emoji)

	return c.mutateMessage(ctx, "AddReaction", tenantID, messageID, func(msg *model.Message) (*model.ConversationEvent, error) {
		if emoji == "" {
			return nil, newError(KindEmptyContent, "emoji is empty")
		}
		if msg.Deleted {
			return nil, newError(KindInvalidState, "message is deleted")
		}

		added := !msg.HasReaction(emoji)
		if added {
			msg.Reactions = append(msg.Reactions, emoji)
		} else {
			msg.Reactions = slices.DeleteFunc(msg.Reactions, func(r string) bool { return r == emoji })
		}

		ev := c.messageEvent(msg, model.EventTypeReactionToggled, actorID)
		ev.Metadata["emoji"] = emoji
		ev.Metadata["added"] = added
		return ev, nil
	})
}

// RemoveReaction removes an emoji; removing an absent emoji is a no-op.
func (c *HandoffController) RemoveReaction(ctx context.Context, tenantID, actorID, messageID, emoji string) (*model.Message, error) {
	emoji = strings.TrimSpace(emoji)

	return c.mutateMessage(ctx, "RemoveReaction", tenantID, messageID, func(msg *model.Message) (*model.ConversationEvent, error) {
		if msg.Deleted {
			return nil, newError(KindInvalidState, "message is deleted")
		}
		if !msg.HasReaction(emoji) {
			return nil, nil
		}

		msg.Reactions = slices.DeleteFunc(msg.Reactions, func(r string) bool { return r == emoji })

		ev := c.messageEvent(msg, model.EventTypeReactionToggled, actorID)
		ev.Metadata["emoji"] = emoji
		ev.Metadata["added"] = false
		return ev, nil
	})
}
