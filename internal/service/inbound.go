package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/whatsapp-inbox/internal/llm"
	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
	"github.com/capitalize-ai/whatsapp-inbox/internal/store"
	"github.com/capitalize-ai/whatsapp-inbox/pkg/metrics"
)

// ReceiveInbound records a message from the contact, opening the
// conversation if it does not exist yet, and applies the handoff policy.
// Inbound messages are accepted in every status.
func (c *HandoffController) ReceiveInbound(ctx context.Context, tenantID, id string, req model.InboundMessageRequest) (*model.InboundResult, error) {
	ctx, span := c.startSpan(ctx, "ReceiveInbound", tenantID, id)
	defer span.End()

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, c.fail(span, "ReceiveInbound", newError(KindEmptyContent, "message content is empty"))
	}

	c.mu.Lock()
	st, created, err := c.openLocked(ctx, tenantID, id, req)
	if err != nil {
		c.mu.Unlock()
		return nil, c.fail(span, "ReceiveInbound", err)
	}

	now := c.now()
	prev := st.conv
	next := prev.Clone()
	next.UnreadCount++
	next.LastMessageAt = &now
	next.UpdatedAt = now

	log := c.logger.ForConversation(tenantID, id)

	reason := c.agent.EvaluateHandoff(next, content)
	if reason != "" {
		next.AIEnabled = false
		next.HandoffReason = string(reason)
	}
	shouldReply := reason == "" && c.agent.ShouldReply(next, content, created, now)

	// Conversation first: if the message write then fails the row is put
	// back, so a retry neither double counts nor duplicates the message.
	if err := c.store.SaveConversation(ctx, next); err != nil {
		c.mu.Unlock()
		return nil, c.fail(span, "ReceiveInbound", fmt.Errorf("failed to persist conversation: %w", err))
	}

	inbound, err := c.store.PersistMessage(ctx, &model.Message{
		ConversationID: id,
		TenantID:       tenantID,
		Sender:         model.SenderClient,
		Content:        content,
		Status:         model.DeliveryDelivered,
		SentAt:         now,
	})
	if err != nil {
		if rbErr := c.store.SaveConversation(ctx, prev); rbErr != nil {
			log.Error("failed to roll back conversation", zap.Error(rbErr))
		}
		c.mu.Unlock()
		return nil, c.fail(span, "ReceiveInbound", fmt.Errorf("failed to persist message: %w", err))
	}

	result := &model.InboundResult{
		Message:       inbound.Clone(),
		Created:       created,
		HandoffReason: string(reason),
		ShouldReply:   shouldReply,
	}

	if text := strings.TrimSpace(c.agent.Handoff.Message); reason != "" && text != "" {
		farewell, err := c.store.PersistMessage(ctx, &model.Message{
			ConversationID: id,
			TenantID:       tenantID,
			Sender:         model.SenderAI,
			Content:        text,
			SentAt:         now.Add(time.Millisecond),
		})
		if err != nil {
			log.Warn("failed to persist handoff message", zap.Error(err))
		} else {
			result.HandoffMessage = farewell
			next.LastMessageAt = &farewell.SentAt
		}
	}

	st.conv = next
	if st.messages != nil {
		st.messages = append(st.messages, inbound.Clone())
		if result.HandoffMessage != nil {
			st.messages = append(st.messages, result.HandoffMessage.Clone())
		}
	}
	result.Conversation = next.Clone()
	c.mu.Unlock()

	metrics.MessagesTotal.WithLabelValues(tenantID, string(model.SenderClient)).Inc()
	c.publishMessage(ctx, inbound)
	events := []*model.ConversationEvent{c.messageEvent(inbound, model.EventTypeMessageCreated, "")}

	if reason != "" {
		metrics.HandoffsTotal.WithLabelValues(string(reason)).Inc()
		log.Info("conversation handed off to a human", zap.String("reason", string(reason)))

		if result.HandoffMessage != nil {
			metrics.MessagesTotal.WithLabelValues(tenantID, string(model.SenderAI)).Inc()
			c.publishMessage(ctx, result.HandoffMessage)
		}
		events = append(events, c.handoffEvent(next, string(reason)))
	}
	c.publishEvents(ctx, events...)

	return result, nil
}

// openLocked returns the conversation state, creating the conversation when
// the store does not know it.
func (c *HandoffController) openLocked(ctx context.Context, tenantID, id string, req model.InboundMessageRequest) (*conversationState, bool, error) {
	st, err := c.lookupLocked(ctx, tenantID, id)
	if err == nil {
		if (st.conv.Contact.Name == "" && req.ContactName != "") || (st.conv.Contact.PhoneNumber == "" && req.PhoneNumber != "") {
			next := st.conv.Clone()
			if next.Contact.Name == "" {
				next.Contact.Name = req.ContactName
			}
			if next.Contact.PhoneNumber == "" {
				next.Contact.PhoneNumber = req.PhoneNumber
			}
			if err := c.store.SaveConversation(ctx, next); err != nil {
				return nil, false, fmt.Errorf("failed to persist conversation: %w", err)
			}
			st.conv = next
		}
		return st, false, nil
	}
	if KindOf(err) != KindNotFound {
		return nil, false, err
	}
	if _, taken := c.conversations[id]; taken {
		// Known under another tenant.
		return nil, false, err
	}

	now := c.now()
	conv := &model.Conversation{
		ID:        id,
		TenantID:  tenantID,
		Contact:   model.Contact{Name: req.ContactName, PhoneNumber: req.PhoneNumber},
		AIEnabled: c.agent.AIEnabledByDefault,
		Status:    model.StatusActive,
		Tags:      []string{},
		Notes:     []model.Note{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.SaveConversation(ctx, conv); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, newError(KindNotFound, "conversation %s not found", id)
		}
		return nil, false, fmt.Errorf("failed to create conversation: %w", err)
	}

	st = &conversationState{conv: conv, messages: []*model.Message{}}
	c.conversations[id] = st
	return st, true, nil
}

func (c *HandoffController) handoffEvent(conv *model.Conversation, reason string) *model.ConversationEvent {
	ev := c.event(conv, model.EventTypeHumanRequested, "")
	ev.Reason = reason

	meta := map[string]any{}
	if c.agent.Actions.TransferTo != "" {
		meta["transfer_to"] = c.agent.Actions.TransferTo
	}
	if n := c.agent.Actions.NotifyHuman; n != nil {
		if len(n.Emails) > 0 {
			meta["notify_emails"] = n.Emails
		}
		if n.WhatsApp != "" {
			meta["notify_whatsapp"] = n.WhatsApp
		}
	}
	if len(meta) > 0 {
		ev.Metadata = meta
	}
	return ev
}

// GenerateAIReply asks the configured LLM for the agent's next message and
// appends it. The reply is discarded if the AI was switched off meanwhile.
func (c *HandoffController) GenerateAIReply(ctx context.Context, tenantID, id string) (*model.Message, error) {
	ctx, span := c.startSpan(ctx, "GenerateAIReply", tenantID, id)
	defer span.End()

	c.mu.Lock()
	st, err := c.lookupLocked(ctx, tenantID, id)
	if err == nil {
		err = c.aiGateLocked(st)
	}
	if err == nil && c.llmClient == nil {
		err = newError(KindInvalidState, "no AI provider configured")
	}
	if err == nil {
		err = c.loadMessagesLocked(ctx, st)
	}
	if err != nil {
		c.mu.Unlock()
		return nil, c.fail(span, "GenerateAIReply", err)
	}
	history := toTurns(st.messages, c.agent.HistoryLimit)
	c.mu.Unlock()

	if len(history) == 0 || history[len(history)-1].Role != llm.RoleUser {
		return nil, c.fail(span, "GenerateAIReply", newError(KindInvalidState, "no client message to reply to"))
	}

	start := time.Now()
	resp, err := c.llmClient.Reply(ctx, &llm.Request{
		Model:       c.agent.Model,
		System:      c.agent.SystemPrompt,
		Turns:       history,
		MaxTokens:   c.agent.MaxTokens,
		Temperature: c.agent.Temperature,
	})
	if err != nil {
		metrics.RecordLLMRequest(c.agent.Model, "error", time.Since(start).Seconds(), 0, 0)
		return nil, c.fail(span, "GenerateAIReply", fmt.Errorf("drafting AI reply: %w", err))
	}
	metrics.RecordLLMRequest(resp.Model, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	c.mu.Lock()
	st, err = c.lookupLocked(ctx, tenantID, id)
	if err == nil {
		// The operator may have taken over while the model was thinking.
		err = c.aiGateLocked(st)
	}
	if err != nil {
		c.mu.Unlock()
		return nil, c.fail(span, "GenerateAIReply", err)
	}

	modelName := resp.Model
	latencyMs := resp.Latency.Milliseconds()
	saved, err := c.store.PersistMessage(ctx, &model.Message{
		ConversationID: id,
		TenantID:       tenantID,
		Sender:         model.SenderAI,
		Content:        resp.Text,
		Model:          &modelName,
		TokensIn:       &resp.TokensIn,
		TokensOut:      &resp.TokensOut,
		LatencyMs:      &latencyMs,
		SentAt:         c.now(),
	})
	if err != nil {
		c.mu.Unlock()
		return nil, c.fail(span, "GenerateAIReply", fmt.Errorf("failed to persist message: %w", err))
	}

	next := st.conv.Clone()
	next.AIReplyCount++
	next.LastMessageAt = &saved.SentAt
	next.UpdatedAt = c.now()
	if err := c.store.SaveConversation(ctx, next); err != nil {
		// The message is stored; only the counter is stale.
		c.logger.ForConversation(tenantID, id).Warn("failed to persist AI reply count", zap.Error(err))
	} else {
		st.conv = next
	}
	c.appendLocked(st, saved)
	c.mu.Unlock()

	metrics.MessagesTotal.WithLabelValues(tenantID, string(model.SenderAI)).Inc()
	c.publishMessage(ctx, saved)
	c.publishEvents(ctx, c.messageEvent(saved, model.EventTypeMessageCreated, ""))

	if f := c.agent.Actions.Followup; f != nil {
		if _, err := c.recordAction(ctx, tenantID, id, "", model.ScheduleActionRequest{
			Type:    model.ActionFollowup,
			DueAt:   timePtr(c.now().Add(f.Delay)),
			Details: f.Type,
		}); err != nil {
			c.logger.ForConversation(tenantID, id).Warn("failed to schedule follow-up", zap.Error(err))
		}
	}

	return saved.Clone(), nil
}

func (c *HandoffController) aiGateLocked(st *conversationState) error {
	if st.conv.Status != model.StatusActive {
		return newError(KindInvalidState, "conversation is %s", st.conv.Status)
	}
	if !st.conv.AIEnabled {
		return newError(KindGated, "AI is off for this conversation")
	}
	return nil
}

// toTurns converts the last limit messages into alternating
// user/assistant turns starting with the contact.
func toTurns(msgs []*model.Message, limit int) []llm.Turn {
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	var out []llm.Turn
	for _, m := range msgs {
		if m.Deleted && m.DeleteScope == model.DeleteForEveryone {
			continue
		}
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}

		role := llm.RoleAssistant
		if m.Inbound() {
			role = llm.RoleUser
		}
		if len(out) == 0 && role != llm.RoleUser {
			continue
		}
		if len(out) > 0 && out[len(out)-1].Role == role {
			out[len(out)-1].Text += "\n" + text
			continue
		}
		out = append(out, llm.Turn{Role: role, Text: text})
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	return &t
}
