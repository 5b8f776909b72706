package service

import (
	"context"

	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
)

// RequestLifecycle starts a two-step resolve or archive. The returned token
// must be confirmed before it expires; nothing changes until then.
func (c *HandoffController) RequestLifecycle(ctx context.Context, tenantID, id string, action model.LifecycleAction) (*model.Confirmation, error) {
	ctx, span := c.startSpan(ctx, "RequestLifecycle", tenantID, id)
	defer span.End()

	if !action.Valid() {
		return nil, c.fail(span, "RequestLifecycle", newError(KindMissingField, "unknown lifecycle action %q", action))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.lookupLocked(ctx, tenantID, id)
	if err != nil {
		return nil, c.fail(span, "RequestLifecycle", err)
	}
	if action == model.LifecycleResolve && st.conv.Status == model.StatusArchived {
		return nil, c.fail(span, "RequestLifecycle", newError(KindInvalidState, "conversation is archived"))
	}

	now := c.now()
	c.pruneConfirmationsLocked()

	conf := &model.Confirmation{
		Token:          newID(),
		ConversationID: id,
		TenantID:       tenantID,
		Action:         action,
		ExpiresAt:      now.Add(c.confirmTTL),
	}
	c.confirmations[conf.Token] = conf

	out := *conf
	return &out, nil
}

// ConfirmLifecycle commits a pending lifecycle action on conversation id.
// Tokens are single use; unknown, expired or foreign tokens, and tokens issued
// for another conversation, are NotFound and are not consumed.
func (c *HandoffController) ConfirmLifecycle(ctx context.Context, tenantID, operatorID, id, token string) (*model.Conversation, error) {
	c.mu.Lock()
	conf, ok := c.confirmationLocked(tenantID, id, token)
	if ok {
		delete(c.confirmations, token)
	}
	c.mu.Unlock()

	if !ok || !c.now().Before(conf.ExpiresAt) {
		_, span := c.startSpan(ctx, "ConfirmLifecycle", tenantID, id)
		defer span.End()
		return nil, c.fail(span, "ConfirmLifecycle", newError(KindNotFound, "confirmation expired or unknown"))
	}

	if conf.Action == model.LifecycleArchive {
		return c.Archive(ctx, tenantID, operatorID, conf.ConversationID)
	}
	return c.Resolve(ctx, tenantID, operatorID, conf.ConversationID)
}

// CancelLifecycle drops a pending confirmation for conversation id. Unknown
// tokens are ignored.
func (c *HandoffController) CancelLifecycle(tenantID, id, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.confirmationLocked(tenantID, id, token); ok {
		delete(c.confirmations, token)
	}
}

func (c *HandoffController) confirmationLocked(tenantID, id, token string) (*model.Confirmation, bool) {
	conf, ok := c.confirmations[token]
	if !ok || conf.TenantID != tenantID || conf.ConversationID != id {
		return nil, false
	}
	return conf, true
}

func (c *HandoffController) pruneConfirmationsLocked() {
	now := c.now()
	for token, conf := range c.confirmations {
		if !now.Before(conf.ExpiresAt) {
			delete(c.confirmations, token)
		}
	}
}
