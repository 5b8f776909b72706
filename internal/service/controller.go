// Package service implements the conversation hand-off controller: who may
// speak in a conversation (the AI agent or a human operator) and every
// operator action on conversations and messages.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/whatsapp-inbox/internal/agent"
	"github.com/capitalize-ai/whatsapp-inbox/internal/llm"
	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
	"github.com/capitalize-ai/whatsapp-inbox/internal/schedule"
	"github.com/capitalize-ai/whatsapp-inbox/internal/store"
	"github.com/capitalize-ai/whatsapp-inbox/pkg/logger"
	"github.com/capitalize-ai/whatsapp-inbox/pkg/metrics"
	"github.com/capitalize-ai/whatsapp-inbox/pkg/tracing"
)

const tracerName = "github.com/capitalize-ai/whatsapp-inbox/internal/service"

// DefaultConfirmationTTL bounds how long a lifecycle confirmation token stays valid.
const DefaultConfirmationTTL = 2 * time.Minute

// Notifier publishes conversation events and messages to downstream consumers.
type Notifier interface {
	PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error)
	PublishMessage(ctx context.Context, msg *model.Message) (uint64, error)
}

// EventLog replays previously published events.
type EventLog interface {
	Events(ctx context.Context, tenantID, conversationID string, afterSequence uint64, limit int) ([]model.ConversationEvent, uint64, bool, error)
}

// conversationState is the controller's view of one conversation.
type conversationState struct {
	conv *model.Conversation
	// messages is the loaded history, in send order; nil until first loaded.
	messages []*model.Message
	draft    string
}

func (s *conversationState) message(id string) *model.Message {
	for _, m := range s.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// HandoffController owns conversation state and applies every operator and
// agent action to it. Each operation is atomic: it either commits a full
// transition (store write first, then memory) or returns an *Error and
// changes nothing.
type HandoffController struct {
	store     store.Store
	scheduler schedule.Scheduler
	notifier  Notifier
	eventLog  EventLog
	llmClient llm.Client
	agent     *agent.Config
	logger    *logger.Logger

	now        func() time.Time
	confirmTTL time.Duration

	mu            sync.Mutex
	conversations map[string]*conversationState
	confirmations map[string]*model.Confirmation
	// selected maps an operator to the conversation open in their view.
	selected map[string]string
}

// Option configures a HandoffController.
type Option func(*HandoffController)

// WithScheduler sets the scheduled action recorder.
func WithScheduler(s schedule.Scheduler) Option {
	return func(c *HandoffController) { c.scheduler = s }
}

// WithNotifier sets the event publisher.
func WithNotifier(n Notifier) Option {
	return func(c *HandoffController) { c.notifier = n }
}

// WithEventLog sets the event replay source.
func WithEventLog(l EventLog) Option {
	return func(c *HandoffController) { c.eventLog = l }
}

// WithLLM sets the client used to generate AI replies.
func WithLLM(client llm.Client) Option {
	return func(c *HandoffController) { c.llmClient = client }
}

// WithAgent sets the automated agent configuration.
func WithAgent(cfg *agent.Config) Option {
	return func(c *HandoffController) { c.agent = cfg }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *HandoffController) { c.now = now }
}

// WithConfirmationTTL sets how long lifecycle confirmations stay valid.
func WithConfirmationTTL(ttl time.Duration) Option {
	return func(c *HandoffController) {
		if ttl > 0 {
			c.confirmTTL = ttl
		}
	}
}

// NewHandoffController creates a controller over the given store.
func NewHandoffController(st store.Store, log *logger.Logger, opts ...Option) *HandoffController {
	defaults := agent.Default()
	c := &HandoffController{
		store:         st,
		scheduler:     schedule.NewMemoryScheduler(),
		agent:         &defaults,
		logger:        log,
		now:           time.Now,
		confirmTTL:    DefaultConfirmationTTL,
		conversations: make(map[string]*conversationState),
		confirmations: make(map[string]*model.Confirmation),
		selected:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.NewNop()
	}
	if c.agent == nil {
		c.agent = &defaults
	}
	if c.scheduler == nil {
		c.scheduler = schedule.NewMemoryScheduler()
	}
	return c
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (c *HandoffController) startSpan(ctx context.Context, op, tenantID, id string) (context.Context, trace.Span) {
	return tracing.StartSpan(ctx, tracerName, "handoff."+op,
		attribute.String("tenant_id", tenantID),
		attribute.String("target_id", id),
	)
}

// fail records a rejected or failed operation and returns err unchanged.
func (c *HandoffController) fail(span trace.Span, op string, err error) error {
	tracing.RecordError(span, err)

	if kind := KindOf(err); kind != "" {
		metrics.RecordRejection(op, string(kind))
		c.logger.Debug("operation rejected",
			zap.String("operation", op),
			zap.String("kind", string(kind)),
			zap.String("reason", err.Error()),
		)
		return err
	}

	metrics.RecordRejection(op, "internal")
	c.logger.Error("operation failed", zap.String("operation", op), zap.Error(err))
	return err
}

// lookupLocked returns the state for a conversation with the conversation
// re-read from the store, so fields written by other services (CRM, tags)
// are current. Cached messages and the draft are kept. Callers hold c.mu.
func (c *HandoffController) lookupLocked(ctx context.Context, tenantID, id string) (*conversationState, error) {
	st, cached := c.conversations[id]
	if cached && st.conv.TenantID != tenantID {
		return nil, newError(KindNotFound, "conversation %s not found", id)
	}

	conv, err := c.store.GetConversation(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			delete(c.conversations, id)
			return nil, newError(KindNotFound, "conversation %s not found", id)
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	if cached {
		st.conv = conv
		return st, nil
	}
	st = &conversationState{conv: conv}
	c.conversations[id] = st
	return st, nil
}

// loadMessagesLocked fills st.messages from the store once.
func (c *HandoffController) loadMessagesLocked(ctx context.Context, st *conversationState) error {
	if st.messages != nil {
		return nil
	}

	msgs, err := c.store.GetMessages(ctx, st.conv.TenantID, st.conv.ID, model.MessageFilter{Limit: c.agent.HistoryLimit * 10})
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	st.messages = make([]*model.Message, 0, len(msgs))
	for i := range msgs {
		st.messages = append(st.messages, &msgs[i])
	}
	return nil
}

// change is the outcome of a conversation mutation. A nil change means the
// operation was a no-op and nothing is written.
type change struct {
	events []*model.ConversationEvent
	// persist writes the updated conversation; defaults to SaveConversation.
	persist func(ctx context.Context, conv *model.Conversation) error
	// commit runs under the lock once the write succeeded.
	commit func(st *conversationState)
}

// mutate applies fn to a copy of the conversation, persists the copy and only
// then commits it to memory. Events are published after the lock is released.
func (c *HandoffController) mutate(
	ctx context.Context,
	op, tenantID, id string,
	fn func(conv *model.Conversation) (*change, error),
) (*model.Conversation, error) {
	ctx, span := c.startSpan(ctx, op, tenantID, id)
	defer span.End()

	c.mu.Lock()
	st, err := c.lookupLocked(ctx, tenantID, id)
	if err != nil {
		c.mu.Unlock()
		return nil, c.fail(span, op, err)
	}

	next := st.conv.Clone()
	ch, err := fn(next)
	if err != nil {
		c.mu.Unlock()
		return nil, c.fail(span, op, err)
	}
	if ch == nil {
		out := st.conv.Clone()
		c.mu.Unlock()
		return out, nil
	}

	next.UpdatedAt = c.now()
	persist := ch.persist
	if persist == nil {
		persist = c.store.SaveConversation
	}
	if err := persist(ctx, next); err != nil {
		c.mu.Unlock()
		return nil, c.fail(span, op, fmt.Errorf("failed to persist conversation: %w", err))
	}
	st.conv = next
	if ch.commit != nil {
		ch.commit(st)
	}
	out := next.Clone()
	c.mu.Unlock()

	c.publishEvents(ctx, ch.events...)
	return out, nil
}

// event builds an event stamped with the controller clock.
func (c *HandoffController) event(conv *model.Conversation, typ model.EventType, actorID string) *model.ConversationEvent {
	return &model.ConversationEvent{
		ID:             newID(),
		ConversationID: conv.ID,
		TenantID:       conv.TenantID,
		Type:           typ,
		ActorID:        actorID,
		CreatedAt:      c.now(),
	}
}

// publishEvents hands events to the notifier. Failures are logged and counted
// but never fail the operation that produced them.
func (c *HandoffController) publishEvents(ctx context.Context, events ...*model.ConversationEvent) {
	if c.notifier == nil {
		return
	}
	for _, ev := range events {
		if _, err := c.notifier.PublishEvent(ctx, ev); err != nil {
			metrics.EventPublishFailures.WithLabelValues(string(ev.Type)).Inc()
			c.logger.ForConversation(ev.TenantID, ev.ConversationID).Warn("failed to publish event",
				zap.String("event_type", string(ev.Type)),
				zap.Error(err),
			)
		}
	}
}

func (c *HandoffController) publishMessage(ctx context.Context, msg *model.Message) {
	if c.notifier == nil {
		return
	}
	if _, err := c.notifier.PublishMessage(ctx, msg); err != nil {
		metrics.EventPublishFailures.WithLabelValues(string(model.EventTypeMessageCreated)).Inc()
		c.logger.ForConversation(msg.TenantID, msg.ConversationID).Warn("failed to publish message",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

// Ping checks the store and scheduler.
func (c *HandoffController) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.scheduler.Ping(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	return nil
}
