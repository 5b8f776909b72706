package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/whatsapp-inbox/internal/agent"
	"github.com/capitalize-ai/whatsapp-inbox/internal/llm"
	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
	"github.com/capitalize-ai/whatsapp-inbox/internal/schedule"
	"github.com/capitalize-ai/whatsapp-inbox/internal/store"
	"github.com/capitalize-ai/whatsapp-inbox/pkg/logger"
)

const (
	tenantID   = "tenant-1"
	operatorID = "operator-1"
	convAI     = "conv-ai"
	convHuman  = "conv-human"
)

var errDBDown = errors.New("db down")

type fakeNotifier struct {
	mu       sync.Mutex
	events   []*model.ConversationEvent
	messages []*model.Message
	err      error
}

func (n *fakeNotifier) PublishEvent(ctx context.Context, ev *model.ConversationEvent) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return 0, n.err
	}
	n.events = append(n.events, ev)
	return uint64(len(n.events)), nil
}

func (n *fakeNotifier) PublishMessage(ctx context.Context, msg *model.Message) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return 0, n.err
	}
	n.messages = append(n.messages, msg)
	return uint64(len(n.messages)), nil
}

func (n *fakeNotifier) types() []model.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.EventType, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Type
	}
	return out
}

type fakeLLM struct {
	reply string
	err   error
	calls int
	last  *llm.Request
	// hook runs while the controller lock is released.
	hook func()
}

func (f *fakeLLM) Reply(ctx context.Context, req *llm.Request) (*llm.Reply, error) {
	f.calls++
	f.last = req
	if f.hook != nil {
		f.hook()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Reply{
		Text:      f.reply,
		Model:     "fake-model",
		TokensIn:  10,
		TokensOut: 5,
		Latency:   3 * time.Millisecond,
	}, nil
}

func (f *fakeLLM) Name() string     { return "fake" }
func (f *fakeLLM) Models() []string { return []string{"fake-model"} }

// flakyStore fails selected writes.
type flakyStore struct {
	*store.MemoryStore
	failPersist bool
	failSave    bool
	failUpdate  bool
}

func (s *flakyStore) PersistMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if s.failPersist {
		return nil, errDBDown
	}
	return s.MemoryStore.PersistMessage(ctx, msg)
}

func (s *flakyStore) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	if s.failSave {
		return errDBDown
	}
	return s.MemoryStore.SaveConversation(ctx, conv)
}

func (s *flakyStore) UpdateMessage(ctx context.Context, msg *model.Message) error {
	if s.failUpdate {
		return errDBDown
	}
	return s.MemoryStore.UpdateMessage(ctx, msg)
}

type fixture struct {
	ctrl      *HandoffController
	store     *flakyStore
	notifier  *fakeNotifier
	llm       *fakeLLM
	scheduler *schedule.MemoryScheduler
	agent     *agent.Config
	now       time.Time
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		store:     &flakyStore{MemoryStore: store.NewMemoryStore()},
		notifier:  &fakeNotifier{},
		llm:       &fakeLLM{reply: "Olá! Como posso ajudar?"},
		scheduler: schedule.NewMemoryScheduler(),
		now:       time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC),
	}
	cfg := agent.Default()
	f.agent = &cfg

	created := f.now.Add(-time.Hour)
	f.store.Seed([]model.Conversation{
		{
			ID: convAI, TenantID: tenantID, Status: model.StatusActive, AIEnabled: true,
			Contact: model.Contact{Name: "Maria"}, Tags: []string{}, Notes: []model.Note{},
			CreatedAt: created, UpdatedAt: created,
		},
		{
			ID: convHuman, TenantID: tenantID, Status: model.StatusActive, AIEnabled: false,
			Contact: model.Contact{Name: "João"}, Tags: []string{}, Notes: []model.Note{},
			UnreadCount: 2, CreatedAt: created, UpdatedAt: created,
		},
	}, []model.Message{
		{ID: "m-client", ConversationID: convAI, TenantID: tenantID, Sender: model.SenderClient, Content: "oi", SentAt: created.Add(time.Minute)},
		{ID: "m-ai", ConversationID: convAI, TenantID: tenantID, Sender: model.SenderAI, Content: "olá", SentAt: created.Add(2 * time.Minute)},
		{ID: "m-op", ConversationID: convHuman, TenantID: tenantID, Sender: model.SenderHumanOperator, AuthorID: operatorID, Content: "bom dia", SentAt: created.Add(time.Minute)},
	})

	base := []Option{
		WithNotifier(f.notifier),
		WithLLM(f.llm),
		WithScheduler(f.scheduler),
		WithAgent(f.agent),
		WithClock(func() time.Time { return f.now }),
	}
	f.ctrl = NewHandoffController(f.store, logger.NewNop(), append(base, opts...)...)
	return f
}

func (f *fixture) storedMessages(t *testing.T, id string) []model.Message {
	t.Helper()
	msgs, err := f.store.GetMessages(context.Background(), tenantID, id, model.MessageFilter{Limit: 200})
	require.NoError(t, err)
	return msgs
}

func (f *fixture) storedConversation(t *testing.T, id string) *model.Conversation {
	t.Helper()
	conv, err := f.store.GetConversation(context.Background(), tenantID, id)
	require.NoError(t, err)
	return conv
}

func TestErrorKinds(t *testing.T) {
	err := newError(KindGated, "AI is answering")
	assert.Equal(t, KindGated, KindOf(err))
	assert.ErrorIs(t, err, ErrGated)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "AI is answering", err.Error())

	wrapped := errors.Join(errors.New("context"), err)
	assert.Equal(t, KindGated, KindOf(wrapped))

	assert.Equal(t, ErrorKind(""), KindOf(errDBDown))
	assert.Equal(t, "not_found", ErrNotFound.Error())
}

func TestUnknownConversationIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.Get(ctx, tenantID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.ctrl.ComposeMessage(ctx, tenantID, operatorID, "missing", "hi")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.ctrl.ToggleAI(ctx, tenantID, operatorID, "missing", false)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.False(t, f.ctrl.CanCompose(ctx, tenantID, "missing"))
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Load into memory under the right tenant first.
	_, err := f.ctrl.Get(ctx, tenantID, convHuman)
	require.NoError(t, err)

	_, err = f.ctrl.Get(ctx, "tenant-2", convHuman)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.ctrl.ComposeMessage(ctx, "tenant-2", operatorID, convHuman, "hi")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.ctrl.EditMessage(ctx, "tenant-2", operatorID, "m-op", "x")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.ctrl.ReceiveInbound(ctx, "tenant-2", convHuman, model.InboundMessageRequest{Content: "oi"})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Len(t, f.storedMessages(t, convHuman), 1)
}

func TestSelectConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ctrl.SetDraft(ctx, tenantID, convHuman, "rascunho"))

	resp, err := f.ctrl.SelectConversation(ctx, tenantID, operatorID, convHuman)
	require.NoError(t, err)
	assert.Equal(t, convHuman, resp.Conversation.ID)
	assert.True(t, resp.CanCompose)
	assert.Equal(t, "rascunho", resp.Draft)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "m-op", resp.Messages[0].ID)
	assert.Equal(t, convHuman, f.ctrl.Selected(operatorID))

	resp, err = f.ctrl.SelectConversation(ctx, tenantID, operatorID, convAI)
	require.NoError(t, err)
	assert.False(t, resp.CanCompose)
	assert.Len(t, resp.Messages, 2)
	assert.Equal(t, convAI, f.ctrl.Selected(operatorID))

	_, err = f.ctrl.SelectConversation(ctx, tenantID, operatorID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, convAI, f.ctrl.Selected(operatorID), "failed select keeps the previous one")
}

func TestListConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.Archive(ctx, tenantID, operatorID, convAI)
	require.NoError(t, err)

	page, err := f.ctrl.ListConversations(ctx, tenantID, model.ConversationFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, convHuman, page.Items[0].ID)

	page, err = f.ctrl.ListConversations(ctx, tenantID, model.ConversationFilter{Status: model.StatusArchived})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, convAI, page.Items[0].ID)

	_, err = f.ctrl.ListConversations(ctx, tenantID, model.ConversationFilter{Status: "closed"})
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestToggleAI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.False(t, f.ctrl.CanCompose(ctx, tenantID, convAI))

	conv, err := f.ctrl.ToggleAI(ctx, tenantID, operatorID, convAI, false)
	require.NoError(t, err)
	assert.False(t, conv.AIEnabled)
	assert.Equal(t, string(agent.HandoffOperatorTakeover), conv.HandoffReason)
	assert.True(t, f.ctrl.CanCompose(ctx, tenantID, convAI))
	assert.False(t, f.storedConversation(t, convAI).AIEnabled)
	assert.Equal(t, []model.EventType{model.EventTypeAIToggled}, f.notifier.types())

	// Same value is a no-op without an event.
	_, err = f.ctrl.ToggleAI(ctx, tenantID, operatorID, convAI, false)
	require.NoError(t, err)
	assert.Len(t, f.notifier.types(), 1)

	conv, err = f.ctrl.ToggleAI(ctx, tenantID, operatorID, convAI, true)
	require.NoError(t, err)
	assert.True(t, conv.AIEnabled)
	assert.Empty(t, conv.HandoffReason)
	assert.Zero(t, conv.AIReplyCount)
	assert.False(t, f.ctrl.CanCompose(ctx, tenantID, convAI))
}

func TestToggleAIRequiresActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.Resolve(ctx, tenantID, operatorID, convAI)
	require.NoError(t, err)

	_, err = f.ctrl.ToggleAI(ctx, tenantID, operatorID, convAI, false)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.True(t, f.storedConversation(t, convAI).AIEnabled)
}

func TestResolveAndArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.ctrl.Resolve(ctx, tenantID, operatorID, convHuman)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, conv.Status)
	assert.False(t, f.ctrl.CanCompose(ctx, tenantID, convHuman))

	// Idempotent.
	conv, err = f.ctrl.Resolve(ctx, tenantID, operatorID, convHuman)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, conv.Status)
	assert.Equal(t, []model.EventType{model.EventTypeResolved}, f.notifier.types())

	conv, err = f.ctrl.Archive(ctx, tenantID, operatorID, convHuman)
	require.NoError(t, err)
	assert.Equal(t, model.StatusArchived, conv.Status)
	assert.Equal(t, model.StatusArchived, f.storedConversation(t, convHuman).Status)

	_, err = f.ctrl.Archive(ctx, tenantID, operatorID, convHuman)
	require.NoError(t, err)
}

func TestResolveArchivedIsInvalidState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.Archive(ctx, tenantID, operatorID, convHuman)
	require.NoError(t, err)
	published := len(f.notifier.types())

	_, err = f.ctrl.Resolve(ctx, tenantID, operatorID, convHuman)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, KindInvalidState, KindOf(err))
	assert.Equal(t, model.StatusArchived, f.storedConversation(t, convHuman).Status)
	assert.Len(t, f.notifier.types(), published, "nothing published")

	_, err = f.ctrl.RequestLifecycle(ctx, tenantID, convHuman, model.LifecycleResolve)
	assert.ErrorIs(t, err, ErrInvalidState, "the two-step flow refuses it up front")
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.ctrl.MarkRead(ctx, tenantID, operatorID, convHuman)
	require.NoError(t, err)
	assert.Zero(t, conv.UnreadCount)
	assert.Zero(t, f.storedConversation(t, convHuman).UnreadCount)
	assert.Equal(t, []model.EventType{model.EventTypeMarkedRead}, f.notifier.types())

	_, err = f.ctrl.MarkRead(ctx, tenantID, operatorID, convHuman)
	require.NoError(t, err)
	assert.Len(t, f.notifier.types(), 1, "already read is a no-op")
}

func TestAssignFavoriteTagsNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conv, err := f.ctrl.Assign(ctx, tenantID, operatorID, convAI, "operator-2")
	require.NoError(t, err)
	assert.Equal(t, "operator-2", conv.AssignedOperatorID)

	_, err = f.ctrl.Assign(ctx, tenantID, operatorID, convAI, "  ")
	assert.ErrorIs(t, err, ErrMissingField)

	conv, err = f.ctrl.ToggleFavorite(ctx, tenantID, convAI)
	require.NoError(t, err)
	assert.True(t, conv.Favorite)
	conv, err = f.ctrl.ToggleFavorite(ctx, tenantID, convAI)
	require.NoError(t, err)
	assert.False(t, conv.Favorite)

	_, err = f.ctrl.AddTag(ctx, tenantID, operatorID, convAI, " VIP ")
	require.NoError(t, err)
	conv, err = f.ctrl.AddTag(ctx, tenantID, operatorID, convAI, "VIP")
	require.NoError(t, err)
	assert.Equal(t, []string{"VIP"}, conv.Tags)

	_, err = f.ctrl.AddTag(ctx, tenantID, operatorID, convAI, "")
	assert.ErrorIs(t, err, ErrEmptyContent)

	note, err := f.ctrl.AddNote(ctx, tenantID, operatorID, convAI, "cliente prefere manhã")
	require.NoError(t, err)
	assert.NotEmpty(t, note.ID)
	assert.Equal(t, operatorID, note.AuthorID)

	_, err = f.ctrl.AddNote(ctx, tenantID, operatorID, convAI, "   ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	stored := f.storedConversation(t, convAI)
	assert.Equal(t, []string{"VIP"}, stored.Tags)
	require.Len(t, stored.Notes, 1)
	assert.Equal(t, note.ID, stored.Notes[0].ID)

	assert.Equal(t, []model.EventType{
		model.EventTypeAssigned,
		model.EventTypeTagged,
		model.EventTypeNoteAdded,
	}, f.notifier.types())
}

func TestFailedWriteLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.failSave = true
	_, err := f.ctrl.ToggleAI(ctx, tenantID, operatorID, convAI, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errDBDown)
	assert.Equal(t, ErrorKind(""), KindOf(err))

	assert.False(t, f.ctrl.CanCompose(ctx, tenantID, convAI), "AI is still on in memory")
	assert.Empty(t, f.notifier.types())

	f.store.failSave = false
	_, err = f.ctrl.ToggleAI(ctx, tenantID, operatorID, convAI, false)
	require.NoError(t, err)
}

func TestNotifierFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("nats down")

	conv, err := f.ctrl.ToggleAI(context.Background(), tenantID, operatorID, convAI, false)
	require.NoError(t, err)
	assert.False(t, conv.AIEnabled)
}

func TestDefaultsWithoutOptions(t *testing.T) {
	ctrl := NewHandoffController(store.NewMemoryStore(), nil)
	require.NotNil(t, ctrl.agent)
	assert.NoError(t, ctrl.Ping(context.Background()))
}
