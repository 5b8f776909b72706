// Package schedule records deferred actions tied to conversations. Execution
// happens elsewhere; this package only stores them ordered by due time.
package schedule

import (
	"context"
	"sort"
	"sync"

	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
)

// Scheduler records scheduled actions.
type Scheduler interface {
	Schedule(ctx context.Context, action *model.ScheduledAction) error
	// List returns a conversation's actions ordered by due time.
	List(ctx context.Context, tenantID, conversationID string) ([]model.ScheduledAction, error)
	Ping(ctx context.Context) error
	Close() error
}

// MemoryScheduler keeps actions in process memory.
type MemoryScheduler struct {
	actions map[string][]model.ScheduledAction // by conversation key
	mu      sync.RWMutex
}

// NewMemoryScheduler creates an empty in-memory scheduler.
func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{actions: make(map[string][]model.ScheduledAction)}
}

// Schedule stores an action.
func (s *MemoryScheduler) Schedule(ctx context.Context, action *model.ScheduledAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := conversationKey(action.TenantID, action.ConversationID)
	list := append(s.actions[key], *action)
	sort.SliceStable(list, func(i, j int) bool { return list[i].DueAt.Before(list[j].DueAt) })
	s.actions[key] = list
	return nil
}

// List returns a conversation's actions ordered by due time.
func (s *MemoryScheduler) List(ctx context.Context, tenantID, conversationID string) ([]model.ScheduledAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ScheduledAction, len(s.actions[conversationKey(tenantID, conversationID)]))
	copy(out, s.actions[conversationKey(tenantID, conversationID)])
	return out, nil
}

// Ping always succeeds.
func (s *MemoryScheduler) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryScheduler) Close() error { return nil }
