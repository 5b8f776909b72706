package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
)

// MemoryStore keeps everything in process memory. It backs tests, local runs
// and the explicit demo mode.
type MemoryStore struct {
	conversations map[string]*model.Conversation
	messages      map[string][]*model.Message // by conversation, in send order
	messageByID   map[string]*model.Message
	now           func() time.Time
	mu            sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]*model.Message),
		messageByID:   make(map[string]*model.Message),
		now:           time.Now,
	}
}

// Seed loads conversations and messages as-is.
func (s *MemoryStore) Seed(convs []model.Conversation, msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range convs {
		s.conversations[convs[i].ID] = convs[i].Clone()
	}
	for i := range msgs {
		m := msgs[i].Clone()
		s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)
		s.messageByID[m.ID] = m
	}
	for id := range s.messages {
		list := s.messages[id]
		sort.SliceStable(list, func(i, j int) bool { return list[i].SentAt.Before(list[j].SentAt) })
	}
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// ListConversations returns one page of matching conversations, most recent activity first.
func (s *MemoryStore) ListConversations(ctx context.Context, tenantID string, filter model.ConversationFilter) (*model.ConversationPage, error) {
	filter = filter.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var convs []model.Conversation
	for _, conv := range s.conversations {
		if conv.TenantID == tenantID && filter.Matches(conv) {
			convs = append(convs, *conv.Clone())
		}
	}

	sort.Slice(convs, func(i, j int) bool {
		return activity(&convs[i]).After(activity(&convs[j]))
	})

	// Simple pagination
	total := len(convs)
	start := (filter.Page - 1) * filter.Limit
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}

	return model.NewConversationPage(convs[start:end], filter, total), nil
}

func activity(c *model.Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// GetConversation retrieves a conversation by ID.
func (s *MemoryStore) GetConversation(ctx context.Context, tenantID, conversationID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[conversationID]
	if !exists || conv.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return conv.Clone(), nil
}

// SaveConversation upserts a conversation. CRM fields are only written on
// insert; updates keep the stored values.
func (s *MemoryStore) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := conv.Clone()
	if existing, ok := s.conversations[conv.ID]; ok {
		if existing.TenantID != conv.TenantID {
			return ErrNotFound
		}
		next.CRM = existing.CRM
	}
	s.conversations[conv.ID] = next
	return nil
}

// MarkRead zeroes the unread counter and stamps inbound messages as read.
func (s *MemoryStore) MarkRead(ctx context.Context, tenantID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[conversationID]
	if !exists || conv.TenantID != tenantID {
		return ErrNotFound
	}

	now := s.now()
	conv.UnreadCount = 0
	conv.UpdatedAt = now
	for _, m := range s.messages[conversationID] {
		if m.Inbound() && m.ReadAt == nil {
			t := now
			m.ReadAt = &t
			m.Status = model.DeliveryRead
		}
	}
	return nil
}

// SetArchived moves a conversation in or out of the archive.
func (s *MemoryStore) SetArchived(ctx context.Context, tenantID, conversationID string, archived bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[conversationID]
	if !exists || conv.TenantID != tenantID {
		return ErrNotFound
	}

	if archived {
		conv.Status = model.StatusArchived
	} else {
		conv.Status = model.StatusActive
	}
	conv.UpdatedAt = s.now()
	return nil
}

// GetMessages returns up to filter.Limit messages in send order. When more
// match, the most recent ones are kept.
func (s *MemoryStore) GetMessages(ctx context.Context, tenantID, conversationID string, filter model.MessageFilter) ([]model.Message, error) {
	filter = filter.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[conversationID]
	if !exists || conv.TenantID != tenantID {
		return nil, ErrNotFound
	}

	out := []model.Message{}
	for _, m := range s.messages[conversationID] {
		if filter.Before != nil && !m.SentAt.Before(*filter.Before) {
			continue
		}
		if filter.After != nil && !m.SentAt.After(*filter.After) {
			continue
		}
		out = append(out, *m.Clone())
	}

	if len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

// GetMessage retrieves a message by ID.
func (s *MemoryStore) GetMessage(ctx context.Context, tenantID, messageID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.messageByID[messageID]
	if !exists || m.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

// PersistMessage stores a new message.
func (s *MemoryStore) PersistMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[msg.ConversationID]
	if !exists || conv.TenantID != msg.TenantID {
		return nil, ErrNotFound
	}

	m := msg.Clone()
	if m.ID == "" {
		m.ID = uuid.Must(uuid.NewV7()).String()
	}
	if m.SentAt.IsZero() {
		m.SentAt = s.now()
	}
	if m.Status == "" {
		m.Status = model.DeliverySent
	}
	if m.Reactions == nil {
		m.Reactions = []string{}
	}

	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)
	s.messageByID[m.ID] = m

	sentAt := m.SentAt
	conv.LastMessageAt = &sentAt
	conv.UpdatedAt = s.now()

	return m.Clone(), nil
}

// UpdateMessage replaces a stored message.
func (s *MemoryStore) UpdateMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.messageByID[msg.ID]
	if !exists || existing.TenantID != msg.TenantID {
		return ErrNotFound
	}

	*existing = *msg.Clone()
	return nil
}
