// Package store persists conversations and messages.
package store

import (
	"context"
	"errors"

	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
)

// ErrNotFound is returned when a conversation or message does not exist for the tenant.
var ErrNotFound = errors.New("not found")

// Store is the authoritative conversation and message store.
// Both MemoryStore and PostgresStore implement this interface.
type Store interface {
	// Connection management
	Ping(ctx context.Context) error
	Close()

	// Conversation operations
	ListConversations(ctx context.Context, tenantID string, filter model.ConversationFilter) (*model.ConversationPage, error)
	GetConversation(ctx context.Context, tenantID, conversationID string) (*model.Conversation, error)
	// SaveConversation upserts the conversation row and appends notes not yet stored.
	SaveConversation(ctx context.Context, conv *model.Conversation) error
	MarkRead(ctx context.Context, tenantID, conversationID string) error
	SetArchived(ctx context.Context, tenantID, conversationID string, archived bool) error

	// Message operations
	GetMessages(ctx context.Context, tenantID, conversationID string, filter model.MessageFilter) ([]model.Message, error)
	GetMessage(ctx context.Context, tenantID, messageID string) (*model.Message, error)
	// PersistMessage assigns the id and sent time when missing and bumps the
	// conversation's last message time.
	PersistMessage(ctx context.Context, msg *model.Message) (*model.Message, error)
	UpdateMessage(ctx context.Context, msg *model.Message) error
}
