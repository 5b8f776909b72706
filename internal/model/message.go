package model

import (
	"slices"
	"time"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderClient        Sender = "client"
	SenderAI            Sender = "ai"
	SenderHumanOperator Sender = "human_operator"
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	switch s {
	case SenderClient, SenderAI, SenderHumanOperator:
		return true
	}
	return false
}

// DeliveryStatus is advisory delivery state reported by the channel.
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
)

// DeleteScope distinguishes "delete for me" from "delete for everyone".
type DeleteScope string

const (
	DeleteForMe       DeleteScope = "me"
	DeleteForEveryone DeleteScope = "everyone"
)

// Valid reports whether s is a known scope.
func (s DeleteScope) Valid() bool {
	return s == DeleteForMe || s == DeleteForEveryone
}

// Message represents one unit of conversation content.
type Message struct {
	// Identity
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	TenantID       string `json:"tenant_id"`

	// Content
	Sender   Sender `json:"sender"`
	AuthorID string `json:"author_id,omitempty"`
	Content  string `json:"content"`

	Status      DeliveryStatus `json:"status"`
	Edited      bool           `json:"edited"`
	Deleted     bool           `json:"deleted"`
	DeleteScope DeleteScope    `json:"delete_scope,omitempty"`
	Reactions   []string       `json:"reactions"`

	// LLM Metadata (nil for non-AI messages)
	Model     *string `json:"model,omitempty"`
	TokensIn  *int    `json:"tokens_in,omitempty"`
	TokensOut *int    `json:"tokens_out,omitempty"`
	LatencyMs *int64  `json:"latency_ms,omitempty"`

	// Timestamps
	SentAt      time.Time  `json:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
}

// Inbound reports whether the message came from the contact.
func (m *Message) Inbound() bool {
	return m.Sender == SenderClient
}

// IsFromAI reports whether the automated agent authored the message.
func (m *Message) IsFromAI() bool {
	return m.Sender == SenderAI
}

// HasReaction reports whether emoji is in the reaction set.
func (m *Message) HasReaction(emoji string) bool {
	return slices.Contains(m.Reactions, emoji)
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.Reactions = slices.Clone(m.Reactions)
	return &out
}

// Redacted returns a copy for display. A message deleted for everyone keeps
// its content in storage but shows none.
func (m *Message) Redacted() *Message {
	out := m.Clone()
	if out != nil && out.Deleted && out.DeleteScope == DeleteForEveryone {
		out.Content = ""
	}
	return out
}

// MessageFilter bounds a history fetch.
type MessageFilter struct {
	Before *time.Time
	After  *time.Time
	Limit  int
}

// Normalize applies the default and maximum limit.
func (f MessageFilter) Normalize() MessageFilter {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	return f
}

// ComposeMessageRequest is the request to send an operator message.
type ComposeMessageRequest struct {
	Content string `json:"content"`
}

// EditMessageRequest replaces a message body.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// DraftRequest stores the compose buffer.
type DraftRequest struct {
	Content string `json:"content"`
}

// InboundMessageRequest records a message received from the contact.
type InboundMessageRequest struct {
	Content     string `json:"content"`
	ContactName string `json:"contact_name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// ReactionRequest toggles an emoji on a message.
type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// InboundResult describes what happened when a contact's message arrived.
type InboundResult struct {
	Conversation *Conversation `json:"conversation"`
	Message      *Message      `json:"message"`
	// Created is true when the message opened a new conversation.
	Created bool `json:"created"`
	// HandoffMessage is the AI's farewell when the message triggered a handoff.
	HandoffMessage *Message `json:"handoff_message,omitempty"`
	HandoffReason  string   `json:"handoff_reason,omitempty"`
	// ShouldReply tells the caller the agent is expected to answer.
	ShouldReply bool `json:"should_reply"`
}
