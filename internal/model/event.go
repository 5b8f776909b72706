package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventTypeAIToggled       EventType = "ai_toggled"
	EventTypeHumanRequested  EventType = "human_requested"
	EventTypeResolved        EventType = "resolved"
	EventTypeArchived        EventType = "archived"
	EventTypeAssigned        EventType = "assigned"
	EventTypeMarkedRead      EventType = "marked_read"
	EventTypeTagged          EventType = "tagged"
	EventTypeNoteAdded       EventType = "note_added"
	EventTypeScheduled       EventType = "scheduled"
	EventTypeMessageCreated  EventType = "message_created"
	EventTypeMessageEdited   EventType = "message_edited"
	EventTypeMessageDeleted  EventType = "message_deleted"
	EventTypeReactionToggled EventType = "reaction_toggled"
)

// ConversationEvent represents an event in a conversation.
type ConversationEvent struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	TenantID       string         `json:"tenant_id"`
	Type           EventType      `json:"type"`
	ActorID        string         `json:"actor_id,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`

	// Stream sequence, set when the event is read back from the event stream.
	Sequence uint64 `json:"sequence,omitempty"`
}

// ListEventsResponse is a page of replayed conversation events.
type ListEventsResponse struct {
	Events       []ConversationEvent `json:"events"`
	LastSequence uint64              `json:"last_sequence"`
	HasMore      bool                `json:"has_more"`
}
