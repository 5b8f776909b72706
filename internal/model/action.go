package model

import (
	"time"
)

// ActionType is the kind of deferred operation tied to a conversation.
type ActionType string

const (
	ActionMessage  ActionType = "message"
	ActionTask     ActionType = "task"
	ActionFollowup ActionType = "followup"
	ActionReminder ActionType = "reminder"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionMessage, ActionTask, ActionFollowup, ActionReminder:
		return true
	}
	return false
}

// ScheduledAction is recorded by the inbox and executed elsewhere.
type ScheduledAction struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	TenantID       string     `json:"tenant_id"`
	Type           ActionType `json:"type"`
	DueAt          time.Time  `json:"due_at"`
	Details        string     `json:"details"`
	CreatedBy      string     `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ScheduleActionRequest creates a scheduled action.
type ScheduleActionRequest struct {
	Type    ActionType `json:"type"`
	DueAt   *time.Time `json:"due_at"`
	Details string     `json:"details"`
}

// LifecycleAction is a terminal transition that needs operator confirmation.
type LifecycleAction string

const (
	LifecycleResolve LifecycleAction = "resolve"
	LifecycleArchive LifecycleAction = "archive"
)

// Valid reports whether a is a known lifecycle action.
func (a LifecycleAction) Valid() bool {
	return a == LifecycleResolve || a == LifecycleArchive
}

// Confirmation is the first half of a two-step lifecycle commit.
type Confirmation struct {
	Token          string          `json:"token"`
	ConversationID string          `json:"conversation_id"`
	TenantID       string          `json:"-"`
	Action         LifecycleAction `json:"action"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

// LifecycleRequest asks for a confirmation token.
type LifecycleRequest struct {
	Action LifecycleAction `json:"action"`
}

// ConfirmLifecycleRequest commits a pending lifecycle action.
type ConfirmLifecycleRequest struct {
	Token string `json:"token"`
}

// ToggleAIRequest switches the automated agent on or off.
type ToggleAIRequest struct {
	Enabled *bool `json:"enabled"`
}

// AssignRequest routes a conversation to an operator.
type AssignRequest struct {
	OperatorID string `json:"operator_id"`
}

// TagRequest adds a tag.
type TagRequest struct {
	Tag string `json:"tag"`
}

// NoteRequest appends a note.
type NoteRequest struct {
	Text string `json:"text"`
}
