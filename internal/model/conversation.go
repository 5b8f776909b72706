// Package model defines data structures for the WhatsApp inbox.
package model

import (
	"slices"
	"time"
)

// Status is the lifecycle status of a conversation.
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
	StatusArchived Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusResolved, StatusArchived:
		return true
	}
	return false
}

// Contact identifies the WhatsApp contact on the other side of a conversation.
type Contact struct {
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// CRMFields are maintained by the CRM endpoints. The inbox only reads them.
type CRMFields struct {
	Score         int    `json:"score"`
	PipelineStage string `json:"pipeline_stage,omitempty"`
	DealValue     int64  `json:"deal_value"` // cents
}

// Note is an append-only operator annotation.
type Note struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation represents an exchange between one contact and the business.
type Conversation struct {
	ID       string  `json:"id"`
	TenantID string  `json:"tenant_id"`
	Contact  Contact `json:"contact"`

	AIEnabled          bool   `json:"ai_enabled"`
	Status             Status `json:"status"`
	AssignedOperatorID string `json:"assigned_operator_id,omitempty"`
	Favorite           bool   `json:"favorite"`
	UnreadCount        int    `json:"unread_count"`

	Tags  []string  `json:"tags"`
	Notes []Note    `json:"notes"`
	CRM   CRMFields `json:"crm"`

	// Set when the AI was switched off, either by an operator or by the handoff policy.
	HandoffReason string `json:"handoff_reason,omitempty"`
	// AI replies since the AI was last switched on.
	AIReplyCount int `json:"ai_reply_count"`

	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CanCompose reports whether a human operator may send a message right now.
func (c *Conversation) CanCompose() bool {
	return c.Status == StatusActive && !c.AIEnabled
}

// AIMaySend reports whether the automated agent may send a message right now.
func (c *Conversation) AIMaySend() bool {
	return c.Status == StatusActive && c.AIEnabled
}

// HasTag reports whether tag is present.
func (c *Conversation) HasTag(tag string) bool {
	return slices.Contains(c.Tags, tag)
}

// Clone returns a deep copy so callers cannot mutate controller state.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Tags = slices.Clone(c.Tags)
	out.Notes = slices.Clone(c.Notes)
	if c.LastMessageAt != nil {
		t := *c.LastMessageAt
		out.LastMessageAt = &t
	}
	return &out
}

// ConversationFilter selects conversations for list views.
type ConversationFilter struct {
	// Empty Status means the default view, which hides archived conversations.
	Status             Status
	AssignedOperatorID string
	Tags               []string
	UnreadOnly         bool
	FavoriteOnly       bool
	Page               int
	Limit              int
}

// Normalize applies paging defaults.
func (f ConversationFilter) Normalize() ConversationFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	return f
}

// Matches reports whether c satisfies the filter (paging is ignored).
func (f ConversationFilter) Matches(c *Conversation) bool {
	if f.Status == "" {
		if c.Status == StatusArchived {
			return false
		}
	} else if c.Status != f.Status {
		return false
	}
	if f.AssignedOperatorID != "" && c.AssignedOperatorID != f.AssignedOperatorID {
		return false
	}
	for _, tag := range f.Tags {
		if !c.HasTag(tag) {
			return false
		}
	}
	if f.UnreadOnly && c.UnreadCount == 0 {
		return false
	}
	if f.FavoriteOnly && !c.Favorite {
		return false
	}
	return true
}

// ConversationPage is one page of a conversation list.
type ConversationPage struct {
	Items      []Conversation `json:"items"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// NewConversationPage builds page metadata for total matching rows.
func NewConversationPage(items []Conversation, f ConversationFilter, total int) *ConversationPage {
	pages := 0
	if f.Limit > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	if items == nil {
		items = []Conversation{}
	}
	return &ConversationPage{
		Items:      items,
		Page:       f.Page,
		Limit:      f.Limit,
		Total:      total,
		TotalPages: pages,
	}
}

// ConversationResponse is a conversation plus its derived composer gate.
type ConversationResponse struct {
	Conversation *Conversation `json:"conversation"`
	CanCompose   bool          `json:"can_compose"`
	// Selected is true when the requesting operator has this conversation open.
	Selected bool `json:"selected"`
}

// SelectConversationResponse is returned when an operator opens a conversation.
type SelectConversationResponse struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []Message     `json:"messages"`
	CanCompose   bool          `json:"can_compose"`
	Draft        string        `json:"draft,omitempty"`
}
