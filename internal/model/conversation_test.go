package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanCompose(t *testing.T) {
	tests := []struct {
		status    Status
		aiEnabled bool
		want      bool
	}{
		{StatusActive, false, true},
		{StatusActive, true, false},
		{StatusResolved, false, false},
		{StatusResolved, true, false},
		{StatusArchived, false, false},
		{StatusArchived, true, false},
	}

	for _, tt := range tests {
		c := &Conversation{Status: tt.status, AIEnabled: tt.aiEnabled}
		assert.Equal(t, tt.want, c.CanCompose(), "status=%s ai=%v", tt.status, tt.aiEnabled)
		assert.Equal(t, tt.status == StatusActive && tt.aiEnabled, c.AIMaySend())
	}
}

func TestCloneIsDeep(t *testing.T) {
	c := &Conversation{Tags: []string{"VIP"}, Notes: []Note{{Text: "a"}}}
	cp := c.Clone()
	cp.Tags[0] = "changed"
	cp.Notes[0].Text = "changed"

	assert.Equal(t, "VIP", c.Tags[0])
	assert.Equal(t, "a", c.Notes[0].Text)
}

func TestFilterDefaultHidesArchived(t *testing.T) {
	f := ConversationFilter{}
	assert.True(t, f.Matches(&Conversation{Status: StatusActive}))
	assert.True(t, f.Matches(&Conversation{Status: StatusResolved}))
	assert.False(t, f.Matches(&Conversation{Status: StatusArchived}))

	f.Status = StatusArchived
	assert.True(t, f.Matches(&Conversation{Status: StatusArchived}))
	assert.False(t, f.Matches(&Conversation{Status: StatusActive}))
}

func TestFilterCriteria(t *testing.T) {
	c := &Conversation{
		Status:             StatusActive,
		AssignedOperatorID: "op-1",
		Tags:               []string{"VIP", "Urgente"},
		UnreadCount:        0,
		Favorite:           true,
	}

	assert.True(t, ConversationFilter{AssignedOperatorID: "op-1"}.Matches(c))
	assert.False(t, ConversationFilter{AssignedOperatorID: "op-2"}.Matches(c))
	assert.True(t, ConversationFilter{Tags: []string{"VIP", "Urgente"}}.Matches(c))
	assert.False(t, ConversationFilter{Tags: []string{"VIP", "Lead"}}.Matches(c))
	assert.False(t, ConversationFilter{UnreadOnly: true}.Matches(c))
	assert.True(t, ConversationFilter{FavoriteOnly: true}.Matches(c))
}

func TestNewConversationPage(t *testing.T) {
	f := ConversationFilter{Page: 2, Limit: 20}
	p := NewConversationPage(nil, f, 41)

	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 41, p.Total)
	assert.NotNil(t, p.Items)

	assert.Equal(t, 0, NewConversationPage(nil, f, 0).TotalPages)
}

func TestFilterNormalize(t *testing.T) {
	f := ConversationFilter{Page: 0, Limit: 500}.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 100, f.Limit)

	f = ConversationFilter{}.Normalize()
	assert.Equal(t, 20, f.Limit)
}
