package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
)

func TestComposeMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ctrl.SetDraft(ctx, tenantID, convHuman, "Olá João"))

	msg, err := f.ctrl.ComposeMessage(ctx, tenantID, operatorID, convHuman, "  Olá João  ")
	require.NoError(t, err)
	assert.Equal(t, "Olá João", msg.Content)
	assert.Equal(t, model.SenderHumanOperator, msg.Sender)
	assert.Equal(t, operatorID, msg.AuthorID)
	assert.NotEmpty(t, msg.ID)

	draft, err := f.ctrl.Draft(ctx, tenantID, convHuman)
	require.NoError(t, err)
	assert.Empty(t, draft, "draft is cleared on send")

	msgs := f.storedMessages(t, convHuman)
	require.Len(t, msgs, 2)
	assert.Equal(t, msg.ID, msgs[1].ID)

	require.Len(t, f.notifier.messages, 1)
	assert.Equal(t, []model.EventType{model.EventTypeMessageCreated}, f.notifier.types())

	resp, err := f.ctrl.Get(ctx, tenantID, convHuman)
	require.NoError(t, err)
	require.NotNil(t, resp.Conversation.LastMessageAt)
	assert.True(t, resp.Conversation.LastMessageAt.Equal(f.now))
}

func TestComposeMessageRejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		convID  string
		content string
		want    error
	}{
		{
			name:    "ai enabled",
			convID:  convAI,
			content: "hello",
			want:    ErrGated,
		},
		{
			name: "resolved",
			setup: func(f *fixture) {
				_, _ = f.ctrl.Resolve(context.Background(), tenantID, operatorID, convHuman)
			},
			convID:  convHuman,
			content: "hello",
			want:    ErrInvalidState,
		},
		{
			name: "archived",
			setup: func(f *fixture) {
				_, _ = f.ctrl.Archive(context.Background(), tenantID, operatorID, convHuman)
			},
			convID:  convHuman,
			content: "hello",
			want:    ErrInvalidState,
		},
		{
			name: "archived with ai on reports the status first",
			setup: func(f *fixture) {
				_, _ = f.ctrl.Archive(context.Background(), tenantID, operatorID, convAI)
			},
			convID:  convAI,
			content: "hello",
			want:    ErrInvalidState,
		},
		{
			name:    "blank",
			convID:  convHuman,
			content: " \n\t ",
			want:    ErrEmptyContent,
		},
		{
			name:    "gated beats blank",
			convID:  convAI,
			content: "",
			want:    ErrGated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			before := len(f.storedMessages(t, tt.convID))

			_, err := f.ctrl.ComposeMessage(context.Background(), tenantID, operatorID, tt.convID, tt.content)
			assert.ErrorIs(t, err, tt.want)
			assert.Len(t, f.storedMessages(t, tt.convID), before, "nothing appended")
		})
	}
}

func TestComposeMessageGate(t *testing.T) {
	statuses := []model.Status{model.StatusActive, model.StatusResolved, model.StatusArchived}
	successes := 0

	for _, status := range statuses {
		for _, aiEnabled := range []bool{true, false} {
			t.Run(fmt.Sprintf("%s/ai=%t", status, aiEnabled), func(t *testing.T) {
				f := newFixture(t)
				ctx := context.Background()

				conv := f.storedConversation(t, convHuman)
				conv.Status = status
				conv.AIEnabled = aiEnabled
				f.store.Seed([]model.Conversation{*conv}, nil)
				before := len(f.storedMessages(t, convHuman))

				_, err := f.ctrl.ComposeMessage(ctx, tenantID, operatorID, convHuman, "hello")
				switch {
				case status == model.StatusActive && !aiEnabled:
					require.NoError(t, err)
					assert.Len(t, f.storedMessages(t, convHuman), before+1)
					successes++
					return
				case status != model.StatusActive:
					assert.ErrorIs(t, err, ErrInvalidState)
				default:
					assert.ErrorIs(t, err, ErrGated)
				}
				assert.Len(t, f.storedMessages(t, convHuman), before)
			})
		}
	}
	assert.Equal(t, 1, successes)
}

func TestComposeMessageStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.SetDraft(ctx, tenantID, convHuman, "keep me"))

	f.store.failPersist = true
	_, err := f.ctrl.ComposeMessage(ctx, tenantID, operatorID, convHuman, "hello")
	require.ErrorIs(t, err, errDBDown)

	draft, err := f.ctrl.Draft(ctx, tenantID, convHuman)
	require.NoError(t, err)
	assert.Equal(t, "keep me", draft)
	assert.Empty(t, f.notifier.messages)
}

func TestComposeAfterTakeover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.ComposeMessage(ctx, tenantID, operatorID, convAI, "hello")
	require.ErrorIs(t, err, ErrGated)

	_, err = f.ctrl.ToggleAI(ctx, tenantID, operatorID, convAI, false)
	require.NoError(t, err)

	_, err = f.ctrl.ComposeMessage(ctx, tenantID, operatorID, convAI, "hello")
	require.NoError(t, err)
}

func TestGetMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.ToggleAI(ctx, tenantID, operatorID, convAI, false)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.ctrl.ComposeMessage(ctx, tenantID, operatorID, convAI, "msg")
		require.NoError(t, err)
	}

	resp, err := f.ctrl.GetMessages(ctx, tenantID, convAI, model.MessageFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Messages, 2)
	assert.True(t, resp.HasMore)

	resp, err = f.ctrl.GetMessages(ctx, tenantID, convAI, model.MessageFilter{})
	require.NoError(t, err)
	assert.Len(t, resp.Messages, 5)
	assert.False(t, resp.HasMore)

	_, err = f.ctrl.GetMessages(ctx, tenantID, "missing", model.MessageFilter{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEditMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.ctrl.EditMessage(ctx, tenantID, operatorID, "m-op", "bom dia, João")
	require.NoError(t, err)
	assert.Equal(t, "bom dia, João", msg.Content)
	assert.True(t, msg.Edited)
	require.NotNil(t, msg.EditedAt)

	stored, err := f.store.GetMessage(ctx, tenantID, "m-op")
	require.NoError(t, err)
	assert.Equal(t, "bom dia, João", stored.Content)

	_, err = f.ctrl.EditMessage(ctx, tenantID, operatorID, "m-op", "  ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, err = f.ctrl.EditMessage(ctx, tenantID, operatorID, "m-client", "hacked")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.ctrl.EditMessage(ctx, tenantID, operatorID, "m-ai", "hacked")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.ctrl.EditMessage(ctx, tenantID, operatorID, "missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err = f.store.GetMessage(ctx, tenantID, "m-client")
	require.NoError(t, err)
	assert.Equal(t, "oi", stored.Content)
}

func TestDeleteMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.ctrl.DeleteMessage(ctx, tenantID, operatorID, "m-op", model.DeleteForMe)
	require.NoError(t, err)
	assert.True(t, msg.Deleted)
	assert.Equal(t, model.DeleteForMe, msg.DeleteScope)
	assert.Equal(t, "bom dia", msg.Content, "only hidden for the operator")

	msg, err = f.ctrl.DeleteMessage(ctx, tenantID, operatorID, "m-op", model.DeleteForEveryone)
	require.NoError(t, err)
	assert.Equal(t, model.DeleteForEveryone, msg.DeleteScope, "me widens to everyone")
	assert.Empty(t, msg.Content)

	// Once deleted for everyone, further deletes change nothing.
	for _, scope := range []model.DeleteScope{model.DeleteForEveryone, model.DeleteForMe} {
		msg, err = f.ctrl.DeleteMessage(ctx, tenantID, operatorID, "m-op", scope)
		require.NoError(t, err)
		assert.Equal(t, model.DeleteForEveryone, msg.DeleteScope, "scope never narrows")
	}
	assert.Equal(t, []model.EventType{model.EventTypeMessageDeleted, model.EventTypeMessageDeleted}, f.notifier.types())

	stored, err := f.store.GetMessage(ctx, tenantID, "m-op")
	require.NoError(t, err)
	assert.Equal(t, "bom dia", stored.Content, "content is kept in storage")

	_, err = f.ctrl.DeleteMessage(ctx, tenantID, operatorID, "m-client", model.DeleteForMe)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.ctrl.DeleteMessage(ctx, tenantID, operatorID, "m-op", "nobody")
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestDeletedMessageIsFinal(t *testing.T) {
	tests := []struct {
		name string
		run  func(f *fixture) (*model.Message, error)
	}{
		{"edit", func(f *fixture) (*model.Message, error) {
			return f.ctrl.EditMessage(context.Background(), tenantID, operatorID, "m-op", "reescrita")
		}},
		{"add reaction", func(f *fixture) (*model.Message, error) {
			return f.ctrl.AddReaction(context.Background(), tenantID, operatorID, "m-op", "👍")
		}},
		{"remove reaction", func(f *fixture) (*model.Message, error) {
			return f.ctrl.RemoveReaction(context.Background(), tenantID, operatorID, "m-op", "👍")
		}},
	}

	for _, tt := range tests {
		for _, scope := range []model.DeleteScope{model.DeleteForMe, model.DeleteForEveryone} {
			t.Run(tt.name+"/"+string(scope), func(t *testing.T) {
				f := newFixture(t)
				ctx := context.Background()

				_, err := f.ctrl.DeleteMessage(ctx, tenantID, operatorID, "m-op", scope)
				require.NoError(t, err)
				published := len(f.notifier.types())

				_, err = tt.run(f)
				assert.ErrorIs(t, err, ErrInvalidState)
				assert.Len(t, f.notifier.types(), published, "nothing published")

				stored, err := f.store.GetMessage(ctx, tenantID, "m-op")
				require.NoError(t, err)
				assert.Equal(t, "bom dia", stored.Content)
				assert.False(t, stored.Edited)
				assert.Empty(t, stored.Reactions)
			})
		}
	}
}

func TestDeletedForEveryoneHidesContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.ComposeMessage(ctx, tenantID, operatorID, convHuman, "segunda mensagem")
	require.NoError(t, err)
	_, err = f.ctrl.DeleteMessage(ctx, tenantID, operatorID, "m-op", model.DeleteForEveryone)
	require.NoError(t, err)

	resp, err := f.ctrl.GetMessages(ctx, tenantID, convHuman, model.MessageFilter{})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 2)
	assert.True(t, resp.Messages[0].Deleted)
	assert.Empty(t, resp.Messages[0].Content)
	assert.Equal(t, "segunda mensagem", resp.Messages[1].Content)

	sel, err := f.ctrl.SelectConversation(ctx, tenantID, operatorID, convHuman)
	require.NoError(t, err)
	require.Len(t, sel.Messages, 2)
	assert.Empty(t, sel.Messages[0].Content)
	assert.Equal(t, "segunda mensagem", sel.Messages[1].Content)
}

func TestReactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.ctrl.AddReaction(ctx, tenantID, operatorID, "m-client", "👍")
	require.NoError(t, err)
	assert.Equal(t, []string{"👍"}, msg.Reactions)

	msg, err = f.ctrl.AddReaction(ctx, tenantID, operatorID, "m-client", "❤️")
	require.NoError(t, err)
	assert.Equal(t, []string{"👍", "❤️"}, msg.Reactions)

	// Adding again toggles it off.
	msg, err = f.ctrl.AddReaction(ctx, tenantID, operatorID, "m-client", "👍")
	require.NoError(t, err)
	assert.Equal(t, []string{"❤️"}, msg.Reactions)

	msg, err = f.ctrl.RemoveReaction(ctx, tenantID, operatorID, "m-client", "🎉")
	require.NoError(t, err)
	assert.Equal(t, []string{"❤️"}, msg.Reactions)

	msg, err = f.ctrl.RemoveReaction(ctx, tenantID, operatorID, "m-client", "❤️")
	require.NoError(t, err)
	assert.Empty(t, msg.Reactions)

	_, err = f.ctrl.AddReaction(ctx, tenantID, operatorID, "m-client", " ")
	assert.ErrorIs(t, err, ErrEmptyContent)

	stored, err := f.store.GetMessage(ctx, tenantID, "m-client")
	require.NoError(t, err)
	assert.Empty(t, stored.Reactions)
	assert.Len(t, f.notifier.types(), 4, "the no-op removal publishes nothing")
}

func TestMessageUpdateFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Load the message into memory first.
	_, err := f.ctrl.SelectConversation(ctx, tenantID, operatorID, convHuman)
	require.NoError(t, err)

	f.store.failUpdate = true
	_, err = f.ctrl.EditMessage(ctx, tenantID, operatorID, "m-op", "changed")
	require.ErrorIs(t, err, errDBDown)

	resp, err := f.ctrl.SelectConversation(ctx, tenantID, operatorID, convHuman)
	require.NoError(t, err)
	assert.Equal(t, "bom dia", resp.Messages[0].Content)
	assert.False(t, resp.Messages[0].Edited)
}
