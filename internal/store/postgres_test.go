package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
)

// newPostgresStore connects to TEST_DATABASE_URL or skips.
func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	s, err := NewPostgresStore(context.Background(), PostgresConfig{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	conv := newConv(uuid.NewString(), model.StatusActive, now)
	conv.AIEnabled = true
	conv.Tags = []string{"VIP"}
	conv.UnreadCount = 2
	conv.Notes = []model.Note{{ID: uuid.NewString(), Text: "cliente prefere manhã", AuthorID: "op-1", CreatedAt: now}}
	require.NoError(t, s.SaveConversation(ctx, &conv))

	got, err := s.GetConversation(ctx, tenant, conv.ID)
	require.NoError(t, err)
	assert.True(t, got.AIEnabled)
	assert.Equal(t, []string{"VIP"}, got.Tags)
	require.Len(t, got.Notes, 1)
	assert.Equal(t, "cliente prefere manhã", got.Notes[0].Text)

	saved, err := s.PersistMessage(ctx, &model.Message{
		ConversationID: conv.ID,
		TenantID:       tenant,
		Sender:         model.SenderHumanOperator,
		AuthorID:       "op-1",
		Content:        "Oi, aqui é a Carla",
		SentAt:         now,
	})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	msgs, err := s.GetMessages(ctx, tenant, conv.ID, model.MessageFilter{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, saved.ID, msgs[0].ID)
	assert.Equal(t, model.SenderHumanOperator, msgs[0].Sender)

	saved.Content = "Oi, aqui é a Carla da clínica"
	saved.Edited = true
	require.NoError(t, s.UpdateMessage(ctx, saved))
	fetched, err := s.GetMessage(ctx, tenant, saved.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Edited)
	assert.Equal(t, "Oi, aqui é a Carla da clínica", fetched.Content)

	require.NoError(t, s.MarkRead(ctx, tenant, conv.ID))
	require.NoError(t, s.SetArchived(ctx, tenant, conv.ID, true))
	got, err = s.GetConversation(ctx, tenant, conv.ID)
	require.NoError(t, err)
	assert.Zero(t, got.UnreadCount)
	assert.Equal(t, model.StatusArchived, got.Status)
}

func TestPostgresStoreTenantIsolation(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	conv := newConv(uuid.NewString(), model.StatusActive, time.Now().UTC())
	require.NoError(t, s.SaveConversation(ctx, &conv))

	_, err := s.GetConversation(ctx, "tenant-2", conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetMessages(ctx, "tenant-2", conv.ID, model.MessageFilter{})
	assert.ErrorIs(t, err, ErrNotFound)

	other := conv
	other.TenantID = "tenant-2"
	assert.ErrorIs(t, s.SaveConversation(ctx, &other), ErrNotFound)
	assert.ErrorIs(t, s.MarkRead(ctx, "tenant-2", conv.ID), ErrNotFound)
}
