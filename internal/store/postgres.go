package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
)

// PostgresConfig configures the connection pool.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool and
// makes sure the schema exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	} else {
		poolCfg.MaxConns = 10
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id                   TEXT PRIMARY KEY,
	tenant_id            TEXT NOT NULL,
	contact_name         TEXT NOT NULL DEFAULT '',
	phone_number         TEXT NOT NULL DEFAULT '',
	ai_enabled           BOOLEAN NOT NULL DEFAULT TRUE,
	status               TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'resolved', 'archived')),
	assigned_operator_id TEXT NOT NULL DEFAULT '',
	favorite             BOOLEAN NOT NULL DEFAULT FALSE,
	unread_count         INTEGER NOT NULL DEFAULT 0,
	tags                 TEXT[] NOT NULL DEFAULT '{}',
	crm_score            INTEGER NOT NULL DEFAULT 0,
	pipeline_stage       TEXT NOT NULL DEFAULT '',
	deal_value           BIGINT NOT NULL DEFAULT 0,
	handoff_reason       TEXT NOT NULL DEFAULT '',
	ai_reply_count       INTEGER NOT NULL DEFAULT 0,
	last_message_at      TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_conversations_tenant_activity
	ON conversations (tenant_id, last_message_at DESC NULLS LAST);

CREATE TABLE IF NOT EXISTS conversation_notes (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	text            TEXT NOT NULL,
	author_id       TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_conversation_notes_conversation
	ON conversation_notes (conversation_id, created_at);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	tenant_id       TEXT NOT NULL,
	sender          TEXT NOT NULL CHECK (sender IN ('client', 'ai', 'human_operator')),
	direction       TEXT NOT NULL CHECK (direction IN ('inbound', 'outbound')),
	is_from_ai      BOOLEAN NOT NULL DEFAULT FALSE,
	author_id       TEXT NOT NULL DEFAULT '',
	content         TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'sent',
	edited          BOOLEAN NOT NULL DEFAULT FALSE,
	deleted         BOOLEAN NOT NULL DEFAULT FALSE,
	delete_scope    TEXT NOT NULL DEFAULT '',
	reactions       TEXT[] NOT NULL DEFAULT '{}',
	model           TEXT,
	tokens_in       INTEGER,
	tokens_out      INTEGER,
	latency_ms      BIGINT,
	sent_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	delivered_at    TIMESTAMPTZ,
	read_at         TIMESTAMPTZ,
	edited_at       TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_sent
	ON messages (conversation_id, sent_at);
`

func (s *PostgresStore) initSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const conversationColumns = `id, tenant_id, contact_name, phone_number, ai_enabled, status,
	assigned_operator_id, favorite, unread_count, tags, crm_score, pipeline_stage, deal_value,
	handoff_reason, ai_reply_count, last_message_at, created_at, updated_at`

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	conv := &model.Conversation{}
	var status string
	err := row.Scan(
		&conv.ID,
		&conv.TenantID,
		&conv.Contact.Name,
		&conv.Contact.PhoneNumber,
		&conv.AIEnabled,
		&status,
		&conv.AssignedOperatorID,
		&conv.Favorite,
		&conv.UnreadCount,
		&conv.Tags,
		&conv.CRM.Score,
		&conv.CRM.PipelineStage,
		&conv.CRM.DealValue,
		&conv.HandoffReason,
		&conv.AIReplyCount,
		&conv.LastMessageAt,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	conv.Status = model.Status(status)
	if conv.Tags == nil {
		conv.Tags = []string{}
	}
	conv.Notes = []model.Note{}
	return conv, nil
}

// ListConversations returns one page of matching conversations, most recent activity first.
func (s *PostgresStore) ListConversations(ctx context.Context, tenantID string, filter model.ConversationFilter) (*model.ConversationPage, error) {
	filter = filter.Normalize()

	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status == "" {
		where = append(where, "status <> 'archived'")
	} else {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if filter.AssignedOperatorID != "" {
		where = append(where, "assigned_operator_id = "+arg(filter.AssignedOperatorID))
	}
	if len(filter.Tags) > 0 {
		where = append(where, "tags @> "+arg(filter.Tags))
	}
	if filter.UnreadOnly {
		where = append(where, "unread_count > 0")
	}
	if filter.FavoriteOnly {
		where = append(where, "favorite")
	}
	clause := strings.Join(where, " AND ")

	// Get total count
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM conversations WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, err
	}

	limitArg := arg(filter.Limit)
	offsetArg := arg((filter.Page - 1) * filter.Limit)
	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE `+clause+`
		ORDER BY COALESCE(last_message_at, created_at) DESC
		LIMIT `+limitArg+` OFFSET `+offsetArg, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachNotes(ctx, convs); err != nil {
		return nil, err
	}

	return model.NewConversationPage(convs, filter, total), nil
}

func (s *PostgresStore) attachNotes(ctx context.Context, convs []model.Conversation) error {
	if len(convs) == 0 {
		return nil
	}

	ids := make([]string, len(convs))
	byID := make(map[string]*model.Conversation, len(convs))
	for i := range convs {
		ids[i] = convs[i].ID
		byID[convs[i].ID] = &convs[i]
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, text, author_id, created_at
		FROM conversation_notes
		WHERE conversation_id = ANY($1)
		ORDER BY created_at ASC
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var n model.Note
		var convID string
		if err := rows.Scan(&n.ID, &convID, &n.Text, &n.AuthorID, &n.CreatedAt); err != nil {
			return err
		}
		if conv, ok := byID[convID]; ok {
			conv.Notes = append(conv.Notes, n)
		}
	}
	return rows.Err()
}

// GetConversation retrieves a conversation by ID.
func (s *PostgresStore) GetConversation(ctx context.Context, tenantID, conversationID string) (*model.Conversation, error) {
	conv, err := scanConversation(s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations WHERE id = $1 AND tenant_id = $2
	`, conversationID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	convs := []model.Conversation{*conv}
	if err := s.attachNotes(ctx, convs); err != nil {
		return nil, err
	}
	return &convs[0], nil
}

// SaveConversation upserts a conversation and inserts notes not stored yet.
func (s *PostgresStore) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	tags := conv.Tags
	if tags == nil {
		tags = []string{}
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO conversations (`+conversationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			ON CONFLICT (id) DO UPDATE SET
				contact_name = EXCLUDED.contact_name,
				phone_number = EXCLUDED.phone_number,
				ai_enabled = EXCLUDED.ai_enabled,
				status = EXCLUDED.status,
				assigned_operator_id = EXCLUDED.assigned_operator_id,
				favorite = EXCLUDED.favorite,
				unread_count = EXCLUDED.unread_count,
				tags = EXCLUDED.tags,
				handoff_reason = EXCLUDED.handoff_reason,
				ai_reply_count = EXCLUDED.ai_reply_count,
				last_message_at = EXCLUDED.last_message_at,
				updated_at = EXCLUDED.updated_at
			WHERE conversations.tenant_id = EXCLUDED.tenant_id
		`,
			conv.ID,
			conv.TenantID,
			conv.Contact.Name,
			conv.Contact.PhoneNumber,
			conv.AIEnabled,
			string(conv.Status),
			conv.AssignedOperatorID,
			conv.Favorite,
			conv.UnreadCount,
			tags,
			conv.CRM.Score,
			conv.CRM.PipelineStage,
			conv.CRM.DealValue,
			conv.HandoffReason,
			conv.AIReplyCount,
			conv.LastMessageAt,
			conv.CreatedAt,
			conv.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			// Row exists under another tenant.
			return ErrNotFound
		}

		for _, n := range conv.Notes {
			if _, err := tx.Exec(ctx, `
				INSERT INTO conversation_notes (id, conversation_id, text, author_id, created_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO NOTHING
			`, n.ID, conv.ID, n.Text, n.AuthorID, n.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkRead zeroes the unread counter and stamps inbound messages as read.
func (s *PostgresStore) MarkRead(ctx context.Context, tenantID, conversationID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE conversations SET unread_count = 0, updated_at = NOW()
			WHERE id = $1 AND tenant_id = $2
		`, conversationID, tenantID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		_, err = tx.Exec(ctx, `
			UPDATE messages SET read_at = NOW(), status = 'read'
			WHERE conversation_id = $1 AND sender = 'client' AND read_at IS NULL
		`, conversationID)
		return err
	})
}

// SetArchived moves a conversation in or out of the archive.
func (s *PostgresStore) SetArchived(ctx context.Context, tenantID, conversationID string, archived bool) error {
	status := model.StatusActive
	if archived {
		status = model.StatusArchived
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations SET status = $3, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
	`, conversationID, tenantID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const messageColumns = `id, conversation_id, tenant_id, sender, author_id, content, status,
	edited, deleted, delete_scope, reactions, model, tokens_in, tokens_out, latency_ms,
	sent_at, delivered_at, read_at, edited_at`

func scanMessage(row pgx.Row) (*model.Message, error) {
	m := &model.Message{}
	var sender, status, scope string
	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.TenantID,
		&sender,
		&m.AuthorID,
		&m.Content,
		&status,
		&m.Edited,
		&m.Deleted,
		&scope,
		&m.Reactions,
		&m.Model,
		&m.TokensIn,
		&m.TokensOut,
		&m.LatencyMs,
		&m.SentAt,
		&m.DeliveredAt,
		&m.ReadAt,
		&m.EditedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Sender = model.Sender(sender)
	m.Status = model.DeliveryStatus(status)
	m.DeleteScope = model.DeleteScope(scope)
	if m.Reactions == nil {
		m.Reactions = []string{}
	}
	return m, nil
}

// GetMessages returns up to filter.Limit messages in send order. When more
// match, the most recent ones are kept.
func (s *PostgresStore) GetMessages(ctx context.Context, tenantID, conversationID string, filter model.MessageFilter) ([]model.Message, error) {
	filter = filter.Normalize()

	var exists bool
	if err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1 AND tenant_id = $2)
	`, conversationID, tenantID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT * FROM (
			SELECT `+messageColumns+`
			FROM messages
			WHERE conversation_id = $1
				AND ($2::timestamptz IS NULL OR sent_at < $2)
				AND ($3::timestamptz IS NULL OR sent_at > $3)
			ORDER BY sent_at DESC
			LIMIT $4
		) recent
		ORDER BY sent_at ASC
	`, conversationID, filter.Before, filter.After, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// GetMessage retrieves a message by ID.
func (s *PostgresStore) GetMessage(ctx context.Context, tenantID, messageID string) (*model.Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages WHERE id = $1 AND tenant_id = $2
	`, messageID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func direction(m *model.Message) string {
	if m.Inbound() {
		return "inbound"
	}
	return "outbound"
}

// PersistMessage stores a new message and bumps the conversation's activity time.
func (s *PostgresStore) PersistMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	m := msg.Clone()
	if m.ID == "" {
		m.ID = uuid.Must(uuid.NewV7()).String()
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	if m.Status == "" {
		m.Status = model.DeliverySent
	}
	if m.Reactions == nil {
		m.Reactions = []string{}
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE conversations SET last_message_at = $3, updated_at = NOW()
			WHERE id = $1 AND tenant_id = $2
		`, m.ConversationID, m.TenantID, m.SentAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, tenant_id, sender, direction, is_from_ai,
				author_id, content, status, reactions, model, tokens_in, tokens_out, latency_ms, sent_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`,
			m.ID,
			m.ConversationID,
			m.TenantID,
			string(m.Sender),
			direction(m),
			m.IsFromAI(),
			m.AuthorID,
			m.Content,
			string(m.Status),
			m.Reactions,
			m.Model,
			m.TokensIn,
			m.TokensOut,
			m.LatencyMs,
			m.SentAt,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateMessage writes the mutable message fields.
func (s *PostgresStore) UpdateMessage(ctx context.Context, msg *model.Message) error {
	reactions := msg.Reactions
	if reactions == nil {
		reactions = []string{}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET
			content = $3,
			status = $4,
			edited = $5,
			deleted = $6,
			delete_scope = $7,
			reactions = $8,
			delivered_at = $9,
			read_at = $10,
			edited_at = $11
		WHERE id = $1 AND tenant_id = $2
	`,
		msg.ID,
		msg.TenantID,
		msg.Content,
		string(msg.Status),
		msg.Edited,
		msg.Deleted,
		string(msg.DeleteScope),
		reactions,
		msg.DeliveredAt,
		msg.ReadAt,
		msg.EditedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
