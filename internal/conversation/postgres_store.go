package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool used by PostgresStore.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists conversations and messages in PostgreSQL.
type PostgresStore struct {
	pool PgxPool
	now  func() time.Time
}

// NewPostgresStore creates a store backed by pgxpool.
func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

const conversationColumns = `id, property_id, channel, guest_identifier, COALESCE(guest_name, ''),
	status, mode, is_after_hours, message_count, started_at, last_message_at, ended_at`

// GetOrCreate relies on the partial unique index over active conversations:
// a concurrent insert loses the race and re-selects the winner.
func (s *PostgresStore) GetOrCreate(ctx context.Context, candidate *Conversation) (*Conversation, error) {
	conv, err := s.findActive(ctx, candidate.PropertyID, candidate.GuestIdentifier)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return nil, err
	}

	c := *candidate
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Mode == "" {
		c.Mode = ModeConcierge
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = s.now()
	}
	if c.LastMessageAt.IsZero() {
		c.LastMessageAt = c.StartedAt
	}

	query := `
		INSERT INTO conversations (id, property_id, channel, guest_identifier, guest_name,
			status, mode, is_after_hours, message_count, started_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5, 'active', $6, $7, $8, $9, $10)
		ON CONFLICT (property_id, guest_identifier) WHERE status = 'active' DO NOTHING
		RETURNING ` + conversationColumns
	created, err := scanConversation(s.pool.QueryRow(ctx, query,
		c.ID, c.PropertyID, c.Channel, c.GuestIdentifier, nullableString(c.GuestName),
		string(c.Mode), c.IsAfterHours, c.MessageCount, c.StartedAt, c.LastMessageAt,
	))
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation: insert: %w", err)
	}
	return s.findActive(ctx, candidate.PropertyID, candidate.GuestIdentifier)
}

func (s *PostgresStore) findActive(ctx context.Context, propertyID, guestIdentifier string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE property_id = $1 AND guest_identifier = $2 AND status = 'active'
		ORDER BY started_at DESC
		LIMIT 1`
	conv, err := scanConversation(s.pool.QueryRow(ctx, query, propertyID, guestIdentifier))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: select active: %w", err)
	}
	return conv, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Conversation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrConversationNotFound
	}
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	conv, err := scanConversation(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: select: %w", err)
	}
	return conv, nil
}

func (s *PostgresStore) Save(ctx context.Context, conv *Conversation) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations
		SET guest_name = $2, status = $3, mode = $4, message_count = $5,
			last_message_at = $6, ended_at = $7
		WHERE id = $1`,
		conv.ID, nullableString(conv.GuestName), string(conv.Status), string(conv.Mode),
		conv.MessageCount, conv.LastMessageAt, conv.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("conversation: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = s.now()
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("conversation: encode metadata: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, metadata, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, metadata, msg.SentAt,
	); err != nil {
		return fmt.Errorf("conversation: insert message: %w", err)
	}
	return nil
}

const messageColumns = `id, conversation_id, role, content, metadata, sent_at`

func (s *PostgresStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = HistoryWindow
	}
	rows, err := s.pool.Query(ctx, `SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at DESC
		LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: recent messages: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *PostgresStore) AllMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation: all messages: %w", err)
	}
	return scanMessages(rows)
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var (
		c             Conversation
		status, mode  string
		lastMessageAt *time.Time
	)
	if err := row.Scan(
		&c.ID,
		&c.PropertyID,
		&c.Channel,
		&c.GuestIdentifier,
		&c.GuestName,
		&status,
		&mode,
		&c.IsAfterHours,
		&c.MessageCount,
		&c.StartedAt,
		&lastMessageAt,
		&c.EndedAt,
	); err != nil {
		return nil, err
	}
	c.Status = Status(status)
	c.Mode = Mode(mode)
	if lastMessageAt != nil {
		c.LastMessageAt = *lastMessageAt
	}
	return &c, nil
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var (
			m        Message
			role     string
			metadata []byte
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &metadata, &m.SentAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		m.Role = Role(role)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
				return nil, fmt.Errorf("conversation: decode metadata: %w", err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: read messages: %w", err)
	}
	return out, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
