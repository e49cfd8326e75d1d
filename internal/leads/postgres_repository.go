package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the repository uses.
type PgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const leadColumns = `id, conversation_id, property_id,
	COALESCE(guest_name, ''), COALESCE(guest_phone, ''), COALESCE(guest_email, ''),
	intent, estimated_value, priority, COALESCE(flag_reason, ''),
	source_channel, is_after_hours, status, captured_at`

// Create inserts a new row. A second lead for the same conversation
// returns ErrLeadExists.
func (r *PostgresRepository) Create(ctx context.Context, lead *Lead) (*Lead, error) {
	if err := lead.Validate(); err != nil {
		return nil, err
	}

	out := *lead
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.Status == "" {
		out.Status = StatusNew
	}

	query := `
		INSERT INTO leads (id, conversation_id, property_id, guest_name, guest_phone, guest_email,
			intent, estimated_value, priority, flag_reason, source_channel, is_after_hours, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING captured_at
	`
	var capturedAt time.Time
	if err := r.pool.QueryRow(ctx, query,
		out.ID,
		out.ConversationID,
		out.PropertyID,
		nullable(out.GuestName),
		nullable(out.GuestPhone),
		nullable(out.GuestEmail),
		out.Intent,
		out.EstimatedValue,
		out.Priority,
		nullable(out.FlagReason),
		out.SourceChannel,
		out.IsAfterHours,
		out.Status,
	).Scan(&capturedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrLeadExists
		}
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}
	out.CapturedAt = capturedAt
	return &out, nil
}

// GetByConversation fetches the lead captured in a conversation.
func (r *PostgresRepository) GetByConversation(ctx context.Context, conversationID string) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE conversation_id = $1`
	lead, err := scanLead(r.pool.QueryRow(ctx, query, conversationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// ListByProperty returns a property's leads, newest first.
func (r *PostgresRepository) ListByProperty(ctx context.Context, propertyID string, filter ListFilter) ([]*Lead, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args := []any{propertyID}
	query := `SELECT ` + leadColumns + ` FROM leads WHERE property_id = $1`
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		query += fmt.Sprintf(" AND priority = $%d", len(args))
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY captured_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	return out, nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var lead Lead
	if err := row.Scan(
		&lead.ID,
		&lead.ConversationID,
		&lead.PropertyID,
		&lead.GuestName,
		&lead.GuestPhone,
		&lead.GuestEmail,
		&lead.Intent,
		&lead.EstimatedValue,
		&lead.Priority,
		&lead.FlagReason,
		&lead.SourceChannel,
		&lead.IsAfterHours,
		&lead.Status,
		&lead.CapturedAt,
	); err != nil {
		return nil, err
	}
	return &lead, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
