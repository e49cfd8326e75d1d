package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool used by PostgresIndex.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresIndex stores documents in kb_documents with a pgvector column.
type PostgresIndex struct {
	pool PgxPool
}

func NewPostgresIndex(pool PgxPool) *PostgresIndex {
	if pool == nil {
		panic("knowledge: pgx pool required")
	}
	return &PostgresIndex{pool: pool}
}

const documentColumns = `id, property_id, doc_type, title, content, created_at`

func (p *PostgresIndex) SemanticSearch(ctx context.Context, propertyID string, vec []float32, maxDistance float64, limit int) ([]Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM kb_documents
		WHERE property_id = $1
		  AND embedding IS NOT NULL
		  AND embedding <=> $2::vector < $3
		ORDER BY embedding <=> $2::vector
		LIMIT $4`
	rows, err := p.pool.Query(ctx, query, propertyID, vectorLiteral(vec), maxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge: semantic search: %w", err)
	}
	return scanDocuments(rows)
}

func (p *PostgresIndex) KeywordSearch(ctx context.Context, propertyID string, keywords []string, limit int) ([]Document, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	args := []any{propertyID}
	conditions := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		args = append(args, "%"+escapeLike(kw)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d OR content ILIKE $%d", n, n))
	}
	args = append(args, limit)
	query := `SELECT ` + documentColumns + `
		FROM kb_documents
		WHERE property_id = $1 AND (` + strings.Join(conditions, " OR ") + `)
		LIMIT $` + strconv.Itoa(len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("knowledge: keyword search: %w", err)
	}
	return scanDocuments(rows)
}

// Replace swaps the property's documents in one transaction.
func (p *PostgresIndex) Replace(ctx context.Context, propertyID string, docs []Document) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("knowledge: begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM kb_documents WHERE property_id = $1`, propertyID); err != nil {
		return fmt.Errorf("knowledge: clear documents: %w", err)
	}
	for _, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		var embedding any
		if !IsDegenerate(doc.Embedding) {
			embedding = vectorLiteral(doc.Embedding)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO kb_documents (id, property_id, doc_type, title, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6::vector)
		`, id, propertyID, doc.Category, doc.Title, doc.Content, embedding); err != nil {
			return fmt.Errorf("knowledge: insert document %q: %w", doc.Title, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("knowledge: commit replace: %w", err)
	}
	return nil
}

func scanDocuments(rows pgx.Rows) ([]Document, error) {
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.PropertyID, &doc.Category, &doc.Title, &doc.Content, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("knowledge: scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// vectorLiteral renders a vector in pgvector's text format: [1,2,3].
func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
