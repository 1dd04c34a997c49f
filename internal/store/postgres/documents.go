package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gallerybot/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
)

const DefaultDocumentName = "main"

// DocumentBackend keeps the shared document as one JSONB row.
type DocumentBackend struct {
	pool *pgxpool.Pool
	name string
	Now  func() time.Time
}

func NewDocumentBackend(pool *pgxpool.Pool, name string) *DocumentBackend {
	if name == "" {
		name = DefaultDocumentName
	}
	return &DocumentBackend{pool: pool, name: name}
}

func (b *DocumentBackend) EnsureSchema(ctx context.Context) error {
	const q = `
		CREATE TABLE IF NOT EXISTS gallery_documents (
			name       text PRIMARY KEY,
			body       jsonb NOT NULL,
			updated_at timestamptz NOT NULL
		)
	`
	if _, err := b.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("create gallery_documents: %w", err)
	}
	return nil
}

func (b *DocumentBackend) Load(ctx context.Context) (*domain.Document, error) {
	const q = `SELECT body FROM gallery_documents WHERE name = $1`

	var body []byte
	err := b.pool.QueryRow(ctx, q, b.name).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	var doc domain.Document
	if err := jsoniter.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	doc.Normalize()
	return &doc, nil
}

// Save upserts the document in a single statement, so a failed save leaves
// the previous row untouched.
func (b *DocumentBackend) Save(ctx context.Context, doc *domain.Document) error {
	body, err := jsoniter.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	const q = `
		INSERT INTO gallery_documents (name, body, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
	`
	if _, err := b.pool.Exec(ctx, q, b.name, body, now().UTC()); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (b *DocumentBackend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}
