package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
)

const pgSchemaSQL = `
CREATE TABLE IF NOT EXISTS workflows (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    graph_data JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS documents (
    id           BIGSERIAL PRIMARY KEY,
    filename     TEXT NOT NULL,
    collection   TEXT NOT NULL,
    chunks_count INTEGER NOT NULL,
    upload_date  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
`

// PostgresStore persists documents to PostgreSQL via pgx.
// The pool is owned by the store and closed by Close.
type PostgresStore struct {
	db     *pgxpool.Pool
	closed atomic.Bool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects to dsn and creates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := NewPostgresStore(pool)
	if err := s.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return s, nil
}

// CreateSchema creates the workflows and documents tables if they don't exist.
func (s *PostgresStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, pgSchemaSQL)
	return err
}

// DropSchema drops the workflows and documents tables.
func (s *PostgresStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS workflows, documents CASCADE;`)
	return err
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, name string, g graph.Snapshot) (Document, bool, error) {
	if s.closed.Load() {
		return Document{}, false, ErrStoreClosed
	}
	data, err := encodeGraph(g)
	if err != nil {
		return Document{}, false, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Document{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	doc := Document{Name: name, Graph: g.Clone()}
	err = tx.QueryRow(ctx,
		`SELECT id, created_at FROM workflows WHERE name = $1 FOR UPDATE`, name,
	).Scan(&doc.ID, &doc.CreatedAt)

	created := errors.Is(err, pgx.ErrNoRows)
	switch {
	case created:
		doc.ID = uuid.NewString()
		if err := tx.QueryRow(ctx, `
			INSERT INTO workflows (id, name, graph_data) VALUES ($1, $2, $3)
			RETURNING created_at, updated_at
		`, doc.ID, name, data).Scan(&doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return Document{}, false, fmt.Errorf("insert workflow: %w", err)
		}
	case err != nil:
		return Document{}, false, fmt.Errorf("lookup workflow: %w", err)
	default:
		if err := tx.QueryRow(ctx, `
			UPDATE workflows SET graph_data = $1, updated_at = NOW() WHERE id = $2
			RETURNING updated_at
		`, data, doc.ID).Scan(&doc.UpdatedAt); err != nil {
			return Document{}, false, fmt.Errorf("update workflow: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Document{}, false, fmt.Errorf("commit: %w", err)
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return doc, created, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, name string) (Document, error) {
	if s.closed.Load() {
		return Document{}, ErrStoreClosed
	}
	var (
		doc  Document
		data []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, name, graph_data, created_at, updated_at
		FROM workflows WHERE name = $1
	`, name).Scan(&doc.ID, &doc.Name, &data, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("load workflow: %w", err)
	}
	if doc.Graph, err = decodeGraph(data); err != nil {
		return Document{}, err
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return doc, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context) ([]Summary, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.Query(ctx, `SELECT id, name, created_at FROM workflows ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		sum.CreatedAt = sum.CreatedAt.UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return out, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE name = $1`, name); err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	return nil
}

// RecordUpload implements Store.
func (s *PostgresStore) RecordUpload(ctx context.Context, u Upload) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if u.UploadedAt.IsZero() {
		u.UploadedAt = time.Now().UTC()
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO documents (filename, collection, chunks_count, upload_date)
		VALUES ($1, $2, $3, $4)
	`, u.Filename, u.Collection, u.Chunks, u.UploadedAt); err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

// Uploads implements Store.
func (s *PostgresStore) Uploads(ctx context.Context, collection string) ([]Upload, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.Query(ctx, `
		SELECT filename, collection, chunks_count, upload_date
		FROM documents
		WHERE $1 = '' OR collection = $1
		ORDER BY id
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	out := []Upload{}
	for rows.Next() {
		var u Upload
		if err := rows.Scan(&u.Filename, &u.Collection, &u.Chunks, &u.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		u.UploadedAt = u.UploadedAt.UTC()
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return out, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.db.Close()
	}
	return nil
}
