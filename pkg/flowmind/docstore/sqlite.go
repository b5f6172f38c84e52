package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
)

// SQLiteStore persists documents to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (and if needed creates) a SQLite document store.
// path is a file path or ":memory:".
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			graph_data TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL,
			collection TEXT NOT NULL,
			chunks_count INTEGER NOT NULL,
			upload_date TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, name string, g graph.Snapshot) (Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Document{}, false, ErrStoreClosed
	}

	data, err := encodeGraph(g)
	if err != nil {
		return Document{}, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	doc := Document{Name: name, Graph: g.Clone(), UpdatedAt: now}

	var createdAt string
	err = tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM workflows WHERE name = ?`, name,
	).Scan(&doc.ID, &createdAt)

	created := errors.Is(err, sql.ErrNoRows)
	switch {
	case created:
		doc.ID = uuid.NewString()
		doc.CreatedAt = now
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO workflows (id, name, graph_data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, doc.ID, name, string(data), formatTime(now), formatTime(now)); err != nil {
			return Document{}, false, fmt.Errorf("insert workflow: %w", err)
		}
	case err != nil:
		return Document{}, false, fmt.Errorf("lookup workflow: %w", err)
	default:
		doc.CreatedAt = parseTime(createdAt)
		if _, err := tx.ExecContext(ctx, `
			UPDATE workflows SET graph_data = ?, updated_at = ? WHERE id = ?
		`, string(data), formatTime(now), doc.ID); err != nil {
			return Document{}, false, fmt.Errorf("update workflow: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Document{}, false, fmt.Errorf("commit: %w", err)
	}
	return doc, created, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, name string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Document{}, ErrStoreClosed
	}

	var (
		doc                  Document
		data                 string
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, graph_data, created_at, updated_at
		FROM workflows WHERE name = ?
	`, name).Scan(&doc.ID, &doc.Name, &data, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("load workflow: %w", err)
	}

	if doc.Graph, err = decodeGraph([]byte(data)); err != nil {
		return Document{}, err
	}
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	return doc, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at FROM workflows ORDER BY created_at, name
	`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			sum       Summary
			createdAt string
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		sum.CreatedAt = parseTime(createdAt)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return out, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	return nil
}

// RecordUpload implements Store.
func (s *SQLiteStore) RecordUpload(ctx context.Context, u Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if u.UploadedAt.IsZero() {
		u.UploadedAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (filename, collection, chunks_count, upload_date)
		VALUES (?, ?, ?, ?)
	`, u.Filename, u.Collection, u.Chunks, formatTime(u.UploadedAt)); err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

// Uploads implements Store.
func (s *SQLiteStore) Uploads(ctx context.Context, collection string) ([]Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT filename, collection, chunks_count, upload_date
		FROM documents
		WHERE ? = '' OR collection = ?
		ORDER BY id
	`, collection, collection)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	out := []Upload{}
	for rows.Next() {
		var (
			u    Upload
			date string
		)
		if err := rows.Scan(&u.Filename, &u.Collection, &u.Chunks, &date); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		u.UploadedAt = parseTime(date)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return out, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// timeLayout is fixed width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
