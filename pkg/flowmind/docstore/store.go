// Package docstore persists saved workflow documents and the upload
// ledger for the flowmind service.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
)

// Store persists workflow documents keyed by unique name.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save creates the document called name, or replaces its graph if it
	// exists. created reports which happened. A new document gets a fresh
	// UUID; an existing one keeps its id and creation time.
	Save(ctx context.Context, name string, g graph.Snapshot) (doc Document, created bool, err error)

	// Get returns the document called name, or ErrNotFound.
	Get(ctx context.Context, name string) (Document, error)

	// List returns document summaries, oldest first.
	// Returns an empty slice (not an error) when there are none.
	List(ctx context.Context) ([]Summary, error)

	// Delete removes the document called name. Missing names are not an error.
	Delete(ctx context.Context, name string) error

	// RecordUpload appends an entry to the upload ledger.
	RecordUpload(ctx context.Context, u Upload) error

	// Uploads lists ledger entries for collection, oldest first.
	// An empty collection lists every entry.
	Uploads(ctx context.Context, collection string) ([]Upload, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Document is a saved workflow.
type Document struct {
	ID        string
	Name      string
	Graph     graph.Snapshot
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary describes a document without its graph.
type Summary struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Upload is one ingested file.
type Upload struct {
	Filename   string    `json:"filename"`
	Collection string    `json:"collection"`
	Chunks     int       `json:"chunks_count"`
	UploadedAt time.Time `json:"upload_date"`
}

// Sentinel errors for document operations.
var (
	// ErrNotFound indicates no document has the requested name.
	ErrNotFound = errors.New("workflow not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("document store closed")
)

func encodeGraph(g graph.Snapshot) ([]byte, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode graph: %w", err)
	}
	return data, nil
}

func decodeGraph(data []byte) (graph.Snapshot, error) {
	g, err := graph.ParseSnapshot(data, "json")
	if err != nil {
		return graph.Snapshot{}, fmt.Errorf("decode graph: %w", err)
	}
	return g, nil
}
