package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
)

// MemoryStore keeps documents in memory. Suitable for tests and
// single-process development.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]Document
	uploads []Upload
	closed  bool
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]Document),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, name string, g graph.Snapshot) (Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Document{}, false, ErrStoreClosed
	}

	now := s.now()
	doc, exists := s.docs[name]
	if !exists {
		doc = Document{ID: uuid.NewString(), Name: name, CreatedAt: now}
	}
	doc.Graph = g.Clone()
	doc.UpdatedAt = now
	s.docs[name] = doc

	return cloneDocument(doc), !exists, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, name string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Document{}, ErrStoreClosed
	}
	doc, ok := s.docs[name]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]Summary, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, Summary{ID: d.ID, Name: d.Name, CreatedAt: d.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	delete(s.docs, name)
	return nil
}

// RecordUpload implements Store.
func (s *MemoryStore) RecordUpload(_ context.Context, u Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if u.UploadedAt.IsZero() {
		u.UploadedAt = s.now()
	}
	s.uploads = append(s.uploads, u)
	return nil
}

// Uploads implements Store.
func (s *MemoryStore) Uploads(_ context.Context, collection string) ([]Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]Upload, 0, len(s.uploads))
	for _, u := range s.uploads {
		if collection == "" || u.Collection == collection {
			out = append(out, u)
		}
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneDocument(d Document) Document {
	d.Graph = d.Graph.Clone()
	return d
}
