package engine

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// DefaultTopK is the number of passages a knowledge node retrieves.
const DefaultTopK = 3

// Chunk is one retrievable passage of an ingested document.
type Chunk struct {
	Content string `json:"content"`
	Source  string `json:"source"`
	Index   int    `json:"chunk"`
	// Page is the 1-based page number for paged documents, else 0.
	Page int `json:"page,omitempty"`
}

// Render formats the chunk as it appears in the model's context.
func (c Chunk) Render() string {
	source := c.Source
	if source == "" {
		source = "Document"
	}
	return "From " + source + ":\n" + c.Content
}

// Retriever finds passages relevant to a query.
type Retriever interface {
	// Query returns at most n passages from collection, best first.
	// An unknown collection yields no passages and no error.
	Query(ctx context.Context, collection, text string, n int) ([]Chunk, error)
}

// KeywordIndex is an in-memory Retriever that ranks passages by the
// number of query terms they contain. Safe for concurrent use.
type KeywordIndex struct {
	mu          sync.RWMutex
	collections map[string][]indexedChunk
}

type indexedChunk struct {
	Chunk
	terms map[string]int
}

// NewKeywordIndex creates an empty index.
func NewKeywordIndex() *KeywordIndex {
	return &KeywordIndex{collections: make(map[string][]indexedChunk)}
}

// Add appends chunks to collection, creating it if needed, and returns
// the number added.
func (k *KeywordIndex) Add(collection string, chunks []Chunk) int {
	indexed := make([]indexedChunk, len(chunks))
	for i, c := range chunks {
		indexed[i] = indexedChunk{Chunk: c, terms: termCounts(c.Content)}
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.collections[collection] = append(k.collections[collection], indexed...)
	return len(chunks)
}

// Collections returns the collection names in sorted order.
func (k *KeywordIndex) Collections() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	names := make([]string, 0, len(k.collections))
	for name := range k.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Query implements Retriever. Passages sharing no term with text are
// never returned; ties keep insertion order.
func (k *KeywordIndex) Query(ctx context.Context, collection, text string, n int) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := termCounts(text)

	k.mu.RLock()
	stored := k.collections[collection]
	type scored struct {
		chunk Chunk
		score int
	}
	hits := make([]scored, 0, len(stored))
	for _, c := range stored {
		score := 0
		for term := range query {
			score += c.terms[term]
		}
		if score > 0 {
			hits = append(hits, scored{chunk: c.Chunk, score: score})
		}
	}
	k.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if n > 0 && len(hits) > n {
		hits = hits[:n]
	}
	out := make([]Chunk, len(hits))
	for i, h := range hits {
		out[i] = h.chunk
	}
	return out, nil
}

// SplitParagraphs cuts text at blank lines into chunks tagged with
// source. Whitespace-only paragraphs are dropped.
func SplitParagraphs(text, source string) []Chunk {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var (
		chunks  []Chunk
		current []string
	)
	flush := func() {
		if p := strings.TrimSpace(strings.Join(current, "\n")); p != "" {
			chunks = append(chunks, Chunk{Content: p, Source: source, Index: len(chunks) + 1})
		}
		current = current[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return chunks
}

// SplitPages makes one chunk per page tagged with source and the page
// number. Blank pages are dropped but keep their place in the numbering.
func SplitPages(pages []string, source string) []Chunk {
	var chunks []Chunk
	for i, text := range pages {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		chunks = append(chunks, Chunk{Content: text, Source: source, Index: len(chunks) + 1, Page: i + 1})
	}
	return chunks
}

// termCounts lowercases s and counts its words of two or more letters.
func termCounts(s string) map[string]int {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	counts := make(map[string]int, len(words))
	for _, w := range words {
		if len([]rune(w)) < 2 || stopWords[w] {
			continue
		}
		counts[w]++
	}
	return counts
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "do": true, "does": true, "for": true, "from": true,
	"how": true, "in": true, "is": true, "it": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "this": true, "to": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "why": true, "with": true,
}
