package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Searcher runs a web search and returns results as prompt text.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// MockSearcher answers every query with a fixed description of FlowMind.
// It stands in for web search when no API key is configured.
type MockSearcher struct{}

// Search implements Searcher.
func (MockSearcher) Search(_ context.Context, query string) (string, error) {
	return fmt.Sprintf("Mock Search Result for '%s': FlowMind is a visual AI workflow builder "+
		"that uses nodes like User Query, LLM Engine, and Knowledge Base.", query), nil
}

// DefaultSerpAPIURL is the SerpAPI search endpoint.
const DefaultSerpAPIURL = "https://serpapi.com"

// SerpAPISearcher queries SerpAPI and formats the top organic results.
type SerpAPISearcher struct {
	http       *resty.Client
	apiKey     string
	maxResults int
}

// SerpAPIOption configures a SerpAPISearcher.
type SerpAPIOption func(*SerpAPISearcher)

// WithSerpAPIURL overrides the API base URL.
func WithSerpAPIURL(url string) SerpAPIOption {
	return func(s *SerpAPISearcher) {
		s.http.SetBaseURL(url)
	}
}

// WithSearchTimeout bounds each search request.
func WithSearchTimeout(d time.Duration) SerpAPIOption {
	return func(s *SerpAPISearcher) {
		s.http.SetTimeout(d)
	}
}

// WithMaxResults sets how many organic results are kept. Defaults to 3.
func WithMaxResults(n int) SerpAPIOption {
	return func(s *SerpAPISearcher) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// NewSerpAPISearcher creates a searcher using apiKey.
func NewSerpAPISearcher(apiKey string, opts ...SerpAPIOption) *SerpAPISearcher {
	s := &SerpAPISearcher{
		http:       resty.New().SetBaseURL(DefaultSerpAPIURL),
		apiKey:     apiKey,
		maxResults: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type serpResponse struct {
	OrganicResults []serpResult `json:"organic_results"`
	Error          string       `json:"error"`
}

type serpResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// Search implements Searcher.
func (s *SerpAPISearcher) Search(ctx context.Context, query string) (string, error) {
	var out serpResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"q": query, "api_key": s.apiKey}).
		SetResult(&out).
		SetError(&out).
		Get("/search.json")
	if err != nil {
		return "", fmt.Errorf("serpapi request: %w", err)
	}
	if resp.IsError() {
		if out.Error != "" {
			return "", fmt.Errorf("serpapi: %s: %s", resp.Status(), out.Error)
		}
		return "", fmt.Errorf("serpapi: %s", resp.Status())
	}

	results := out.OrganicResults
	if len(results) > s.maxResults {
		results = results[:s.maxResults]
	}
	formatted := make([]string, len(results))
	for i, r := range results {
		formatted[i] = fmt.Sprintf("Title: %s\nSnippet: %s\nSource: %s", r.Title, r.Snippet, r.Link)
	}
	return strings.Join(formatted, "\n\n"), nil
}
