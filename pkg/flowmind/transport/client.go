// Package transport is the HTTP client for the flowmind service.
//
// Every failure is returned as one of two typed errors: a
// *errors.TransportError when no response was read, or a
// *errors.ServiceError when the service answered with a non-2xx status.
// The client never retries.
package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/randalmurphal/flowmind/pkg/flowmind/api"
	fmerrors "github.com/randalmurphal/flowmind/pkg/flowmind/errors"
	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
)

// Client talks to one flowmind service.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithTimeout bounds every request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:   resty.New().SetBaseURL(baseURL),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.SetHeader("Accept", "application/json")
	return c
}

// Execute runs a graph on the service.
func (c *Client) Execute(ctx context.Context, req api.ExecuteRequest) (api.ExecuteResponse, error) {
	var out api.ExecuteResponse
	_, err := c.send(c.http.R().SetContext(ctx).SetBody(req).SetResult(&out),
		http.MethodPost, api.PathExecute)
	if err != nil {
		return api.ExecuteResponse{}, err
	}
	return out, nil
}

// SaveWorkflow stores snap under name.
func (c *Client) SaveWorkflow(ctx context.Context, name string, snap graph.Snapshot) (api.SaveResponse, error) {
	var out api.SaveResponse
	_, err := c.send(c.http.R().SetContext(ctx).
		SetQueryParam("name", name).
		SetBody(snap).
		SetResult(&out),
		http.MethodPost, api.PathSave)
	if err != nil {
		return api.SaveResponse{}, err
	}
	return out, nil
}

// LoadWorkflow fetches the graph saved under name.
func (c *Client) LoadWorkflow(ctx context.Context, name string) (graph.Snapshot, error) {
	var out graph.Snapshot
	_, err := c.send(c.http.R().SetContext(ctx).
		SetPathParam("name", name).
		SetResult(&out),
		http.MethodGet, api.PathWorkflow)
	if err != nil {
		return graph.Snapshot{}, err
	}
	return out, nil
}

// ListWorkflows returns every saved workflow.
func (c *Client) ListWorkflows(ctx context.Context) ([]api.WorkflowSummary, error) {
	var out []api.WorkflowSummary
	_, err := c.send(c.http.R().SetContext(ctx).SetResult(&out),
		http.MethodGet, api.PathList)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteWorkflow removes the workflow saved under name. Deleting an
// unknown name succeeds.
func (c *Client) DeleteWorkflow(ctx context.Context, name string) error {
	_, err := c.send(c.http.R().SetContext(ctx).SetPathParam("name", name),
		http.MethodDelete, api.PathWorkflow)
	return err
}

// Upload sends a document for ingestion into collection.
func (c *Client) Upload(ctx context.Context, collection, filename string, r io.Reader) (api.UploadResponse, error) {
	var out api.UploadResponse
	_, err := c.send(c.http.R().SetContext(ctx).
		SetFileReader("file", filename, r).
		SetFormData(map[string]string{"collection_name": collection}).
		SetResult(&out),
		http.MethodPost, api.PathUpload)
	if err != nil {
		return api.UploadResponse{}, err
	}
	return out, nil
}

// Collections lists the knowledge collections.
func (c *Client) Collections(ctx context.Context) ([]string, error) {
	var out api.CollectionsResponse
	_, err := c.send(c.http.R().SetContext(ctx).SetResult(&out),
		http.MethodGet, api.PathCollections)
	if err != nil {
		return nil, err
	}
	return out.Collections, nil
}

// UploadHistory lists ingested files in upload order. An empty collection
// lists every collection.
func (c *Client) UploadHistory(ctx context.Context, collection string) ([]api.UploadRecord, error) {
	var out []api.UploadRecord
	r := c.http.R().SetContext(ctx).SetResult(&out)
	if collection != "" {
		r.SetQueryParam("collection", collection)
	}
	if _, err := c.send(r, http.MethodGet, api.PathUploadHistory); err != nil {
		return nil, err
	}
	return out, nil
}

// Health reports the service status.
func (c *Client) Health(ctx context.Context) (api.Health, error) {
	var out api.Health
	_, err := c.send(c.http.R().SetContext(ctx).SetResult(&out),
		http.MethodGet, api.PathHealth)
	if err != nil {
		return api.Health{}, err
	}
	return out, nil
}

func (c *Client) send(r *resty.Request, method, endpoint string) (*resty.Response, error) {
	resp, err := r.SetError(&api.ErrorBody{}).Execute(method, endpoint)
	if err != nil {
		c.log().Warn("request failed",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()))
		return nil, &fmerrors.TransportError{Endpoint: endpoint, Err: err}
	}
	if resp.IsError() {
		se := &fmerrors.ServiceError{
			StatusCode: resp.StatusCode(),
			Endpoint:   endpoint,
			Status:     resp.Status(),
		}
		if body, ok := resp.Error().(*api.ErrorBody); ok && body != nil {
			se.Detail = body.Detail
		}
		c.log().Debug("service rejected request",
			slog.String("endpoint", endpoint),
			slog.Int("status", se.StatusCode),
			slog.String("detail", se.Detail))
		return resp, se
	}
	return resp, nil
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}
