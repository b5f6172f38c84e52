// Package api defines the JSON documents exchanged between the flowmind
// client and the flowmind service.
package api

import (
	"time"

	"github.com/randalmurphal/flowmind/pkg/flowmind/conversation"
	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
)

// Routes served by the flowmind service.
const (
	PathHealth        = "/"
	PathExecute       = "/api/v1/chat/execute"
	PathSave          = "/api/v1/workflows/save"
	PathList          = "/api/v1/workflows/list"
	PathWorkflow      = "/api/v1/workflows/{name}"
	PathUpload        = "/api/v1/upload/"
	PathCollections   = "/api/v1/upload/collections"
	PathUploadHistory = "/api/v1/upload/history"
)

// Service identity reported by the health endpoint.
const (
	ServiceName    = "FlowMind API"
	ServiceVersion = "1.0.0"
)

// DefaultCollection is the knowledge collection used when none is named.
const DefaultCollection = "knowledge_base"

// ExecuteRequest asks the service to run a graph against a message.
// WorkflowID is always sent and is null for transient graphs.
type ExecuteRequest struct {
	WorkflowID *string             `json:"workflow_id"`
	Graph      *graph.Snapshot     `json:"graph"`
	Message    string              `json:"message" validate:"required"`
	History    []conversation.Turn `json:"history"`
}

// ExecuteResponse is the reply to an ExecuteRequest.
type ExecuteResponse struct {
	Response string   `json:"response"`
	Sources  []string `json:"sources,omitempty"`
}

// ErrorBody is the payload of every non-2xx response.
type ErrorBody struct {
	Detail string `json:"detail"`
}

// SaveResponse acknowledges a saved workflow.
type SaveResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// WorkflowSummary is one entry of the workflow list.
type WorkflowSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadResponse acknowledges an ingested document.
type UploadResponse struct {
	Message     string `json:"message"`
	ChunksAdded int    `json:"chunks_added"`
	Collection  string `json:"collection"`
}

// UploadRecord is one entry of the upload history.
type UploadRecord struct {
	Filename    string    `json:"filename"`
	Collection  string    `json:"collection"`
	ChunksCount int       `json:"chunks_count"`
	UploadDate  time.Time `json:"upload_date"`
}

// CollectionsResponse lists knowledge collections.
type CollectionsResponse struct {
	Collections []string `json:"collections"`
}

// Health is the health endpoint payload.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
