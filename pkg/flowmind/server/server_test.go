package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowmind/pkg/flowmind/api"
	"github.com/randalmurphal/flowmind/pkg/flowmind/docstore"
	"github.com/randalmurphal/flowmind/pkg/flowmind/engine"
	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
	"github.com/randalmurphal/flowmind/pkg/flowmind/ingest/ingesttest"
)

type fixture struct {
	srv   *Server
	store *docstore.MemoryStore
	index *engine.KeywordIndex
}

func newFixture(t *testing.T, exec Executor) *fixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	index := engine.NewKeywordIndex()
	if exec == nil {
		exec = engine.New(engine.WithRetriever(index))
	}
	t.Cleanup(func() { _ = store.Close() })
	return &fixture{
		srv:   New(store, exec, index, WithLogger(nil)),
		store: store,
		index: index,
	}
}

func (f *fixture) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := f.srv.App().Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func jsonRequest(t *testing.T, method, target string, v any) *http.Request {
	t.Helper()
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, filename, content, collection string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if collection != "" {
		require.NoError(t, mw.WriteField("collection_name", collection))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, api.PathUpload, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func detailOf(t *testing.T, body []byte) string {
	t.Helper()
	var eb api.ErrorBody
	require.NoError(t, json.Unmarshal(body, &eb))
	return eb.Detail
}

func chatGraph() *graph.Snapshot {
	return &graph.Snapshot{
		Nodes: []graph.Node{
			{ID: "entry-node", Type: graph.KindQuery},
			{ID: "dndnode_0", Type: graph.KindKnowledge, Data: graph.Data{"collection": "handbook"}},
			{ID: "dndnode_1", Type: graph.KindLLM},
			{ID: "dndnode_2", Type: graph.KindOutput},
		},
		Edges: []graph.Edge{
			{ID: "e0", Source: "entry-node", Target: "dndnode_0"},
			{ID: "e1", Source: "dndnode_0", Target: "dndnode_1"},
			{ID: "e2", Source: "dndnode_1", Target: "dndnode_2"},
		},
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"online","service":"FlowMind API","version":"1.0.0"}`, string(body))
}

func TestExecute(t *testing.T) {
	f := newFixture(t, nil)
	f.index.Add("handbook", engine.SplitParagraphs("Vacation requests go to your manager.", "handbook.md"))

	resp, body := f.do(t, jsonRequest(t, http.MethodPost, api.PathExecute, api.ExecuteRequest{
		Graph:   chatGraph(),
		Message: "vacation",
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out api.ExecuteResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "echo: vacation\n\nFrom handbook.md:\nVacation requests go to your manager.", out.Response)
	assert.Equal(t, []string{"handbook.md"}, out.Sources)
}

func TestExecute_MissingGraph(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.do(t, jsonRequest(t, http.MethodPost, api.PathExecute,
		map[string]any{"workflow_id": nil, "graph": nil, "message": "hi", "history": []any{}}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Instruction error: A workflow graph must be provided for execution.", detailOf(t, body))
}

func TestExecute_MissingMessage(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.do(t, jsonRequest(t, http.MethodPost, api.PathExecute, api.ExecuteRequest{Graph: chatGraph()}))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "message is required", detailOf(t, body))
}

func TestExecute_InvalidBody(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodPost, api.PathExecute, strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExecute_NoEntryNode(t *testing.T) {
	f := newFixture(t, nil)
	g := &graph.Snapshot{Nodes: []graph.Node{{ID: "o", Type: graph.KindOutput}}}

	resp, body := f.do(t, jsonRequest(t, http.MethodPost, api.PathExecute, api.ExecuteRequest{Graph: g, Message: "hi"}))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Workflow execution failed: Workflow configuration error: No 'User Query' node found.",
		detailOf(t, body))
}

type failingExecutor struct{}

func (failingExecutor) Execute(context.Context, api.ExecuteRequest) (api.ExecuteResponse, error) {
	return api.ExecuteResponse{}, errors.New("model offline")
}

func TestExecute_ExecutorError(t *testing.T) {
	f := newFixture(t, failingExecutor{})
	resp, body := f.do(t, jsonRequest(t, http.MethodPost, api.PathExecute, api.ExecuteRequest{Graph: chatGraph(), Message: "hi"}))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Workflow execution failed: model offline", detailOf(t, body))
}

func TestWorkflows_SaveUpdateGetList(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, jsonRequest(t, http.MethodPost, api.PathSave+"?name=support", chatGraph()))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var first api.SaveResponse
	require.NoError(t, json.Unmarshal(body, &first))
	assert.Equal(t, "Workflow saved successfully", first.Message)
	assert.NotEmpty(t, first.ID)

	resp, body = f.do(t, jsonRequest(t, http.MethodPost, api.PathSave+"?name=support", chatGraph()))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second api.SaveResponse
	require.NoError(t, json.Unmarshal(body, &second))
	assert.Equal(t, "Workflow updated successfully", second.Message)
	assert.Equal(t, first.ID, second.ID)

	resp, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/workflows/support", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	g, err := graph.ParseSnapshot(body, "json")
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 4)
	assert.Len(t, g.Edges, 3)

	resp, body = f.do(t, httptest.NewRequest(http.MethodGet, api.PathList, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []api.WorkflowSummary
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "support", list[0].Name)
	assert.Equal(t, first.ID, list[0].ID)
	assert.False(t, list[0].CreatedAt.IsZero())
}

func TestWorkflows_ListEmptyIsArray(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, api.PathList, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestWorkflows_GetMissing(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/workflows/ghost", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Workflow not found", detailOf(t, body))
}

func TestWorkflows_SaveRequiresName(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.do(t, jsonRequest(t, http.MethodPost, api.PathSave+"?name=%20", chatGraph()))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "name is required", detailOf(t, body))
}

func TestWorkflows_Delete(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.store.Save(context.Background(), "old", *chatGraph())
	require.NoError(t, err)

	resp, _ := f.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/workflows/old", nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = f.store.Get(context.Background(), "old")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestUpload(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, uploadRequest(t, "guide.md", "# Guide\n\nFirst step.\n\nSecond step.\n", "manuals"))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out api.UploadResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, api.UploadResponse{
		Message:     "Successfully processed guide.md",
		ChunksAdded: 3,
		Collection:  "manuals",
	}, out)
	assert.Equal(t, []string{"manuals"}, f.index.Collections())

	uploads, err := f.store.Uploads(context.Background(), "manuals")
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, "guide.md", uploads[0].Filename)
	assert.Equal(t, 3, uploads[0].Chunks)
}

func TestUpload_DefaultCollection(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.do(t, uploadRequest(t, "notes.txt", "hello", ""))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out api.UploadResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, api.DefaultCollection, out.Collection)
}

func TestUpload_PDF(t *testing.T) {
	f := newFixture(t, nil)
	doc := ingesttest.PDF("Deploys happen on Tuesdays", "Lunch is at noon")

	resp, body := f.do(t, uploadRequest(t, "handbook.pdf", string(doc), "handbook"))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out api.UploadResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "Successfully processed handbook.pdf", out.Message)
	assert.Equal(t, 2, out.ChunksAdded)

	chunks, err := f.index.Query(context.Background(), "handbook", "when do deploys happen", 3)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "handbook.pdf", chunks[0].Source)
	assert.Equal(t, 1, chunks[0].Page)

	uploads, err := f.store.Uploads(context.Background(), "handbook")
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, 2, uploads[0].Chunks)
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		content    string
		collection string
		status     int
		detail     string
	}{
		{name: "docx", filename: "paper.docx", content: "PK", status: http.StatusBadRequest, detail: "Only PDF, .txt and .md files are supported"},
		{name: "broken pdf", filename: "paper.pdf", content: "%PDF", status: http.StatusBadRequest, detail: "Could not extract text from PDF"},
		{name: "pdf without text", filename: "scan.pdf", content: string(ingesttest.PDF("")), status: http.StatusBadRequest, detail: "Could not extract text from PDF"},
		{name: "empty", filename: "blank.txt", content: " \n\n ", status: http.StatusBadRequest, detail: "Could not extract text from document"},
		{name: "binary", filename: "bin.txt", content: "\xff\xfe\xfd", status: http.StatusBadRequest, detail: "Could not extract text from document"},
		{name: "short collection", filename: "a.txt", content: "x", collection: "ab", status: http.StatusUnprocessableEntity, detail: "collection must be at least 3 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			resp, body := f.do(t, uploadRequest(t, tt.filename, tt.content, tt.collection))
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.detail, detailOf(t, body))
			assert.Empty(t, f.index.Collections())
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	store := docstore.NewMemoryStore()
	index := engine.NewKeywordIndex()
	srv := New(store, engine.New(), index, WithLogger(nil), WithMaxUploadBytes(16))
	f := &fixture{srv: srv, store: store, index: index}

	resp, body := f.do(t, uploadRequest(t, "big.txt", strings.Repeat("a", 64), ""))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, detailOf(t, body), "exceeds 16 bytes")
}

func TestUpload_MissingFile(t *testing.T) {
	f := newFixture(t, nil)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("collection_name", "docs"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, api.PathUpload, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, body := f.do(t, req)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "file is required", detailOf(t, body))
}

func TestCollectionsAndHistory(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, api.PathCollections, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"collections":[]}`, string(body))

	f.do(t, uploadRequest(t, "a.txt", "alpha", "docs"))
	f.do(t, uploadRequest(t, "b.txt", "beta", "faq"))

	_, body = f.do(t, httptest.NewRequest(http.MethodGet, api.PathCollections, nil))
	assert.JSONEq(t, `{"collections":["docs","faq"]}`, string(body))

	_, body = f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/upload/history?collection=faq", nil))
	var uploads []docstore.Upload
	require.NoError(t, json.Unmarshal(body, &uploads))
	require.Len(t, uploads, 1)
	assert.Equal(t, "b.txt", uploads[0].Filename)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v2/nothing", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, detailOf(t, body))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "boom", describe(errors.New("boom")))
}
