package studio

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowmind/pkg/flowmind/api"
	"github.com/randalmurphal/flowmind/pkg/flowmind/conversation"
	fmerrors "github.com/randalmurphal/flowmind/pkg/flowmind/errors"
	"github.com/randalmurphal/flowmind/pkg/flowmind/execution"
	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
	"github.com/randalmurphal/flowmind/pkg/flowmind/persist"
)

type memoryBackend struct {
	mu      sync.Mutex
	graphs  map[string]graph.Snapshot
	uploads int
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{graphs: map[string]graph.Snapshot{}}
}

func (b *memoryBackend) Execute(_ context.Context, req api.ExecuteRequest) (api.ExecuteResponse, error) {
	return api.ExecuteResponse{Response: "echo: " + req.Message}, nil
}

func (b *memoryBackend) SaveWorkflow(_ context.Context, name string, snap graph.Snapshot) (api.SaveResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.graphs[name] = snap.Clone()
	return api.SaveResponse{Message: "Workflow saved successfully", ID: "id-" + name}, nil
}

func (b *memoryBackend) LoadWorkflow(_ context.Context, name string) (graph.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap, ok := b.graphs[name]
	if !ok {
		return graph.Snapshot{}, &fmerrors.ServiceError{StatusCode: 404, Detail: "Workflow not found"}
	}
	return snap.Clone(), nil
}

func (b *memoryBackend) ListWorkflows(context.Context) ([]api.WorkflowSummary, error) {
	return nil, nil
}

func (b *memoryBackend) Upload(_ context.Context, collection, filename string, _ io.Reader) (api.UploadResponse, error) {
	b.uploads++
	return api.UploadResponse{Message: "Successfully processed " + filename, ChunksAdded: 1, Collection: collection}, nil
}

func runWorkspace(t *testing.T, w *Workspace) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-errc, context.Canceled)
	})
}

func TestWorkspace_SaveThroughChannel(t *testing.T) {
	b := newMemoryBackend()
	w := New(b, WithLogger(nil))
	runWorkspace(t, w)

	n, err := w.Store().AddNode(graph.KindOutput, graph.Position{X: 5}, nil)
	require.NoError(t, err)

	saved, err := w.RequestSave(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, "id-demo", saved.ID)

	stored := b.graphs["demo"]
	_, ok := stored.Node(n.ID)
	assert.True(t, ok, "snapshot taken when the request was handled")

	reply := make(chan SaveReply, 1)
	w.Saves() <- SaveRequest{Name: "demo-2", Reply: reply}
	r := <-reply
	require.NoError(t, r.Err)
	assert.Equal(t, "id-demo-2", r.Saved.ID)
}

func TestWorkspace_SaveBlankName(t *testing.T) {
	w := New(newMemoryBackend())
	runWorkspace(t, w)

	_, err := w.RequestSave(context.Background(), " ")
	var ve *fmerrors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestWorkspace_RequestSaveAfterStop(t *testing.T) {
	w := New(newMemoryBackend())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, w.Run(ctx), context.Canceled)

	_, err := w.RequestSave(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWorkspace_SendAndOpen(t *testing.T) {
	b := newMemoryBackend()
	var transitions []execution.State
	w := New(b, WithStateHook(func(_, to execution.State) { transitions = append(transitions, to) }))
	runWorkspace(t, w)

	res := w.Send(context.Background(), "hello")
	assert.Equal(t, execution.OutcomeSuccess, res.Outcome)
	assert.Equal(t, "echo: hello", res.Reply)
	assert.Equal(t, 3, w.Conversation().Len())
	assert.NotEmpty(t, transitions)

	_, err := w.RequestSave(context.Background(), "saved")
	require.NoError(t, err)

	w.Store().RemoveNode("entry-node")
	assert.Equal(t, execution.OutcomeFailure, w.Send(context.Background(), "again").Outcome)

	require.NoError(t, w.Open(context.Background(), "saved"))
	_, ok := w.Store().Node("entry-node")
	assert.True(t, ok)
	turns := w.Conversation().Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, conversation.Assistant(conversation.Greeting), turns[0])
}

func TestWorkspace_OpenMissingKeepsGraph(t *testing.T) {
	w := New(newMemoryBackend())
	before := w.Store().Snapshot()

	err := w.Open(context.Background(), "ghost")
	var pe *persist.PersistError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "Workflow not found", pe.Reason)
	assert.Equal(t, before, w.Store().Snapshot())
}

func TestWorkspace_EditorAttachUsesBackend(t *testing.T) {
	b := newMemoryBackend()
	w := New(b)
	n, err := w.Store().AddNode(graph.KindKnowledge, graph.Position{}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Editor().Focus(n.ID))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := w.Editor().Attach(ctx, "a.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "Successfully processed a.txt", msg)
	assert.Equal(t, 1, b.uploads)
}

func TestWorkspace_RunStopsWithUnreadReply(t *testing.T) {
	w := New(newMemoryBackend(), WithLogger(nil))
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	w.Saves() <- SaveRequest{Name: "x", Reply: make(chan SaveReply)}
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// gatedBackend holds every Execute call until release is closed.
type gatedBackend struct {
	*memoryBackend
	started chan struct{}
	release chan struct{}
}

func (b *gatedBackend) Execute(ctx context.Context, req api.ExecuteRequest) (api.ExecuteResponse, error) {
	close(b.started)
	<-b.release
	return b.memoryBackend.Execute(ctx, req)
}

func TestWorkspace_OpenWhilePending(t *testing.T) {
	b := &gatedBackend{memoryBackend: newMemoryBackend(), started: make(chan struct{}), release: make(chan struct{})}
	b.graphs["other"] = graph.NewStore(graph.WithEntryNode()).Snapshot()
	w := New(b, WithLogger(nil))

	done := w.Execution().SubmitAsync(context.Background(), "hello")
	<-b.started

	assert.ErrorIs(t, w.Open(context.Background(), "other"), ErrBusy)

	close(b.release)
	res := <-done
	assert.Equal(t, execution.OutcomeSuccess, res.Outcome)
	last, _ := w.Conversation().Last()
	assert.Equal(t, conversation.Assistant("echo: hello"), last)

	require.NoError(t, w.Open(context.Background(), "other"))
	assert.Equal(t, 1, w.Conversation().Len())
}
