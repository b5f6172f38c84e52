package graph_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/randalmurphal/flowmind/pkg/flowmind/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setEqual ignores node and edge order.
var setEqual = cmp.Options{
	cmpopts.SortSlices(func(a, b graph.Node) bool { return a.ID < b.ID }),
	cmpopts.SortSlices(func(a, b graph.Edge) bool {
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.Source+a.Target < b.Source+b.Target
	}),
	cmpopts.EquateEmpty(),
}

func sampleStore(t *testing.T) *graph.Store {
	t.Helper()
	s := graph.NewStore(graph.WithEntryNode())
	k, err := s.AddNode(graph.KindKnowledge, graph.Position{X: 200, Y: 50}, graph.Data{"collection": "docs"})
	require.NoError(t, err)
	l, err := s.AddNode(graph.KindLLM, graph.Position{X: 300, Y: 50}, nil)
	require.NoError(t, err)
	o, err := s.AddNode(graph.KindOutput, graph.Position{X: 400, Y: 50}, nil)
	require.NoError(t, err)

	for _, e := range []graph.Edge{
		{Source: "entry-node", Target: k.ID},
		{Source: k.ID, Target: l.ID},
		{Source: l.ID, SourceHandle: "a", Target: o.ID},
	} {
		_, err := s.Connect(e)
		require.NoError(t, err)
	}
	return s
}

func TestSnapshot_JSONRoundTrip(t *testing.T) {
	snap := sampleStore(t).Snapshot()

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	decoded, err := graph.ParseSnapshot(data, "json")
	require.NoError(t, err)

	reloaded := graph.NewStore()
	require.NoError(t, reloaded.Load(decoded))

	if diff := cmp.Diff(snap, reloaded.Snapshot(), setEqual); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshot_FileRoundTrip(t *testing.T) {
	snap := sampleStore(t).Snapshot()
	dir := t.TempDir()

	for _, name := range []string{"graph.json", "graph.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, graph.WriteFile(path, snap))

			loaded, err := graph.LoadFile(path)
			require.NoError(t, err)

			require.Len(t, loaded.Nodes, len(snap.Nodes))
			for _, want := range snap.Nodes {
				got, ok := loaded.Node(want.ID)
				require.True(t, ok, "node %s missing", want.ID)
				assert.Equal(t, want.Type, got.Type)
				assert.Equal(t, want.Position, got.Position)
				assert.Equal(t, want.Data.String("label"), got.Data.String("label"))
				assert.Equal(t, want.Data.String("collection"), got.Data.String("collection"))
			}
			if diff := cmp.Diff(snap.Edges, loaded.Edges, setEqual); diff != "" {
				t.Errorf("edges mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSnapshot_EmptyMarshalsArrays(t *testing.T) {
	data, err := json.Marshal(graph.Snapshot{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[],"edges":[]}`, string(data))
}

func TestSnapshot_HasKind(t *testing.T) {
	snap := sampleStore(t).Snapshot()
	assert.True(t, snap.HasKind(graph.KindQuery))
	assert.False(t, snap.HasKind(graph.KindSearch))
	assert.False(t, graph.Snapshot{}.HasKind(graph.EntryKind))
}

func TestSnapshot_Clone(t *testing.T) {
	snap := sampleStore(t).Snapshot()
	clone := snap.Clone()

	clone.Nodes[1].Data["collection"] = "other"
	clone.Edges[0].Target = "nowhere"

	assert.Equal(t, "docs", snap.Nodes[1].Data.String("collection"))
	assert.NotEqual(t, "nowhere", snap.Edges[0].Target)
}

func TestParseSnapshot_YAML(t *testing.T) {
	doc := []byte(`
nodes:
  - id: q
    type: queryNode
    position: {x: 1, y: 2}
    data: {label: Ask}
  - id: o
    type: outputNode
    position: {x: 3, y: 4}
    data: {label: Out, files: 2}
edges:
  - id: e1
    source: q
    target: o
`)
	snap, err := graph.ParseSnapshot(doc, "yaml")
	require.NoError(t, err)
	require.Len(t, snap.Nodes, 2)
	assert.Equal(t, graph.KindQuery, snap.Nodes[0].Type)
	assert.Equal(t, graph.Position{X: 1, Y: 2}, snap.Nodes[0].Position)
	assert.Equal(t, 2, snap.Nodes[1].Data.Int("files"))
	assert.Equal(t, "e1", snap.Edges[0].ID)
}

func TestParseSnapshot_Errors(t *testing.T) {
	_, err := graph.ParseSnapshot([]byte("{"), "json")
	assert.Error(t, err)

	_, err = graph.ParseSnapshot([]byte("nodes: ["), "yaml")
	assert.Error(t, err)

	_, err = graph.ParseSnapshot([]byte("{}"), "toml")
	assert.Error(t, err)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := graph.LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "graph.txt")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	_, err = graph.LoadFile(path)
	assert.Error(t, err)

	assert.Error(t, graph.WriteFile(path, graph.Snapshot{}))
}
