package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Snapshot is an independent copy of the graph taken at one instant.
// It is the document that is saved and the graph that is executed.
type Snapshot struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Nodes: make([]Node, len(s.Nodes)),
		Edges: make([]Edge, len(s.Edges)),
	}
	for i, n := range s.Nodes {
		out.Nodes[i] = n.Clone()
	}
	copy(out.Edges, s.Edges)
	return out
}

// HasKind reports whether any node is of kind k.
func (s Snapshot) HasKind(k Kind) bool {
	for _, n := range s.Nodes {
		if n.Type == k {
			return true
		}
	}
	return false
}

// Node returns the node with the given id.
func (s Snapshot) Node(id string) (Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// MarshalJSON encodes empty collections as [] rather than null.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type wire Snapshot
	w := wire(s)
	if w.Nodes == nil {
		w.Nodes = []Node{}
	}
	if w.Edges == nil {
		w.Edges = []Edge{}
	}
	return json.Marshal(w)
}

// ParseSnapshot decodes a graph document. format is "json" or "yaml".
func ParseSnapshot(data []byte, format string) (Snapshot, error) {
	var snap Snapshot
	switch strings.ToLower(format) {
	case "json":
		if err := json.Unmarshal(data, &snap); err != nil {
			return Snapshot{}, fmt.Errorf("parse json graph: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &snap); err != nil {
			return Snapshot{}, fmt.Errorf("parse yaml graph: %w", err)
		}
	default:
		return Snapshot{}, fmt.Errorf("unsupported graph format: %s", format)
	}
	return snap, nil
}

// LoadFile reads a graph document, choosing the format by extension.
// Supported extensions: .yaml, .yml, .json
func LoadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read graph file: %w", err)
	}
	return ParseSnapshot(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

// WriteFile writes snap as indented JSON or YAML, by extension.
func WriteFile(path string, snap Snapshot) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(snap)
	case ".json":
		data, err = json.MarshalIndent(snap, "", "  ")
	default:
		return fmt.Errorf("unsupported graph file extension: %s", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
