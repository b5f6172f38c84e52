package graph

import (
	"fmt"
	"sync"
)

// Store is the canonical, mutable workflow graph.
//
// Nodes keep insertion order. Mutations never edit a node in place: the
// affected node is replaced by a new *Node and every other node keeps its
// pointer, so callers can detect changes with pointer comparison.
//
// Only the focused node's identifier is stored; Focused re-reads the node,
// so the focused view can never drift from the graph.
//
// Store is safe for concurrent use, although the intended model is a
// single writer (the UI) and occasional snapshot readers.
type Store struct {
	mu      sync.RWMutex
	ids     IDGenerator
	nodes   []*Node
	edges   []*Edge
	focused string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIDGenerator sets the node id generator.
// Default: NewCounterIDs("dndnode_").
func WithIDGenerator(gen IDGenerator) StoreOption {
	return func(s *Store) {
		if gen != nil {
			s.ids = gen
		}
	}
}

// WithEntryNode seeds the store with the default "User Query" node.
func WithEntryNode() StoreOption {
	return func(s *Store) {
		s.nodes = append(s.nodes, &Node{
			ID:       "entry-node",
			Type:     KindQuery,
			Position: Position{X: 100, Y: 100},
			Data:     Data{"label": KindQuery.Label()},
		})
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	if s.ids == nil {
		s.ids = NewCounterIDs("")
	}
	return s
}

// AddNode appends a node of the given kind with a fresh identifier.
// initialData overrides the kind's default data field by field.
// Returns ErrInvalidType if kind is not in the closed set.
//
// The returned node is the stored value, so it compares equal by pointer
// with later Nodes results until the node changes. It must not be
// mutated; use UpdateNodeData or MoveNode.
func (s *Store) AddNode(kind Kind, pos Position, initialData Data) (*Node, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("add node %q: %w", kind, ErrInvalidType)
	}

	data := DefaultData(kind)
	for k, v := range initialData {
		data[k] = cloneValue(v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node := &Node{
		ID:       s.nextIDLocked(),
		Type:     kind,
		Position: pos,
		Data:     data,
	}
	s.nodes = append(s.nodes, node)
	return node, nil
}

// nextIDLocked draws ids until one is unused. Loaded graphs may already
// contain ids the generator would produce.
func (s *Store) nextIDLocked() string {
	for {
		id := s.ids.NextID()
		if s.indexLocked(id) < 0 {
			return id
		}
	}
}

// UpdateNodeData sets one data field on one node and returns the node
// list. value is deep-copied, so later changes by the caller do not
// reach the store. Every other field, the id and the type are preserved, and every
// other node is returned as the same pointer.
// An unknown nodeID is a no-op.
func (s *Store) UpdateNodeData(nodeID, field string, value any) []*Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexLocked(nodeID); i >= 0 {
		old := s.nodes[i]
		s.replaceLocked(i, &Node{
			ID:       old.ID,
			Type:     old.Type,
			Position: old.Position,
			Data:     old.Data.with(field, cloneValue(value)),
		})
	}
	return s.nodesLocked()
}

// MoveNode sets a node's canvas position. Unknown ids are ignored.
func (s *Store) MoveNode(nodeID string, pos Position) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(nodeID)
	if i < 0 {
		return false
	}
	moved := *s.nodes[i]
	moved.Position = pos
	s.replaceLocked(i, &moved)
	return true
}

// replaceLocked swaps in a new node value at i, leaving the backing array
// of previously returned slices untouched.
func (s *Store) replaceLocked(i int, n *Node) {
	nodes := make([]*Node, len(s.nodes))
	copy(nodes, s.nodes)
	nodes[i] = n
	s.nodes = nodes
}

// Connect appends an edge. Both endpoints must exist; self-loops and
// duplicates are accepted. An empty edge id is derived from the endpoints.
// The returned edge is a copy.
func (s *Store) Connect(e Edge) (*Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(e.Source) < 0 {
		return nil, &EdgeError{Source: e.Source, Target: e.Target, Err: fmt.Errorf("source: %w", ErrNodeNotFound)}
	}
	if s.indexLocked(e.Target) < 0 {
		return nil, &EdgeError{Source: e.Source, Target: e.Target, Err: fmt.Errorf("target: %w", ErrNodeNotFound)}
	}
	if e.ID == "" {
		e.ID = EdgeID(e.Source, e.SourceHandle, e.Target, e.TargetHandle)
	}

	edge := e
	s.edges = append(s.edges, &edge)
	return &e, nil
}

// RemoveNode deletes a node and every edge touching it. Focus on the
// removed node is cleared. Reports whether the node existed.
func (s *Store) RemoveNode(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(nodeID)
	if i < 0 {
		return false
	}

	nodes := make([]*Node, 0, len(s.nodes)-1)
	nodes = append(nodes, s.nodes[:i]...)
	nodes = append(nodes, s.nodes[i+1:]...)
	s.nodes = nodes

	edges := make([]*Edge, 0, len(s.edges))
	for _, e := range s.edges {
		if e.Source != nodeID && e.Target != nodeID {
			edges = append(edges, e)
		}
	}
	s.edges = edges

	if s.focused == nodeID {
		s.focused = ""
	}
	return true
}

// RemoveEdge deletes every edge with the given id and reports how many
// were removed.
func (s *Store) RemoveEdge(edgeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	edges := make([]*Edge, 0, len(s.edges))
	for _, e := range s.edges {
		if e.ID != edgeID {
			edges = append(edges, e)
		}
	}
	removed := len(s.edges) - len(edges)
	s.edges = edges
	return removed
}

// Node returns the current node with the given id. The node is shared
// and must not be mutated.
func (s *Store) Node(nodeID string) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexLocked(nodeID); i >= 0 {
		return s.nodes[i], true
	}
	return nil, false
}

// Nodes returns the nodes in insertion order. The slice is fresh; the
// pointers are shared and must not be mutated.
func (s *Store) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodesLocked()
}

func (s *Store) nodesLocked() []*Node {
	out := make([]*Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Edges returns the edges in insertion order. The slice is fresh; the
// pointers are shared and must not be mutated.
func (s *Store) Edges() []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Focus selects a node for editing. Returns ErrNodeNotFound for unknown ids.
func (s *Store) Focus(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(nodeID) < 0 {
		return fmt.Errorf("focus %q: %w", nodeID, ErrNodeNotFound)
	}
	s.focused = nodeID
	return nil
}

// ClearFocus deselects the focused node.
func (s *Store) ClearFocus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focused = ""
}

// Focused returns the current version of the focused node.
func (s *Store) Focused() (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.focused == "" {
		return nil, false
	}
	if i := s.indexLocked(s.focused); i >= 0 {
		return s.nodes[i], true
	}
	return nil, false
}

// FocusedID returns the focused identifier, or "".
func (s *Store) FocusedID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.focused
}

// Snapshot returns a deep copy of the graph. Later mutations of the store
// do not affect it.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Nodes: make([]Node, len(s.nodes)),
		Edges: make([]Edge, len(s.edges)),
	}
	for i, n := range s.nodes {
		snap.Nodes[i] = n.Clone()
	}
	for i, e := range s.edges {
		snap.Edges[i] = *e
	}
	return snap
}

// Load replaces the graph with the contents of snap and clears focus.
// Nodes must have valid kinds and unique ids. Edges are accepted as
// stored, including dangling ones: resolving them is the execution
// service's concern.
func (s *Store) Load(snap Snapshot) error {
	nodes := make([]*Node, 0, len(snap.Nodes))
	seen := make(map[string]struct{}, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if !n.Type.Valid() {
			return fmt.Errorf("load node %q (%s): %w", n.ID, n.Type, ErrInvalidType)
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("load node %q: %w", n.ID, ErrDuplicateNode)
		}
		seen[n.ID] = struct{}{}
		clone := n.Clone()
		if clone.Data == nil {
			clone.Data = Data{}
		}
		nodes = append(nodes, &clone)
	}

	edges := make([]*Edge, 0, len(snap.Edges))
	for _, e := range snap.Edges {
		edge := e
		if edge.ID == "" {
			edge.ID = EdgeID(edge.Source, edge.SourceHandle, edge.Target, edge.TargetHandle)
		}
		edges = append(edges, &edge)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = nodes
	s.edges = edges
	s.focused = ""
	return nil
}

func (s *Store) indexLocked(nodeID string) int {
	for i, n := range s.nodes {
		if n.ID == nodeID {
			return i
		}
	}
	return -1
}
