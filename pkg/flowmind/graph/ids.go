package graph

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces node identifiers. Each Store owns its generator,
// so independent stores never share a sequence.
type IDGenerator interface {
	NextID() string
}

// CounterIDs yields prefix0, prefix1, ... from a per-instance counter.
type CounterIDs struct {
	prefix string
	next   atomic.Uint64
}

// NewCounterIDs creates a counter generator. An empty prefix uses "dndnode_".
func NewCounterIDs(prefix string) *CounterIDs {
	if prefix == "" {
		prefix = "dndnode_"
	}
	return &CounterIDs{prefix: prefix}
}

// NextID implements IDGenerator.
func (c *CounterIDs) NextID() string {
	n := c.next.Add(1) - 1
	return c.prefix + strconv.FormatUint(n, 10)
}

// UUIDs yields random UUIDs.
type UUIDs struct{}

// NextID implements IDGenerator.
func (UUIDs) NextID() string {
	return uuid.NewString()
}
