package volume

import (
	"fmt"
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
)

// IDAllocator hands out diagnostic volume ids. Implementations must be
// safe for concurrent use and never return the same id twice.
type IDAllocator interface {
	NextID() int64
}

// Counter allocates sequential ids starting at zero.
type Counter struct {
	next atomic.Int64
}

// NextID returns the next id.
func (c *Counter) NextID() int64 {
	return c.next.Add(1) - 1
}

// SnowflakeAllocator allocates ids that stay unique across processes
// given distinct node numbers.
type SnowflakeAllocator struct {
	node *snowflake.Node
}

// NewSnowflakeAllocator creates an allocator for the given node number.
func NewSnowflakeAllocator(node int64) (*SnowflakeAllocator, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", node, err)
	}
	return &SnowflakeAllocator{node: n}, nil
}

// NextID returns the next id.
func (a *SnowflakeAllocator) NextID() int64 {
	return a.node.Generate().Int64()
}
