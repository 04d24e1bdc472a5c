// Package volume models a pNFS block-layout storage topology: simple
// disks, slices, concatenations and stripes composed into a DAG, with
// offset resolution down to the leaf disk.
package volume

import (
	"fmt"

	"github.com/example/blocklayout/pkg/blockaddr"
)

// Kind identifies the variant of a volume.
type Kind int

const (
	// KindSimple is a leaf backed by one storage device
	KindSimple Kind = iota
	// KindSlice is a contiguous range of one child
	KindSlice
	// KindConcat joins children end to end
	KindConcat
	// KindStripe interleaves children in fixed units
	KindStripe
)

// String returns a string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindSlice:
		return "slice"
	case KindConcat:
		return "concat"
	case KindStripe:
		return "stripe"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// WireType returns the pnfs_block_volume_type4 for the kind.
func (k Kind) WireType() blockaddr.VolumeType {
	switch k {
	case KindSimple:
		return blockaddr.VolumeSimple
	case KindSlice:
		return blockaddr.VolumeSlice
	case KindConcat:
		return blockaddr.VolumeConcat
	default:
		return blockaddr.VolumeStripe
	}
}

// Volume is a node of the topology. Volumes are immutable once built and
// may be shared between several parents.
type Volume interface {
	// ID returns the diagnostic id assigned at construction.
	ID() int64
	Kind() Kind
	// Size returns the addressable length in bytes.
	Size() int64
	Children() []Volume

	// Resolve maps offset to the leaf holding it and the offset within
	// that leaf.
	Resolve(offset int64) (*Simple, int64, error)

	// Extent is Resolve plus the length of the contiguous run starting at
	// offset. The length never exceeds limit, the end of the volume or
	// any child or stripe unit boundary.
	Extent(offset, limit int64) (Mapping, error)

	// Encode returns the wire descriptor of this node with children
	// referenced through idx.
	Encode(idx Index) (blockaddr.Volume, error)

	String() string
}

// Mapping is a contiguous run of a leaf volume.
type Mapping struct {
	Leaf   *Simple
	Offset int64
	Length int64
}

// End returns the leaf offset just past the run.
func (m Mapping) End() int64 {
	return m.Offset + m.Length
}

// Builder constructs volumes, assigning each a diagnostic id.
type Builder struct {
	ids IDAllocator
}

// NewBuilder creates a builder drawing ids from ids. A nil allocator
// gets a fresh Counter.
func NewBuilder(ids IDAllocator) *Builder {
	if ids == nil {
		ids = &Counter{}
	}
	return &Builder{ids: ids}
}

type node struct {
	id   int64
	size int64
}

func (n *node) ID() int64   { return n.id }
func (n *node) Size() int64 { return n.size }

func name(kind Kind, id int64) string {
	return fmt.Sprintf("%s#%d", kind, id)
}

func indexOf(idx Index, v Volume) (uint32, error) {
	i, ok := idx[v]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotIndexed, v)
	}
	return i, nil
}

func indicesOf(idx Index, vols []Volume) ([]uint32, error) {
	out := make([]uint32, len(vols))
	for i, v := range vols {
		n, err := indexOf(idx, v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
