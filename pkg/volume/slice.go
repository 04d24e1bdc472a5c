package volume

import (
	"fmt"

	"github.com/example/blocklayout/pkg/blockaddr"
)

// Slice exposes length bytes of its child starting at start.
type Slice struct {
	node
	child Volume
	start int64
}

// Slice builds a slice of child. The range must lie within the child.
func (b *Builder) Slice(child Volume, start, length int64) (*Slice, error) {
	s := &Slice{node: node{id: b.ids.NextID(), size: length}, child: child, start: start}
	if start < 0 || length < 0 || start > child.Size()-length {
		return nil, configError(s.String(),
			fmt.Errorf("%w: [%d, +%d) of %s with size %d", ErrSliceBounds, start, length, child, child.Size()))
	}
	return s, nil
}

// Kind returns KindSlice.
func (s *Slice) Kind() Kind { return KindSlice }

// Children returns the sliced volume.
func (s *Slice) Children() []Volume { return []Volume{s.child} }

// Start returns the offset of the slice within its child.
func (s *Slice) Start() int64 { return s.start }

// Resolve shifts offset by start and delegates to the child.
func (s *Slice) Resolve(offset int64) (*Simple, int64, error) {
	if err := checkRange(s, offset); err != nil {
		return nil, 0, err
	}
	return s.child.Resolve(s.start + offset)
}

// Extent delegates to the child, bounded by the end of the slice.
func (s *Slice) Extent(offset, limit int64) (Mapping, error) {
	if err := checkExtent(s, offset, limit); err != nil {
		return Mapping{}, err
	}
	return s.child.Extent(s.start+offset, min(limit, s.size-offset))
}

// Encode returns the slice descriptor.
func (s *Slice) Encode(idx Index) (blockaddr.Volume, error) {
	child, err := indexOf(idx, s.child)
	if err != nil {
		return blockaddr.Volume{}, err
	}
	return blockaddr.Volume{
		Type: blockaddr.VolumeSlice,
		Slice: &blockaddr.SliceInfo{
			Start:  uint64(s.start),
			Length: uint64(s.size),
			Volume: child,
		},
	}, nil
}

func (s *Slice) String() string { return name(KindSlice, s.id) }
