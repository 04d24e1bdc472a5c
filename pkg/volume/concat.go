package volume

import (
	"sort"

	"github.com/example/blocklayout/pkg/blockaddr"
)

// Concat joins its children end to end.
type Concat struct {
	node
	children []Volume
	// ends[k] is the offset just past child k
	ends []int64
}

// Concat builds a concatenation of children in order.
func (b *Builder) Concat(children []Volume) (*Concat, error) {
	c := &Concat{
		node:     node{id: b.ids.NextID()},
		children: append([]Volume(nil), children...),
		ends:     make([]int64, len(children)),
	}
	if len(children) == 0 {
		return nil, configError(c.String(), ErrNoMembers)
	}
	for i, child := range children {
		c.size += child.Size()
		c.ends[i] = c.size
	}
	return c, nil
}

// Kind returns KindConcat.
func (c *Concat) Kind() Kind { return KindConcat }

// Children returns the members in order.
func (c *Concat) Children() []Volume {
	return append([]Volume(nil), c.children...)
}

// locate returns the member holding offset and the offset within it.
func (c *Concat) locate(offset int64) (Volume, int64) {
	k := sort.Search(len(c.ends), func(i int) bool { return c.ends[i] > offset })
	return c.children[k], offset - (c.ends[k] - c.children[k].Size())
}

// Resolve delegates to the member containing offset.
func (c *Concat) Resolve(offset int64) (*Simple, int64, error) {
	if err := checkRange(c, offset); err != nil {
		return nil, 0, err
	}
	child, local := c.locate(offset)
	return child.Resolve(local)
}

// Extent delegates to the member containing offset; the run stops at the
// end of that member.
func (c *Concat) Extent(offset, limit int64) (Mapping, error) {
	if err := checkExtent(c, offset, limit); err != nil {
		return Mapping{}, err
	}
	child, local := c.locate(offset)
	return child.Extent(local, min(limit, child.Size()-local))
}

// Encode returns the concat descriptor.
func (c *Concat) Encode(idx Index) (blockaddr.Volume, error) {
	members, err := indicesOf(idx, c.children)
	if err != nil {
		return blockaddr.Volume{}, err
	}
	return blockaddr.Volume{
		Type:   blockaddr.VolumeConcat,
		Concat: &blockaddr.ConcatInfo{Volumes: members},
	}, nil
}

func (c *Concat) String() string { return name(KindConcat, c.id) }
