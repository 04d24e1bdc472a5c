package volume

import (
	"fmt"

	"github.com/example/blocklayout/pkg/blockaddr"
)

// Index maps each volume of a dump to its position.
type Index map[Volume]uint32

// NewIndex builds the index of a dumped volume list.
func NewIndex(list []Volume) Index {
	idx := make(Index, len(list))
	for i, v := range list {
		idx[v] = uint32(i)
	}
	return idx
}

// Dump lists every volume reachable from root, children before parents.
// A volume shared by several parents appears once, at its first
// position. Identity decides sharing: two distinct volumes with the same
// contents are separate entries. Root is always last.
func Dump(root Volume) []Volume {
	var out []Volume
	seen := make(map[Volume]bool)
	var visit func(v Volume)
	visit = func(v Volume) {
		if seen[v] {
			return
		}
		for _, child := range v.Children() {
			visit(child)
		}
		seen[v] = true
		out = append(out, v)
	}
	visit(root)
	return out
}

// Leaves returns the simple volumes reachable from root in dump order.
func Leaves(root Volume) []*Simple {
	var leaves []*Simple
	for _, v := range Dump(root) {
		if s, ok := v.(*Simple); ok {
			leaves = append(leaves, s)
		}
	}
	return leaves
}

// Descriptors returns the wire descriptors of the dumped topology.
func Descriptors(root Volume) ([]blockaddr.Volume, error) {
	list := Dump(root)
	idx := NewIndex(list)
	out := make([]blockaddr.Volume, len(list))
	for i, v := range list {
		d, err := v.Encode(idx)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", v, err)
		}
		out[i] = d
	}
	return out, nil
}

// EncodeAddress serializes the topology as a pnfs_block_deviceaddr4.
// The result depends only on the shape of the tree.
func EncodeAddress(root Volume) ([]byte, error) {
	descs, err := Descriptors(root)
	if err != nil {
		return nil, err
	}
	return blockaddr.Marshal(blockaddr.DeviceAddr{Volumes: descs})
}
