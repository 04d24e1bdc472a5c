package blockfs

import (
	"sort"

	"github.com/example/blocklayout/pkg/blockaddr"
)

// extent maps Length file blocks starting at FileBlock onto disk blocks
// starting at DiskBlock. DiskBlock is unused for NONE_DATA.
type extent struct {
	FileBlock int64                 `cbor:"file_block"`
	DiskBlock int64                 `cbor:"disk_block"`
	Length    int64                 `cbor:"length"`
	State     blockaddr.ExtentState `cbor:"state"`
}

func (e extent) end() int64 { return e.FileBlock + e.Length }

// table is a file's extent list, sorted by FileBlock and never
// overlapping. Gaps are unmapped.
type table []extent

// find returns the index of the extent holding block, or -1.
func (t table) find(block int64) int {
	i := sort.Search(len(t), func(i int) bool { return t[i].end() > block })
	if i < len(t) && t[i].FileBlock <= block {
		return i
	}
	return -1
}

// next returns the index of the first extent ending after block.
func (t table) next(block int64) int {
	return sort.Search(len(t), func(i int) bool { return t[i].end() > block })
}

// end returns the block just past the last extent.
func (t table) end() int64 {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].end()
}

// splitAt makes block an extent boundary.
func (t *table) splitAt(block int64) {
	i := t.find(block)
	if i < 0 || (*t)[i].FileBlock == block {
		return
	}
	left := (*t)[i]
	right := left
	left.Length = block - left.FileBlock
	right.FileBlock = block
	right.Length -= left.Length
	if right.State != blockaddr.NoneData {
		right.DiskBlock += left.Length
	}
	(*t)[i] = left
	*t = append(*t, extent{})
	copy((*t)[i+2:], (*t)[i+1:])
	(*t)[i+1] = right
}

// insert places e, replacing whatever covered its range.
func (t *table) insert(e extent) {
	t.splitAt(e.FileBlock)
	t.splitAt(e.end())
	kept := (*t)[:0]
	for _, x := range *t {
		if x.FileBlock >= e.FileBlock && x.end() <= e.end() {
			continue
		}
		kept = append(kept, x)
	}
	i := kept.next(e.FileBlock)
	kept = append(kept, extent{})
	copy(kept[i+1:], kept[i:])
	kept[i] = e
	*t = kept
}

// setState moves blocks in [from, to) that are in state match to state
// and returns the extents that changed.
func (t *table) setState(from, to int64, match, state blockaddr.ExtentState) []extent {
	t.splitAt(from)
	t.splitAt(to)
	var changed []extent
	for i := range *t {
		x := &(*t)[i]
		if x.FileBlock >= from && x.end() <= to && x.State == match {
			x.State = state
			changed = append(changed, *x)
		}
	}
	return changed
}

// gaps returns the unmapped runs inside [from, to).
func (t table) gaps(from, to int64) [][2]int64 {
	var out [][2]int64
	pos := from
	for i := t.next(from); i < len(t) && pos < to; i++ {
		if t[i].FileBlock > pos {
			out = append(out, [2]int64{pos, min(t[i].FileBlock, to)})
		}
		pos = max(pos, t[i].end())
	}
	if pos < to {
		out = append(out, [2]int64{pos, to})
	}
	return out
}

// mappedBlocks counts blocks backed by disk.
func (t table) mappedBlocks() int64 {
	var n int64
	for _, x := range t {
		if x.State != blockaddr.NoneData {
			n += x.Length
		}
	}
	return n
}
