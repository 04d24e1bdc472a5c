package blockfs

import (
	"context"
	"fmt"
	"math"

	"github.com/example/blocklayout/pkg/blockaddr"
	"github.com/example/blocklayout/pkg/fs"
)

// IOMode is layoutiomode4.
type IOMode uint32

const (
	// IOModeRead asks for a layout to read through
	IOModeRead IOMode = 1
	// IOModeRW asks for a layout to read and write through
	IOModeRW IOMode = 2
	// IOModeAny accepts either
	IOModeAny IOMode = 3
)

// WholeFile is the length that asks for a layout of the entire file.
const WholeFile uint64 = math.MaxUint64

// grant is the block range handed out by the last LayoutGet.
type grant struct {
	start  int64
	length int64
	mode   IOMode
}

// Layout is the result of LayoutGet.
type Layout struct {
	Offset uint64
	Length uint64
	IOMode IOMode
	Body   blockaddr.Layout
}

// LayoutGet returns the layout of h, first extending its mapping with
// INVALID_DATA blocks so the requested range is covered. A whole-file
// request covers the current size plus GrowBlocks of room.
func (fsys *FileSystem) LayoutGet(ctx context.Context, h fs.FileHandle, offset, length uint64, mode IOMode) (Layout, error) {
	if mode < IOModeRead || mode > IOModeAny {
		return Layout{}, fs.NewError("layoutget", h.String(), fmt.Errorf("%w: %d", fs.ErrBadIOMode, mode))
	}
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	rec, err := fsys.lookupHandle(h)
	if err != nil {
		return Layout{}, err
	}

	bs := fsys.opts.BlockSize
	have := rec.extents.end()
	var need int64
	if length == WholeFile {
		need = fsys.blocksFor(rec.size) + fsys.opts.GrowBlocks
	} else {
		end := offset + length
		if end < offset || end > uint64(math.MaxInt64-bs) {
			return Layout{}, fs.NewError("layoutget", rec.name, fmt.Errorf("%w: range overflows", fs.ErrBadLayout))
		}
		need = fsys.blocksFor(int64(end))
	}

	if mode != IOModeRead && need > have {
		count := need - have
		disk, err := fsys.alloc(count)
		if err != nil {
			return Layout{}, fs.NewError("layoutget", rec.name, fmt.Errorf("%w: %w", fs.ErrLayoutUnavailable, err))
		}
		last := len(rec.extents) - 1
		if last >= 0 && rec.extents[last].State == blockaddr.InvalidData &&
			rec.extents[last].DiskBlock+rec.extents[last].Length == disk {
			rec.extents[last].Length += count
		} else {
			rec.extents.insert(extent{FileBlock: have, DiskBlock: disk, Length: count, State: blockaddr.InvalidData})
		}
		have = need
		fsys.logger.Debug("grew layout", "file", rec.name, "blocks", count, "disk_block", disk)
	}
	if len(rec.extents) == 0 {
		return Layout{}, fs.NewError("layoutget", rec.name, fs.ErrLayoutUnavailable)
	}

	id := fsys.vol.DeviceID()
	body := blockaddr.Layout{Extents: make([]blockaddr.Extent, 0, len(rec.extents))}
	for _, x := range rec.extents {
		e := blockaddr.Extent{
			VolumeID:   id,
			FileOffset: uint64(x.FileBlock * bs),
			Length:     uint64(x.Length * bs),
			State:      x.State,
		}
		if x.State != blockaddr.NoneData {
			e.StorageOffset = uint64(x.DiskBlock * bs)
		}
		body.Extents = append(body.Extents, e)
	}

	granted := IOModeRW
	if mode == IOModeRead {
		granted = IOModeRead
	}
	rec.grant = &grant{start: 0, length: have, mode: granted}
	return Layout{
		Offset: 0,
		Length: uint64(have * bs),
		IOMode: granted,
		Body:   body,
	}, nil
}

// Commit is the result of LayoutCommit.
type Commit struct {
	// SizeChanged is set when the commit grew the file
	SizeChanged bool
	NewSize     int64
}

// LayoutCommit applies a client's pnfs_block_layoutupdate4. Committed
// extents must be READWRITE_DATA, block aligned, inside the committed
// range and consistent with the file's mapping; they turn the
// INVALID_DATA blocks they cover into READWRITE_DATA. lastWrite is the
// offset of the last byte written, or negative if unknown.
func (fsys *FileSystem) LayoutCommit(ctx context.Context, h fs.FileHandle, offset, length uint64, update []byte, lastWrite int64) (Commit, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	rec, err := fsys.lookupHandle(h)
	if err != nil {
		return Commit{}, err
	}
	bad := func(format string, args ...any) error {
		return fs.NewError("layoutcommit", rec.name, fmt.Errorf("%w: "+format, append([]any{fs.ErrBadLayout}, args...)...))
	}

	g := rec.grant
	if g == nil {
		return Commit{}, bad("no layout outstanding")
	}
	if g.mode == IOModeRead {
		return Commit{}, bad("layout is read-only")
	}
	bs := uint64(fsys.opts.BlockSize)
	if offset%bs != 0 || length%bs != 0 {
		return Commit{}, bad("commit range not block aligned")
	}
	start, count := int64(offset/bs), int64(length/bs)
	if start < g.start || start+count > g.start+g.length {
		return Commit{}, bad("commit outside layout range")
	}

	var commits []blockaddr.Extent
	if len(update) > 0 {
		u, err := blockaddr.UnmarshalLayoutUpdate(update)
		if err != nil {
			return Commit{}, bad("decoding update: %v", err)
		}
		commits = u.CommitList
	}

	id := fsys.vol.DeviceID()
	for i, e := range commits {
		switch {
		case e.State != blockaddr.ReadWriteData:
			return Commit{}, bad("extent %d state %s", i, e.State)
		case e.VolumeID != id:
			return Commit{}, bad("extent %d on unknown device %s", i, e.VolumeID)
		case e.FileOffset%bs != 0 || e.Length%bs != 0 || e.StorageOffset%bs != 0:
			return Commit{}, bad("extent %d not aligned", i)
		case int64(e.FileOffset/bs) < start || int64((e.FileOffset+e.Length)/bs) > start+count:
			return Commit{}, bad("extent %d outside committed range", i)
		}
		eStart, eLen, eDisk := int64(e.FileOffset/bs), int64(e.Length/bs), int64(e.StorageOffset/bs)
		j := rec.extents.find(eStart)
		if j < 0 {
			return Commit{}, bad("extent %d not mapped", i)
		}
		x := rec.extents[j]
		if x.State == blockaddr.NoneData || eStart-x.FileBlock != eDisk-x.DiskBlock {
			return Commit{}, bad("extent %d maps file block %d to %d, file has %d", i, eStart, eDisk, x.DiskBlock+eStart-x.FileBlock)
		}
		if eStart+eLen > x.end() {
			return Commit{}, bad("extent %d crosses a mapping boundary", i)
		}
	}

	// Only applied once every extent checked out.
	for _, e := range commits {
		eStart := int64(e.FileOffset / bs)
		rec.extents.setState(eStart, eStart+int64(e.Length/bs), blockaddr.InvalidData, blockaddr.ReadWriteData)
	}

	if lastWrite >= 0 && lastWrite+1 > rec.size {
		rec.size = lastWrite + 1
		return Commit{SizeChanged: true, NewSize: rec.size}, nil
	}
	return Commit{NewSize: rec.size}, nil
}
