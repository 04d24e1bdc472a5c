package blockfs

import (
	"context"
	"fmt"
	"time"

	"github.com/example/blocklayout/pkg/blockaddr"
	"github.com/example/blocklayout/pkg/fs"
)

// File is an open file. Writes update the recorded size, and every
// operation first picks up a size changed elsewhere, such as by
// LayoutCommit or another open File.
type File struct {
	*fs.LayoutFile
	fsys *FileSystem
	rec  *file
	res  *resolver
}

func (f *File) refresh() {
	f.fsys.mu.Lock()
	size := f.rec.size
	f.fsys.mu.Unlock()
	if size > f.LayoutFile.Size() {
		f.LayoutFile.Grow(size)
	}
}

// Size returns the current end of file.
func (f *File) Size() int64 {
	f.refresh()
	return f.LayoutFile.Size()
}

// Seek implements io.Seeker.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.refresh()
	return f.LayoutFile.Seek(offset, whence)
}

// Read reads from the current position.
func (f *File) Read(p []byte) (int, error) {
	f.refresh()
	return f.LayoutFile.Read(p)
}

// Write writes p at the current position.
func (f *File) Write(p []byte) (int, error) {
	f.refresh()
	n, err := f.LayoutFile.Write(p)
	f.fsys.mu.Lock()
	if f.LayoutFile.Size() > f.rec.size {
		f.rec.size = f.LayoutFile.Size()
	}
	if n > 0 {
		f.rec.modified = time.Now()
	}
	f.fsys.mu.Unlock()
	return n, err
}

// Open returns the file behind h positioned at zero.
func (fsys *FileSystem) Open(ctx context.Context, h fs.FileHandle) (*File, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	rec, err := fsys.lookupHandle(h)
	if err != nil {
		return nil, err
	}
	r := &resolver{fsys: fsys, rec: rec}
	return &File{
		LayoutFile: fs.OpenResizableLayoutFile(h, r, rec.size),
		fsys:       fsys,
		rec:        rec,
		res:        r,
	}, nil
}

// Allocate maps count more blocks at the end of the file in the given
// state. NONE_DATA records a hole and takes no volume blocks.
func (fsys *FileSystem) Allocate(ctx context.Context, h fs.FileHandle, count int64, state blockaddr.ExtentState) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	rec, err := fsys.lookupHandle(h)
	if err != nil {
		return err
	}
	e := extent{FileBlock: rec.extents.end(), Length: count, State: state}
	if state != blockaddr.NoneData {
		if e.DiskBlock, err = fsys.alloc(count); err != nil {
			return fs.NewError("allocate", rec.name, err)
		}
	}
	rec.extents.insert(e)
	return nil
}

// Place maps count file blocks starting at fileBlock onto the volume
// blocks starting at diskBlock, replacing any earlier mapping of that
// range. The volume blocks must lie below FirstFreeBlock, which the
// allocator never hands out. NONE_DATA records a hole and ignores
// diskBlock.
func (fsys *FileSystem) Place(ctx context.Context, h fs.FileHandle, fileBlock, diskBlock, count int64, state blockaddr.ExtentState) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	rec, err := fsys.lookupHandle(h)
	if err != nil {
		return err
	}
	if count <= 0 || fileBlock < 0 {
		return fs.NewError("place", rec.name, fmt.Errorf("%w: %d blocks at file block %d", fs.ErrBadSeek, count, fileBlock))
	}
	e := extent{FileBlock: fileBlock, Length: count, State: state}
	if state != blockaddr.NoneData {
		if diskBlock < 0 || diskBlock+count > fsys.opts.FirstFreeBlock {
			return fs.NewError("place", rec.name, fmt.Errorf("%w: blocks %d-%d outside the reserved area", fs.ErrNoSpace, diskBlock, diskBlock+count-1))
		}
		e.DiskBlock = diskBlock
	}
	rec.extents.insert(e)
	return nil
}

// resolver maps one file's positions onto the volume's logical address
// space.
type resolver struct {
	fsys *FileSystem
	rec  *file
}

func (r *resolver) FindExtent(pos int64) (fs.Extent, error) {
	if pos < 0 {
		return fs.Extent{}, fs.NewError("find extent", r.rec.name, fs.ErrBadSeek)
	}
	r.fsys.mu.Lock()
	defer r.fsys.mu.Unlock()

	bs := r.fsys.opts.BlockSize
	block := pos / bs
	i := r.rec.extents.find(block)
	if i < 0 {
		e := fs.Extent{Kind: fs.ExtentEOF, FilePos: pos}
		if j := r.rec.extents.next(block); j < len(r.rec.extents) {
			e.Length = r.rec.extents[j].FileBlock*bs - pos
		}
		return e, nil
	}
	x := r.rec.extents[i]
	delta := pos - x.FileBlock*bs
	e := fs.Extent{
		FilePos: pos,
		Length:  x.Length*bs - delta,
		Device:  r.fsys.vol,
	}
	switch x.State {
	case blockaddr.NoneData:
		e.Kind = fs.ExtentHole
		return e, nil
	case blockaddr.InvalidData:
		e.Kind = fs.ExtentInvalid
	default:
		e.Kind = fs.ExtentValid
	}
	e.StoragePos = x.DiskBlock*bs + delta
	return e, nil
}

// MapExtent backs the unmapped or hole blocks starting at the block of
// pos with zeroed volume blocks. It stops at the first block that is
// already backed.
func (r *resolver) MapExtent(pos, length int64) error {
	r.fsys.mu.Lock()
	defer r.fsys.mu.Unlock()

	bs := r.fsys.opts.BlockSize
	first := pos / bs
	last := (pos + length + bs - 1) / bs
	t := &r.rec.extents
	count := int64(0)
	for b := first; b < last; b++ {
		if i := t.find(b); i >= 0 && (*t)[i].State != blockaddr.NoneData {
			break
		}
		count++
	}
	if count == 0 {
		return nil
	}
	disk, err := r.fsys.alloc(count)
	if err != nil {
		return fs.NewError("map extent", r.rec.name, err)
	}
	if err := r.fsys.zero(disk, count); err != nil {
		return fs.NewError("map extent", r.rec.name, err)
	}
	t.insert(extent{FileBlock: first, DiskBlock: disk, Length: count, State: blockaddr.ReadWriteData})
	r.fsys.logger.Debug("mapped blocks", "file", r.rec.name, "file_block", first, "disk_block", disk, "count", count)
	return nil
}

// CreateHole records [pos, pos+length) as reading zero. Bytes of a
// backed block before the hole keep their data; the rest of that block
// is cleared. INVALID_DATA blocks overlapping the range, such as those
// handed out by LayoutGet, are zeroed and become READWRITE_DATA.
func (r *resolver) CreateHole(pos, length int64) error {
	r.fsys.mu.Lock()
	defer r.fsys.mu.Unlock()

	bs := r.fsys.opts.BlockSize
	end := pos + length
	first := pos / bs
	last := (end + bs - 1) / bs
	if pos%bs != 0 {
		if i := r.rec.extents.find(first); i >= 0 {
			x := r.rec.extents[i]
			if x.State == blockaddr.ReadWriteData || x.State == blockaddr.ReadData {
				stop := min((first+1)*bs, end)
				disk := (x.DiskBlock+first-x.FileBlock)*bs + pos%bs
				if _, err := r.fsys.vol.WriteAt(make([]byte, stop-pos), disk); err != nil {
					return fs.NewError("create hole", r.rec.name, err)
				}
			}
		}
	}
	for _, x := range r.rec.extents.setState(first, last, blockaddr.InvalidData, blockaddr.ReadWriteData) {
		if err := r.fsys.zero(x.DiskBlock, x.Length); err != nil {
			return fs.NewError("create hole", r.rec.name, fmt.Errorf("%w: %w", fs.ErrIO, err))
		}
	}
	for _, g := range r.rec.extents.gaps(first, last) {
		r.rec.extents.insert(extent{FileBlock: g[0], Length: g[1] - g[0], State: blockaddr.NoneData})
	}
	return nil
}

// InitExtent zeroes the INVALID_DATA blocks overlapping the range and
// marks them READWRITE_DATA.
func (r *resolver) InitExtent(pos, length int64) error {
	r.fsys.mu.Lock()
	defer r.fsys.mu.Unlock()

	bs := r.fsys.opts.BlockSize
	first := pos / bs
	last := (pos + length + bs - 1) / bs
	for _, x := range r.rec.extents.setState(first, last, blockaddr.InvalidData, blockaddr.ReadWriteData) {
		if err := r.fsys.zero(x.DiskBlock, x.Length); err != nil {
			return fs.NewError("init extent", r.rec.name, fmt.Errorf("%w: %w", fs.ErrIO, err))
		}
	}
	return nil
}
