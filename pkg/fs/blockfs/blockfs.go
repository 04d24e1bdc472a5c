// Package blockfs is a flat test filesystem that hands out pNFS block
// layouts. File data lives on a bound block volume; each file keeps an
// extent table mapping its blocks to volume blocks.
package blockfs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/example/blocklayout/pkg/blockdev"
	"github.com/example/blocklayout/pkg/fs"
)

// Options configures a FileSystem.
type Options struct {
	// BlockSize is the layout block size in bytes
	BlockSize int64
	// FirstFreeBlock is the first volume block handed to files; earlier
	// blocks are left for fixtures
	FirstFreeBlock int64
	// FileSystemID is placed in every handle
	FileSystemID uint32
	// GrowBlocks bounds how far a whole-file layout request extends the
	// mapping past the current size
	GrowBlocks int64
}

// DefaultOptions returns the options of the reference fixture.
func DefaultOptions() Options {
	return Options{
		BlockSize:      4096,
		FirstFreeBlock: 19,
		FileSystemID:   3,
		GrowBlocks:     4,
	}
}

type file struct {
	handle   fs.FileHandle
	name     string
	size     int64
	extents  table
	modified time.Time
	grant    *grant
}

// FileSystem is a flat namespace of files laid out on one volume.
type FileSystem struct {
	vol    *blockdev.Volume
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	files     map[uint64]*file
	names     map[string]uint64
	nextInode uint64
	allocated int64
}

// New creates an empty filesystem on vol.
func New(vol *blockdev.Volume, opts Options, logger *slog.Logger) (*FileSystem, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.BlockSize <= 0 {
		return nil, fs.NewError("init", "", fmt.Errorf("block size must be positive, got %d", opts.BlockSize))
	}
	if opts.FirstFreeBlock < 0 || opts.FirstFreeBlock*opts.BlockSize > vol.Size() {
		return nil, fs.NewError("init", "", fmt.Errorf("first free block %d outside volume", opts.FirstFreeBlock))
	}
	if opts.GrowBlocks <= 0 {
		opts.GrowBlocks = 4
	}
	fsys := &FileSystem{
		vol:       vol,
		opts:      opts,
		logger:    logger,
		files:     make(map[uint64]*file),
		names:     make(map[string]uint64),
		nextInode: 1,
		allocated: opts.FirstFreeBlock,
	}
	logger.Info("block layout filesystem ready",
		"block_size", humanize.IBytes(uint64(opts.BlockSize)),
		"blocks", fsys.totalBlocks(),
		"first_free", opts.FirstFreeBlock)
	return fsys, nil
}

// Volume returns the volume the filesystem lives on.
func (fsys *FileSystem) Volume() *blockdev.Volume { return fsys.vol }

// BlockSize returns the layout block size.
func (fsys *FileSystem) BlockSize() int64 { return fsys.opts.BlockSize }

func (fsys *FileSystem) totalBlocks() int64 {
	return fsys.vol.Size() / fsys.opts.BlockSize
}

func (fsys *FileSystem) blocksFor(bytes int64) int64 {
	return (bytes + fsys.opts.BlockSize - 1) / fsys.opts.BlockSize
}

// alloc reserves count contiguous volume blocks. Blocks are never
// returned to the pool. Callers hold mu.
func (fsys *FileSystem) alloc(count int64) (int64, error) {
	if count <= 0 || fsys.allocated+count > fsys.totalBlocks() {
		return 0, fmt.Errorf("%w: %d blocks wanted, %d free", fs.ErrNoSpace, count, fsys.totalBlocks()-fsys.allocated)
	}
	start := fsys.allocated
	fsys.allocated += count
	return start, nil
}

// zero clears count volume blocks starting at block.
func (fsys *FileSystem) zero(block, count int64) error {
	buf := make([]byte, fsys.opts.BlockSize)
	for i := int64(0); i < count; i++ {
		if _, err := fsys.vol.WriteAt(buf, (block+i)*fsys.opts.BlockSize); err != nil {
			return err
		}
	}
	return nil
}

func (fsys *FileSystem) lookupHandle(h fs.FileHandle) (*file, error) {
	f, ok := fsys.files[h.Inode]
	if !ok || f.handle != h {
		return nil, fs.NewError("lookup", h.String(), fs.ErrInvalidHandle)
	}
	return f, nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return fs.ErrInvalidName
	}
	return nil
}

// Create adds an empty-mapped file of the given size.
func (fsys *FileSystem) Create(ctx context.Context, name string, size int64) (fs.FileHandle, error) {
	if err := checkName(name); err != nil {
		return fs.FileHandle{}, fs.NewError("create", name, err)
	}
	if size < 0 {
		return fs.FileHandle{}, fs.NewError("create", name, fmt.Errorf("negative size %d", size))
	}
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	if _, ok := fsys.names[name]; ok {
		return fs.FileHandle{}, fs.NewError("create", name, fs.ErrExist)
	}
	h := fs.FileHandle{FileSystemID: fsys.opts.FileSystemID, Inode: fsys.nextInode, Generation: 1}
	fsys.nextInode++
	fsys.files[h.Inode] = &file{handle: h, name: name, size: size, modified: time.Now()}
	fsys.names[name] = h.Inode
	fsys.logger.Debug("created file", "name", name, "inode", h.Inode, "size", size)
	return h, nil
}

// Lookup returns the handle of name.
func (fsys *FileSystem) Lookup(ctx context.Context, name string) (fs.FileHandle, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	ino, ok := fsys.names[name]
	if !ok {
		return fs.FileHandle{}, fs.NewError("lookup", name, fs.ErrNotExist)
	}
	return fsys.files[ino].handle, nil
}

// Remove deletes name. Its blocks are not reused.
func (fsys *FileSystem) Remove(ctx context.Context, name string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	ino, ok := fsys.names[name]
	if !ok {
		return fs.NewError("remove", name, fs.ErrNotExist)
	}
	delete(fsys.names, name)
	delete(fsys.files, ino)
	return nil
}

// Names returns every file name.
func (fsys *FileSystem) Names() []string {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	out := make([]string, 0, len(fsys.names))
	for name := range fsys.names {
		out = append(out, name)
	}
	return out
}

// GetAttr returns the attributes of h.
func (fsys *FileSystem) GetAttr(ctx context.Context, h fs.FileHandle) (fs.FileInfo, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	f, err := fsys.lookupHandle(h)
	if err != nil {
		return fs.FileInfo{}, err
	}
	return fsys.info(f), nil
}

func (fsys *FileSystem) info(f *file) fs.FileInfo {
	return fs.FileInfo{
		Handle:     f.handle,
		Name:       f.name,
		Size:       f.size,
		BlockSize:  uint32(fsys.opts.BlockSize),
		Blocks:     uint64(f.extents.mappedBlocks()),
		ModifyTime: f.modified,
	}
}

// StatFS reports volume usage.
func (fsys *FileSystem) StatFS(ctx context.Context) fs.FSStat {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return fs.FSStat{
		TotalBytes: uint64(fsys.vol.Size()),
		FreeBytes:  uint64((fsys.totalBlocks() - fsys.allocated) * fsys.opts.BlockSize),
		TotalFiles: uint64(len(fsys.files)),
	}
}
