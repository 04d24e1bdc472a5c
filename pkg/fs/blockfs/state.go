package blockfs

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/example/blocklayout/pkg/codec"
	"github.com/example/blocklayout/pkg/fs"
)

type fileState struct {
	Inode      uint64   `cbor:"inode"`
	Generation uint32   `cbor:"generation"`
	Name       string   `cbor:"name"`
	Size       int64    `cbor:"size"`
	Extents    []extent `cbor:"extents"`
	Modified   int64    `cbor:"modified"`
}

type snapshot struct {
	BlockSize    int64       `cbor:"block_size"`
	FileSystemID uint32      `cbor:"fsid"`
	Allocated    int64       `cbor:"allocated"`
	NextInode    uint64      `cbor:"next_inode"`
	Files        []fileState `cbor:"files"`
}

// SaveState writes the namespace and extent tables to w. Block contents
// stay on the volume.
func (fsys *FileSystem) SaveState(w io.Writer) error {
	fsys.mu.Lock()
	st := snapshot{
		BlockSize:    fsys.opts.BlockSize,
		FileSystemID: fsys.opts.FileSystemID,
		Allocated:    fsys.allocated,
		NextInode:    fsys.nextInode,
	}
	for _, f := range fsys.files {
		st.Files = append(st.Files, fileState{
			Inode:      f.handle.Inode,
			Generation: f.handle.Generation,
			Name:       f.name,
			Size:       f.size,
			Extents:    append([]extent(nil), f.extents...),
			Modified:   f.modified.UnixNano(),
		})
	}
	fsys.mu.Unlock()

	sort.Slice(st.Files, func(i, j int) bool { return st.Files[i].Inode < st.Files[j].Inode })
	if err := codec.NewEncoder(w).Encode(st); err != nil {
		return fs.NewError("save state", "", err)
	}
	return nil
}

// LoadState replaces the namespace with one written by SaveState.
// Outstanding layouts are dropped and files opened earlier must be
// reopened.
func (fsys *FileSystem) LoadState(r io.Reader) error {
	var st snapshot
	if err := codec.NewDecoder(r).Decode(&st); err != nil {
		return fs.NewError("load state", "", err)
	}
	if st.BlockSize != fsys.opts.BlockSize {
		return fs.NewError("load state", "", fmt.Errorf("block size %d, filesystem uses %d", st.BlockSize, fsys.opts.BlockSize))
	}
	if st.Allocated > fsys.totalBlocks() || st.Allocated < fsys.opts.FirstFreeBlock {
		return fs.NewError("load state", "", fmt.Errorf("%w: %d blocks allocated", fs.ErrNoSpace, st.Allocated))
	}

	files := make(map[uint64]*file, len(st.Files))
	names := make(map[string]uint64, len(st.Files))
	for _, fst := range st.Files {
		if err := checkName(fst.Name); err != nil {
			return fs.NewError("load state", fst.Name, err)
		}
		if _, dup := names[fst.Name]; dup {
			return fs.NewError("load state", fst.Name, fs.ErrExist)
		}
		files[fst.Inode] = &file{
			handle: fs.FileHandle{
				FileSystemID: fsys.opts.FileSystemID,
				Inode:        fst.Inode,
				Generation:   fst.Generation,
			},
			name:     fst.Name,
			size:     fst.Size,
			extents:  table(fst.Extents),
			modified: time.Unix(0, fst.Modified),
		}
		names[fst.Name] = fst.Inode
	}

	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.files = files
	fsys.names = names
	fsys.allocated = st.Allocated
	fsys.nextInode = st.NextInode
	return nil
}
