package fuse

import (
	"errors"
	"io"
	"log/slog"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/example/blocklayout/pkg/blockdev"
	"github.com/example/blocklayout/pkg/fs/blockfs"
	"github.com/example/blocklayout/pkg/nfs"
)

// Fixed inode numbers. Files of the block file system are numbered from
// firstFileInode on.
const (
	rootInode      = 1
	volumeInode    = 2
	addressInode   = 3
	firstFileInode = 16
)

// VolumeFS exports a bound volume through FUSE. The root directory holds
// "volume", the logical address space of the volume, and "address", its
// encoded device address. When a block file system is attached its files
// are listed alongside.
type VolumeFS struct {
	vol      *blockdev.Volume
	fsys     *blockfs.FileSystem
	readOnly bool
	logger   *slog.Logger
}

var _ fs.FS = (*VolumeFS)(nil)

// NewVolumeFS creates the export. fsys may be nil.
func NewVolumeFS(vol *blockdev.Volume, fsys *blockfs.FileSystem, readOnly bool, logger *slog.Logger) *VolumeFS {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &VolumeFS{vol: vol, fsys: fsys, readOnly: readOnly, logger: logger}
}

// Root returns the root directory.
func (v *VolumeFS) Root() (fs.Node, error) {
	return &Dir{fs: v}, nil
}

// errno converts an error from the volume or file system into the errno
// the kernel sees.
func errno(err error) error {
	if err == nil {
		return nil
	}
	var en fuse.Errno
	if errors.As(err, &en) {
		return en
	}
	switch nfs.MapErrorToStatus(err) {
	case nfs.StatusErrNoEnt:
		return fuse.ENOENT
	case nfs.StatusErrExist:
		return fuse.Errno(syscall.EEXIST)
	case nfs.StatusErrInval, nfs.StatusErrBadHandle:
		return fuse.Errno(syscall.EINVAL)
	case nfs.StatusErrNoSpc:
		return fuse.Errno(syscall.ENOSPC)
	case nfs.StatusErrNXIO:
		return fuse.Errno(syscall.ENXIO)
	case nfs.StatusErrNotSupp:
		return fuse.Errno(syscall.ENOTSUP)
	default:
		return fuse.EIO
	}
}
