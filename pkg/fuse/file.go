package fuse

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	layoutfs "github.com/example/blocklayout/pkg/fs"
)

const (
	volumeName  = "volume"
	addressName = "address"
)

func fileModeOf(readOnly bool) os.FileMode {
	if readOnly {
		return 0o444
	}
	return 0o644
}

// VolumeFile is the logical address space of the bound volume.
type VolumeFile struct {
	fs *VolumeFS
}

var (
	_ fs.Node         = (*VolumeFile)(nil)
	_ fs.HandleReader = (*VolumeFile)(nil)
	_ fs.HandleWriter = (*VolumeFile)(nil)
	_ fs.NodeFsyncer  = (*VolumeFile)(nil)
)

// Attr sets the attributes of the file
func (f *VolumeFile) Attr(ctx context.Context, attr *fuse.Attr) error {
	attr.Inode = volumeInode
	attr.Mode = fileModeOf(f.fs.readOnly)
	attr.Size = uint64(f.fs.vol.Size())
	attr.Mtime = time.Now()
	return nil
}

func (f *VolumeFile) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	size := f.fs.vol.Size()
	if req.Offset >= size {
		resp.Data = nil
		return nil
	}
	buf := make([]byte, min(int64(req.Size), size-req.Offset))
	n, err := f.fs.vol.ReadAt(buf, req.Offset)
	if err != nil && !errors.Is(err, io.EOF) {
		f.fs.logger.Warn("volume read failed", "offset", req.Offset, "size", req.Size, "error", err)
		return errno(err)
	}
	resp.Data = buf[:n]
	return nil
}

func (f *VolumeFile) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	if f.fs.readOnly {
		return fuse.EPERM
	}
	n, err := f.fs.vol.WriteAt(req.Data, req.Offset)
	resp.Size = n
	if err != nil {
		f.fs.logger.Warn("volume write failed", "offset", req.Offset, "size", len(req.Data), "error", err)
		return errno(err)
	}
	return nil
}

// Fsync flushes every backing device of the volume.
func (f *VolumeFile) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	return errno(f.fs.vol.Sync())
}

// AddressFile holds the encoded pnfs_block_deviceaddr4 of the volume.
type AddressFile struct {
	fs *VolumeFS
}

var (
	_ fs.Node            = (*AddressFile)(nil)
	_ fs.HandleReadAller = (*AddressFile)(nil)
)

// Attr sets the attributes of the file
func (f *AddressFile) Attr(ctx context.Context, attr *fuse.Attr) error {
	attr.Inode = addressInode
	attr.Mode = 0o444
	attr.Size = uint64(len(f.fs.vol.Address()))
	attr.Mtime = time.Now()
	return nil
}

// ReadAll reads all content from the file
func (f *AddressFile) ReadAll(ctx context.Context) ([]byte, error) {
	return f.fs.vol.Address(), nil
}

// File is a file of the attached block file system.
type File struct {
	fs     *VolumeFS
	handle layoutfs.FileHandle
	name   string
}

var (
	_ fs.Node         = (*File)(nil)
	_ fs.HandleReader = (*File)(nil)
	_ fs.HandleWriter = (*File)(nil)
)

// Attr sets the attributes of the file
func (f *File) Attr(ctx context.Context, attr *fuse.Attr) error {
	info, err := f.fs.fsys.GetAttr(ctx, f.handle)
	if err != nil {
		return errno(err)
	}
	attr.Inode = firstFileInode + f.handle.Inode
	attr.Mode = fileModeOf(f.fs.readOnly)
	attr.Size = uint64(info.Size)
	attr.Blocks = info.Blocks * uint64(info.BlockSize) / 512
	attr.BlockSize = info.BlockSize
	attr.Mtime = info.ModifyTime
	return nil
}

func (f *File) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	of, err := f.fs.fsys.Open(ctx, f.handle)
	if err != nil {
		return errno(err)
	}
	if req.Offset >= of.Size() {
		resp.Data = nil
		return nil
	}
	if _, err := of.Seek(req.Offset, io.SeekStart); err != nil {
		return errno(err)
	}
	buf := make([]byte, req.Size)
	n, err := io.ReadFull(of, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		f.fs.logger.Warn("file read failed", "name", f.name, "offset", req.Offset, "error", err)
		return errno(err)
	}
	resp.Data = buf[:n]
	return nil
}

func (f *File) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	if f.fs.readOnly {
		return fuse.EPERM
	}
	of, err := f.fs.fsys.Open(ctx, f.handle)
	if err != nil {
		return errno(err)
	}
	if _, err := of.Seek(req.Offset, io.SeekStart); err != nil {
		return errno(err)
	}
	n, err := of.Write(req.Data)
	resp.Size = n
	if err != nil {
		f.fs.logger.Warn("file write failed", "name", f.name, "offset", req.Offset, "error", err)
		return errno(err)
	}
	return nil
}
