package fuse

import (
	"context"
	"os"
	"slices"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
)

// Dir is the root directory of the export.
type Dir struct {
	fs *VolumeFS
}

var (
	_ fs.Node               = (*Dir)(nil)
	_ fs.NodeStringLookuper = (*Dir)(nil)
	_ fs.HandleReadDirAller = (*Dir)(nil)
)

// Attr sets the attributes of the directory
func (d *Dir) Attr(ctx context.Context, attr *fuse.Attr) error {
	attr.Inode = rootInode
	attr.Mode = os.ModeDir | 0o755
	attr.Mtime = time.Now()
	return nil
}

// Lookup looks up a specific entry in the directory
func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	switch name {
	case volumeName:
		return &VolumeFile{fs: d.fs}, nil
	case addressName:
		return &AddressFile{fs: d.fs}, nil
	}
	if d.fs.fsys == nil {
		return nil, fuse.ENOENT
	}
	h, err := d.fs.fsys.Lookup(ctx, name)
	if err != nil {
		return nil, errno(err)
	}
	return &File{fs: d.fs, handle: h, name: name}, nil
}

// ReadDirAll returns all entries in the directory
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries := []fuse.Dirent{
		{Inode: volumeInode, Name: volumeName, Type: fuse.DT_File},
		{Inode: addressInode, Name: addressName, Type: fuse.DT_File},
	}
	if d.fs.fsys == nil {
		return entries, nil
	}
	names := d.fs.fsys.Names()
	slices.Sort(names)
	for _, name := range names {
		h, err := d.fs.fsys.Lookup(ctx, name)
		if err != nil {
			// Removed since Names was taken.
			continue
		}
		entries = append(entries, fuse.Dirent{Inode: firstFileInode + h.Inode, Name: name, Type: fuse.DT_File})
	}
	return entries, nil
}
