package blockfs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/example/blocklayout/pkg/fs"
)

// MarkBlocks fills each volume block with a letter and labels its start
// and end so a client reading raw blocks can tell which one it got.
func (fsys *FileSystem) MarkBlocks(blocks []int64) error {
	bs := fsys.opts.BlockSize
	for _, b := range blocks {
		if b < 0 || b >= fsys.totalBlocks() {
			return fs.NewError("mark", fmt.Sprintf("block %d", b), fs.ErrNoSpace)
		}
		buf := bytes.Repeat([]byte{byte('A' + b%26)}, int(bs))
		copy(buf, fmt.Sprintf("Start of block %d  ", b))
		end := fmt.Sprintf("  block %d ends here -->*", b)
		if len(end) <= len(buf) {
			copy(buf[len(buf)-len(end):], end)
		}
		if _, err := fsys.vol.WriteAt(buf, b*bs); err != nil {
			return fs.NewError("mark", fmt.Sprintf("block %d", b), err)
		}
	}
	return nil
}

// MarkRange marks blocks [from, to).
func (fsys *FileSystem) MarkRange(from, to int64) error {
	blocks := make([]int64, 0, max(0, to-from))
	for b := from; b < to; b++ {
		blocks = append(blocks, b)
	}
	return fsys.MarkBlocks(blocks)
}

const fileEndText = "  file ends here -->*"

// MarkFileEnds writes a trailer ending at the last byte of every file,
// so a client can tell where each file stops. Files shorter than the
// trailer, or whose tail is not backed by initialized blocks, are
// skipped.
func (fsys *FileSystem) MarkFileEnds(ctx context.Context) error {
	for _, name := range fsys.Names() {
		h, err := fsys.Lookup(ctx, name)
		if err != nil {
			return err
		}
		f, err := fsys.Open(ctx, h)
		if err != nil {
			return err
		}
		at := f.Size() - int64(len(fileEndText))
		if at < 0 {
			continue
		}
		e, err := f.res.FindExtent(at)
		if err != nil || e.Kind != fs.ExtentValid || e.Length < int64(len(fileEndText)) {
			continue
		}
		if _, err := f.Seek(at, io.SeekStart); err != nil {
			return err
		}
		if _, err := f.LayoutFile.Write([]byte(fileEndText)); err != nil {
			return fs.NewError("mark", name, err)
		}
	}
	return nil
}
