//go:build darwin || linux

package blockfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/blocklayout/pkg/blockaddr"
	"github.com/example/blocklayout/pkg/blockdev"
	"github.com/example/blocklayout/pkg/fs"
	"github.com/example/blocklayout/pkg/volume"
)

const testBlock = 512

func testOptions() Options {
	return Options{BlockSize: testBlock, FirstFreeBlock: 2, FileSystemID: 7, GrowBlocks: 4}
}

// newTestVolume binds a 64-block single-disk volume and opens it.
func newTestVolume(t *testing.T, blocks int64) *blockdev.Volume {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk")
	if err := os.WriteFile(path, make([]byte, blocks*testBlock), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	disk, err := volume.NewBuilder(nil).Simple(volume.SimpleConfig{BackingPath: path})
	if err != nil {
		t.Fatalf("Simple failed: %v", err)
	}
	vol, err := blockdev.New(disk, nil)
	if err != nil {
		t.Fatalf("blockdev.New failed: %v", err)
	}
	if err := vol.Open(blockdev.ReadWrite); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { vol.Close() })
	return vol
}

func newTestFS(t *testing.T) *FileSystem {
	t.Helper()
	fsys, err := New(newTestVolume(t, 64), testOptions(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return fsys
}

func TestNamespace(t *testing.T) {
	ctx := context.Background()
	fsys := newTestFS(t)

	h, err := fsys.Create(ctx, "data", 100)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if h.FileSystemID != 7 {
		t.Errorf("handle fsid = %d, want 7", h.FileSystemID)
	}
	if _, err := fsys.Create(ctx, "data", 0); !errors.Is(err, fs.ErrExist) {
		t.Errorf("duplicate Create error = %v, want ErrExist", err)
	}
	for _, name := range []string{"", "..", "a/b"} {
		if _, err := fsys.Create(ctx, name, 0); !errors.Is(err, fs.ErrInvalidName) {
			t.Errorf("Create(%q) error = %v, want ErrInvalidName", name, err)
		}
	}

	got, err := fsys.Lookup(ctx, "data")
	if err != nil || got != h {
		t.Errorf("Lookup = %v, %v, want %v", got, err, h)
	}
	info, err := fsys.GetAttr(ctx, h)
	if err != nil {
		t.Fatalf("GetAttr failed: %v", err)
	}
	if info.Size != 100 || info.Name != "data" || info.Blocks != 0 {
		t.Errorf("GetAttr = %+v", info)
	}

	if err := fsys.Remove(ctx, "data"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := fsys.Lookup(ctx, "data"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Lookup after Remove error = %v, want ErrNotExist", err)
	}
	if _, err := fsys.GetAttr(ctx, h); !errors.Is(err, fs.ErrInvalidHandle) {
		t.Errorf("GetAttr of removed file error = %v, want ErrInvalidHandle", err)
	}
}

func TestFileSparseWrite(t *testing.T) {
	ctx := context.Background()
	fsys := newTestFS(t)
	h, err := fsys.Create(ctx, "sparse", 0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	f, err := fsys.Open(ctx, h)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := f.Seek(1000, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if _, err := f.Write([]byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	info, err := fsys.GetAttr(ctx, h)
	if err != nil {
		t.Fatalf("GetAttr failed: %v", err)
	}
	if info.Size != 1005 || info.Blocks != 1 {
		t.Errorf("size %d blocks %d, want 1005 1", info.Size, info.Blocks)
	}

	g, err := fsys.Open(ctx, h)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, err := io.ReadAll(g)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	want := append(make([]byte, 1000), "hello"...)
	if !bytes.Equal(data, want) {
		t.Errorf("read back %d bytes, mismatch", len(data))
	}
}

func TestWritePastEndOverLaidOutBlocks(t *testing.T) {
	ctx := context.Background()
	fsys := newTestFS(t)
	h, _ := fsys.Create(ctx, "laidout", 0)

	layout, err := fsys.LayoutGet(ctx, h, 0, WholeFile, IOModeRW)
	if err != nil {
		t.Fatalf("LayoutGet failed: %v", err)
	}
	// Stale bytes left on disk must not show through.
	e := layout.Body.Extents[0]
	if _, err := fsys.Volume().WriteAt(bytes.Repeat([]byte{0xff}, int(e.Length)), int64(e.StorageOffset)); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}

	f, err := fsys.Open(ctx, h)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := f.Seek(1500, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if _, err := f.Write([]byte("hi")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	got := make([]byte, 1502)
	if _, err := io.ReadFull(f, got); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	want := append(make([]byte, 1500), "hi"...)
	if !bytes.Equal(got, want) {
		t.Errorf("read back %q..., want 1500 zeros then %q", got[:8], "hi")
	}
}

func TestOpenFileSeesCommittedSize(t *testing.T) {
	ctx := context.Background()
	fsys := newTestFS(t)
	h, _ := fsys.Create(ctx, "shared", 0)

	f, err := fsys.Open(ctx, h)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := f.Write([]byte("ab")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// A client writes through the layout and commits a larger size.
	layout, err := fsys.LayoutGet(ctx, h, 0, WholeFile, IOModeRW)
	if err != nil {
		t.Fatalf("LayoutGet failed: %v", err)
	}
	first := layout.Body.Extents[0]
	if first.State != blockaddr.ReadWriteData {
		t.Fatalf("first extent state = %s", first.State)
	}
	if _, err := fsys.Volume().WriteAt([]byte("cdef"), int64(first.StorageOffset)+2); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	if _, err := fsys.LayoutCommit(ctx, h, 0, testBlock, nil, 5); err != nil {
		t.Fatalf("LayoutCommit failed: %v", err)
	}

	if f.Size() != 6 {
		t.Errorf("open file size = %d, want 6", f.Size())
	}
	if _, err := f.Seek(10, io.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if _, err := f.Write([]byte("x")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	g, err := fsys.Open(ctx, h)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, err := io.ReadAll(g)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if want := []byte("abcdef\x00\x00\x00\x00x"); !bytes.Equal(data, want) {
		t.Errorf("read back %q, want %q", data, want)
	}
}

func TestLayoutGetGrowsFile(t *testing.T) {
	ctx := context.Background()
	fsys := newTestFS(t)
	h, _ := fsys.Create(ctx, "grow", 0)

	layout, err := fsys.LayoutGet(ctx, h, 0, WholeFile, IOModeRW)
	if err != nil {
		t.Fatalf("LayoutGet failed: %v", err)
	}
	if layout.Length != 4*testBlock || layout.IOMode != IOModeRW {
		t.Errorf("layout length %d mode %d", layout.Length, layout.IOMode)
	}
	want := []blockaddr.Extent{{
		VolumeID:      fsys.Volume().DeviceID(),
		FileOffset:    0,
		Length:        4 * testBlock,
		StorageOffset: 2 * testBlock,
		State:         blockaddr.InvalidData,
	}}
	if len(layout.Body.Extents) != 1 || layout.Body.Extents[0] != want[0] {
		t.Errorf("extents = %+v, want %+v", layout.Body.Extents, want)
	}

	again, err := fsys.LayoutGet(ctx, h, 0, WholeFile, IOModeRW)
	if err != nil {
		t.Fatalf("second LayoutGet failed: %v", err)
	}
	if again.Length != layout.Length {
		t.Errorf("repeated whole-file LayoutGet grew the file to %d", again.Length)
	}

	// Writing into the INVALID blocks initializes them.
	f, err := fsys.Open(ctx, h)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := f.Write([]byte("init")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	layout, err = fsys.LayoutGet(ctx, h, 0, 2*testBlock, IOModeRead)
	if err != nil {
		t.Fatalf("LayoutGet failed: %v", err)
	}
	states := []blockaddr.ExtentState{}
	for _, e := range layout.Body.Extents {
		states = append(states, e.State)
	}
	if len(states) != 2 || states[0] != blockaddr.ReadWriteData || states[1] != blockaddr.InvalidData {
		t.Errorf("states after write = %v", states)
	}
}

func TestLayoutGetErrors(t *testing.T) {
	ctx := context.Background()
	fsys, err := New(newTestVolume(t, 8), testOptions(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h, _ := fsys.Create(ctx, "f", 0)

	if _, err := fsys.LayoutGet(ctx, h, 0, WholeFile, 9); !errors.Is(err, fs.ErrBadIOMode) {
		t.Errorf("bad iomode error = %v, want ErrBadIOMode", err)
	}
	if _, err := fsys.LayoutGet(ctx, h, 0, WholeFile, IOModeRead); !errors.Is(err, fs.ErrLayoutUnavailable) {
		t.Errorf("read layout of unmapped file error = %v, want ErrLayoutUnavailable", err)
	}
	if _, err := fsys.LayoutGet(ctx, h, 0, 100*testBlock, IOModeRW); !errors.Is(err, fs.ErrLayoutUnavailable) {
		t.Errorf("oversized LayoutGet error = %v, want ErrLayoutUnavailable", err)
	}
	if _, err := fsys.LayoutGet(ctx, h, WholeFile-10, 20, IOModeRW); !errors.Is(err, fs.ErrBadLayout) {
		t.Errorf("overflowing LayoutGet error = %v, want ErrBadLayout", err)
	}
}

func commitUpdate(extents ...blockaddr.Extent) []byte {
	return blockaddr.MarshalLayoutUpdate(blockaddr.LayoutUpdate{CommitList: extents})
}

func TestLayoutCommit(t *testing.T) {
	ctx := context.Background()
	fsys := newTestFS(t)
	h, _ := fsys.Create(ctx, "commit", 0)

	if _, err := fsys.LayoutCommit(ctx, h, 0, testBlock, nil, -1); !errors.Is(err, fs.ErrBadLayout) {
		t.Errorf("commit without layout error = %v, want ErrBadLayout", err)
	}

	layout, err := fsys.LayoutGet(ctx, h, 0, 4*testBlock, IOModeRW)
	if err != nil {
		t.Fatalf("LayoutGet failed: %v", err)
	}
	base := layout.Body.Extents[0].StorageOffset
	id := fsys.Volume().DeviceID()
	good := blockaddr.Extent{
		VolumeID:      id,
		FileOffset:    testBlock,
		Length:        2 * testBlock,
		StorageOffset: base + testBlock,
		State:         blockaddr.ReadWriteData,
	}

	bad := []struct {
		name   string
		offset uint64
		length uint64
		update []byte
	}{
		{"unaligned range", 1, testBlock, nil},
		{"outside layout", 0, 8 * testBlock, nil},
		{"garbage update", 0, 4 * testBlock, []byte{0, 0, 0, 9}},
		{"wrong state", 0, 4 * testBlock, commitUpdate(func() blockaddr.Extent { e := good; e.State = blockaddr.ReadData; return e }())},
		{"unaligned extent", 0, 4 * testBlock, commitUpdate(func() blockaddr.Extent { e := good; e.Length = 100; return e }())},
		{"inconsistent mapping", 0, 4 * testBlock, commitUpdate(func() blockaddr.Extent { e := good; e.StorageOffset = base; return e }())},
		{"wrong device", 0, 4 * testBlock, commitUpdate(func() blockaddr.Extent { e := good; e.VolumeID[0] ^= 0xff; return e }())},
		{"outside commit", 0, testBlock, commitUpdate(good)},
	}
	for _, tc := range bad {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fsys.LayoutCommit(ctx, h, tc.offset, tc.length, tc.update, -1)
			if !errors.Is(err, fs.ErrBadLayout) {
				t.Errorf("error = %v, want ErrBadLayout", err)
			}
		})
	}

	res, err := fsys.LayoutCommit(ctx, h, 0, 4*testBlock, commitUpdate(good), 3*testBlock-1)
	if err != nil {
		t.Fatalf("LayoutCommit failed: %v", err)
	}
	if !res.SizeChanged || res.NewSize != 3*testBlock {
		t.Errorf("commit result = %+v", res)
	}

	layout, err = fsys.LayoutGet(ctx, h, 0, 4*testBlock, IOModeRW)
	if err != nil {
		t.Fatalf("LayoutGet failed: %v", err)
	}
	var got []string
	for _, e := range layout.Body.Extents {
		got = append(got, e.State.String())
	}
	want := "INVALID_DATA READWRITE_DATA INVALID_DATA"
	if strings.Join(got, " ") != want {
		t.Errorf("states = %v, want %s", got, want)
	}
	if layout.Body.Extents[1].StorageOffset != base+testBlock || layout.Body.Extents[2].StorageOffset != base+3*testBlock {
		t.Errorf("split extents lost their storage offsets: %+v", layout.Body.Extents)
	}
}

func TestMarkBlocks(t *testing.T) {
	fsys := newTestFS(t)
	if err := fsys.MarkRange(0, 2); err != nil {
		t.Fatalf("MarkRange failed: %v", err)
	}

	block := make([]byte, testBlock)
	if _, err := fsys.Volume().ReadAt(block, testBlock); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if !bytes.HasPrefix(block, []byte("Start of block 1  B")) {
		t.Errorf("block start = %q", block[:24])
	}
	if !bytes.HasSuffix(block, []byte("B  block 1 ends here -->*")) {
		t.Errorf("block end = %q", block[testBlock-26:])
	}
	if err := fsys.MarkBlocks([]int64{64}); err == nil {
		t.Error("expected error marking a block past the volume")
	}
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	vol := newTestVolume(t, 64)
	fsys, err := New(vol, testOptions(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h, _ := fsys.Create(ctx, "kept", 0)
	f, _ := fsys.Open(ctx, h)
	payload := bytes.Repeat([]byte("state"), 300)
	if _, err := f.Write(payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var buf bytes.Buffer
	if err := fsys.SaveState(&buf); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	saved := append([]byte(nil), buf.Bytes()...)

	restored, err := New(vol, testOptions(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := restored.LoadState(&buf); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	got, err := restored.Lookup(ctx, "kept")
	if err != nil || got != h {
		t.Fatalf("Lookup = %v, %v, want %v", got, err, h)
	}
	g, err := restored.Open(ctx, h)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, err := io.ReadAll(g)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("restored file contents differ")
	}
	if restored.StatFS(ctx) != fsys.StatFS(ctx) {
		t.Errorf("StatFS differs: %+v vs %+v", restored.StatFS(ctx), fsys.StatFS(ctx))
	}

	var again bytes.Buffer
	if err := restored.SaveState(&again); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	if !bytes.Equal(again.Bytes(), saved) {
		t.Error("state encoding is not stable")
	}

	other, _ := New(vol, Options{BlockSize: 1024, FirstFreeBlock: 1}, nil)
	if err := other.LoadState(bytes.NewReader(saved)); err == nil {
		t.Error("expected error loading state with a different block size")
	}
}

func TestPlaceAndMarkFileEnds(t *testing.T) {
	ctx := context.Background()
	opts := Options{BlockSize: testBlock, FirstFreeBlock: 8, FileSystemID: 7}
	fsys, err := New(newTestVolume(t, 64), opts, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := fsys.MarkRange(1, 8); err != nil {
		t.Fatalf("MarkRange failed: %v", err)
	}

	h, err := fsys.Create(ctx, "split", 3*testBlock+testBlock/2)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := fsys.Place(ctx, h, 0, 5, 2, blockaddr.ReadWriteData); err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if err := fsys.Place(ctx, h, 2, 3, 2, blockaddr.ReadWriteData); err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if err := fsys.Place(ctx, h, 4, 0, 1, blockaddr.NoneData); err != nil {
		t.Errorf("Place of a hole failed: %v", err)
	}
	if err := fsys.Place(ctx, h, 5, 7, 2, blockaddr.ReadWriteData); !errors.Is(err, fs.ErrNoSpace) {
		t.Errorf("Place past the reserved area error = %v, want ErrNoSpace", err)
	}
	if _, err := fsys.Create(ctx, "unmapped", 1000); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := fsys.Create(ctx, "tiny", 4); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := fsys.MarkFileEnds(ctx); err != nil {
		t.Fatalf("MarkFileEnds failed: %v", err)
	}

	f, err := fsys.Open(ctx, h)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(data) != 3*testBlock+testBlock/2 {
		t.Fatalf("read %d bytes", len(data))
	}
	for _, tt := range []struct {
		at   int
		want string
	}{
		{0, "Start of block 5"},
		{testBlock, "Start of block 6"},
		{2 * testBlock, "Start of block 3"},
		{3 * testBlock, "Start of block 4"},
	} {
		if !bytes.HasPrefix(data[tt.at:], []byte(tt.want)) {
			t.Errorf("at %d: %q, want prefix %q", tt.at, data[tt.at:tt.at+20], tt.want)
		}
	}
	if !bytes.HasSuffix(data, []byte(fileEndText)) {
		t.Errorf("file does not end with the trailer: %q", data[len(data)-30:])
	}

	info, err := fsys.GetAttr(ctx, h)
	if err != nil {
		t.Fatalf("GetAttr failed: %v", err)
	}
	if info.Blocks != 4 {
		t.Errorf("blocks = %d, want 4", info.Blocks)
	}
}
