// Package blockdev binds a volume topology to its backing stores so it
// can be read and written as one logical device.
package blockdev

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/example/blocklayout/pkg/blockaddr"
	"github.com/example/blocklayout/pkg/fs"
	"github.com/example/blocklayout/pkg/volume"
)

// Mode selects how backing stores are opened.
type Mode int

const (
	// ReadOnly opens backing stores for reading
	ReadOnly Mode = iota
	// ReadWrite opens backing stores for reading and writing
	ReadWrite
)

// String returns a string representation of the mode
func (m Mode) String() string {
	if m == ReadWrite {
		return "rw"
	}
	return "ro"
}

// MaxExtent bounds a single FindExtent lookup. Structural boundaries
// always cut extents shorter.
const MaxExtent = int64(1) << 62

var (
	// ErrAlreadyOpen is returned by Open on an open volume
	ErrAlreadyOpen = errors.New("volume already open")
	// ErrNotOpen is returned by I/O on a closed volume
	ErrNotOpen = errors.New("volume not open")
)

// Volume is a topology bound to its backing stores. The leaf list,
// address and device id are fixed at construction; descriptors exist
// only between Open and Close.
//
// A Volume is not safe for concurrent use.
type Volume struct {
	root     volume.Volume
	leaves   []*volume.Simple
	address  []byte
	id       blockaddr.DeviceID
	verifier uint64
	logger   *slog.Logger

	devices map[*volume.Simple]*Device
	opened  []*Device
}

// New binds root. Backing stores are not touched until Open, so an
// address-only topology is legal here.
func New(root volume.Volume, logger *slog.Logger) (*Volume, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	address, err := volume.EncodeAddress(root)
	if err != nil {
		return nil, fmt.Errorf("encoding address of %s: %w", root, err)
	}
	sum := blake3.Sum256(address)
	return &Volume{
		root:     root,
		leaves:   volume.Leaves(root),
		address:  address,
		id:       blockaddr.DeviceID(uuid.New()),
		verifier: binary.BigEndian.Uint64(sum[:8]),
		logger:   logger.With("device", root.String()),
	}, nil
}

// Root returns the bound topology.
func (v *Volume) Root() volume.Volume { return v.root }

// Size returns the logical size in bytes.
func (v *Volume) Size() int64 { return v.root.Size() }

// Leaves returns the simple volumes in address order.
func (v *Volume) Leaves() []*volume.Simple {
	return append([]*volume.Simple(nil), v.leaves...)
}

// Address returns the serialized pnfs_block_deviceaddr4.
func (v *Volume) Address() []byte {
	return append([]byte(nil), v.address...)
}

// DeviceID returns the id clients use to ask for the address.
func (v *Volume) DeviceID() blockaddr.DeviceID { return v.id }

// Verifier changes whenever the address does.
func (v *Volume) Verifier() uint64 { return v.verifier }

// IsOpen reports whether backing stores are open.
func (v *Volume) IsOpen() bool { return v.devices != nil }

// Open opens every leaf's backing store. If any leaf cannot be opened
// the ones already opened are closed again.
func (v *Volume) Open(mode Mode) error {
	if v.devices != nil {
		return fs.NewError("open", v.root.String(), ErrAlreadyOpen)
	}

	devices := make(map[*volume.Simple]*Device, len(v.leaves))
	opened := make([]*Device, 0, len(v.leaves))
	rollback := func() {
		for i := len(opened) - 1; i >= 0; i-- {
			if err := opened[i].Close(); err != nil {
				v.logger.Warn("close during rollback failed", "path", opened[i].Path(), "error", err)
			}
		}
	}

	for _, leaf := range v.leaves {
		if leaf.BackingPath() == "" {
			rollback()
			return fs.NewError("open", leaf.String(), fmt.Errorf("%w: no backing path", fs.ErrIO))
		}
		dev, err := openDevice(leaf.BackingPath(), leaf.Size(), mode)
		if err != nil {
			rollback()
			return fs.NewError("open", leaf.String(), fmt.Errorf("%w: %w", fs.ErrIO, err))
		}
		devices[leaf] = dev
		opened = append(opened, dev)
	}

	v.devices = devices
	v.opened = opened
	v.logger.Info("opened block volume",
		"mode", mode,
		"leaves", len(opened),
		"size", humanize.IBytes(uint64(v.Size())))
	return nil
}

// Close releases every descriptor in reverse open order. All are
// released even if some fail; the first failure is returned.
func (v *Volume) Close() error {
	if v.devices == nil {
		return nil
	}
	var firstErr error
	for i := len(v.opened) - 1; i >= 0; i-- {
		if err := v.opened[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	v.devices = nil
	v.opened = nil
	v.logger.Info("closed block volume")
	return firstErr
}

// With opens the volume, runs fn and closes it again on every path.
func (v *Volume) With(mode Mode, fn func(*Volume) error) (err error) {
	if err := v.Open(mode); err != nil {
		return err
	}
	defer func() {
		if cerr := v.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(v)
}

// Sync flushes every open backing store.
func (v *Volume) Sync() error {
	if v.devices == nil {
		return fs.NewError("sync", v.root.String(), ErrNotOpen)
	}
	for _, dev := range v.opened {
		if err := dev.Sync(); err != nil {
			return fs.NewError("sync", dev.Path(), err)
		}
	}
	return nil
}

// FindExtent implements fs.ExtentResolver. All space inside the volume
// is reported valid.
func (v *Volume) FindExtent(pos int64) (fs.Extent, error) {
	if pos >= v.Size() {
		return fs.Extent{Kind: fs.ExtentEOF, FilePos: pos}, nil
	}
	m, err := v.root.Extent(pos, MaxExtent)
	if err != nil {
		return fs.Extent{}, err
	}
	dev, ok := v.devices[m.Leaf]
	if !ok {
		return fs.Extent{}, fs.NewError("find extent", m.Leaf.String(), ErrNotOpen)
	}
	return fs.Extent{
		Kind:       fs.ExtentValid,
		FilePos:    pos,
		StoragePos: m.Offset,
		Length:     m.Length,
		Device:     dev,
	}, nil
}

// MapExtent implements fs.ExtentResolver. Space inside the volume is
// always mapped; nothing past it can be.
func (v *Volume) MapExtent(pos, length int64) error {
	if pos < 0 || pos+length > v.Size() {
		return fs.NewError("map extent", v.root.String(),
			fmt.Errorf("%w: [%d, +%d) beyond %d", fs.ErrNoSpace, pos, length, v.Size()))
	}
	return nil
}

// CreateHole implements fs.ExtentResolver. A raw volume has no holes.
func (v *Volume) CreateHole(pos, length int64) error {
	return fs.NewError("create hole", v.root.String(), fs.ErrNotSupported)
}

// File returns a fixed-size file over the whole volume.
func (v *Volume) File() *fs.LayoutFile {
	return fs.NewLayoutFile(fs.FileHandle{}, v, v.Size())
}

// ReadAt implements io.ReaderAt over the logical address space.
func (v *Volume) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fs.NewError("read", v.root.String(), fs.ErrBadSeek)
	}
	var n int
	for n < len(p) && off < v.Size() {
		e, err := v.FindExtent(off)
		if err != nil {
			return n, err
		}
		chunk := min(e.Length, int64(len(p)-n))
		got, err := e.Device.ReadAt(p[n:n+int(chunk)], e.StoragePos)
		n += got
		off += int64(got)
		if err != nil && !(err == io.EOF && int64(got) == chunk) {
			return n, err
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt over the logical address space.
func (v *Volume) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fs.NewError("write", v.root.String(), fs.ErrBadSeek)
	}
	if err := v.MapExtent(off, int64(len(p))); err != nil {
		return 0, err
	}
	var n int
	for n < len(p) {
		e, err := v.FindExtent(off)
		if err != nil {
			return n, err
		}
		chunk := min(e.Length, int64(len(p)-n))
		wrote, err := e.Device.WriteAt(p[n:n+int(chunk)], e.StoragePos)
		n += wrote
		off += int64(wrote)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
