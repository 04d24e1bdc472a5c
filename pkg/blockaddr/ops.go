package blockaddr

import "fmt"

// LayoutTypeBlockVolume is LAYOUT4_BLOCK_VOLUME.
const LayoutTypeBlockVolume uint32 = 3

// LayoutGetArgs is the subset of LAYOUTGET4args the device service takes.
type LayoutGetArgs struct {
	FileHandle []byte
	IOMode     uint32
	Offset     uint64
	Length     uint64
}

// LayoutGetResult is one layout4 segment with a block layout body.
type LayoutGetResult struct {
	Offset uint64
	Length uint64
	IOMode uint32
	Layout Layout
}

// LayoutCommitArgs is the subset of LAYOUTCOMMIT4args the device service
// takes. LastWriteOffset is only meaningful when NewOffset is set.
type LayoutCommitArgs struct {
	FileHandle      []byte
	Offset          uint64
	Length          uint64
	NewOffset       bool
	LastWriteOffset uint64
	Update          LayoutUpdate
}

// LayoutCommitResult is LAYOUTCOMMIT4resok.
type LayoutCommitResult struct {
	SizeChanged bool
	NewSize     uint64
}

// Marshal encodes the arguments.
func (a LayoutGetArgs) Marshal() []byte {
	e := &encoder{}
	e.putOpaque(a.FileHandle)
	e.putUint32(LayoutTypeBlockVolume)
	e.putUint32(a.IOMode)
	e.putUint64(a.Offset)
	e.putUint64(a.Length)
	return e.buf
}

// UnmarshalLayoutGetArgs decodes arguments written by LayoutGetArgs.Marshal.
func UnmarshalLayoutGetArgs(data []byte) (LayoutGetArgs, error) {
	var a LayoutGetArgs
	d := &decoder{data: data}
	var err error
	if a.FileHandle, err = d.opaque(); err != nil {
		return a, err
	}
	if err := checkLayoutType(d); err != nil {
		return a, err
	}
	if a.IOMode, err = d.uint32(); err != nil {
		return a, err
	}
	if a.Offset, err = d.uint64(); err != nil {
		return a, err
	}
	if a.Length, err = d.uint64(); err != nil {
		return a, err
	}
	return a, d.done()
}

// Marshal encodes the result as a layout4.
func (r LayoutGetResult) Marshal() []byte {
	e := &encoder{}
	e.putUint64(r.Offset)
	e.putUint64(r.Length)
	e.putUint32(r.IOMode)
	e.putUint32(LayoutTypeBlockVolume)
	e.putOpaque(MarshalLayout(r.Layout))
	return e.buf
}

// UnmarshalLayoutGetResult decodes a layout4 with a block layout body.
func UnmarshalLayoutGetResult(data []byte) (LayoutGetResult, error) {
	var r LayoutGetResult
	d := &decoder{data: data}
	var err error
	if r.Offset, err = d.uint64(); err != nil {
		return r, err
	}
	if r.Length, err = d.uint64(); err != nil {
		return r, err
	}
	if r.IOMode, err = d.uint32(); err != nil {
		return r, err
	}
	if err := checkLayoutType(d); err != nil {
		return r, err
	}
	body, err := d.opaque()
	if err != nil {
		return r, err
	}
	if err := d.done(); err != nil {
		return r, err
	}
	if r.Layout, err = UnmarshalLayout(body); err != nil {
		return r, fmt.Errorf("layout body: %w", err)
	}
	return r, nil
}

// Marshal encodes the arguments.
func (a LayoutCommitArgs) Marshal() []byte {
	e := &encoder{}
	e.putOpaque(a.FileHandle)
	e.putUint64(a.Offset)
	e.putUint64(a.Length)
	e.putBool(a.NewOffset)
	if a.NewOffset {
		e.putUint64(a.LastWriteOffset)
	}
	e.putUint32(LayoutTypeBlockVolume)
	e.putOpaque(MarshalLayoutUpdate(a.Update))
	return e.buf
}

// UnmarshalLayoutCommitArgs decodes arguments written by
// LayoutCommitArgs.Marshal.
func UnmarshalLayoutCommitArgs(data []byte) (LayoutCommitArgs, error) {
	var a LayoutCommitArgs
	d := &decoder{data: data}
	var err error
	if a.FileHandle, err = d.opaque(); err != nil {
		return a, err
	}
	if a.Offset, err = d.uint64(); err != nil {
		return a, err
	}
	if a.Length, err = d.uint64(); err != nil {
		return a, err
	}
	if a.NewOffset, err = d.bool(); err != nil {
		return a, err
	}
	if a.NewOffset {
		if a.LastWriteOffset, err = d.uint64(); err != nil {
			return a, err
		}
	}
	if err := checkLayoutType(d); err != nil {
		return a, err
	}
	body, err := d.opaque()
	if err != nil {
		return a, err
	}
	if err := d.done(); err != nil {
		return a, err
	}
	if a.Update, err = UnmarshalLayoutUpdate(body); err != nil {
		return a, fmt.Errorf("layout update: %w", err)
	}
	return a, nil
}

// Marshal encodes the result.
func (r LayoutCommitResult) Marshal() []byte {
	e := &encoder{}
	e.putBool(r.SizeChanged)
	if r.SizeChanged {
		e.putUint64(r.NewSize)
	}
	return e.buf
}

// UnmarshalLayoutCommitResult decodes a LAYOUTCOMMIT4resok.
func UnmarshalLayoutCommitResult(data []byte) (LayoutCommitResult, error) {
	var r LayoutCommitResult
	d := &decoder{data: data}
	var err error
	if r.SizeChanged, err = d.bool(); err != nil {
		return r, err
	}
	if r.SizeChanged {
		if r.NewSize, err = d.uint64(); err != nil {
			return r, err
		}
	}
	return r, d.done()
}

func checkLayoutType(d *decoder) error {
	t, err := d.uint32()
	if err != nil {
		return err
	}
	if t != LayoutTypeBlockVolume {
		return fmt.Errorf("%w: layout type %d", ErrBadUnion, t)
	}
	return nil
}
