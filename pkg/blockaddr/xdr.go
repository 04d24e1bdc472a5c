package blockaddr

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortBuffer   = errors.New("xdr: short buffer")
	ErrTrailingData  = errors.New("xdr: trailing data")
	ErrBadUnion      = errors.New("xdr: unknown union discriminant")
	ErrBadIndex      = errors.New("xdr: volume index out of order")
	ErrMissingArm    = errors.New("xdr: union arm not set")
	ErrLengthTooLong = errors.New("xdr: length exceeds remaining data")
)

// encoder appends XDR items to a byte slice.
type encoder struct {
	buf []byte
}

func (e *encoder) putUint32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

func (e *encoder) putInt32(v int32) {
	e.putUint32(uint32(v))
}

func (e *encoder) putBool(v bool) {
	if v {
		e.putUint32(1)
	} else {
		e.putUint32(0)
	}
}

func (e *encoder) putUint64(v uint64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, v)
}

func (e *encoder) putInt64(v int64) {
	e.putUint64(uint64(v))
}

// putFixedOpaque writes data followed by zero padding to a 4 byte boundary.
func (e *encoder) putFixedOpaque(data []byte) {
	e.buf = append(e.buf, data...)
	if pad := (4 - len(data)%4) % 4; pad > 0 {
		e.buf = append(e.buf, make([]byte, pad)...)
	}
}

func (e *encoder) putOpaque(data []byte) {
	e.putUint32(uint32(len(data)))
	e.putFixedOpaque(data)
}

func (e *encoder) putUint32Array(values []uint32) {
	e.putUint32(uint32(len(values)))
	for _, v := range values {
		e.putUint32(v)
	}
}

// decoder consumes XDR items from a byte slice.
type decoder struct {
	data []byte
	off  int
}

func (d *decoder) remaining() int {
	return len(d.data) - d.off
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || d.remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrShortBuffer, n, d.off, d.remaining())
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *decoder) int32() (int32, error) {
	v, err := d.uint32()
	return int32(v), err
}

func (d *decoder) bool() (bool, error) {
	v, err := d.uint32()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w: bool %d", ErrBadUnion, v)
}

func (d *decoder) uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *decoder) int64() (int64, error) {
	v, err := d.uint64()
	return int64(v), err
}

func (d *decoder) fixedOpaque(n int) ([]byte, error) {
	padded := n + (4-n%4)%4
	b, err := d.take(padded)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b[:n])
	return out, nil
}

// count reads an array or opaque length and checks that at least
// unit*count bytes remain, so a corrupt length cannot force a huge
// allocation.
func (d *decoder) count(unit int) (int, error) {
	n, err := d.uint32()
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(unit) > uint64(d.remaining()) {
		return 0, fmt.Errorf("%w: %d items of %d bytes at offset %d",
			ErrLengthTooLong, n, unit, d.off)
	}
	return int(n), nil
}

func (d *decoder) opaque() ([]byte, error) {
	n, err := d.count(1)
	if err != nil {
		return nil, err
	}
	return d.fixedOpaque(n)
}

func (d *decoder) uint32Array() ([]uint32, error) {
	n, err := d.count(4)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		if out[i], err = d.uint32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *decoder) done() error {
	if d.remaining() != 0 {
		return fmt.Errorf("%w: %d bytes", ErrTrailingData, d.remaining())
	}
	return nil
}
