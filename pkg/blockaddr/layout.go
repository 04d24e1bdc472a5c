package blockaddr

import (
	"encoding/hex"
	"fmt"
)

// DeviceIDSize is the length of a deviceid4.
const DeviceIDSize = 16

// DeviceID identifies a device address to clients.
type DeviceID [DeviceIDSize]byte

// String returns the device id in hex
func (id DeviceID) String() string {
	return hex.EncodeToString(id[:])
}

// ExtentState is pnfs_block_extent_state4.
type ExtentState int32

const (
	// ReadWriteData is valid data that may be read and written
	ReadWriteData ExtentState = 0
	// ReadData is valid data that may only be read
	ReadData ExtentState = 1
	// InvalidData is allocated storage that has not been initialized
	InvalidData ExtentState = 2
	// NoneData is a hole; reads return zeros
	NoneData ExtentState = 3
)

// String returns a string representation of the extent state
func (s ExtentState) String() string {
	switch s {
	case ReadWriteData:
		return "READWRITE_DATA"
	case ReadData:
		return "READ_DATA"
	case InvalidData:
		return "INVALID_DATA"
	case NoneData:
		return "NONE_DATA"
	default:
		return fmt.Sprintf("ExtentState(%d)", int32(s))
	}
}

// Extent is pnfs_block_extent4. Offsets and lengths are in bytes.
type Extent struct {
	VolumeID      DeviceID
	FileOffset    uint64
	Length        uint64
	StorageOffset uint64
	State         ExtentState
}

// Layout is the pnfs_block_layout4 body returned by LAYOUTGET.
type Layout struct {
	Extents []Extent
}

// LayoutUpdate is the pnfs_block_layoutupdate4 body sent with LAYOUTCOMMIT.
type LayoutUpdate struct {
	CommitList []Extent
}

const extentWireSize = DeviceIDSize + 8 + 8 + 8 + 4

func encodeExtents(extents []Extent) []byte {
	e := &encoder{}
	e.putUint32(uint32(len(extents)))
	for _, ext := range extents {
		e.putFixedOpaque(ext.VolumeID[:])
		e.putUint64(ext.FileOffset)
		e.putUint64(ext.Length)
		e.putUint64(ext.StorageOffset)
		e.putInt32(int32(ext.State))
	}
	return e.buf
}

func decodeExtents(data []byte) ([]Extent, error) {
	d := &decoder{data: data}
	n, err := d.count(extentWireSize)
	if err != nil {
		return nil, err
	}
	extents := make([]Extent, n)
	for i := range extents {
		ext := &extents[i]
		id, err := d.fixedOpaque(DeviceIDSize)
		if err != nil {
			return nil, err
		}
		copy(ext.VolumeID[:], id)
		if ext.FileOffset, err = d.uint64(); err != nil {
			return nil, err
		}
		if ext.Length, err = d.uint64(); err != nil {
			return nil, err
		}
		if ext.StorageOffset, err = d.uint64(); err != nil {
			return nil, err
		}
		state, err := d.int32()
		if err != nil {
			return nil, err
		}
		if state < int32(ReadWriteData) || state > int32(NoneData) {
			return nil, fmt.Errorf("extent %d: %w: state %d", i, ErrBadUnion, state)
		}
		ext.State = ExtentState(state)
	}
	if err := d.done(); err != nil {
		return nil, err
	}
	return extents, nil
}

// MarshalLayout encodes a pnfs_block_layout4.
func MarshalLayout(l Layout) []byte {
	return encodeExtents(l.Extents)
}

// UnmarshalLayout decodes a pnfs_block_layout4.
func UnmarshalLayout(data []byte) (Layout, error) {
	extents, err := decodeExtents(data)
	if err != nil {
		return Layout{}, err
	}
	return Layout{Extents: extents}, nil
}

// MarshalLayoutUpdate encodes a pnfs_block_layoutupdate4.
func MarshalLayoutUpdate(u LayoutUpdate) []byte {
	return encodeExtents(u.CommitList)
}

// UnmarshalLayoutUpdate decodes a pnfs_block_layoutupdate4.
func UnmarshalLayoutUpdate(data []byte) (LayoutUpdate, error) {
	extents, err := decodeExtents(data)
	if err != nil {
		return LayoutUpdate{}, err
	}
	return LayoutUpdate{CommitList: extents}, nil
}
