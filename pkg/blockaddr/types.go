// Package blockaddr defines the wire structures of the pNFS block layout
// (RFC 5663) and their XDR encoding: the device address that describes a
// volume topology, and the extent lists carried by LAYOUTGET and
// LAYOUTCOMMIT.
package blockaddr

import (
	"fmt"
)

// VolumeType is the discriminant of a pnfs_block_volume4 union.
type VolumeType int32

const (
	// VolumeSimple is a leaf disk identified by its signature
	VolumeSimple VolumeType = 0
	// VolumeSlice is a contiguous range of another volume
	VolumeSlice VolumeType = 1
	// VolumeConcat is a concatenation of volumes
	VolumeConcat VolumeType = 2
	// VolumeStripe interleaves stripe units across volumes
	VolumeStripe VolumeType = 3
)

// String returns a string representation of the volume type
func (t VolumeType) String() string {
	switch t {
	case VolumeSimple:
		return "SIMPLE"
	case VolumeSlice:
		return "SLICE"
	case VolumeConcat:
		return "CONCAT"
	case VolumeStripe:
		return "STRIPE"
	default:
		return fmt.Sprintf("VolumeType(%d)", int32(t))
	}
}

// SigComponent is one piece of a disk signature. A negative Offset is
// relative to the end of the disk.
type SigComponent struct {
	Offset   int64
	Contents []byte
}

// SimpleInfo describes a leaf disk.
type SimpleInfo struct {
	Signature []SigComponent
}

// SliceInfo describes a byte range of the volume at index Volume.
type SliceInfo struct {
	Start  uint64
	Length uint64
	Volume uint32
}

// ConcatInfo lists the concatenated volumes by index.
type ConcatInfo struct {
	Volumes []uint32
}

// StripeInfo lists the striped volumes by index.
type StripeInfo struct {
	StripeUnit uint64
	Volumes    []uint32
}

// Volume is one entry of a device address. Exactly one of the info
// pointers is set, matching Type.
type Volume struct {
	Type   VolumeType
	Simple *SimpleInfo
	Slice  *SliceInfo
	Concat *ConcatInfo
	Stripe *StripeInfo
}

// Children returns the indices this entry references.
func (v *Volume) Children() []uint32 {
	switch v.Type {
	case VolumeSlice:
		if v.Slice != nil {
			return []uint32{v.Slice.Volume}
		}
	case VolumeConcat:
		if v.Concat != nil {
			return v.Concat.Volumes
		}
	case VolumeStripe:
		if v.Stripe != nil {
			return v.Stripe.Volumes
		}
	}
	return nil
}

// DeviceAddr is the body of a block layout device_addr4. The last entry is
// the top of the topology; every index refers into Volumes.
type DeviceAddr struct {
	Volumes []Volume
}
