package fs

import (
	"fmt"
)

// ExtentKind classifies a run of a file.
type ExtentKind int

const (
	// ExtentHole reads as zeros and has no storage
	ExtentHole ExtentKind = iota
	// ExtentValid is backed by initialized storage
	ExtentValid
	// ExtentInvalid is backed by storage that has never been written
	ExtentInvalid
	// ExtentEOF lies past every mapping
	ExtentEOF
)

// String returns a string representation of the extent kind
func (k ExtentKind) String() string {
	switch k {
	case ExtentHole:
		return "hole"
	case ExtentValid:
		return "valid"
	case ExtentInvalid:
		return "invalid"
	case ExtentEOF:
		return "eof"
	default:
		return "unknown"
	}
}

// Extent is a maximal run of one kind starting at FilePos. Device and
// StoragePos are only meaningful for Valid and Invalid extents.
type Extent struct {
	Kind       ExtentKind
	FilePos    int64
	StoragePos int64
	Length     int64
	Device     BlockDevice
}

// Contains reports whether pos falls inside the extent.
func (e Extent) Contains(pos int64) bool {
	return pos >= e.FilePos && pos-e.FilePos < e.Length
}

// String returns a string representation of the extent
func (e Extent) String() string {
	return fmt.Sprintf("Extent{%s file:%d storage:%d len:%d}", e.Kind, e.FilePos, e.StoragePos, e.Length)
}
