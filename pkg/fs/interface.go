package fs

import (
	"io"
)

// BlockDevice is the storage an extent points into.
type BlockDevice interface {
	io.ReaderAt
	io.WriterAt
}

// ExtentResolver maps file positions to storage. LayoutFile drives all
// of its reads and writes through one.
type ExtentResolver interface {
	// FindExtent returns the run of one kind that starts at pos.
	// Positions past the last mapping return an EOF extent.
	FindExtent(pos int64) (Extent, error)

	// MapExtent asks for storage to back [pos, pos+length). The resolver
	// may map less than asked; callers look the position up again.
	MapExtent(pos, length int64) error

	// CreateHole records [pos, pos+length) as reading back zeros.
	CreateHole(pos, length int64) error
}

// ExtentInitializer is implemented by resolvers that hand out Invalid
// extents. InitExtent is called before data is written into one.
type ExtentInitializer interface {
	InitExtent(pos, length int64) error
}
