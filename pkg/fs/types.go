package fs

import (
	"time"
)

// FileInfo contains information about a file.
type FileInfo struct {
	// Handle identifies the file
	Handle FileHandle

	// Name is the name the file was created under
	Name string

	// Size is the file size in bytes
	Size int64

	// BlockSize is the filesystem block size
	BlockSize uint32

	// Blocks is the number of blocks mapped to the file
	Blocks uint64

	// ModifyTime is the time of last modification
	ModifyTime time.Time
}

// FSStat contains information about a filesystem.
type FSStat struct {
	// TotalBytes is the total size of the filesystem in bytes
	TotalBytes uint64

	// FreeBytes is the number of free bytes available
	FreeBytes uint64

	// TotalFiles is the number of files
	TotalFiles uint64
}
