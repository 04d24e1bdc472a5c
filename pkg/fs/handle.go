// pkg/fs/handle.go
package fs

import (
	"encoding/binary"
	"fmt"
)

// HandleSize is the length of a serialized file handle.
const HandleSize = 16

// FileHandle identifies a file across the filesystem and its clients.
type FileHandle struct {
	// FileSystemID identifies the specific filesystem
	FileSystemID uint32

	// Inode uniquely identifies a file within a filesystem
	Inode uint64

	// Generation is bumped when an inode number is reused, so handles
	// to a removed file stop matching
	Generation uint32
}

// Serialize converts the file handle to a byte slice
func (fh FileHandle) Serialize() []byte {
	data := make([]byte, HandleSize)
	binary.BigEndian.PutUint32(data[0:4], fh.FileSystemID)
	binary.BigEndian.PutUint64(data[4:12], fh.Inode)
	binary.BigEndian.PutUint32(data[12:16], fh.Generation)
	return data
}

// DeserializeFileHandle parses a handle produced by Serialize.
func DeserializeFileHandle(data []byte) (FileHandle, error) {
	if len(data) != HandleSize {
		return FileHandle{}, fmt.Errorf("%w: %d bytes", ErrInvalidHandle, len(data))
	}
	return FileHandle{
		FileSystemID: binary.BigEndian.Uint32(data[0:4]),
		Inode:        binary.BigEndian.Uint64(data[4:12]),
		Generation:   binary.BigEndian.Uint32(data[12:16]),
	}, nil
}

// String returns a string representation of the file handle
func (fh FileHandle) String() string {
	return fmt.Sprintf("FileHandle{FS:%d, Inode:%d, Gen:%d}",
		fh.FileSystemID, fh.Inode, fh.Generation)
}
