// pkg/fs/errors.go
package fs

import (
	"errors"
	"fmt"
)

// Common filesystem errors that map to NFS error codes
var (
	ErrNotExist          = errors.New("file does not exist")
	ErrExist             = errors.New("file already exists")
	ErrIO                = errors.New("input/output error")
	ErrInvalidName       = errors.New("invalid name")
	ErrInvalidHandle     = errors.New("invalid file handle")
	ErrNoSpace           = errors.New("no space left on device")
	ErrNotSupported      = errors.New("operation not supported")
	ErrUninitialized     = errors.New("read of uninitialized extent")
	ErrBadSeek           = errors.New("seek out of range")
	ErrNoMapping         = errors.New("no mapping at position")
	ErrBadLayout         = errors.New("layout does not match file")
	ErrLayoutUnavailable = errors.New("layout unavailable")
	ErrBadIOMode         = errors.New("invalid layout iomode")
)

// FSError represents a filesystem error with additional context.
type FSError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *FSError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FSError) Unwrap() error {
	return e.Err
}

// NewError creates a new FSError.
func NewError(op, path string, err error) error {
	return &FSError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}
