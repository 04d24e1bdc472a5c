// Package nfs maps filesystem and volume errors onto NFSv4.1 status codes
// and carries those codes across the device service.
package nfs

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/example/blocklayout/pkg/blockaddr"
	"github.com/example/blocklayout/pkg/blockdev"
	"github.com/example/blocklayout/pkg/fs"
	"github.com/example/blocklayout/pkg/volume"
)

// Status is nfsstat4.
type Status uint32

const (
	StatusOK               Status = 0
	StatusErrNoEnt         Status = 2
	StatusErrIO            Status = 5
	StatusErrNXIO          Status = 6
	StatusErrExist         Status = 17
	StatusErrInval         Status = 22
	StatusErrNoSpc         Status = 28
	StatusErrBadHandle     Status = 10001
	StatusErrNotSupp       Status = 10004
	StatusErrServerFault   Status = 10006
	StatusErrBadXDR        Status = 10036
	StatusErrBadIOMode     Status = 10049
	StatusErrBadLayout     Status = 10050
	StatusErrNoMatchLayout Status = 10058
	StatusErrLayoutUnavail Status = 10059
	StatusErrUnknownLayout Status = 10062
)

var statusNames = map[Status]string{
	StatusOK:               "NFS4_OK",
	StatusErrNoEnt:         "NFS4ERR_NOENT",
	StatusErrIO:            "NFS4ERR_IO",
	StatusErrNXIO:          "NFS4ERR_NXIO",
	StatusErrExist:         "NFS4ERR_EXIST",
	StatusErrInval:         "NFS4ERR_INVAL",
	StatusErrNoSpc:         "NFS4ERR_NOSPC",
	StatusErrBadHandle:     "NFS4ERR_BADHANDLE",
	StatusErrNotSupp:       "NFS4ERR_NOTSUPP",
	StatusErrServerFault:   "NFS4ERR_SERVERFAULT",
	StatusErrBadXDR:        "NFS4ERR_BADXDR",
	StatusErrBadIOMode:     "NFS4ERR_BADIOMODE",
	StatusErrBadLayout:     "NFS4ERR_BADLAYOUT",
	StatusErrLayoutUnavail: "NFS4ERR_LAYOUTUNAVAILABLE",
	StatusErrUnknownLayout: "NFS4ERR_UNKNOWN_LAYOUTTYPE",
	StatusErrNoMatchLayout: "NFS4ERR_NOMATCHING_LAYOUT",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("nfsstat4(%d)", uint32(s))
}

// MapErrorToStatus converts a Go error to an NFS status code.
func MapErrorToStatus(err error) Status {
	if err == nil {
		return StatusOK
	}

	var nerr *Error
	if errors.As(err, &nerr) {
		return nerr.Status
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return StatusErrNoEnt
	case errors.Is(err, fs.ErrExist):
		return StatusErrExist
	case errors.Is(err, fs.ErrInvalidName):
		return StatusErrInval
	case errors.Is(err, fs.ErrInvalidHandle):
		return StatusErrBadHandle
	case errors.Is(err, fs.ErrNoSpace):
		return StatusErrNoSpc
	case errors.Is(err, fs.ErrNotSupported):
		return StatusErrNotSupp
	case errors.Is(err, fs.ErrBadIOMode):
		return StatusErrBadIOMode
	case errors.Is(err, fs.ErrBadLayout):
		return StatusErrBadLayout
	case errors.Is(err, fs.ErrLayoutUnavailable):
		return StatusErrLayoutUnavail
	case errors.Is(err, fs.ErrBadSeek):
		return StatusErrInval
	case errors.Is(err, fs.ErrUninitialized), errors.Is(err, fs.ErrNoMapping), errors.Is(err, fs.ErrIO):
		return StatusErrIO
	case errors.Is(err, volume.ErrOutOfRange):
		return StatusErrNXIO
	case errors.Is(err, blockdev.ErrNotOpen):
		return StatusErrServerFault
	}

	// XDR decoding problems in request bodies
	switch {
	case errors.Is(err, blockaddr.ErrShortBuffer),
		errors.Is(err, blockaddr.ErrTrailingData),
		errors.Is(err, blockaddr.ErrLengthTooLong),
		errors.Is(err, blockaddr.ErrBadIndex):
		return StatusErrBadXDR
	case errors.Is(err, blockaddr.ErrBadUnion):
		return StatusErrUnknownLayout
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		return StatusErrNoEnt
	case errors.Is(err, os.ErrExist):
		return StatusErrExist
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ENOENT:
			return StatusErrNoEnt
		case syscall.EIO:
			return StatusErrIO
		case syscall.ENXIO, syscall.ENODEV:
			return StatusErrNXIO
		case syscall.EEXIST:
			return StatusErrExist
		case syscall.EINVAL:
			return StatusErrInval
		case syscall.ENOSPC:
			return StatusErrNoSpc
		}
	}

	return StatusErrIO
}

// StatusToError converts a status received from the server back into an
// error that matches the corresponding fs sentinel with errors.Is.
func StatusToError(op string, status Status, message string) error {
	if status == StatusOK {
		return nil
	}
	var cause error
	switch status {
	case StatusErrNoEnt:
		cause = fs.ErrNotExist
	case StatusErrExist:
		cause = fs.ErrExist
	case StatusErrInval:
		cause = fs.ErrInvalidName
	case StatusErrBadHandle:
		cause = fs.ErrInvalidHandle
	case StatusErrNoSpc:
		cause = fs.ErrNoSpace
	case StatusErrNotSupp:
		cause = fs.ErrNotSupported
	case StatusErrBadIOMode:
		cause = fs.ErrBadIOMode
	case StatusErrBadLayout:
		cause = fs.ErrBadLayout
	case StatusErrLayoutUnavail:
		cause = fs.ErrLayoutUnavailable
	case StatusErrIO:
		cause = fs.ErrIO
	}
	return NewError(op, status, message, cause)
}

// Error represents an error with NFS status code
type Error struct {
	Op      string
	Status  Status
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error
func NewError(op string, status Status, message string, cause error) *Error {
	return &Error{
		Op:      op,
		Status:  status,
		Message: message,
		Cause:   cause,
	}
}
