package client

import (
	"errors"

	"github.com/example/blocklayout/pkg/nfs"
)

// ErrUnknownDevice is returned by DeviceInfo for an id the server does
// not export.
var ErrUnknownDevice = errors.New("unknown device")

// wrapError turns an error from the service back into one carrying its
// NFS status. Transport errors are returned unchanged.
func wrapError(op string, err error) error {
	return nfs.FromGRPC(op, err)
}

// Status returns the NFS status carried by err, or NFS4_OK and false if
// there is none.
func Status(err error) (nfs.Status, bool) {
	var nerr *nfs.Error
	if errors.As(err, &nerr) {
		return nerr.Status, true
	}
	return nfs.StatusOK, false
}
