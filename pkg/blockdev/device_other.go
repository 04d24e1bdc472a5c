//go:build !(darwin || linux)

package blockdev

import (
	"fmt"

	"github.com/example/blocklayout/pkg/fs"
)

// Device is an open backing store of one simple volume.
type Device struct {
	path string
}

func openDevice(path string, size int64, mode Mode) (*Device, error) {
	return nil, fmt.Errorf("opening %s: %w", path, fs.ErrNotSupported)
}

func (d *Device) ReadAt(p []byte, off int64) (int, error)  { return 0, fs.ErrNotSupported }
func (d *Device) WriteAt(p []byte, off int64) (int, error) { return 0, fs.ErrNotSupported }
func (d *Device) Sync() error                              { return fs.ErrNotSupported }
func (d *Device) Close() error                             { return nil }
func (d *Device) Path() string                             { return d.path }
