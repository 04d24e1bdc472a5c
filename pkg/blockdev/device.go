//go:build darwin || linux

package blockdev

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// Device is an open backing store of one simple volume. I/O uses
// pread/pwrite so the descriptor carries no file position.
type Device struct {
	path string
	fd   int
	size int64
}

func openDevice(path string, size int64, mode Mode) (*Device, error) {
	flags := unix.O_CLOEXEC
	if mode == ReadWrite {
		flags |= unix.O_RDWR
	} else {
		flags |= unix.O_RDONLY
	}
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stating %s: %w", path, err)
	}
	// Block devices report zero here; trust the volume size for those.
	if stat.Mode&unix.S_IFMT == unix.S_IFREG && stat.Size < size {
		unix.Close(fd)
		return nil, fmt.Errorf("%s is %d bytes, volume needs %d", path, stat.Size, size)
	}
	return &Device{path: path, fd: fd, size: size}, nil
}

// ReadAt implements io.ReaderAt within the volume bounds.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= d.size {
		return 0, io.EOF
	}
	want := p
	if rest := d.size - off; int64(len(want)) > rest {
		want = want[:rest]
	}

	total := 0
	for len(want) > 0 {
		n, err := unix.Pread(d.fd, want, off)
		if err != nil {
			return total, fmt.Errorf("pread %s at %d: %w", d.path, off, err)
		}
		if n == 0 {
			return total, io.ErrUnexpectedEOF
		}
		total += n
		want = want[n:]
		off += int64(n)
	}
	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// WriteAt implements io.WriterAt within the volume bounds.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > d.size {
		return 0, fmt.Errorf("write at offset %d with length %d exceeds device size %d",
			off, len(p), d.size)
	}

	total := 0
	for len(p) > 0 {
		n, err := unix.Pwrite(d.fd, p, off)
		total += n
		if err != nil {
			return total, fmt.Errorf("pwrite %s at %d: %w", d.path, off, err)
		}
		p = p[n:]
		off += int64(n)
	}
	return total, nil
}

// Sync flushes pending writes to stable storage.
func (d *Device) Sync() error {
	return unix.Fsync(d.fd)
}

// Close releases the descriptor.
func (d *Device) Close() error {
	err := unix.Close(d.fd)
	d.fd = -1
	if err != nil {
		return fmt.Errorf("closing %s: %w", d.path, err)
	}
	return nil
}

// Path returns the backing path.
func (d *Device) Path() string { return d.path }
