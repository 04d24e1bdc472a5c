package fs

import (
	"fmt"
	"io"
)

// LayoutFile is a seekable file whose contents are located through an
// ExtentResolver. A fixed file has a set size and rejects positions past
// it; a resizable file starts empty and grows as it is written.
//
// A LayoutFile is not safe for concurrent use.
type LayoutFile struct {
	handle    FileHandle
	resolver  ExtentResolver
	size      int64
	pos       int64
	resizable bool
}

// NewLayoutFile returns a file of fixed size.
func NewLayoutFile(handle FileHandle, resolver ExtentResolver, size int64) *LayoutFile {
	return &LayoutFile{handle: handle, resolver: resolver, size: size}
}

// NewResizableLayoutFile returns an empty file that grows on write.
func NewResizableLayoutFile(handle FileHandle, resolver ExtentResolver) *LayoutFile {
	return &LayoutFile{handle: handle, resolver: resolver, resizable: true}
}

// OpenResizableLayoutFile returns a resizable file that already holds
// size bytes.
func OpenResizableLayoutFile(handle FileHandle, resolver ExtentResolver, size int64) *LayoutFile {
	return &LayoutFile{handle: handle, resolver: resolver, size: size, resizable: true}
}

// Handle returns the handle the file was opened with.
func (f *LayoutFile) Handle() FileHandle { return f.handle }

// Size returns the current end of file.
func (f *LayoutFile) Size() int64 { return f.size }

// Grow moves the end of file out to size when the file was extended
// behind this handle. It never shrinks the file.
func (f *LayoutFile) Grow(size int64) {
	if size > f.size {
		f.size = size
	}
}

// Tell returns the current position.
func (f *LayoutFile) Tell() int64 { return f.pos }

// Resizable reports whether writes may extend the file.
func (f *LayoutFile) Resizable() bool { return f.resizable }

// Seek implements io.Seeker.
func (f *LayoutFile) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = f.pos + offset
	case io.SeekEnd:
		pos = f.size + offset
	default:
		return f.pos, NewError("seek", f.handle.String(), fmt.Errorf("%w: whence %d", ErrBadSeek, whence))
	}
	if pos < 0 || (!f.resizable && pos >= f.size) {
		return f.pos, NewError("seek", f.handle.String(), fmt.Errorf("%w: %d of %d", ErrBadSeek, pos, f.size))
	}
	f.pos = pos
	return pos, nil
}

// Read implements io.Reader. Holes read as zeros. Reading an
// uninitialized or unmapped region is an error.
func (f *LayoutFile) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if f.pos >= f.size {
		return 0, io.EOF
	}
	want := min(int64(len(p)), f.size-f.pos)
	var n int64
	for n < want {
		e, err := f.resolver.FindExtent(f.pos)
		if err != nil {
			return int(n), err
		}
		if e.Length <= 0 && e.Kind != ExtentEOF {
			return int(n), f.fail("read", ErrIO, e)
		}
		chunk := min(e.Length, want-n)
		switch e.Kind {
		case ExtentHole:
			clear(p[n : n+chunk])
		case ExtentValid:
			got, err := e.Device.ReadAt(p[n:n+chunk], e.StoragePos)
			if got < int(chunk) {
				if err == nil || err == io.EOF {
					err = f.fail("read", ErrIO, e)
				}
				f.pos += int64(got)
				return int(n) + got, err
			}
		case ExtentInvalid:
			return int(n), f.fail("read", ErrUninitialized, e)
		default:
			return int(n), f.fail("read", ErrNoMapping, e)
		}
		f.pos += chunk
		n += chunk
	}
	return int(n), nil
}

// Write implements io.Writer. Unmapped regions are mapped on demand and
// a gap left by seeking past the end is recorded as a hole.
func (f *LayoutFile) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if f.pos > f.size {
		if err := f.resolver.CreateHole(f.size, f.pos-f.size); err != nil {
			return 0, err
		}
	}

	var n int
	// Set once the resolver has been asked to make pos writable; a
	// second refusal means it cannot.
	var mapped, initialized bool
	for n < len(p) {
		rest := int64(len(p) - n)
		e, err := f.resolver.FindExtent(f.pos)
		if err != nil {
			return n, err
		}
		switch e.Kind {
		case ExtentEOF, ExtentHole:
			if mapped {
				return n, f.fail("write", ErrNoSpace, e)
			}
			length := rest
			if e.Kind == ExtentHole && e.Length > 0 {
				length = min(rest, e.Length)
			}
			if err := f.resolver.MapExtent(f.pos, length); err != nil {
				return n, err
			}
			mapped = true
			continue
		case ExtentInvalid:
			if init, ok := f.resolver.(ExtentInitializer); ok {
				if initialized {
					return n, f.fail("write", ErrIO, e)
				}
				if err := init.InitExtent(f.pos, min(rest, e.Length)); err != nil {
					return n, err
				}
				initialized = true
				continue
			}
		}
		if e.Length <= 0 {
			return n, f.fail("write", ErrIO, e)
		}

		chunk := min(e.Length, rest)
		wrote, err := e.Device.WriteAt(p[n:n+int(chunk)], e.StoragePos)
		f.pos += int64(wrote)
		n += wrote
		if f.pos > f.size {
			f.size = f.pos
		}
		if err != nil {
			return n, err
		}
		if int64(wrote) < chunk {
			return n, io.ErrShortWrite
		}
		mapped, initialized = false, false
	}
	return n, nil
}

func (f *LayoutFile) fail(op string, err error, e Extent) error {
	return NewError(op, f.handle.String(), fmt.Errorf("%w at %d (%s)", err, f.pos, e))
}
