package volume

import (
	"errors"
	"fmt"
)

// Errors reported while building or addressing a topology
var (
	ErrOutOfRange       = errors.New("offset out of range")
	ErrBadLimit         = errors.New("extent limit must be positive")
	ErrNoSizeOrBacking  = errors.New("simple volume needs a size or a backing path")
	ErrBackingTooSmall  = errors.New("backing store smaller than declared size")
	ErrSignatureBounds  = errors.New("signature component outside volume")
	ErrSliceBounds      = errors.New("slice exceeds its volume")
	ErrNoMembers        = errors.New("composite volume has no members")
	ErrStripeUnit       = errors.New("invalid stripe unit")
	ErrUnequalStripe    = errors.New("stripe members differ in size")
	ErrNotIndexed       = errors.New("volume missing from index")
	ErrNegativeSize     = errors.New("negative size")
)

// RangeError reports an offset outside [0, Size) of a volume.
type RangeError struct {
	Volume string
	Offset int64
	Size   int64
}

// Error implements the error interface.
func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: asked for %d of %d", e.Volume, e.Offset, e.Size)
}

// Unwrap returns ErrOutOfRange.
func (e *RangeError) Unwrap() error {
	return ErrOutOfRange
}

// ConfigError reports a volume that cannot be constructed as requested.
type ConfigError struct {
	Volume string
	Err    error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configure %s: %v", e.Volume, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configError(volume string, err error) error {
	return &ConfigError{Volume: volume, Err: err}
}

func checkRange(v Volume, offset int64) error {
	if offset < 0 || offset >= v.Size() {
		return &RangeError{Volume: v.String(), Offset: offset, Size: v.Size()}
	}
	return nil
}

func checkExtent(v Volume, offset, limit int64) error {
	if limit <= 0 {
		return fmt.Errorf("%s: %w (got %d)", v, ErrBadLimit, limit)
	}
	return checkRange(v, offset)
}
