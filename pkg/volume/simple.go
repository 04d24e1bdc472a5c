package volume

import (
	"fmt"
	"io"
	"os"

	"github.com/example/blocklayout/pkg/blockaddr"
)

// SimpleConfig describes a leaf volume.
type SimpleConfig struct {
	// Signature components are written into the backing store when the
	// volume is built. Negative offsets count back from Size.
	Signature []blockaddr.SigComponent
	// Size in bytes. Zero means no size was given: the size of the
	// backing store is adopted, and without a backing path the volume is
	// rejected with ErrNoSizeOrBacking. An empty disk cannot be described
	// without a backing store.
	Size int64
	// BackingPath is the file or device holding the data. Optional for
	// address-only topologies.
	BackingPath string
}

// Simple is a leaf volume backed by a single device.
type Simple struct {
	node
	signature   []blockaddr.SigComponent
	backingPath string
}

// Simple builds a leaf volume. If a backing path is given the backing
// store must already exist and be at least cfg.Size bytes long.
func (b *Builder) Simple(cfg SimpleConfig) (*Simple, error) {
	s := &Simple{
		node:        node{id: b.ids.NextID(), size: cfg.Size},
		signature:   cloneSignature(cfg.Signature),
		backingPath: cfg.BackingPath,
	}
	if cfg.Size < 0 {
		return nil, configError(s.String(), ErrNegativeSize)
	}
	if cfg.BackingPath == "" {
		if cfg.Size == 0 {
			return nil, configError(s.String(), ErrNoSizeOrBacking)
		}
		if err := s.checkSignature(); err != nil {
			return nil, err
		}
		return s, nil
	}

	f, err := os.OpenFile(cfg.BackingPath, os.O_RDWR, 0)
	if err != nil {
		return nil, configError(s.String(), err)
	}
	defer f.Close()

	actual, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, configError(s.String(), err)
	}
	if s.size == 0 {
		s.size = actual
	} else if actual < s.size {
		return nil, configError(s.String(),
			fmt.Errorf("%w: %s is %d bytes, want %d", ErrBackingTooSmall, cfg.BackingPath, actual, s.size))
	}
	if err := s.checkSignature(); err != nil {
		return nil, err
	}
	for _, comp := range s.signature {
		if _, err := f.WriteAt(comp.Contents, s.sigPos(comp)); err != nil {
			return nil, configError(s.String(), fmt.Errorf("write signature: %w", err))
		}
	}
	return s, nil
}

func cloneSignature(sig []blockaddr.SigComponent) []blockaddr.SigComponent {
	if len(sig) == 0 {
		return nil
	}
	out := make([]blockaddr.SigComponent, len(sig))
	for i, c := range sig {
		out[i] = blockaddr.SigComponent{Offset: c.Offset, Contents: append([]byte(nil), c.Contents...)}
	}
	return out
}

func (s *Simple) sigPos(comp blockaddr.SigComponent) int64 {
	if comp.Offset < 0 {
		return s.size + comp.Offset
	}
	return comp.Offset
}

func (s *Simple) checkSignature() error {
	for _, comp := range s.signature {
		pos := s.sigPos(comp)
		if pos < 0 || pos+int64(len(comp.Contents)) > s.size {
			return configError(s.String(),
				fmt.Errorf("%w: %d bytes at %d", ErrSignatureBounds, len(comp.Contents), comp.Offset))
		}
	}
	return nil
}

// Kind returns KindSimple.
func (s *Simple) Kind() Kind { return KindSimple }

// Children returns nil; a simple volume is always a leaf.
func (s *Simple) Children() []Volume { return nil }

// BackingPath returns the backing file, or "" for address-only volumes.
func (s *Simple) BackingPath() string { return s.backingPath }

// Signature returns a copy of the signature components.
func (s *Simple) Signature() []blockaddr.SigComponent {
	return cloneSignature(s.signature)
}

// Resolve is the identity mapping.
func (s *Simple) Resolve(offset int64) (*Simple, int64, error) {
	if err := checkRange(s, offset); err != nil {
		return nil, 0, err
	}
	return s, offset, nil
}

// Extent runs from offset to the end of the volume, bounded by limit.
func (s *Simple) Extent(offset, limit int64) (Mapping, error) {
	if err := checkExtent(s, offset, limit); err != nil {
		return Mapping{}, err
	}
	return Mapping{Leaf: s, Offset: offset, Length: min(limit, s.size-offset)}, nil
}

// Encode returns the simple descriptor carrying the signature.
func (s *Simple) Encode(Index) (blockaddr.Volume, error) {
	return blockaddr.Volume{
		Type:   blockaddr.VolumeSimple,
		Simple: &blockaddr.SimpleInfo{Signature: cloneSignature(s.signature)},
	}, nil
}

func (s *Simple) String() string { return name(KindSimple, s.id) }
