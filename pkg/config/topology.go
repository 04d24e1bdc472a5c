package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/example/blocklayout/pkg/blockaddr"
	"github.com/example/blocklayout/pkg/volume"
)

var (
	ErrUnknownVolume = errors.New("unknown volume")
	ErrCycle         = errors.New("volume refers to itself")
)

// Allocator returns the id allocator selected by the config.
func (c IDAllocatorConfig) Allocator() (volume.IDAllocator, error) {
	switch c.Kind {
	case "", "counter":
		return &volume.Counter{}, nil
	case "snowflake":
		return volume.NewSnowflakeAllocator(c.Node)
	default:
		return nil, fmt.Errorf("unknown id allocator %q", c.Kind)
	}
}

// Build constructs the volume named by Root and everything it refers to.
// A name referenced more than once yields one shared volume, so the
// serialized address lists it once. Volumes unreachable from Root are
// not built.
func (t TopologyConfig) Build(b *volume.Builder) (volume.Volume, error) {
	tb := &topologyBuilder{
		cfg:      t,
		b:        b,
		built:    make(map[string]volume.Volume),
		visiting: make(map[string]bool),
	}
	return tb.build(t.Root)
}

type topologyBuilder struct {
	cfg      TopologyConfig
	b        *volume.Builder
	built    map[string]volume.Volume
	visiting map[string]bool
}

func (tb *topologyBuilder) build(name string) (volume.Volume, error) {
	if v, ok := tb.built[name]; ok {
		return v, nil
	}
	vc, ok := tb.cfg.Volumes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVolume, name)
	}
	if tb.visiting[name] {
		return nil, fmt.Errorf("%w: %q", ErrCycle, name)
	}
	tb.visiting[name] = true
	defer delete(tb.visiting, name)

	v, err := tb.construct(vc)
	if err != nil {
		return nil, fmt.Errorf("volume %s: %w", name, err)
	}
	tb.built[name] = v
	return v, nil
}

func (tb *topologyBuilder) members(names []string) ([]volume.Volume, error) {
	vols := make([]volume.Volume, 0, len(names))
	for _, n := range names {
		v, err := tb.build(n)
		if err != nil {
			return nil, err
		}
		vols = append(vols, v)
	}
	return vols, nil
}

func (tb *topologyBuilder) construct(vc VolumeConfig) (volume.Volume, error) {
	switch vc.Type {
	case "simple":
		if vc.Create {
			if err := createBacking(vc.Backing, int64(vc.Size)); err != nil {
				return nil, err
			}
		}
		sig := make([]blockaddr.SigComponent, len(vc.Signature))
		for i, s := range vc.Signature {
			sig[i] = blockaddr.SigComponent{Offset: s.Offset, Contents: []byte(s.Contents)}
		}
		return tb.b.Simple(volume.SimpleConfig{
			Signature:   sig,
			Size:        int64(vc.Size),
			BackingPath: vc.Backing,
		})
	case "slice":
		child, err := tb.build(vc.Of)
		if err != nil {
			return nil, err
		}
		length := int64(vc.Length)
		if length == 0 {
			length = child.Size() - int64(vc.Start)
		}
		return tb.b.Slice(child, int64(vc.Start), length)
	case "concat":
		vols, err := tb.members(vc.Members)
		if err != nil {
			return nil, err
		}
		return tb.b.Concat(vols)
	case "stripe":
		vols, err := tb.members(vc.Members)
		if err != nil {
			return nil, err
		}
		return tb.b.Stripe(int64(vc.Unit), vols)
	default:
		return nil, fmt.Errorf("unknown volume type %q", vc.Type)
	}
}

// createBacking makes a sparse backing file of at least size bytes. An
// existing larger file is left alone.
func createBacking(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.Mode().IsRegular() && fi.Size() < size {
		return f.Truncate(size)
	}
	return nil
}
