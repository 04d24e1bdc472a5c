// Package fixture assembles a configured topology into a bound, open
// volume with the block layout filesystem laid out on it.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/example/blocklayout/pkg/blockaddr"
	"github.com/example/blocklayout/pkg/blockdev"
	"github.com/example/blocklayout/pkg/config"
	"github.com/example/blocklayout/pkg/fs/blockfs"
	"github.com/example/blocklayout/pkg/volume"
)

// Fixture is an open volume and the filesystem on it.
type Fixture struct {
	Volume *blockdev.Volume
	FS     *blockfs.FileSystem

	cfg    config.FixtureConfig
	mode   blockdev.Mode
	logger *slog.Logger
}

// Build constructs cfg's topology and binds it without touching any
// backing store beyond creating the ones marked create.
func Build(cfg *config.Config, logger *slog.Logger) (*blockdev.Volume, error) {
	ids, err := cfg.IDAllocator.Allocator()
	if err != nil {
		return nil, err
	}
	root, err := cfg.Topology.Build(volume.NewBuilder(ids))
	if err != nil {
		return nil, fmt.Errorf("building topology: %w", err)
	}
	return blockdev.New(root, logger)
}

// Open builds and opens the volume and lays out the filesystem. When
// the config names a state file that exists, the namespace is restored
// from it; otherwise the configured files are created and, on a
// writable volume, the reserved blocks are marked.
func Open(ctx context.Context, cfg *config.Config, mode blockdev.Mode, logger *slog.Logger) (*Fixture, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	vol, err := Build(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := vol.Open(mode); err != nil {
		return nil, err
	}

	opts := blockfs.DefaultOptions()
	opts.BlockSize = int64(cfg.Fixture.BlockSize)
	opts.FirstFreeBlock = cfg.Fixture.FirstFreeBlock
	fsys, err := blockfs.New(vol, opts, logger)
	if err != nil {
		vol.Close()
		return nil, err
	}

	f := &Fixture{Volume: vol, FS: fsys, cfg: cfg.Fixture, mode: mode, logger: logger}
	restored, err := f.restore()
	if err == nil && !restored {
		err = f.populate(ctx)
	}
	if err != nil {
		vol.Close()
		return nil, err
	}
	return f, nil
}

func (f *Fixture) restore() (bool, error) {
	if f.cfg.StateFile == "" {
		return false, nil
	}
	r, err := os.Open(f.cfg.StateFile)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer r.Close()
	if err := f.FS.LoadState(r); err != nil {
		return false, fmt.Errorf("%s: %w", f.cfg.StateFile, err)
	}
	f.logger.Info("restored filesystem state", "path", f.cfg.StateFile, "files", len(f.FS.Names()))
	return true, nil
}

func (f *Fixture) populate(ctx context.Context) error {
	for _, fc := range f.cfg.Files {
		h, err := f.FS.Create(ctx, fc.Name, int64(fc.Size))
		if err != nil {
			return err
		}
		for _, e := range fc.Extents {
			state := blockaddr.ReadWriteData
			if e.Hole {
				state = blockaddr.NoneData
			}
			if err := f.FS.Place(ctx, h, e.File, e.Disk, e.Length, state); err != nil {
				return err
			}
		}
	}
	if !f.cfg.MarkBlocks || f.mode != blockdev.ReadWrite {
		return nil
	}
	if err := f.FS.MarkRange(1, f.cfg.FirstFreeBlock); err != nil {
		return err
	}
	if err := f.FS.MarkFileEnds(ctx); err != nil {
		return err
	}
	f.logger.Info("marked reserved blocks", "blocks", f.cfg.FirstFreeBlock-1)
	return nil
}

// SaveState writes the filesystem state to the configured state file.
// It does nothing when none is configured.
func (f *Fixture) SaveState() error {
	if f.cfg.StateFile == "" {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.cfg.StateFile), ".state-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := f.FS.SaveState(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.cfg.StateFile)
}

// Close saves state on a writable volume and closes the volume.
func (f *Fixture) Close() error {
	var err error
	if f.mode == blockdev.ReadWrite {
		err = f.SaveState()
		if serr := f.Volume.Sync(); err == nil {
			err = serr
		}
	}
	if cerr := f.Volume.Close(); err == nil {
		err = cerr
	}
	return err
}
