package fuse

import (
	"context"
	"fmt"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
)

// MountOptions contains options for mounting the filesystem
type MountOptions struct {
	MountPoint string
	ReadOnly   bool
	AllowOther bool
	Debug      bool
}

// Mount mounts v at options.MountPoint and serves it until ctx is done
// or the mount goes away. The mount point is unmounted on return.
func Mount(ctx context.Context, v *VolumeFS, options MountOptions) error {
	logger := v.logger
	mountOpts := []fuse.MountOption{
		fuse.FSName("blocklayout"),
		fuse.Subtype("blockvol"),
	}
	if options.ReadOnly || v.readOnly {
		mountOpts = append(mountOpts, fuse.ReadOnly())
	}
	if options.AllowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}
	if options.Debug {
		fuse.Debug = func(msg interface{}) {
			logger.Debug("fuse", "msg", fmt.Sprint(msg))
		}
	}

	logger.Info("mounting volume", "mountpoint", options.MountPoint, "size", v.vol.Size(), "device", v.vol.DeviceID().String())
	c, err := fuse.Mount(options.MountPoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("failed to mount: %w", err)
	}
	defer c.Close()

	served := make(chan error, 1)
	go func() {
		served <- fs.Serve(c, v)
	}()

	select {
	case err := <-served:
		if err != nil {
			return fmt.Errorf("serving %s: %w", options.MountPoint, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("unmounting volume", "mountpoint", options.MountPoint)
	if err := Unmount(options.MountPoint); err != nil {
		logger.Warn("failed to unmount cleanly", "error", err)
		return err
	}
	if err := <-served; err != nil {
		return fmt.Errorf("serving %s: %w", options.MountPoint, err)
	}
	return nil
}

// Unmount unmounts the filesystem
func Unmount(mountPoint string) error {
	return fuse.Unmount(mountPoint)
}
