package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/example/blocklayout/pkg/blockdev"
	"github.com/example/blocklayout/pkg/config"
	"github.com/example/blocklayout/pkg/fixture"
	"github.com/example/blocklayout/pkg/fuse"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("blockvol-fuse", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "", "YAML config file (default $"+config.EnvVar+", else the built-in fixture)")
	mountPoint := flagSet.StringP("mount", "m", "", "mount point")
	readOnly := flagSet.Bool("readonly", false, "mount read-only")
	allowOther := flagSet.Bool("allow-other", false, "let other users access the mount")
	debug := flagSet.Bool("debug", false, "log FUSE traffic")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *mountPoint == "" {
		flagSet.Usage()
		return fmt.Errorf("mount point is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	logger := cfg.Log.NewLogger(os.Stderr)

	if err := os.MkdirAll(*mountPoint, 0o755); err != nil {
		return fmt.Errorf("creating mount point: %w", err)
	}

	mode := blockdev.ReadWrite
	if *readOnly {
		mode = blockdev.ReadOnly
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fx, err := fixture.Open(ctx, cfg, mode, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := fx.Close(); err != nil {
			logger.Error("closing fixture", "error", err)
		}
	}()

	v := fuse.NewVolumeFS(fx.Volume, fx.FS, *readOnly, logger)
	return fuse.Mount(ctx, v, fuse.MountOptions{
		MountPoint: *mountPoint,
		ReadOnly:   *readOnly,
		AllowOther: *allowOther,
		Debug:      *debug,
	})
}
