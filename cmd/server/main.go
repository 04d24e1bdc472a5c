package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/profile"
	"github.com/spf13/pflag"

	"github.com/example/blocklayout/pkg/blockdev"
	"github.com/example/blocklayout/pkg/config"
	"github.com/example/blocklayout/pkg/fixture"
	"github.com/example/blocklayout/pkg/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("blocklayout-server", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "", "YAML config file (default $"+config.EnvVar+", else the built-in fixture)")
	listenAddr := flagSet.String("listen", "", "network address to listen on, overrides server.listen")
	maxConcurrent := flagSet.Int("max-concurrent", 0, "maximum concurrent requests, overrides server.max_concurrent")
	requestTimeout := flagSet.Duration("timeout", 30*time.Second, "per-request timeout")
	noMark := flagSet.Bool("no-mark", false, "do not mark the reserved blocks")
	logLevel := flagSet.String("log-level", "", "debug, info, warn or error, overrides log.level")
	profileMode := flagSet.String("profile", "", "write a cpu or mem profile")
	profileDir := flagSet.String("profile-dir", ".", "directory for profiles")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *listenAddr != "" {
		cfg.Server.Listen = *listenAddr
	}
	if *maxConcurrent > 0 {
		cfg.Server.MaxConcurrent = *maxConcurrent
	}
	if *noMark {
		cfg.Fixture.MarkBlocks = false
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stderr)

	switch *profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(*profileDir), profile.NoShutdownHook, profile.Quiet).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(*profileDir), profile.NoShutdownHook, profile.Quiet).Stop()
	default:
		return fmt.Errorf("unknown profile mode %q", *profileMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fx, err := fixture.Open(ctx, cfg, blockdev.ReadWrite, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := fx.Close(); err != nil {
			logger.Error("closing fixture", "error", err)
		}
	}()
	logger.Info("volume ready",
		"device", fx.Volume.DeviceID().String(),
		"size", humanize.IBytes(uint64(fx.Volume.Size())),
		"leaves", len(fx.Volume.Leaves()),
		"files", len(fx.FS.Names()))

	srv, err := server.NewServer(&server.Config{
		ListenAddress:  cfg.Server.Listen,
		MaxConcurrent:  cfg.Server.MaxConcurrent,
		MaxConnections: cfg.Server.MaxConnections,
		RequestTimeout: *requestTimeout,
	}, fx.Volume, fx.FS, logger)
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
	}
	srv.Stop()
	return <-serverErr
}
