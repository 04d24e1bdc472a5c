// devaddr builds the configured topology without opening any backing
// store and prints its encoded device address and volume list.
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/example/blocklayout/pkg/blockaddr"
	"github.com/example/blocklayout/pkg/config"
	"github.com/example/blocklayout/pkg/fixture"
	"github.com/example/blocklayout/pkg/volume"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("devaddr", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "", "YAML config file (default $"+config.EnvVar+", else the built-in fixture)")
	raw := flagSet.Bool("raw", false, "write the address bytes to stdout instead of hex")
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
	// Sized disks need no backing store to be described.
	for name, vc := range cfg.Topology.Volumes {
		if vc.Type == "simple" && vc.Size > 0 {
			vc.Backing, vc.Create = "", false
			cfg.Topology.Volumes[name] = vc
		}
	}
	vol, err := fixture.Build(cfg, nil)
	if err != nil {
		return err
	}
	address := vol.Address()
	if *raw {
		_, err := os.Stdout.Write(address)
		return err
	}

	fmt.Printf("Size: %s (%d bytes)\n", humanize.IBytes(uint64(vol.Size())), vol.Size())
	fmt.Printf("Address (%d bytes):\n%s\n", len(address), hex.EncodeToString(address))
	fmt.Println("Dump order:")
	for i, v := range volume.Dump(vol.Root()) {
		fmt.Printf("  [%d] %s\n", i, v)
	}
	decoded, err := blockaddr.Unmarshal(address)
	if err != nil {
		return fmt.Errorf("address does not decode: %w", err)
	}
	fmt.Println("Topology:")
	return blockaddr.WriteTree(os.Stdout, decoded)
}
