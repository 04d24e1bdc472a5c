package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/example/blocklayout/pkg/blockaddr"
	"github.com/example/blocklayout/pkg/client"
	"github.com/example/blocklayout/pkg/fs/blockfs"
)

const usage = `usage: blocklayout-client [flags] <command> [args]

commands:
  devices           list exported devices and print each topology
  stat NAME         print the attributes of a file
  layout NAME       request a read layout of the whole file and print it

flags:
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("blocklayout-client", pflag.ContinueOnError)
	serverAddr := flagSet.StringP("server", "s", client.DefaultConfig().ServerAddress, "device service address")
	timeout := flagSet.Duration("timeout", 30*time.Second, "overall timeout")
	rw := flagSet.Bool("rw", false, "request a read/write layout")
	flagSet.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	args := flagSet.Args()
	if len(args) == 0 {
		flagSet.Usage()
		return fmt.Errorf("no command")
	}

	config := client.DefaultConfig()
	config.ServerAddress = *serverAddr
	c, err := client.NewClient(config)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch args[0] {
	case "devices":
		return devices(ctx, c)
	case "stat", "layout":
		if len(args) != 2 {
			return fmt.Errorf("%s needs a file name", args[0])
		}
		if args[0] == "stat" {
			return stat(ctx, c, args[1])
		}
		mode := blockfs.IOModeRead
		if *rw {
			mode = blockfs.IOModeRW
		}
		return layout(ctx, c, args[1], uint32(mode))
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func devices(ctx context.Context, c *client.Client) error {
	ids, err := c.DeviceList(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		addr, err := c.DeviceInfo(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("device %s (%d volumes)\n", id, len(addr.Volumes))
		if err := blockaddr.WriteTree(os.Stdout, addr); err != nil {
			return err
		}
	}
	return nil
}

func stat(ctx context.Context, c *client.Client, name string) error {
	h, err := c.Lookup(ctx, name)
	if err != nil {
		return err
	}
	info, err := c.GetAttr(ctx, h)
	if err != nil {
		return err
	}
	fmt.Printf("Name: %s\n", info.Name)
	fmt.Printf("Handle: %s\n", info.Handle)
	fmt.Printf("Size: %d bytes (%s)\n", info.Size, humanize.IBytes(uint64(info.Size)))
	fmt.Printf("Blocks: %d of %d bytes\n", info.Blocks, info.BlockSize)
	fmt.Printf("Last Modified: %s\n", info.ModifyTime)
	return nil
}

func layout(ctx context.Context, c *client.Client, name string, mode uint32) error {
	h, err := c.Lookup(ctx, name)
	if err != nil {
		return err
	}
	res, err := c.LayoutGet(ctx, h, 0, blockfs.WholeFile, mode)
	if err != nil {
		return err
	}
	fmt.Printf("layout %d+%d iomode %d, %d extents\n", res.Offset, res.Length, res.IOMode, len(res.Layout.Extents))
	for _, e := range res.Layout.Extents {
		fmt.Printf("  file %8d len %8d -> storage %10d %v\n", e.FileOffset, e.Length, e.StorageOffset, e.State)
	}
	return nil
}
