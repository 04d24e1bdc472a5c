package client

import (
	"context"

	"github.com/example/blocklayout/pkg/blockaddr"
	"github.com/example/blocklayout/pkg/fs"
)

// DeviceClient defines the device service operations
type DeviceClient interface {
	// DeviceList returns the ids of the exported devices. A changed
	// verifier drops every cached address.
	DeviceList(ctx context.Context) ([]blockaddr.DeviceID, error)

	// DeviceInfo returns the decoded address of a device, from the cache
	// when possible.
	DeviceInfo(ctx context.Context, id blockaddr.DeviceID) (blockaddr.DeviceAddr, error)

	// Lookup resolves a file name to its handle
	Lookup(ctx context.Context, name string) (fs.FileHandle, error)

	// GetAttr returns a file's attributes
	GetAttr(ctx context.Context, h fs.FileHandle) (fs.FileInfo, error)

	// LayoutGet asks for a block layout of a byte range of a file
	LayoutGet(ctx context.Context, h fs.FileHandle, offset, length uint64, iomode uint32) (blockaddr.LayoutGetResult, error)

	// LayoutCommit commits blocks written through a layout
	LayoutCommit(ctx context.Context, args blockaddr.LayoutCommitArgs) (blockaddr.LayoutCommitResult, error)

	// Close closes the client connection and releases all resources
	Close() error
}

var _ DeviceClient = (*Client)(nil)
