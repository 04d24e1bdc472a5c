package client

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/blocklayout/pkg/blockaddr"
	"github.com/example/blocklayout/pkg/fs"
	"github.com/example/blocklayout/pkg/nfs"
)

// DeviceList returns the ids of the devices the server exports.
func (c *Client) DeviceList(ctx context.Context) ([]blockaddr.DeviceID, error) {
	out := new(structpb.Struct)
	err := c.callWithRetry(ctx, "GetDeviceList", func(ctx context.Context) error {
		return c.conn.Invoke(ctx, nfs.MethodGetDeviceList, &emptypb.Empty{}, out)
	})
	if err != nil {
		return nil, wrapError("GetDeviceList", err)
	}
	verifier, ids, err := nfs.StructToDeviceList(out)
	if err != nil {
		return nil, fmt.Errorf("GetDeviceList: %w", err)
	}

	c.mu.Lock()
	if c.haveVerifier && c.verifier != verifier {
		c.cache.Clear()
	}
	c.verifier, c.haveVerifier = verifier, true
	c.mu.Unlock()
	return ids, nil
}

// DeviceInfo returns the decoded address of device id.
func (c *Client) DeviceInfo(ctx context.Context, id blockaddr.DeviceID) (blockaddr.DeviceAddr, error) {
	if addr, ok := c.cache.Get(id); ok {
		return addr, nil
	}
	raw, err := c.DeviceAddress(ctx, id)
	if err != nil {
		return blockaddr.DeviceAddr{}, err
	}
	addr, err := blockaddr.Unmarshal(raw)
	if err != nil {
		return blockaddr.DeviceAddr{}, fmt.Errorf("GetDeviceInfo %s: %w", id, err)
	}
	c.cache.Put(id, addr)
	return addr, nil
}

// DeviceAddress returns the encoded pnfs_block_deviceaddr4 of device id,
// bypassing the cache.
func (c *Client) DeviceAddress(ctx context.Context, id blockaddr.DeviceID) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	err := c.callWithRetry(ctx, "GetDeviceInfo", func(ctx context.Context) error {
		return c.conn.Invoke(ctx, nfs.MethodGetDeviceInfo, wrapperspb.Bytes(id[:]), out)
	})
	if err != nil {
		err = wrapError("GetDeviceInfo", err)
		if st, ok := Status(err); ok && st == nfs.StatusErrNoEnt {
			c.cache.Invalidate(id)
			return nil, fmt.Errorf("%w %s: %w", ErrUnknownDevice, id, err)
		}
		return nil, err
	}
	return out.GetValue(), nil
}

// Lookup resolves a file name to its handle.
func (c *Client) Lookup(ctx context.Context, name string) (fs.FileHandle, error) {
	out := new(wrapperspb.BytesValue)
	err := c.callWithRetry(ctx, "Lookup", func(ctx context.Context) error {
		return c.conn.Invoke(ctx, nfs.MethodLookup, wrapperspb.String(name), out)
	})
	if err != nil {
		return fs.FileHandle{}, wrapError("Lookup", err)
	}
	return fs.DeserializeFileHandle(out.GetValue())
}

// GetAttr returns the attributes of the file behind h.
func (c *Client) GetAttr(ctx context.Context, h fs.FileHandle) (fs.FileInfo, error) {
	out := new(structpb.Struct)
	err := c.callWithRetry(ctx, "GetAttr", func(ctx context.Context) error {
		return c.conn.Invoke(ctx, nfs.MethodGetAttr, wrapperspb.Bytes(h.Serialize()), out)
	})
	if err != nil {
		return fs.FileInfo{}, wrapError("GetAttr", err)
	}
	return nfs.StructToFileInfo(out)
}

// LayoutGet asks for a layout of [offset, offset+length) of the file.
// A length of all ones asks for the whole file.
func (c *Client) LayoutGet(ctx context.Context, h fs.FileHandle, offset, length uint64, iomode uint32) (blockaddr.LayoutGetResult, error) {
	args := blockaddr.LayoutGetArgs{
		FileHandle: h.Serialize(),
		IOMode:     iomode,
		Offset:     offset,
		Length:     length,
	}
	out := new(wrapperspb.BytesValue)
	err := c.callWithRetry(ctx, "LayoutGet", func(ctx context.Context) error {
		return c.conn.Invoke(ctx, nfs.MethodLayoutGet, wrapperspb.Bytes(args.Marshal()), out)
	})
	if err != nil {
		return blockaddr.LayoutGetResult{}, wrapError("LayoutGet", err)
	}
	return blockaddr.UnmarshalLayoutGetResult(out.GetValue())
}

// LayoutCommit commits the extents in args.Update.
func (c *Client) LayoutCommit(ctx context.Context, args blockaddr.LayoutCommitArgs) (blockaddr.LayoutCommitResult, error) {
	out := new(wrapperspb.BytesValue)
	err := c.callWithRetry(ctx, "LayoutCommit", func(ctx context.Context) error {
		return c.conn.Invoke(ctx, nfs.MethodLayoutCommit, wrapperspb.Bytes(args.Marshal()), out)
	})
	if err != nil {
		return blockaddr.LayoutCommitResult{}, wrapError("LayoutCommit", err)
	}
	return blockaddr.UnmarshalLayoutCommitResult(out.GetValue())
}
