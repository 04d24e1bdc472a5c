package nfs

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/blocklayout/pkg/blockaddr"
	"github.com/example/blocklayout/pkg/fs"
)

// FileInfoToStruct converts filesystem FileInfo to its wire form.
// 64-bit counts are sent as decimal strings since Struct numbers are
// doubles.
func FileInfoToStruct(info fs.FileInfo) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"handle":     hex.EncodeToString(info.Handle.Serialize()),
		"name":       info.Name,
		"size":       strconv.FormatInt(info.Size, 10),
		"block_size": info.BlockSize,
		"blocks":     strconv.FormatUint(info.Blocks, 10),
		"mtime":      info.ModifyTime.UTC().Format(time.RFC3339Nano),
	})
}

// StructToFileInfo is the inverse of FileInfoToStruct.
func StructToFileInfo(s *structpb.Struct) (fs.FileInfo, error) {
	var info fs.FileInfo
	f := s.GetFields()

	raw, err := hex.DecodeString(f["handle"].GetStringValue())
	if err != nil {
		return info, fmt.Errorf("handle: %w", err)
	}
	if info.Handle, err = fs.DeserializeFileHandle(raw); err != nil {
		return info, err
	}
	info.Name = f["name"].GetStringValue()
	if info.Size, err = strconv.ParseInt(f["size"].GetStringValue(), 10, 64); err != nil {
		return info, fmt.Errorf("size: %w", err)
	}
	info.BlockSize = uint32(f["block_size"].GetNumberValue())
	if info.Blocks, err = strconv.ParseUint(f["blocks"].GetStringValue(), 10, 64); err != nil {
		return info, fmt.Errorf("blocks: %w", err)
	}
	if info.ModifyTime, err = time.Parse(time.RFC3339Nano, f["mtime"].GetStringValue()); err != nil {
		return info, fmt.Errorf("mtime: %w", err)
	}
	return info, nil
}

// DeviceListToStruct encodes the GETDEVICELIST result: the verifier and
// the ids of every exported device.
func DeviceListToStruct(verifier uint64, ids []blockaddr.DeviceID) (*structpb.Struct, error) {
	devices := make([]any, len(ids))
	for i, id := range ids {
		devices[i] = id.String()
	}
	return structpb.NewStruct(map[string]any{
		"verifier": strconv.FormatUint(verifier, 16),
		"devices":  devices,
	})
}

// StructToDeviceList is the inverse of DeviceListToStruct.
func StructToDeviceList(s *structpb.Struct) (uint64, []blockaddr.DeviceID, error) {
	f := s.GetFields()
	verifier, err := strconv.ParseUint(f["verifier"].GetStringValue(), 16, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("verifier: %w", err)
	}
	values := f["devices"].GetListValue().GetValues()
	ids := make([]blockaddr.DeviceID, len(values))
	for i, v := range values {
		if ids[i], err = ParseDeviceID(v.GetStringValue()); err != nil {
			return 0, nil, err
		}
	}
	return verifier, ids, nil
}

// ParseDeviceID parses the hex form produced by DeviceID.String.
func ParseDeviceID(s string) (blockaddr.DeviceID, error) {
	var id blockaddr.DeviceID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("device id %q: %w", s, err)
	}
	if len(raw) != blockaddr.DeviceIDSize {
		return id, fmt.Errorf("device id %q: %d bytes", s, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}
