package nfs

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/blocklayout/pkg/blockaddr"
	"github.com/example/blocklayout/pkg/fs"
	"github.com/example/blocklayout/pkg/volume"
)

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, StatusOK},
		{"not exist", fs.NewError("lookup", "x", fs.ErrNotExist), StatusErrNoEnt},
		{"bad handle", fmt.Errorf("open: %w", fs.ErrInvalidHandle), StatusErrBadHandle},
		{"no space", fs.ErrNoSpace, StatusErrNoSpc},
		{"bad layout", fs.NewError("layoutcommit", "", fs.ErrBadLayout), StatusErrBadLayout},
		{"unavailable", fs.ErrLayoutUnavailable, StatusErrLayoutUnavail},
		{"iomode", fs.ErrBadIOMode, StatusErrBadIOMode},
		{"uninitialized", fs.ErrUninitialized, StatusErrIO},
		{"out of range", &volume.RangeError{Volume: "simple#0", Offset: 10, Size: 5}, StatusErrNXIO},
		{"short xdr", fmt.Errorf("args: %w", blockaddr.ErrShortBuffer), StatusErrBadXDR},
		{"layout type", blockaddr.ErrBadUnion, StatusErrUnknownLayout},
		{"os not exist", &os.PathError{Op: "open", Path: "/x", Err: os.ErrNotExist}, StatusErrNoEnt},
		{"errno", fmt.Errorf("pwrite: %w", syscall.ENOSPC), StatusErrNoSpc},
		{"carried status", NewError("op", StatusErrNotSupp, "", nil), StatusErrNotSupp},
		{"unknown", errors.New("boom"), StatusErrIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapErrorToStatus(tt.err); got != tt.want {
				t.Errorf("MapErrorToStatus(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatusString(t *testing.T) {
	if got := StatusErrBadLayout.String(); got != "NFS4ERR_BADLAYOUT" {
		t.Errorf("String() = %q", got)
	}
	if got := Status(4242).String(); got != "nfsstat4(4242)" {
		t.Errorf("String() = %q", got)
	}
}

func TestGRPCRoundTrip(t *testing.T) {
	sent := fs.NewError("layoutcommit", "FileHandle{FS:3, Inode:1, Gen:1}", fs.ErrBadLayout)
	wire := ToGRPC(sent)

	st, ok := status.FromError(wire)
	if !ok {
		t.Fatalf("ToGRPC returned non-status error %v", wire)
	}
	if st.Code() != codes.FailedPrecondition {
		t.Errorf("code = %v, want FailedPrecondition", st.Code())
	}

	got := FromGRPC("LayoutCommit", wire)
	var nerr *Error
	if !errors.As(got, &nerr) {
		t.Fatalf("FromGRPC returned %T", got)
	}
	if nerr.Status != StatusErrBadLayout {
		t.Errorf("status = %v", nerr.Status)
	}
	if !errors.Is(got, fs.ErrBadLayout) {
		t.Errorf("recovered error does not match fs.ErrBadLayout: %v", got)
	}
	if MapErrorToStatus(got) != StatusErrBadLayout {
		t.Error("status not preserved through a second mapping")
	}
}

func TestFromGRPCWithoutDetail(t *testing.T) {
	err := status.Error(codes.Unavailable, "connection refused")
	if got := FromGRPC("GetDeviceList", err); got != err {
		t.Errorf("FromGRPC changed a transport error: %v", got)
	}
	if ToGRPC(nil) != nil || FromGRPC("x", nil) != nil {
		t.Error("nil not preserved")
	}
}

func TestFileInfoStruct(t *testing.T) {
	info := fs.FileInfo{
		Handle:     fs.FileHandle{FileSystemID: 3, Inode: 9, Generation: 1},
		Name:       "split_extent",
		Size:       14336,
		BlockSize:  4096,
		Blocks:     4,
		ModifyTime: time.Date(2026, 10, 16, 12, 0, 0, 5, time.UTC),
	}
	s, err := FileInfoToStruct(info)
	if err != nil {
		t.Fatal(err)
	}
	got, err := StructToFileInfo(s)
	if err != nil {
		t.Fatal(err)
	}
	if !got.ModifyTime.Equal(info.ModifyTime) {
		t.Errorf("mtime = %v, want %v", got.ModifyTime, info.ModifyTime)
	}
	got.ModifyTime = info.ModifyTime
	if got != info {
		t.Errorf("got %+v, want %+v", got, info)
	}
}

func TestDeviceListStruct(t *testing.T) {
	ids := []blockaddr.DeviceID{{1}, {0xff, 2}}
	s, err := DeviceListToStruct(0xfedcba9876543210, ids)
	if err != nil {
		t.Fatal(err)
	}
	verifier, got, err := StructToDeviceList(s)
	if err != nil {
		t.Fatal(err)
	}
	if verifier != 0xfedcba9876543210 {
		t.Errorf("verifier = %x", verifier)
	}
	if len(got) != 2 || got[0] != ids[0] || got[1] != ids[1] {
		t.Errorf("ids = %v", got)
	}

	if _, err := ParseDeviceID("abcd"); err == nil {
		t.Error("short device id accepted")
	}
}
