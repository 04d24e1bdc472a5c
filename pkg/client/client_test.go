package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/blocklayout/pkg/blockaddr"
	"github.com/example/blocklayout/pkg/fs"
	"github.com/example/blocklayout/pkg/nfs"
)

// mockDeviceService answers the device list and device info methods
// from canned data and counts calls.
type mockDeviceService struct {
	mu        sync.Mutex
	verifier  uint64
	id        blockaddr.DeviceID
	addr      []byte
	failures  int // GetDeviceList answers Unavailable this many times
	listCalls int
	infoCalls int
}

func mockHandler[Req proto.Message](newReq func() Req, fn func(*mockDeviceService, Req) (proto.Message, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		return fn(srv.(*mockDeviceService), in)
	}
}

var mockDesc = grpc.ServiceDesc{
	ServiceName: nfs.ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetDeviceList",
			Handler: mockHandler(func() *emptypb.Empty { return new(emptypb.Empty) },
				func(m *mockDeviceService, _ *emptypb.Empty) (proto.Message, error) {
					m.mu.Lock()
					defer m.mu.Unlock()
					m.listCalls++
					if m.failures > 0 {
						m.failures--
						return nil, status.Error(codes.Unavailable, "try again")
					}
					return nfs.DeviceListToStruct(m.verifier, []blockaddr.DeviceID{m.id})
				}),
		},
		{
			MethodName: "GetDeviceInfo",
			Handler: mockHandler(func() *wrapperspb.BytesValue { return new(wrapperspb.BytesValue) },
				func(m *mockDeviceService, in *wrapperspb.BytesValue) (proto.Message, error) {
					m.mu.Lock()
					defer m.mu.Unlock()
					m.infoCalls++
					if string(in.GetValue()) != string(m.id[:]) {
						return nil, nfs.ToGRPC(fs.NewError("getdeviceinfo", "", fs.ErrNotExist))
					}
					return wrapperspb.Bytes(m.addr), nil
				}),
		},
	},
	Streams: []grpc.StreamDesc{},
}

func setupMockServer(t *testing.T) (*mockDeviceService, *Client) {
	t.Helper()
	addr, err := blockaddr.Marshal(blockaddr.DeviceAddr{Volumes: []blockaddr.Volume{
		{Type: blockaddr.VolumeSimple, Simple: &blockaddr.SimpleInfo{Signature: []blockaddr.SigComponent{{Offset: -512, Contents: []byte("sig")}}}},
		{Type: blockaddr.VolumeSlice, Slice: &blockaddr.SliceInfo{Start: 0, Length: 4096, Volume: 0}},
	}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	mock := &mockDeviceService{verifier: 1, id: blockaddr.DeviceID{0xde, 0xad}, addr: addr}

	listener := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer()
	server.RegisterService(&mockDesc, mock)
	go server.Serve(listener)
	t.Cleanup(server.Stop)

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("Failed to dial bufnet: %v", err)
	}

	client := NewClientWithConn(conn, &Config{
		Timeout:       5 * time.Second,
		MaxRetries:    3,
		RetryDelay:    time.Millisecond,
		BackoffFactor: 1,
		MaxCacheSize:  8,
		CacheTTL:      time.Minute,
	})
	t.Cleanup(func() { client.Close() })
	return mock, client
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.ServerAddress != "127.0.0.1:2050" {
		t.Errorf("Expected default ServerAddress to be 127.0.0.1:2050, got %s", config.ServerAddress)
	}
	if config.MaxRetries != 3 {
		t.Errorf("Expected default MaxRetries to be 3, got %d", config.MaxRetries)
	}
}

func TestDeviceInfoCached(t *testing.T) {
	mock, client := setupMockServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		addr, err := client.DeviceInfo(ctx, mock.id)
		if err != nil {
			t.Fatalf("DeviceInfo failed: %v", err)
		}
		if len(addr.Volumes) != 2 || addr.Volumes[1].Slice.Length != 4096 {
			t.Fatalf("decoded address = %+v", addr)
		}
	}
	if mock.infoCalls != 1 {
		t.Errorf("server saw %d GetDeviceInfo calls, want 1", mock.infoCalls)
	}
}

func TestVerifierChangeClearsCache(t *testing.T) {
	mock, client := setupMockServer(t)
	ctx := context.Background()

	ids, err := client.DeviceList(ctx)
	if err != nil {
		t.Fatalf("DeviceList failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != mock.id {
		t.Fatalf("ids = %v", ids)
	}
	if _, err := client.DeviceInfo(ctx, mock.id); err != nil {
		t.Fatalf("DeviceInfo failed: %v", err)
	}

	// Same verifier keeps the cache.
	if _, err := client.DeviceList(ctx); err != nil {
		t.Fatalf("DeviceList failed: %v", err)
	}
	if client.Cache().Len() != 1 {
		t.Fatalf("cache dropped with unchanged verifier")
	}

	mock.mu.Lock()
	mock.verifier = 2
	mock.mu.Unlock()
	if _, err := client.DeviceList(ctx); err != nil {
		t.Fatalf("DeviceList failed: %v", err)
	}
	if client.Cache().Len() != 0 {
		t.Errorf("cache kept %d entries after verifier change", client.Cache().Len())
	}
	if _, err := client.DeviceInfo(ctx, mock.id); err != nil {
		t.Fatalf("DeviceInfo failed: %v", err)
	}
	if mock.infoCalls != 2 {
		t.Errorf("server saw %d GetDeviceInfo calls, want 2", mock.infoCalls)
	}
}

func TestRetryTransientFailures(t *testing.T) {
	mock, client := setupMockServer(t)
	mock.failures = 2

	if _, err := client.DeviceList(context.Background()); err != nil {
		t.Fatalf("DeviceList failed after transient errors: %v", err)
	}
	if mock.listCalls != 3 {
		t.Errorf("listCalls = %d, want 3", mock.listCalls)
	}

	mock.mu.Lock()
	mock.failures, mock.listCalls = 10, 0
	mock.mu.Unlock()
	_, err := client.DeviceList(context.Background())
	if status.Code(err) != codes.Unavailable {
		t.Errorf("code = %v, want Unavailable (%v)", status.Code(err), err)
	}
	if mock.listCalls != 4 {
		t.Errorf("listCalls = %d, want 4", mock.listCalls)
	}
}

func TestUnknownDevice(t *testing.T) {
	mock, client := setupMockServer(t)
	_, err := client.DeviceInfo(context.Background(), blockaddr.DeviceID{1})
	if !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("error %v is not ErrUnknownDevice", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error %v does not match fs.ErrNotExist", err)
	}
	if st, ok := Status(err); !ok || st != nfs.StatusErrNoEnt {
		t.Errorf("Status = %v, %v", st, ok)
	}
	if mock.infoCalls != 1 {
		t.Errorf("status errors were retried: %d calls", mock.infoCalls)
	}
}

func TestIsRetryableError(t *testing.T) {
	withStatus := nfs.ToGRPC(fs.ErrLayoutUnavailable)
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unavailable", status.Error(codes.Unavailable, "down"), true},
		{"exhausted", status.Error(codes.ResourceExhausted, "busy"), true},
		{"aborted", status.Error(codes.Aborted, "again"), true},
		{"internal", status.Error(codes.Internal, "bug"), false},
		{"nfs status", withStatus, false},
		{"deadline", context.DeadlineExceeded, false},
		{"plain", errors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
	if status.Code(withStatus) != codes.Unavailable {
		t.Errorf("LAYOUTUNAVAILABLE travels as %v", status.Code(withStatus))
	}
}
