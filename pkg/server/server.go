// Package server exports a bound block volume, and optionally the layout
// filesystem on it, over gRPC.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/netutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/protobuf/proto"

	"github.com/example/blocklayout/pkg/blockdev"
	"github.com/example/blocklayout/pkg/fs/blockfs"
	"github.com/example/blocklayout/pkg/nfs"
)

// Config contains the device server configuration
type Config struct {
	// Network address to listen on (e.g. "127.0.0.1:2050")
	ListenAddress string

	// Maximum concurrent requests
	MaxConcurrent int

	// Maximum open connections; zero means unlimited
	MaxConnections int

	// Per-request timeout
	RequestTimeout time.Duration
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ListenAddress:  "127.0.0.1:2050",
		MaxConcurrent:  16,
		MaxConnections: 64,
		RequestTimeout: 30 * time.Second,
	}
}

// Server implements the device service
type Server struct {
	config *Config
	vol    *blockdev.Volume
	fsys   *blockfs.FileSystem
	logger *slog.Logger

	// Worker pool for limiting concurrent requests
	workerPool chan struct{}
	reqSeq     atomic.Uint64

	mu         sync.Mutex
	grpcServer *grpc.Server
	lis        net.Listener
	stopped    bool
}

// NewServer creates a server for vol. fsys may be nil, in which case the
// file and layout methods answer NFS4ERR_NOTSUPP.
func NewServer(config *Config, vol *blockdev.Volume, fsys *blockfs.FileSystem, logger *slog.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("max concurrent requests must be positive, got %d", config.MaxConcurrent)
	}
	if vol == nil {
		return nil, fmt.Errorf("no volume to export")
	}
	if fsys != nil && fsys.Volume() != vol {
		return nil, fmt.Errorf("filesystem lives on a different volume")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		config:     config,
		vol:        vol,
		fsys:       fsys,
		logger:     logger,
		workerPool: make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Register adds the device service to gs.
func (s *Server) Register(gs grpc.ServiceRegistrar) {
	gs.RegisterService(&serviceDesc, s)
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if s.config.MaxConnections > 0 {
		lis = netutil.LimitListener(lis, s.config.MaxConnections)
	}
	return s.Serve(lis)
}

// Serve serves requests on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	gs := grpc.NewServer()
	s.Register(gs)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		lis.Close()
		return nil
	}
	s.grpcServer = gs
	s.lis = lis
	s.mu.Unlock()

	s.logger.Info("device server starting",
		"addr", lis.Addr().String(),
		"device", s.vol.DeviceID().String(),
		"filesystem", s.fsys != nil)
	if err := gs.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// Stop waits for in-flight requests and stops serving. A later Serve
// returns at once.
func (s *Server) Stop() {
	s.mu.Lock()
	gs := s.grpcServer
	s.stopped = true
	s.mu.Unlock()
	if gs != nil {
		gs.GracefulStop()
	}
}

// acquireWorker gets a worker from the pool or gives up with ctx
func (s *Server) acquireWorker(ctx context.Context) error {
	select {
	case s.workerPool <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// releaseWorker returns a worker to the pool
func (s *Server) releaseWorker() {
	<-s.workerPool
}

// processRequest handles common request processing logic
func (s *Server) processRequest(ctx context.Context, op string, process func(context.Context) (proto.Message, error)) (proto.Message, error) {
	reqID := fmt.Sprintf("%s-%d", op, s.reqSeq.Add(1))
	clientAddr := "unknown"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		clientAddr = p.Addr.String()
	}

	nfs.LogRequest(ctx, s.logger, op, reqID, clientAddr)
	start := time.Now()

	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}
	if err := s.acquireWorker(ctx); err != nil {
		nfs.LogError(ctx, s.logger, op, reqID, err)
		return nil, nfs.ToGRPC(err)
	}
	defer s.releaseWorker()

	result, err := process(ctx)
	if err != nil {
		nfs.LogError(ctx, s.logger, op, reqID, err)
	}
	nfs.LogResponse(ctx, s.logger, op, reqID, nfs.MapErrorToStatus(err), time.Since(start))
	if err != nil {
		return nil, nfs.ToGRPC(err)
	}
	return result, nil
}
