// Package client talks to the block layout device service.
package client

import (
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config contains the client configuration options
type Config struct {
	// ServerAddress is the address of the device server (e.g., "127.0.0.1:2050")
	ServerAddress string

	// Timeout is the timeout for a single RPC attempt
	Timeout time.Duration

	// MaxRetries is the maximum number of retries for operations
	MaxRetries int

	// RetryDelay is the initial delay between retries (will be multiplied by backoff factor)
	RetryDelay time.Duration

	// BackoffFactor is the multiplier for retry delay after each attempt
	BackoffFactor float64

	// MaxCacheSize is the maximum number of device addresses cached
	MaxCacheSize int

	// CacheTTL is the time-to-live for cached addresses
	CacheTTL time.Duration
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ServerAddress: "127.0.0.1:2050",
		Timeout:       30 * time.Second,
		MaxRetries:    3,
		RetryDelay:    500 * time.Millisecond,
		BackoffFactor: 2.0,
		MaxCacheSize:  64,
		CacheTTL:      5 * time.Minute,
	}
}

// Client is a device service client
type Client struct {
	conn   *grpc.ClientConn
	config *Config
	cache  *AddressCache

	mu           sync.Mutex
	verifier     uint64
	haveVerifier bool
}

// NewClient creates a client for config.ServerAddress. The connection is
// made lazily on the first call.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	conn, err := grpc.NewClient(config.ServerAddress,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	return NewClientWithConn(conn, config), nil
}

// NewClientWithConn wraps an existing connection. Close closes conn.
func NewClientWithConn(conn *grpc.ClientConn, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		conn:   conn,
		config: config,
		cache:  NewAddressCache(config.MaxCacheSize, config.CacheTTL),
	}
}

// Cache returns the device address cache.
func (c *Client) Cache() *AddressCache { return c.cache }

// Close closes the client connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
