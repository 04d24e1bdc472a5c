package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// callWithRetry executes an RPC call with retry logic
func (c *Client) callWithRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		err := fn(callCtx)
		cancel()

		if err == nil || !isRetryableError(err) {
			return err
		}
		lastErr = err

		if attempt == c.config.MaxRetries {
			break
		}

		// Exponential backoff
		delay := c.config.RetryDelay * time.Duration(float64(attempt+1)*c.config.BackoffFactor)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w", operation, c.config.MaxRetries+1, lastErr)
}

// isRetryableError reports whether err is a transport failure worth
// retrying. Errors that carry an NFS status came from the service itself
// and are final.
func isRetryableError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	s, ok := status.FromError(err)
	if !ok {
		return false
	}
	for _, d := range s.Details() {
		if _, isStatus := d.(*wrapperspb.UInt32Value); isStatus {
			return false
		}
	}
	switch s.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}
