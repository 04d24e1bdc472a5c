package nfs

import (
	"context"
	"log/slog"
	"time"
)

// LogRequest logs information about a received request
func LogRequest(ctx context.Context, logger *slog.Logger, op, reqID, clientAddr string) {
	logger.DebugContext(ctx, "request", "op", op, "id", reqID, "client", clientAddr)
}

// LogResponse logs information about a response
func LogResponse(ctx context.Context, logger *slog.Logger, op, reqID string, status Status, duration time.Duration) {
	level := slog.LevelDebug
	if status != StatusOK {
		level = slog.LevelInfo
	}
	logger.Log(ctx, level, "response", "op", op, "id", reqID, "status", status.String(), "duration", duration)
}

// LogError logs an error with its context
func LogError(ctx context.Context, logger *slog.Logger, op, reqID string, err error) {
	logger.WarnContext(ctx, "request failed", "op", op, "id", reqID, "error", err)
}
