// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// PlateKey is the context key for the license plate being reconciled
	PlateKey contextKey = "license_plate"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id and license_plate from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("request_id", requestID)),
		}
	}

	if plate, ok := ctx.Value(PlateKey).(string); ok && plate != "" {
		newLogger = newLogger.WithPlate(plate)
	}

	return newLogger
}

// WithPlate returns a logger scoped to one vehicle.
func (l *Logger) WithPlate(plate string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("license_plate", plate)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// HTTPError logs an HTTP error
func (l *Logger) HTTPError(method, path string, status int, err error, clientIP string) {
	l.Error("http_error",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("client_ip", clientIP),
	)
}

// ReconcileResult logs the outcome of one vehicle reconciliation.
func (l *Logger) ReconcileResult(plate, source string, writes int, err error) {
	if err != nil {
		l.Error("reconcile_failed",
			slog.String("license_plate", plate),
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		return
	}
	l.Info("reconcile_applied",
		slog.String("license_plate", plate),
		slog.String("source", source),
		slog.Int("writes", writes),
	)
}

// SweepSummary logs the outcome of a batch sweep.
func (l *Logger) SweepSummary(source string, total, created, updated, skipped, conflicted, failed int, cancelled bool) {
	l.Info("sweep_completed",
		slog.String("source", source),
		slog.Int("total", total),
		slog.Int("created", created),
		slog.Int("updated", updated),
		slog.Int("skipped", skipped),
		slog.Int("conflicted", conflicted),
		slog.Int("failed", failed),
		slog.Bool("cancelled", cancelled),
	)
}

// DriftDetected logs a detected mismatch between a derived table and the feed.
func (l *Logger) DriftDetected(plate, kind string) {
	l.Warn("drift_detected",
		slog.String("license_plate", plate),
		slog.String("kind", kind),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
