// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"

	"dealersync_backend/internal/events"
	"dealersync_backend/platform/config"
	"dealersync_backend/platform/logger"
)

// HealthChecker is what the health endpoint needs from the database.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App bundles the dependencies the router needs. The composition root in
// cmd/api fills it in and hands it to router.New; nothing below the router
// ever sees the whole thing.
type App struct {
	Config config.HTTPConfig
	Logger *logger.Logger
	// Health answers the readiness probe, normally a pool ping.
	Health HealthChecker
	// EventBus carries cross-module domain events.
	EventBus events.Bus
	// Modules are the HTTP-facing bounded contexts, mounted in order.
	Modules []Module
}
