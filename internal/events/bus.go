package events

import (
	platformevents "dealersync_backend/platform/events"
	"dealersync_backend/platform/logger"
)

// InMemoryBus aliases the platform bus so modules only import this package.
type InMemoryBus = platformevents.InMemoryBus

// NewInMemoryBus builds the process-wide event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}
