// Package sweep provides the batch sweep bounded context module: the sweep
// service, the report archive, and the HTTP trigger endpoints.
package sweep

import (
	"dealersync_backend/internal/events"
	apphttp "dealersync_backend/internal/http"
	"dealersync_backend/internal/scheduler"
	"dealersync_backend/internal/sweep/handler"
	"dealersync_backend/internal/sweep/service"
	"dealersync_backend/platform/validator"
)

// Module is the sweep bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates the sweep module. The service is shared with the
// scheduler worker, which executes the enqueued sweeps; the bus carries
// feed changes when no queue is configured.
func NewModule(svc *service.Service, enqueuer scheduler.Enqueuer, bus events.Bus, val *validator.Validator) *Module {
	return &Module{
		handler: handler.New(enqueuer, bus, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "sweep"
}

// Service returns the sweep service for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts sweep trigger routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/engine")
	group.POST("/feed-changed", m.handler.FeedChanged)

	operator := group.Group("")
	operator.Use(ctx.OperatorRateLimiter.Middleware())
	operator.POST("/sweep", m.handler.FullSweep)
	operator.POST("/sync-reservations", m.handler.SyncReservations)
}
