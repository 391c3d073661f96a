// Package engine provides the reconciliation engine bounded context module:
// repository, service, HTTP handlers, and the feed event subscription.
package engine

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"dealersync_backend/internal/events"
	feedrepo "dealersync_backend/internal/feed/repository"
	apphttp "dealersync_backend/internal/http"
	"dealersync_backend/internal/reconcile/handler"
	"dealersync_backend/internal/reconcile/repository"
	"dealersync_backend/internal/reconcile/service"
	"dealersync_backend/platform/config"
	"dealersync_backend/platform/logger"
	"dealersync_backend/platform/validator"
)

// Module is the engine bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    repository.Repository
}

// NewModule creates and initializes the engine module with all its
// dependencies, and subscribes the engine to feed change events.
func NewModule(cfg config.EngineConfig, pool *pgxpool.Pool, feed feedrepo.Reader, bus events.Bus, val *validator.Validator, log *logger.Logger) (*Module, error) {
	repo := repository.New(pool)
	svc, err := service.New(cfg, log, feed, repo, bus)
	if err != nil {
		return nil, err
	}
	h := handler.New(svc, val)

	m := &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
	m.subscribe(bus)
	return m, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "engine"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the repository for direct access if needed.
func (m *Module) Repository() repository.Repository {
	return m.repo
}

// RegisterRoutes mounts engine routes on the provided router context. The
// operator endpoints sit behind the operator rate limiter.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/engine")
	group.Use(ctx.OperatorRateLimiter.Middleware())
	group.POST("/reconcile", m.handler.Reconcile)
	group.POST("/install", m.handler.Install)
	group.GET("/proposals", m.handler.ListProposals)
	group.POST("/proposals/execute", m.handler.ExecuteProposals)
	group.POST("/proposals/:id/dismiss", m.handler.DismissProposal)
}

// subscribe registers the reactive path: every feed row change triggers one
// engine pass for that plate.
func (m *Module) subscribe(bus events.Bus) {
	bus.Subscribe(events.FeedRowChanged{}.EventName(), events.HandlerFunc(
		func(ctx context.Context, event events.Event) error {
			changed, ok := event.(events.FeedRowChanged)
			if !ok {
				return nil
			}
			_, err := m.service.ReconcileVehicle(ctx, changed.LicensePlate, "event")
			return err
		},
	))
}
