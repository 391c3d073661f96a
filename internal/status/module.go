// Package status provides the engine status bounded context module.
package status

import (
	"github.com/gin-gonic/gin"

	apphttp "dealersync_backend/internal/http"
	"dealersync_backend/internal/http/response"
	"dealersync_backend/internal/status/service"
)

// Module is the status bounded context module implementing http.Module.
type Module struct {
	service *service.Service
}

// NewModule creates the status module around the shared status service.
func NewModule(svc *service.Service) *Module {
	return &Module{service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "status"
}

// Service returns the status service for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts the status route on the provided router context.
// Status reads are cheap and cached, so they bypass the operator limiter.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.GET("/engine/status", m.status)
}

func (m *Module) status(c *gin.Context) {
	report, err := m.service.Status(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}
