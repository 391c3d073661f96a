package http

import (
	"dealersync_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module is a bounded context with HTTP routes. Each module mounts its own
// endpoints so the router never needs to know about specific handlers.
type Module interface {
	// Name identifies the module in logs.
	Name() string
	// RegisterRoutes mounts the module's routes using the shared context.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext carries what modules need at registration time, so
// RegisterRoutes keeps a single parameter.
type RouterContext struct {
	// Engine is the root gin engine, for modules needing engine-level access.
	Engine *gin.Engine
	// V1 is the /api/v1 route group.
	V1 *gin.RouterGroup
	// OperatorRateLimiter throttles mutating operator endpoints.
	OperatorRateLimiter *httpkit.OperatorRateLimiter
}
