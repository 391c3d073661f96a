package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"dealersync_backend/internal/events"
	"dealersync_backend/internal/http/response"
	"dealersync_backend/internal/scheduler"
	"dealersync_backend/platform/apperr"
	"dealersync_backend/platform/validator"
)

const msgInvalidRequest = "invalid request"

const msgQueueUnavailable = "task queue not configured"

// FeedChangedRequest is the ETL bridge payload: one changed license plate.
type FeedChangedRequest struct {
	LicensePlate string `json:"licensePlate" validate:"required,min=4,max=16"`
}

// Handler accepts sweep and feed-change triggers and puts them on the queue.
// The work itself runs in the scheduler worker; these endpoints only
// acknowledge receipt. Feed changes fall back to the in-process event bus
// when no queue is configured, so the reactive path survives without redis.
type Handler struct {
	enqueuer scheduler.Enqueuer
	bus      events.Bus
	val      *validator.Validator
}

// New creates a new sweep handler.
func New(enqueuer scheduler.Enqueuer, bus events.Bus, val *validator.Validator) *Handler {
	return &Handler{enqueuer: enqueuer, bus: bus, val: val}
}

// FeedChanged triggers one reactive engine pass. The scraper ETL calls this
// after upserting a feed row.
// POST /api/v1/engine/feed-changed
func (h *Handler) FeedChanged(c *gin.Context) {
	var req FeedChangedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, msgInvalidRequest)
		return
	}
	if err := h.val.Struct(req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if h.enqueuer != nil {
		err := h.enqueuer.EnqueueFeedRowChanged(c.Request.Context(), scheduler.FeedRowChangedPayload{
			LicensePlate: req.LicensePlate,
		})
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Accepted(c, gin.H{"licensePlate": req.LicensePlate})
		return
	}

	// The request context dies with the response; the engine pass must not.
	h.bus.Publish(context.Background(), events.FeedRowChanged{
		BaseEvent:    events.NewBaseEvent(),
		LicensePlate: req.LicensePlate,
	})
	response.Accepted(c, gin.H{"licensePlate": req.LicensePlate})
}

// FullSweep enqueues a full sweep.
// POST /api/v1/engine/sweep
func (h *Handler) FullSweep(c *gin.Context) {
	if h.enqueuer == nil {
		response.Error(c, apperr.Unavailable(msgQueueUnavailable))
		return
	}

	err := h.enqueuer.EnqueueFullSweep(c.Request.Context(), scheduler.FullSweepPayload{RequestedBy: "api"})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"enqueued": scheduler.TaskFullSweep})
}

// SyncReservations enqueues a reservation sync.
// POST /api/v1/engine/sync-reservations
func (h *Handler) SyncReservations(c *gin.Context) {
	if h.enqueuer == nil {
		response.Error(c, apperr.Unavailable(msgQueueUnavailable))
		return
	}

	err := h.enqueuer.EnqueueReservationSync(c.Request.Context(), scheduler.ReservationSyncPayload{RequestedBy: "api"})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"enqueued": scheduler.TaskReservationSync})
}
