package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dealersync_backend/internal/http/response"
	"dealersync_backend/internal/reconcile/service"
	"dealersync_backend/internal/reconcile/transport"
	"dealersync_backend/platform/validator"
)

const (
	msgInvalidRequest = "invalid request"
	msgInvalidID      = "invalid proposal ID"

	defaultProposalLimit = 100
)

// Handler handles HTTP requests for the reconciliation engine.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new engine handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Reconcile runs one engine pass for a license plate.
// POST /api/v1/engine/reconcile
func (h *Handler) Reconcile(c *gin.Context) {
	var req transport.ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, msgInvalidRequest)
		return
	}
	if err := h.val.Struct(req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	outcome, err := h.svc.ReconcileVehicle(c.Request.Context(), req.LicensePlate, "api")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, transport.NewReconcileResponse(outcome))
}

// Install registers the engine's handlers, idempotently.
// POST /api/v1/engine/install
func (h *Handler) Install(c *gin.Context) {
	records, err := h.svc.Install(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, transport.NewInstallResponse(records))
}

// ListProposals returns pending delivery proposals.
// GET /api/v1/engine/proposals
func (h *Handler) ListProposals(c *gin.Context) {
	proposals, err := h.svc.ListPendingProposals(c.Request.Context(), defaultProposalLimit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, transport.NewProposalListResponse(proposals))
}

// ExecuteProposals applies pending delivery proposals when the destructive
// gate is enabled; otherwise it reports what would be skipped.
// POST /api/v1/engine/proposals/execute
func (h *Handler) ExecuteProposals(c *gin.Context) {
	applied, skipped, err := h.svc.ExecuteProposals(c.Request.Context(), defaultProposalLimit)
	if err != nil {
		response.Error(c, err)
		return
	}
	resp := transport.ExecuteProposalsResponse{
		Applied:     transport.NewProposalListResponse(applied).Items,
		Skipped:     skipped,
		GateEnabled: h.svc.DestructiveApplyEnabled(),
	}
	response.OK(c, resp)
}

// DismissProposal rejects a pending proposal without executing it.
// POST /api/v1/engine/proposals/:id/dismiss
func (h *Handler) DismissProposal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, msgInvalidID)
		return
	}

	if err := h.svc.DismissProposal(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"dismissed": id})
}
