package transport

import (
	"time"

	"github.com/google/uuid"

	"dealersync_backend/internal/reconcile"
	"dealersync_backend/internal/reconcile/repository"
	"dealersync_backend/internal/reconcile/service"
)

// ReconcileRequest asks for one engine pass over one license plate.
type ReconcileRequest struct {
	LicensePlate string `json:"licensePlate" validate:"required,min=4,max=16"`
}

// ReconcileResponse reports what the pass did.
type ReconcileResponse struct {
	LicensePlate string   `json:"licensePlate"`
	Writes       []string `json:"writes"`
	Drift        bool     `json:"drift"`
	Attempts     int      `json:"attempts"`
}

// NewReconcileResponse maps a service outcome onto the wire shape.
func NewReconcileResponse(outcome service.Outcome) ReconcileResponse {
	writes := make([]string, 0, len(outcome.Writes))
	for _, w := range outcome.Writes {
		writes = append(writes, w.Op())
	}
	return ReconcileResponse{
		LicensePlate: outcome.LicensePlate,
		Writes:       writes,
		Drift:        outcome.Drift,
		Attempts:     outcome.Attempts,
	}
}

// HandlerResponse represents one registered engine handler, carrying the
// per-handler install result.
type HandlerResponse struct {
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	InstalledAt time.Time `json:"installedAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
	Notes       string    `json:"notes,omitempty"`
}

// InstallResponse lists the handlers after an install.
type InstallResponse struct {
	Handlers []HandlerResponse `json:"handlers"`
}

// NewInstallResponse maps handler records onto the wire shape.
func NewInstallResponse(records []repository.HandlerRecord) InstallResponse {
	handlers := make([]HandlerResponse, 0, len(records))
	for _, rec := range records {
		handlers = append(handlers, HandlerResponse{
			Name:        rec.Name,
			Enabled:     rec.Enabled,
			InstalledAt: rec.InstalledAt,
			LastSeenAt:  rec.LastSeenAt,
			Notes:       rec.InstallNotes,
		})
	}
	return InstallResponse{Handlers: handlers}
}

// ProposalResponse represents one delivery proposal.
type ProposalResponse struct {
	ID               uuid.UUID `json:"id"`
	LicensePlate     string    `json:"licensePlate"`
	DeliveryDate     time.Time `json:"deliveryDate"`
	RemovePhotoEntry bool      `json:"removePhotoEntry"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ProposalListResponse wraps a list of proposals.
type ProposalListResponse struct {
	Items []ProposalResponse `json:"items"`
	Total int                `json:"total"`
}

// NewProposalListResponse maps proposals onto the wire shape.
func NewProposalListResponse(proposals []reconcile.DeliveryProposal) ProposalListResponse {
	items := make([]ProposalResponse, 0, len(proposals))
	for _, p := range proposals {
		items = append(items, ProposalResponse{
			ID:               p.ID,
			LicensePlate:     p.LicensePlate,
			DeliveryDate:     p.DeliveryDate,
			RemovePhotoEntry: p.RemovePhotoEntry,
			Status:           p.Status,
			CreatedAt:        p.CreatedAt,
		})
	}
	return ProposalListResponse{Items: items, Total: len(items)}
}

// ExecuteProposalsResponse reports a cleanup run over pending proposals.
type ExecuteProposalsResponse struct {
	Applied []ProposalResponse `json:"applied"`
	Skipped int                `json:"skipped"`
	// GateEnabled reports whether destructive applies were actually allowed;
	// false means this was a dry run.
	GateEnabled bool `json:"gateEnabled"`
}
