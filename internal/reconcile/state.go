package reconcile

import (
	"time"

	"github.com/google/uuid"
)

// QueueEntry is one row of the incoming-vehicle queue: a plate seen in the
// feed before the dealership's internal tables know it.
type QueueEntry struct {
	ID           uuid.UUID
	LicensePlate string
	Model        string
	Received     bool
	ReceivedAt   *time.Time
	CreatedAt    time.Time
}

// StockEntry is one vehicle physically on the lot.
type StockEntry struct {
	ID           uuid.UUID
	LicensePlate string
	Model        string
	VehicleType  VehicleType
	// Sold is stored as a nullable boolean; NULL is read as false.
	Sold      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PhotoEntry is one row of the photo-completion tracker.
type PhotoEntry struct {
	ID           uuid.UUID
	LicensePlate string
	Model        string
	Status       PhotoStatus
	Reason       PhotoReason
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SaleEntry is one row of the sales ledger. The engine only reads it.
type SaleEntry struct {
	ID           uuid.UUID
	LicensePlate string
	SaleDate     time.Time
	Advisor      string
}

// DeliveryEntry is one row of the delivery ledger.
type DeliveryEntry struct {
	ID           uuid.UUID
	LicensePlate string
	DeliveryDate time.Time
}

// DeliveryProposal is a recorded, not-yet-applied delivery transition. It
// exists so the reactive path can surface destructive work to the cleanup
// path without re-proposing on every pass.
type DeliveryProposal struct {
	ID               uuid.UUID
	LicensePlate     string
	DeliveryDate     time.Time
	RemovePhotoEntry bool
	Status           string // pending, applied, dismissed
	CreatedAt        time.Time
}

// ProposalPending is the status of a proposal awaiting the cleanup path.
const ProposalPending = "pending"

// ProposalApplied is the status of an executed proposal.
const ProposalApplied = "applied"

// ProposalDismissed is the status of a proposal rejected by an operator.
const ProposalDismissed = "dismissed"

// DerivedState is everything the derived tables currently know about one
// license plate. Nil pointers mean no row exists.
type DerivedState struct {
	Queue    *QueueEntry
	Stock    *StockEntry
	Photo    *PhotoEntry
	Sale     *SaleEntry
	Delivery *DeliveryEntry
	// Proposal is the pending delivery proposal for the plate, if any.
	Proposal *DeliveryProposal
}

// knownInternally reports whether any internal table already tracks the
// plate.
func (s DerivedState) knownInternally() bool {
	return s.Queue != nil || s.Stock != nil || s.Sale != nil
}

// =============================================================================
// Writes
// =============================================================================

// Write is one idempotent change to a derived table. The core emits writes;
// the repository applies them inside a single per-vehicle transaction,
// stock before photo tracker.
type Write interface {
	// Op returns the operation name for logs and sweep reports.
	Op() string
	// Destructive reports whether the write deletes data or moves a vehicle
	// between ledgers. Destructive writes are never applied by the reactive
	// path; they are persisted as proposals for the gated cleanup path.
	Destructive() bool
}

// Operation names, as they appear in logs, sweep reports and the audit
// ledger.
const (
	OpCreateQueueEntry  = "create_queue_entry"
	OpCreateStockEntry  = "create_stock_entry"
	OpSetStockAvailable = "set_stock_available"
	OpCreatePhotoEntry  = "create_photo_entry"
	OpResetPhotos       = "reset_photos"
	OpCompletePhotos    = "complete_photos"
	OpProposeDelivery   = "propose_delivery"
)

// CreateQueueEntry creates an incoming-queue entry with received=false.
type CreateQueueEntry struct {
	LicensePlate string
	Model        string
}

func (CreateQueueEntry) Op() string        { return OpCreateQueueEntry }
func (CreateQueueEntry) Destructive() bool { return false }

// CreateStockEntry creates a stock entry with sold=false.
type CreateStockEntry struct {
	LicensePlate string
	Model        string
	VehicleType  VehicleType
}

func (CreateStockEntry) Op() string        { return OpCreateStockEntry }
func (CreateStockEntry) Destructive() bool { return false }

// SetStockAvailable flips a sold stock entry back to available.
type SetStockAvailable struct {
	LicensePlate string
}

func (SetStockAvailable) Op() string        { return OpSetStockAvailable }
func (SetStockAvailable) Destructive() bool { return false }

// CreatePhotoEntry creates a photo-tracker entry seeded from the classifier.
type CreatePhotoEntry struct {
	LicensePlate   string
	Model          string
	Classification Classification
}

func (CreatePhotoEntry) Op() string        { return OpCreatePhotoEntry }
func (CreatePhotoEntry) Destructive() bool { return false }

// ResetPhotos puts a photo-tracker entry back to pending.
type ResetPhotos struct {
	LicensePlate string
	Reason       string
}

func (ResetPhotos) Op() string        { return OpResetPhotos }
func (ResetPhotos) Destructive() bool { return false }

// CompletePhotos marks a photo-tracker entry auto-completed.
type CompletePhotos struct {
	LicensePlate string
	Reason       PhotoReason
	Since        time.Time
}

func (CompletePhotos) Op() string        { return OpCompletePhotos }
func (CompletePhotos) Destructive() bool { return false }

// ProposeDelivery proposes moving a sold vehicle from stock to the delivery
// ledger. Applying it deletes the stock entry, so it is gated: the reactive
// path records the proposal and only the cleanup path may execute it.
type ProposeDelivery struct {
	LicensePlate string
	DeliveryDate time.Time
	// RemovePhotoEntry is set when a pending photo-tracker entry should go
	// with the stock entry; sold vehicles no longer need photography.
	RemovePhotoEntry bool
}

func (ProposeDelivery) Op() string        { return OpProposeDelivery }
func (ProposeDelivery) Destructive() bool { return true }
