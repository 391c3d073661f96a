// Package repository persists derived vehicle state for the reconciliation
// engine: load one plate's full state, apply a write set transactionally,
// and record engine runs for the audit reporter.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"dealersync_backend/internal/reconcile"
)

// EngineRun is one recorded invocation of the engine for one plate.
type EngineRun struct {
	ID           uuid.UUID
	LicensePlate string
	Source       string
	Writes       []string
	Drift        bool
	Error        string
	RanAt        time.Time
}

// HandlerRecord is one registered engine handler, written by Install.
type HandlerRecord struct {
	Name         string
	Enabled      bool
	InstalledAt  time.Time
	LastSeenAt   time.Time
	InstallNotes string
}

// StateReader loads one plate's derived state.
type StateReader interface {
	// LoadState aggregates every derived table's row for the plate. Tables
	// without a row yield nil pointers; an entirely unknown plate returns a
	// zero DerivedState, not an error.
	LoadState(ctx context.Context, plate string) (reconcile.DerivedState, error)
}

// StateWriter applies engine write sets.
type StateWriter interface {
	// Apply executes the writes inside one transaction serialized per plate.
	// Destructive writes are persisted as delivery proposals instead of
	// being executed. Concurrent-update failures return apperr.Conflict so
	// callers can retry.
	Apply(ctx context.Context, plate string, writes []reconcile.Write) error

	// ApplyProposal executes a pending delivery proposal: copy the stock
	// entry to the delivery ledger, delete it from stock, optionally delete
	// the pending photo-tracker entry, and mark the proposal applied.
	ApplyProposal(ctx context.Context, proposal reconcile.DeliveryProposal) error
}

// ProposalStore reads and settles delivery proposals.
type ProposalStore interface {
	ListPending(ctx context.Context, limit int) ([]reconcile.DeliveryProposal, error)
	Dismiss(ctx context.Context, id uuid.UUID) error
}

// RunRecorder persists engine runs and answers recency queries.
type RunRecorder interface {
	RecordRun(ctx context.Context, run EngineRun) error
	// CountRunsSince reports how many runs completed after the cutoff.
	CountRunsSince(ctx context.Context, cutoff time.Time) (int, error)
}

// InstallStore persists handler registration state.
type InstallStore interface {
	// UpsertHandler registers a handler, refreshing last_seen_at when the
	// row already exists.
	UpsertHandler(ctx context.Context, record HandlerRecord) error
	ListHandlers(ctx context.Context) ([]HandlerRecord, error)
}

// PhotoMaintenance covers the photo-repair and stock-cleanup tools that
// operate outside the per-plate engine pass.
type PhotoMaintenance interface {
	// ListSoldWithPhotoEntries returns plates that are sold in stock but
	// still carry a pending photo-tracker entry.
	ListSoldWithPhotoEntries(ctx context.Context) ([]string, error)
	// DeletePhotoEntry removes a photo-tracker entry by plate.
	DeletePhotoEntry(ctx context.Context, plate string) error
}

// StatusCounter answers the aggregate questions behind the status report.
type StatusCounter interface {
	CountQueuePending(ctx context.Context) (int, error)
	CountStock(ctx context.Context) (int, error)
	CountStockSold(ctx context.Context) (int, error)
	CountPhotosPending(ctx context.Context) (int, error)
	CountProposalsPending(ctx context.Context) (int, error)
	CountDelivered(ctx context.Context) (int, error)
	// CountStockAvailabilityDrift counts stock entries marked sold whose
	// feed row matches one of the availability patterns.
	CountStockAvailabilityDrift(ctx context.Context, availablePatterns []string) (int, error)
	// CountStockAbsentFromFeed counts stock entries with no feed row at
	// all; those vehicles vanished from the scrape and need a human look.
	CountStockAbsentFromFeed(ctx context.Context) (int, error)
	// CountReservedPendingSync counts feed rows matching the reserved
	// patterns whose stock entry predates the cutoff and still has no
	// sales record. A reservation is allowed to lag the ledger inside the
	// grace window; beyond it the row is pending sync.
	CountReservedPendingSync(ctx context.Context, reservedPatterns []string, cutoff time.Time) (int, error)
}

// Repository is the full persistence surface of the engine.
type Repository interface {
	StateReader
	StateWriter
	ProposalStore
	RunRecorder
	InstallStore
	PhotoMaintenance
	StatusCounter
}
