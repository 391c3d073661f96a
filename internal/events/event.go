// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"dealersync_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Feed Domain Events
// =============================================================================

// FeedRowChanged is published when the inventory feed adds or updates a row.
// This is the reactive entry point of the reconciliation engine: the scraper
// ETL (or its bridge) enqueues one of these per changed license plate.
type FeedRowChanged struct {
	BaseEvent
	LicensePlate string `json:"licensePlate"`
}

func (e FeedRowChanged) EventName() string { return "feed.row_changed" }

// =============================================================================
// Reconciliation Domain Events
// =============================================================================

// VehicleReceived is published when an incoming-queue entry flips to received,
// which must cascade into stock and photo-tracker creation.
type VehicleReceived struct {
	BaseEvent
	LicensePlate string    `json:"licensePlate"`
	ReceivedAt   time.Time `json:"receivedAt"`
}

func (e VehicleReceived) EventName() string { return "reconcile.vehicle_received" }

// DriftDetected is published when a derived table disagrees with what the
// current feed row implies. Drift is reported, never fatal.
type DriftDetected struct {
	BaseEvent
	LicensePlate string `json:"licensePlate"`
	Kind         string `json:"kind"`
}

func (e DriftDetected) EventName() string { return "reconcile.drift_detected" }

// DeliveryProposed is published when the engine wants to move a sold stock
// entry into the delivery ledger. The write itself is gated behind the
// destructive-apply flag and only executed by the cleanup path.
type DeliveryProposed struct {
	BaseEvent
	LicensePlate string    `json:"licensePlate"`
	DeliveryDate time.Time `json:"deliveryDate"`
}

func (e DeliveryProposed) EventName() string { return "reconcile.delivery_proposed" }

// SweepCompleted is published after a batch sweep finishes, carrying the
// summary counts consumed by the drift alert mailer.
type SweepCompleted struct {
	BaseEvent
	Source     string `json:"source"`
	Total      int    `json:"total"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped"`
	Conflicted int    `json:"conflicted"`
	Failed     int    `json:"failed"`
	Drift      int    `json:"drift"`
	Cancelled  bool   `json:"cancelled"`
}

func (e SweepCompleted) EventName() string { return "sweep.completed" }
