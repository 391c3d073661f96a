// Package service runs the reconciliation engine: one plate per call, feed
// row in, write set out, applied with bounded retries.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"dealersync_backend/internal/events"
	feedrepo "dealersync_backend/internal/feed/repository"
	"dealersync_backend/internal/reconcile"
	"dealersync_backend/internal/reconcile/repository"
	"dealersync_backend/platform/apperr"
	"dealersync_backend/platform/config"
	"dealersync_backend/platform/logger"
)

// Handler names registered by Install. The audit reporter checks these rows
// plus recent engine runs to decide whether the engine is installed and
// active.
const (
	HandlerFeedRowChanged  = "feed.row_changed"
	HandlerFullSweep       = "sweep.full"
	HandlerReservationSync = "sweep.reservations"
)

// Outcome summarizes one engine pass over one plate.
type Outcome struct {
	LicensePlate string
	Writes       []reconcile.Write
	Drift        bool
	Attempts     int
}

// Service coordinates feed reads, the pure core, and transactional applies.
type Service struct {
	cfg  config.EngineConfig
	log  *logger.Logger
	feed feedrepo.Reader
	repo repository.Repository
	bus  events.Bus
	dict *reconcile.StateDictionary
	now  func() time.Time
}

// New creates the engine service. The state dictionary is loaded once at
// construction; a bad dictionary file fails startup rather than every pass.
func New(cfg config.EngineConfig, log *logger.Logger, feed feedrepo.Reader, repo repository.Repository, bus events.Bus) (*Service, error) {
	dict, err := reconcile.LoadStateDictionary(cfg.GetStateDictionaryPath())
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:  cfg,
		log:  log,
		feed: feed,
		repo: repo,
		bus:  bus,
		dict: dict,
		now:  time.Now,
	}, nil
}

// Dictionary exposes the loaded state dictionary for components that filter
// availability in SQL.
func (s *Service) Dictionary() *reconcile.StateDictionary {
	return s.dict
}

// ReconcileVehicle runs one full engine pass for the plate: load the feed
// row and derived state, compute the write set, apply it, and record the
// run. Conflicts from concurrent passes are retried with linear backoff up
// to the configured attempt limit.
func (s *Service) ReconcileVehicle(ctx context.Context, plate, source string) (Outcome, error) {
	plate = reconcile.NormalizePlate(plate)
	outcome := Outcome{LicensePlate: plate}
	if plate == "" {
		return outcome, apperr.Validation("license plate is required")
	}

	// A missing feed row is not an error: the vehicle vanished from the
	// scrape and the core handles the nil row by leaving state alone.
	var row *feedrepo.Row
	if found, err := s.feed.GetByPlate(ctx, plate); err == nil {
		row = &found
	} else if apperr.GetKind(err) != apperr.KindNotFound {
		return outcome, err
	}

	maxAttempts := s.cfg.GetReconcileMaxAttempts()
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var applyErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome.Attempts = attempt

		state, err := s.repo.LoadState(ctx, plate)
		if err != nil {
			s.recordRun(ctx, outcome, source, err)
			return outcome, err
		}

		outcome.Writes = reconcile.Reconcile(s.dict, row, state, s.now())
		outcome.Drift = hasDrift(outcome.Writes)

		applyErr = s.repo.Apply(ctx, plate, outcome.Writes)
		if applyErr == nil {
			break
		}
		if !apperr.IsRetryable(applyErr) {
			break
		}
		// Another pass over the same plate won; reload and recompute, since
		// the state the writes were derived from is stale.
		select {
		case <-ctx.Done():
			applyErr = ctx.Err()
		case <-time.After(s.cfg.GetReconcileRetryBase() * time.Duration(attempt)):
			continue
		}
		break
	}

	s.log.ReconcileResult(plate, source, len(outcome.Writes), applyErr)
	s.recordRun(ctx, outcome, source, applyErr)
	if applyErr != nil {
		return outcome, applyErr
	}

	s.publishOutcome(ctx, outcome)
	return outcome, nil
}

// ExecuteProposals applies pending delivery proposals. With the destructive
// gate disabled it reports what would happen without touching anything;
// operators review that output before enabling the gate.
func (s *Service) ExecuteProposals(ctx context.Context, limit int) (applied []reconcile.DeliveryProposal, skipped int, err error) {
	if limit <= 0 {
		limit = 100
	}

	proposals, err := s.repo.ListPending(ctx, limit)
	if err != nil {
		return nil, 0, err
	}

	if !s.cfg.IsDestructiveApplyEnabled() {
		return nil, len(proposals), nil
	}

	for _, proposal := range proposals {
		if ctx.Err() != nil {
			return applied, skipped, ctx.Err()
		}
		if err := s.repo.ApplyProposal(ctx, proposal); err != nil {
			if apperr.GetKind(err) == apperr.KindConflict {
				skipped++
				continue
			}
			return applied, skipped, err
		}
		applied = append(applied, proposal)
	}
	return applied, skipped, nil
}

// ListPendingProposals returns pending delivery proposals oldest first.
func (s *Service) ListPendingProposals(ctx context.Context, limit int) ([]reconcile.DeliveryProposal, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListPending(ctx, limit)
}

// DismissProposal rejects a pending proposal without executing it.
func (s *Service) DismissProposal(ctx context.Context, id uuid.UUID) error {
	return s.repo.Dismiss(ctx, id)
}

// PendingReservations counts reserved feed rows still missing a sales
// record past the configured grace period.
func (s *Service) PendingReservations(ctx context.Context, reservedPatterns []string) (int, error) {
	cutoff := s.now().Add(-s.cfg.GetReservationGracePeriod())
	return s.repo.CountReservedPendingSync(ctx, reservedPatterns, cutoff)
}

// DestructiveApplyEnabled reports whether the destructive gate is on.
func (s *Service) DestructiveApplyEnabled() bool {
	return s.cfg.IsDestructiveApplyEnabled()
}

// Install registers the engine's handlers. It is idempotent: repeated calls
// refresh last_seen_at on the existing rows. One handler failing to install
// never blocks the others; the returned records carry the per-handler result
// in InstallNotes.
func (s *Service) Install(ctx context.Context) ([]repository.HandlerRecord, error) {
	now := s.now()
	records := make([]repository.HandlerRecord, 0, 3)
	for _, name := range []string{HandlerFeedRowChanged, HandlerFullSweep, HandlerReservationSync} {
		record := repository.HandlerRecord{
			Name:         name,
			Enabled:      true,
			InstalledAt:  now,
			LastSeenAt:   now,
			InstallNotes: "installed",
		}
		if err := s.repo.UpsertHandler(ctx, record); err != nil {
			s.log.Error("handler install failed", "handler", name, "error", err)
			record.Enabled = false
			record.InstallNotes = err.Error()
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *Service) recordRun(ctx context.Context, outcome Outcome, source string, runErr error) {
	run := repository.EngineRun{
		LicensePlate: outcome.LicensePlate,
		Source:       source,
		Writes:       opNames(outcome.Writes),
		Drift:        outcome.Drift,
		RanAt:        s.now(),
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		run.Error = runErr.Error()
	}
	if err := s.repo.RecordRun(ctx, run); err != nil {
		s.log.DatabaseError("record engine run", err)
	}
}

func (s *Service) publishOutcome(ctx context.Context, outcome Outcome) {
	for _, w := range outcome.Writes {
		switch w := w.(type) {
		case reconcile.CreateStockEntry:
			s.bus.Publish(ctx, events.VehicleReceived{
				BaseEvent:    events.NewBaseEvent(),
				LicensePlate: outcome.LicensePlate,
				ReceivedAt:   s.now(),
			})
		case reconcile.ProposeDelivery:
			s.bus.Publish(ctx, events.DeliveryProposed{
				BaseEvent:    events.NewBaseEvent(),
				LicensePlate: outcome.LicensePlate,
				DeliveryDate: w.DeliveryDate,
			})
		default:
			if reconcile.IsDrift(w) {
				s.log.DriftDetected(outcome.LicensePlate, w.Op())
				s.bus.Publish(ctx, events.DriftDetected{
					BaseEvent:    events.NewBaseEvent(),
					LicensePlate: outcome.LicensePlate,
					Kind:         w.Op(),
				})
			}
		}
	}
}

func opNames(writes []reconcile.Write) []string {
	names := make([]string, 0, len(writes))
	for _, w := range writes {
		names = append(names, w.Op())
	}
	return names
}

func hasDrift(writes []reconcile.Write) bool {
	for _, w := range writes {
		if reconcile.IsDrift(w) {
			return true
		}
	}
	return false
}
