// Package service implements batch sweeps: the same engine pass the reactive
// path runs, fanned out over many plates with a bounded worker pool.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dealersync_backend/internal/events"
	feedrepo "dealersync_backend/internal/feed/repository"
	enginesvc "dealersync_backend/internal/reconcile/service"
	"dealersync_backend/platform/apperr"
	"dealersync_backend/platform/config"
	"dealersync_backend/platform/logger"
)

const pageSize = 200

// Sweep sources, recorded on engine runs and reports.
const (
	SourceFullSweep       = "full_sweep"
	SourceReservationSync = "reservation_sync"
)

// PlateFailure is one plate the sweep could not reconcile.
type PlateFailure struct {
	LicensePlate string `json:"licensePlate"`
	Error        string `json:"error"`
}

// Report summarizes one sweep.
type Report struct {
	Source     string         `json:"source"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Total      int            `json:"total"`
	Created    int            `json:"created"`
	Updated    int            `json:"updated"`
	Skipped    int            `json:"skipped"`
	Conflicted int            `json:"conflicted"`
	Failed     int            `json:"failed"`
	Drift      int            `json:"drift"`
	Cancelled  bool           `json:"cancelled"`
	Failures   []PlateFailure `json:"failures,omitempty"`

	// PendingSyncPercent is only set by reservation syncs: the share of
	// reserved feed rows still missing a sales record past the grace
	// period. It counts the unsynced side: 0 means every reservation has
	// reached the ledger, 100 means none has.
	PendingSyncPercent float64 `json:"pendingSyncPercent,omitempty"`
}

// Archiver persists sweep reports for operator review.
type Archiver interface {
	Store(ctx context.Context, report Report) error
}

// Service runs sweeps on top of the engine service.
type Service struct {
	cfg     config.EngineConfig
	log     *logger.Logger
	feed    feedrepo.Reader
	engine  *enginesvc.Service
	bus     events.Bus
	archive Archiver
	now     func() time.Time
}

// New creates the sweep service. archive may be nil when report archiving is
// disabled.
func New(cfg config.EngineConfig, log *logger.Logger, feed feedrepo.Reader, engine *enginesvc.Service, bus events.Bus, archive Archiver) *Service {
	return &Service{
		cfg:     cfg,
		log:     log,
		feed:    feed,
		engine:  engine,
		bus:     bus,
		archive: archive,
		now:     time.Now,
	}
}

// FullSweep reconciles every feed row. Plates are paged by cursor so the
// sweep holds at most one page in memory; a cancelled context stops paging
// and lets in-flight plates finish.
func (s *Service) FullSweep(ctx context.Context) (Report, error) {
	report := Report{Source: SourceFullSweep, StartedAt: s.now()}

	cursor := ""
	var plates []string
	for {
		page, err := s.feed.ListPlatesAfter(ctx, cursor, pageSize)
		if err != nil {
			return report, err
		}
		if len(page) == 0 {
			break
		}
		plates = append(plates, page...)
		cursor = page[len(page)-1]
		if len(page) < pageSize {
			break
		}
	}

	s.runPool(ctx, plates, SourceFullSweep, &report)
	return s.finish(ctx, report), nil
}

// SyncReservations reconciles only the plates whose feed availability
// matches the reserved dictionary labels, and reports how many of them were
// out of sync before the pass.
func (s *Service) SyncReservations(ctx context.Context) (Report, error) {
	report := Report{Source: SourceReservationSync, StartedAt: s.now()}

	patterns := s.engine.Dictionary().ReservedPatterns()
	plates, err := s.feed.ListPlatesMatching(ctx, patterns)
	if err != nil {
		return report, err
	}

	s.runPool(ctx, plates, SourceReservationSync, &report)

	pending, err := s.engine.PendingReservations(ctx, patterns)
	if err != nil {
		return report, err
	}
	if report.Total > 0 {
		report.PendingSyncPercent = 100 * float64(pending) / float64(report.Total)
	}
	return s.finish(ctx, report), nil
}

// runPool fans the plates out over the configured number of workers. A
// failing plate is recorded and never aborts the sweep; only context
// cancellation stops scheduling new plates.
func (s *Service) runPool(ctx context.Context, plates []string, source string, report *Report) {
	workers := s.cfg.GetSweepWorkers()
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for _, plate := range plates {
		if groupCtx.Err() != nil {
			mu.Lock()
			report.Cancelled = true
			mu.Unlock()
			break
		}

		mu.Lock()
		report.Total++
		mu.Unlock()

		group.Go(func() error {
			outcome, err := s.engine.ReconcileVehicle(groupCtx, plate, source)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, context.Canceled):
				report.Cancelled = true
			case err != nil && apperr.GetKind(err) == apperr.KindConflict:
				report.Conflicted++
				report.Failures = append(report.Failures, PlateFailure{LicensePlate: plate, Error: err.Error()})
			case err != nil:
				report.Failed++
				report.Failures = append(report.Failures, PlateFailure{LicensePlate: plate, Error: err.Error()})
			case len(outcome.Writes) == 0:
				report.Skipped++
			case createdOnly(outcome):
				report.Created++
			default:
				report.Updated++
			}
			if outcome.Drift && err == nil {
				report.Drift++
			}
			return nil
		})
	}

	// Workers never return errors; Wait only synchronizes.
	_ = group.Wait()
}

// finish stamps, logs, archives and publishes the report.
func (s *Service) finish(ctx context.Context, report Report) Report {
	report.FinishedAt = s.now()

	s.log.SweepSummary(report.Source, report.Total, report.Created, report.Updated,
		report.Skipped, report.Conflicted, report.Failed, report.Cancelled)

	if s.archive != nil {
		if err := s.archive.Store(ctx, report); err != nil {
			s.log.DatabaseError("archive sweep report", err)
		}
	}

	// Synchronous so the drift mailer finishes before a one-shot worker or
	// CLI run exits.
	err := s.bus.PublishSync(ctx, events.SweepCompleted{
		BaseEvent:  events.NewBaseEvent(),
		Source:     report.Source,
		Total:      report.Total,
		Created:    report.Created,
		Updated:    report.Updated,
		Skipped:    report.Skipped,
		Conflicted: report.Conflicted,
		Failed:     report.Failed,
		Drift:      report.Drift,
		Cancelled:  report.Cancelled,
	})
	if err != nil {
		s.log.Warn("sweep completion handler failed", "source", report.Source, "error", err)
	}
	return report
}

func createdOnly(outcome enginesvc.Outcome) bool {
	for _, w := range outcome.Writes {
		if !strings.HasPrefix(w.Op(), "create_") {
			return false
		}
	}
	return len(outcome.Writes) > 0
}
