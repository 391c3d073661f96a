package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"dealersync_backend/internal/events"
	feedrepo "dealersync_backend/internal/feed/repository"
	"dealersync_backend/internal/reconcile"
	"dealersync_backend/internal/reconcile/repository"
	enginesvc "dealersync_backend/internal/reconcile/service"
	"dealersync_backend/platform/apperr"
	"dealersync_backend/platform/logger"
)

type fakeEngineConfig struct{ workers int }

func (c fakeEngineConfig) GetReconcileMaxAttempts() int             { return 1 }
func (c fakeEngineConfig) GetReconcileRetryBase() time.Duration     { return time.Millisecond }
func (c fakeEngineConfig) GetSweepWorkers() int                     { return c.workers }
func (c fakeEngineConfig) IsDestructiveApplyEnabled() bool          { return false }
func (c fakeEngineConfig) GetReservationGracePeriod() time.Duration { return 7 * 24 * time.Hour }
func (c fakeEngineConfig) GetActiveWindow() time.Duration           { return time.Hour }
func (c fakeEngineConfig) GetStateDictionaryPath() string           { return "" }

// fakeFeed serves pages from a fixed plate list.
type fakeFeed struct {
	rows map[string]feedrepo.Row
}

func newFakeFeed(plates ...string) *fakeFeed {
	rows := make(map[string]feedrepo.Row, len(plates))
	for _, plate := range plates {
		rows[plate] = feedrepo.Row{LicensePlate: plate, Availability: "Disponible", Model: "320d"}
	}
	return &fakeFeed{rows: rows}
}

func (f *fakeFeed) GetByPlate(_ context.Context, plate string) (feedrepo.Row, error) {
	row, ok := f.rows[plate]
	if !ok {
		return feedrepo.Row{}, apperr.NotFound("feed row not found")
	}
	return row, nil
}

func (f *fakeFeed) ListPlatesAfter(_ context.Context, afterPlate string, limit int) ([]string, error) {
	var plates []string
	for plate := range f.rows {
		if plate > afterPlate {
			plates = append(plates, plate)
		}
	}
	sort.Strings(plates)
	if len(plates) > limit {
		plates = plates[:limit]
	}
	return plates, nil
}

func (f *fakeFeed) ListPlatesMatching(_ context.Context, patterns []string) ([]string, error) {
	var plates []string
	for plate, row := range f.rows {
		if row.Availability == "Reservado" {
			plates = append(plates, plate)
		}
	}
	sort.Strings(plates)
	return plates, nil
}

func (f *fakeFeed) Count(context.Context) (int, error) { return len(f.rows), nil }
func (f *fakeFeed) CountMatching(context.Context, []string) (int, error) { return 0, nil }
func (f *fakeFeed) LastScrapedAt(context.Context) (time.Time, error) { return time.Time{}, nil }

// fakeRepo treats every plate as internally unknown, so every pass produces
// exactly one queue create, and can fail chosen plates.
type fakeRepo struct {
	mu              sync.Mutex
	applied         map[string]int
	failing         map[string]bool
	statePer        map[string]reconcile.DerivedState
	pendingReserved int
	pendingCutoff   time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		applied:  map[string]int{},
		failing:  map[string]bool{},
		statePer: map[string]reconcile.DerivedState{},
	}
}

func (r *fakeRepo) LoadState(_ context.Context, plate string) (reconcile.DerivedState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statePer[plate], nil
}

func (r *fakeRepo) Apply(_ context.Context, plate string, writes []reconcile.Write) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing[plate] {
		return fmt.Errorf("apply failed for %s", plate)
	}
	if len(writes) > 0 {
		r.applied[plate]++
	}
	return nil
}

func (r *fakeRepo) ApplyProposal(context.Context, reconcile.DeliveryProposal) error { return nil }
func (r *fakeRepo) ListPending(context.Context, int) ([]reconcile.DeliveryProposal, error) {
	return nil, nil
}
func (r *fakeRepo) Dismiss(context.Context, uuid.UUID) error                    { return nil }
func (r *fakeRepo) RecordRun(context.Context, repository.EngineRun) error       { return nil }
func (r *fakeRepo) CountRunsSince(context.Context, time.Time) (int, error) { return 0, nil }
func (r *fakeRepo) UpsertHandler(context.Context, repository.HandlerRecord) error { return nil }
func (r *fakeRepo) ListHandlers(context.Context) ([]repository.HandlerRecord, error) {
	return nil, nil
}
func (r *fakeRepo) ListSoldWithPhotoEntries(context.Context) ([]string, error) { return nil, nil }
func (r *fakeRepo) DeletePhotoEntry(context.Context, string) error             { return nil }
func (r *fakeRepo) CountQueuePending(context.Context) (int, error) { return 0, nil }
func (r *fakeRepo) CountStock(context.Context) (int, error) { return 0, nil }
func (r *fakeRepo) CountStockSold(context.Context) (int, error) { return 0, nil }
func (r *fakeRepo) CountPhotosPending(context.Context) (int, error) { return 0, nil }
func (r *fakeRepo) CountProposalsPending(context.Context) (int, error) { return 0, nil }
func (r *fakeRepo) CountDelivered(context.Context) (int, error) { return 0, nil }
func (r *fakeRepo) CountStockAvailabilityDrift(context.Context, []string) (int, error) {
	return 0, nil
}
func (r *fakeRepo) CountStockAbsentFromFeed(context.Context) (int, error) { return 0, nil }
func (r *fakeRepo) CountReservedPendingSync(_ context.Context, _ []string, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingCutoff = cutoff
	return r.pendingReserved, nil
}

var _ repository.Repository = (*fakeRepo)(nil)

// recordingArchiver captures stored reports.
type recordingArchiver struct {
	mu      sync.Mutex
	reports []Report
}

func (a *recordingArchiver) Store(_ context.Context, report Report) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, report)
	return nil
}

func newTestSweep(t *testing.T, feed *fakeFeed, repo *fakeRepo, archive Archiver) *Service {
	t.Helper()
	cfg := fakeEngineConfig{workers: 3}
	log := logger.New("development")
	bus := events.NewInMemoryBus(log)
	engine, err := enginesvc.New(cfg, log, feed, repo, bus)
	if err != nil {
		t.Fatalf("engine service: %v", err)
	}
	return New(cfg, log, feed, engine, bus, archive)
}

func TestFullSweepCountsEveryPlate(t *testing.T) {
	feed := newFakeFeed("1111AAA", "2222BBB", "3333CCC", "4444DDD")
	repo := newFakeRepo()
	svc := newTestSweep(t, feed, repo, nil)

	report, err := svc.FullSweep(context.Background())
	if err != nil {
		t.Fatalf("FullSweep: %v", err)
	}
	if report.Total != 4 {
		t.Fatalf("expected total 4, got %d", report.Total)
	}
	// Every plate is internally unknown, so every pass creates its queue
	// entry.
	if report.Created != 4 {
		t.Fatalf("expected 4 created, got %d", report.Created)
	}
	if report.Failed != 0 || report.Conflicted != 0 || report.Cancelled {
		t.Fatalf("unexpected failures in report: %+v", report)
	}
	if len(repo.applied) != 4 {
		t.Fatalf("expected 4 applied plates, got %d", len(repo.applied))
	}
}

func TestFullSweepSkipsSettledPlates(t *testing.T) {
	feed := newFakeFeed("1111AAA", "2222BBB")
	repo := newFakeRepo()
	// 1111AAA is settled: queued but not received, nothing to do.
	repo.statePer["1111AAA"] = reconcile.DerivedState{
		Queue: &reconcile.QueueEntry{LicensePlate: "1111AAA", Received: false},
	}
	svc := newTestSweep(t, feed, repo, nil)

	report, err := svc.FullSweep(context.Background())
	if err != nil {
		t.Fatalf("FullSweep: %v", err)
	}
	if report.Skipped != 1 || report.Created != 1 {
		t.Fatalf("expected 1 skipped and 1 created, got %+v", report)
	}
}

func TestFullSweepIsolatesPlateFailures(t *testing.T) {
	feed := newFakeFeed("1111AAA", "2222BBB", "3333CCC")
	repo := newFakeRepo()
	repo.failing["2222BBB"] = true
	svc := newTestSweep(t, feed, repo, nil)

	report, err := svc.FullSweep(context.Background())
	if err != nil {
		t.Fatalf("expected failing plate not to abort the sweep, got %v", err)
	}
	if report.Failed != 1 {
		t.Fatalf("expected 1 failed, got %d", report.Failed)
	}
	if report.Created != 2 {
		t.Fatalf("expected other plates still reconciled, got %+v", report)
	}
	if len(report.Failures) != 1 || report.Failures[0].LicensePlate != "2222BBB" {
		t.Fatalf("expected failure recorded for 2222BBB, got %+v", report.Failures)
	}
}

func TestFullSweepStopsOnCancelledContext(t *testing.T) {
	feed := newFakeFeed("1111AAA", "2222BBB", "3333CCC")
	repo := newFakeRepo()
	svc := newTestSweep(t, feed, repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := svc.FullSweep(ctx)
	if err != nil {
		t.Fatalf("FullSweep: %v", err)
	}
	if !report.Cancelled {
		t.Fatalf("expected cancelled report, got %+v", report)
	}
}

func TestFullSweepArchivesReport(t *testing.T) {
	feed := newFakeFeed("1111AAA")
	archive := &recordingArchiver{}
	svc := newTestSweep(t, feed, newFakeRepo(), archive)

	if _, err := svc.FullSweep(context.Background()); err != nil {
		t.Fatalf("FullSweep: %v", err)
	}
	if len(archive.reports) != 1 {
		t.Fatalf("expected 1 archived report, got %d", len(archive.reports))
	}
	if archive.reports[0].Source != SourceFullSweep {
		t.Fatalf("expected source %q, got %q", SourceFullSweep, archive.reports[0].Source)
	}
}

func TestSyncReservationsPendingSyncPercent(t *testing.T) {
	feed := newFakeFeed("1111AAA", "2222BBB")
	for plate, row := range feed.rows {
		row.Availability = "Reservado"
		feed.rows[plate] = row
	}
	repo := newFakeRepo()
	// 1111AAA already settled: queued, not received.
	repo.statePer["1111AAA"] = reconcile.DerivedState{
		Queue: &reconcile.QueueEntry{LicensePlate: "1111AAA", Received: false},
	}
	// One of the two reserved rows has no sales record past the grace window.
	repo.pendingReserved = 1
	svc := newTestSweep(t, feed, repo, nil)

	report, err := svc.SyncReservations(context.Background())
	if err != nil {
		t.Fatalf("SyncReservations: %v", err)
	}
	if report.Source != SourceReservationSync {
		t.Fatalf("expected source %q, got %q", SourceReservationSync, report.Source)
	}
	if report.Total != 2 {
		t.Fatalf("expected 2 reserved plates, got %d", report.Total)
	}
	if report.PendingSyncPercent != 50 {
		t.Fatalf("expected 50%% pending sync, got %v", report.PendingSyncPercent)
	}
	if repo.pendingCutoff.IsZero() {
		t.Fatal("expected the grace cutoff to reach the repository")
	}
}
