package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"dealersync_backend/internal/events"
	feedrepo "dealersync_backend/internal/feed/repository"
	"dealersync_backend/internal/reconcile"
	"dealersync_backend/internal/reconcile/repository"
	"dealersync_backend/platform/apperr"
	"dealersync_backend/platform/logger"
)

type fakeEngineConfig struct {
	maxAttempts      int
	destructiveApply bool
}

func (c fakeEngineConfig) GetReconcileMaxAttempts() int             { return c.maxAttempts }
func (c fakeEngineConfig) GetReconcileRetryBase() time.Duration     { return time.Millisecond }
func (c fakeEngineConfig) GetSweepWorkers() int                     { return 4 }
func (c fakeEngineConfig) IsDestructiveApplyEnabled() bool          { return c.destructiveApply }
func (c fakeEngineConfig) GetReservationGracePeriod() time.Duration { return 7 * 24 * time.Hour }
func (c fakeEngineConfig) GetActiveWindow() time.Duration           { return time.Hour }
func (c fakeEngineConfig) GetStateDictionaryPath() string           { return "" }

type fakeFeed struct {
	rows map[string]feedrepo.Row
}

func (f *fakeFeed) GetByPlate(_ context.Context, plate string) (feedrepo.Row, error) {
	row, ok := f.rows[plate]
	if !ok {
		return feedrepo.Row{}, apperr.NotFound("feed row not found")
	}
	return row, nil
}

func (f *fakeFeed) ListPlatesAfter(context.Context, string, int) ([]string, error) {
	return nil, nil
}

func (f *fakeFeed) ListPlatesMatching(context.Context, []string) ([]string, error) {
	return nil, nil
}

func (f *fakeFeed) Count(context.Context) (int, error) { return len(f.rows), nil }
func (f *fakeFeed) CountMatching(context.Context, []string) (int, error) { return 0, nil }
func (f *fakeFeed) LastScrapedAt(context.Context) (time.Time, error) {
	return time.Time{}, nil
}

// fakeRepo keeps derived state in memory and can inject apply conflicts.
type fakeRepo struct {
	mu            sync.Mutex
	state         reconcile.DerivedState
	applied       [][]reconcile.Write
	runs          []repository.EngineRun
	handlers      map[string]repository.HandlerRecord
	proposals     []reconcile.DeliveryProposal
	conflictsLeft int
	failHandler   string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{handlers: map[string]repository.HandlerRecord{}}
}

func (r *fakeRepo) LoadState(context.Context, string) (reconcile.DerivedState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, nil
}

func (r *fakeRepo) Apply(_ context.Context, _ string, writes []reconcile.Write) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		return apperr.Conflict("concurrent update")
	}
	r.applied = append(r.applied, writes)
	return nil
}

func (r *fakeRepo) ApplyProposal(_ context.Context, proposal reconcile.DeliveryProposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.proposals {
		if r.proposals[i].ID == proposal.ID && r.proposals[i].Status == reconcile.ProposalPending {
			r.proposals[i].Status = reconcile.ProposalApplied
			return nil
		}
	}
	return apperr.Conflict("proposal already settled")
}

func (r *fakeRepo) ListPending(_ context.Context, limit int) ([]reconcile.DeliveryProposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []reconcile.DeliveryProposal
	for _, p := range r.proposals {
		if p.Status == reconcile.ProposalPending && len(pending) < limit {
			pending = append(pending, p)
		}
	}
	return pending, nil
}

func (r *fakeRepo) Dismiss(context.Context, uuid.UUID) error { return nil }

func (r *fakeRepo) RecordRun(_ context.Context, run repository.EngineRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *fakeRepo) CountRunsSince(context.Context, time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs), nil
}

func (r *fakeRepo) UpsertHandler(_ context.Context, record repository.HandlerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failHandler == record.Name {
		return fmt.Errorf("upsert %s: connection reset", record.Name)
	}
	r.handlers[record.Name] = record
	return nil
}

func (r *fakeRepo) ListHandlers(context.Context) ([]repository.HandlerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var records []repository.HandlerRecord
	for _, rec := range r.handlers {
		records = append(records, rec)
	}
	return records, nil
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
func (r *fakeRepo) CountReservedPendingSync(context.Context, []string, time.Time) (int, error) {
	return 0, nil
}

var _ repository.Repository = (*fakeRepo)(nil)

func newTestService(t *testing.T, cfg fakeEngineConfig, feed *fakeFeed, repo *fakeRepo) *Service {
	t.Helper()
	log := logger.New("development")
	svc, err := New(cfg, log, feed, repo, events.NewInMemoryBus(log))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestReconcileVehicleUnknownPlateQueues(t *testing.T) {
	feed := &fakeFeed{rows: map[string]feedrepo.Row{
		"1234ABC": {LicensePlate: "1234ABC", Availability: "Disponible", Model: "320d"},
	}}
	repo := newFakeRepo()
	svc := newTestService(t, fakeEngineConfig{maxAttempts: 3}, feed, repo)

	outcome, err := svc.ReconcileVehicle(context.Background(), " 1234 abc ", "test")
	if err != nil {
		t.Fatalf("ReconcileVehicle: %v", err)
	}
	if outcome.LicensePlate != "1234ABC" {
		t.Fatalf("expected normalized plate 1234ABC, got %q", outcome.LicensePlate)
	}
	if len(outcome.Writes) != 1 || outcome.Writes[0].Op() != reconcile.OpCreateQueueEntry {
		t.Fatalf("expected single queue write, got %v", outcome.Writes)
	}
	if len(repo.applied) != 1 {
		t.Fatalf("expected one apply, got %d", len(repo.applied))
	}
	if len(repo.runs) != 1 || repo.runs[0].Source != "test" {
		t.Fatalf("expected one recorded run from source test, got %+v", repo.runs)
	}
}

func TestReconcileVehicleEmptyPlateRejected(t *testing.T) {
	svc := newTestService(t, fakeEngineConfig{maxAttempts: 1}, &fakeFeed{}, newFakeRepo())

	_, err := svc.ReconcileVehicle(context.Background(), "   ", "test")
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReconcileVehicleMissingFeedRowIsNoOp(t *testing.T) {
	repo := newFakeRepo()
	repo.state = reconcile.DerivedState{
		Queue: &reconcile.QueueEntry{LicensePlate: "1234ABC", Received: true},
		Stock: &reconcile.StockEntry{LicensePlate: "1234ABC"},
		Photo: &reconcile.PhotoEntry{LicensePlate: "1234ABC"},
	}
	svc := newTestService(t, fakeEngineConfig{maxAttempts: 1}, &fakeFeed{}, repo)

	outcome, err := svc.ReconcileVehicle(context.Background(), "1234ABC", "test")
	if err != nil {
		t.Fatalf("ReconcileVehicle: %v", err)
	}
	if len(outcome.Writes) != 0 {
		t.Fatalf("expected vanished feed row to leave state alone, got %v", outcome.Writes)
	}
}

func TestReconcileVehicleRetriesOnConflict(t *testing.T) {
	feed := &fakeFeed{rows: map[string]feedrepo.Row{
		"1234ABC": {LicensePlate: "1234ABC", Availability: "Disponible", Model: "320d"},
	}}
	repo := newFakeRepo()
	repo.conflictsLeft = 2
	svc := newTestService(t, fakeEngineConfig{maxAttempts: 3}, feed, repo)

	outcome, err := svc.ReconcileVehicle(context.Background(), "1234ABC", "test")
	if err != nil {
		t.Fatalf("expected retries to absorb conflicts, got %v", err)
	}
	if outcome.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", outcome.Attempts)
	}
}

func TestReconcileVehicleGivesUpAfterMaxAttempts(t *testing.T) {
	feed := &fakeFeed{rows: map[string]feedrepo.Row{
		"1234ABC": {LicensePlate: "1234ABC", Availability: "Disponible", Model: "320d"},
	}}
	repo := newFakeRepo()
	repo.conflictsLeft = 10
	svc := newTestService(t, fakeEngineConfig{maxAttempts: 2}, feed, repo)

	_, err := svc.ReconcileVehicle(context.Background(), "1234ABC", "test")
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("expected conflict after exhausting attempts, got %v", err)
	}
	if len(repo.runs) != 1 || repo.runs[0].Error == "" {
		t.Fatalf("expected a recorded run carrying the error, got %+v", repo.runs)
	}
}

func TestExecuteProposalsGateDisabled(t *testing.T) {
	repo := newFakeRepo()
	repo.proposals = []reconcile.DeliveryProposal{
		{ID: uuid.New(), LicensePlate: "1234ABC", Status: reconcile.ProposalPending},
	}
	svc := newTestService(t, fakeEngineConfig{maxAttempts: 1, destructiveApply: false}, &fakeFeed{}, repo)

	applied, skipped, err := svc.ExecuteProposals(context.Background(), 10)
	if err != nil {
		t.Fatalf("ExecuteProposals: %v", err)
	}
	if len(applied) != 0 || skipped != 1 {
		t.Fatalf("expected gate to skip the proposal, got applied=%d skipped=%d", len(applied), skipped)
	}
	if repo.proposals[0].Status != reconcile.ProposalPending {
		t.Fatalf("expected proposal untouched, got status %q", repo.proposals[0].Status)
	}
}

func TestExecuteProposalsGateEnabled(t *testing.T) {
	repo := newFakeRepo()
	repo.proposals = []reconcile.DeliveryProposal{
		{ID: uuid.New(), LicensePlate: "1234ABC", Status: reconcile.ProposalPending},
		{ID: uuid.New(), LicensePlate: "5678DEF", Status: reconcile.ProposalPending},
	}
	svc := newTestService(t, fakeEngineConfig{maxAttempts: 1, destructiveApply: true}, &fakeFeed{}, repo)

	applied, skipped, err := svc.ExecuteProposals(context.Background(), 10)
	if err != nil {
		t.Fatalf("ExecuteProposals: %v", err)
	}
	if len(applied) != 2 || skipped != 0 {
		t.Fatalf("expected both proposals applied, got applied=%d skipped=%d", len(applied), skipped)
	}
	for _, p := range repo.proposals {
		if p.Status != reconcile.ProposalApplied {
			t.Fatalf("expected proposal %s applied, got %q", p.LicensePlate, p.Status)
		}
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, fakeEngineConfig{maxAttempts: 1}, &fakeFeed{}, repo)

	first, err := svc.Install(context.Background())
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	second, err := svc.Install(context.Background())
	if err != nil {
		t.Fatalf("Install repeat: %v", err)
	}
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected 3 handlers on both installs, got %d then %d", len(first), len(second))
	}
}

func TestInstallReportsPerHandlerResult(t *testing.T) {
	repo := newFakeRepo()
	repo.failHandler = HandlerFullSweep
	svc := newTestService(t, fakeEngineConfig{maxAttempts: 1}, &fakeFeed{}, repo)

	records, err := svc.Install(context.Background())
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 handler results, got %d", len(records))
	}
	for _, rec := range records {
		if rec.Name == HandlerFullSweep {
			if rec.Enabled {
				t.Fatalf("expected failed handler to be disabled: %+v", rec)
			}
			if rec.InstallNotes == "" || rec.InstallNotes == "installed" {
				t.Fatalf("expected failure note on %s, got %q", rec.Name, rec.InstallNotes)
			}
			continue
		}
		if !rec.Enabled || rec.InstallNotes != "installed" {
			t.Fatalf("expected %s to install cleanly, got %+v", rec.Name, rec)
		}
	}
	if _, ok := repo.handlers[HandlerFullSweep]; ok {
		t.Fatal("failed handler must not be recorded as installed")
	}
	if len(repo.handlers) != 2 {
		t.Fatalf("expected 2 stored handlers, got %d", len(repo.handlers))
	}
}
