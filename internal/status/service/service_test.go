package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	feedrepo "dealersync_backend/internal/feed/repository"
	"dealersync_backend/internal/reconcile"
	"dealersync_backend/internal/reconcile/repository"
	"dealersync_backend/platform/logger"
)

type fakeEngineConfig struct{}

func (fakeEngineConfig) GetReconcileMaxAttempts() int             { return 3 }
func (fakeEngineConfig) GetReconcileRetryBase() time.Duration     { return time.Millisecond }
func (fakeEngineConfig) GetSweepWorkers() int                     { return 4 }
func (fakeEngineConfig) IsDestructiveApplyEnabled() bool          { return false }
func (fakeEngineConfig) GetReservationGracePeriod() time.Duration { return 7 * 24 * time.Hour }
func (fakeEngineConfig) GetActiveWindow() time.Duration           { return time.Hour }
func (fakeEngineConfig) GetStateDictionaryPath() string           { return "" }

type fakeFeed struct {
	total     int
	scrapedAt time.Time
}

func (f *fakeFeed) GetByPlate(context.Context, string) (feedrepo.Row, error) {
	return feedrepo.Row{}, nil
}
func (f *fakeFeed) ListPlatesAfter(context.Context, string, int) ([]string, error) {
	return nil, nil
}
func (f *fakeFeed) ListPlatesMatching(context.Context, []string) ([]string, error) {
	return nil, nil
}
func (f *fakeFeed) Count(context.Context) (int, error) { return f.total, nil }
func (f *fakeFeed) CountMatching(context.Context, []string) (int, error) { return 0, nil }
func (f *fakeFeed) LastScrapedAt(context.Context) (time.Time, error) { return f.scrapedAt, nil }

type fakeRepo struct {
	handlers   []repository.HandlerRecord
	runs       int
	buildCalls int
}

func (r *fakeRepo) LoadState(context.Context, string) (reconcile.DerivedState, error) {
	return reconcile.DerivedState{}, nil
}
func (r *fakeRepo) Apply(context.Context, string, []reconcile.Write) error          { return nil }
func (r *fakeRepo) ApplyProposal(context.Context, reconcile.DeliveryProposal) error { return nil }
func (r *fakeRepo) ListPending(context.Context, int) ([]reconcile.DeliveryProposal, error) {
	return nil, nil
}
func (r *fakeRepo) Dismiss(context.Context, uuid.UUID) error              { return nil }
func (r *fakeRepo) RecordRun(context.Context, repository.EngineRun) error { return nil }
func (r *fakeRepo) CountRunsSince(context.Context, time.Time) (int, error) {
	r.buildCalls++
	return r.runs, nil
}
func (r *fakeRepo) UpsertHandler(context.Context, repository.HandlerRecord) error { return nil }
func (r *fakeRepo) ListHandlers(context.Context) ([]repository.HandlerRecord, error) {
	return r.handlers, nil
}
func (r *fakeRepo) ListSoldWithPhotoEntries(context.Context) ([]string, error) { return nil, nil }
func (r *fakeRepo) DeletePhotoEntry(context.Context, string) error             { return nil }
func (r *fakeRepo) CountQueuePending(context.Context) (int, error) { return 3, nil }
func (r *fakeRepo) CountStock(context.Context) (int, error) { return 40, nil }
func (r *fakeRepo) CountStockSold(context.Context) (int, error) { return 5, nil }
func (r *fakeRepo) CountPhotosPending(context.Context) (int, error) { return 7, nil }
func (r *fakeRepo) CountProposalsPending(context.Context) (int, error) { return 2, nil }
func (r *fakeRepo) CountDelivered(context.Context) (int, error) { return 6, nil }
func (r *fakeRepo) CountStockAvailabilityDrift(context.Context, []string) (int, error) {
	return 1, nil
}
func (r *fakeRepo) CountStockAbsentFromFeed(context.Context) (int, error) { return 4, nil }
func (r *fakeRepo) CountReservedPendingSync(context.Context, []string, time.Time) (int, error) {
	return 0, nil
}

var _ repository.Repository = (*fakeRepo)(nil)

func newTestService(t *testing.T, repo *fakeRepo, feed *fakeFeed, withCache bool) *Service {
	t.Helper()
	var cache *redis.Client
	if withCache {
		mr := miniredis.RunT(t)
		cache = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	}
	return New(fakeEngineConfig{}, logger.New("development"), feed, repo,
		reconcile.DefaultStateDictionary(), cache, time.Minute)
}

func activeRepo() *fakeRepo {
	now := time.Now()
	return &fakeRepo{
		handlers: []repository.HandlerRecord{
			{Name: "feed.row_changed", Enabled: true, InstalledAt: now, LastSeenAt: now},
		},
		runs: 5,
	}
}

func TestStatusInstalledAndActive(t *testing.T) {
	feed := &fakeFeed{total: 50, scrapedAt: time.Now().Add(-time.Hour)}
	svc := newTestService(t, activeRepo(), feed, false)

	report, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !report.InstalledAndActive {
		t.Fatalf("expected installed and active, got %+v", report)
	}
	if report.QueuePending != 3 || report.StockTotal != 40 || report.PhotosPending != 7 || report.Delivered != 6 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if report.FeedFreshness != FeedFresh {
		t.Fatalf("expected fresh feed, got %q", report.FeedFreshness)
	}
}

func TestStatusNotActiveWithFewRuns(t *testing.T) {
	repo := activeRepo()
	repo.runs = 1
	svc := newTestService(t, repo, &fakeFeed{scrapedAt: time.Now()}, false)

	report, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if report.InstalledAndActive {
		t.Fatalf("expected inactive with a single recent run, got %+v", report)
	}
}

func TestStatusNotInstalledWithoutHandlers(t *testing.T) {
	repo := &fakeRepo{runs: 10}
	svc := newTestService(t, repo, &fakeFeed{scrapedAt: time.Now()}, false)

	report, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if report.InstalledAndActive {
		t.Fatalf("expected not installed without handler rows, got %+v", report)
	}
}

func TestStatusFeedFreshness(t *testing.T) {
	cases := []struct {
		age  time.Duration
		want string
	}{
		{time.Hour, FeedFresh},
		{13 * time.Hour, FeedStale},
		{25 * time.Hour, FeedDead},
	}

	for _, tc := range cases {
		feed := &fakeFeed{scrapedAt: time.Now().Add(-tc.age)}
		svc := newTestService(t, activeRepo(), feed, false)

		report, err := svc.Status(context.Background())
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if report.FeedFreshness != tc.want {
			t.Fatalf("age %v: expected %q, got %q", tc.age, tc.want, report.FeedFreshness)
		}
	}
}

func TestStatusNeverScrapedIsDead(t *testing.T) {
	svc := newTestService(t, activeRepo(), &fakeFeed{}, false)

	report, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if report.FeedFreshness != FeedDead {
		t.Fatalf("expected dead feed for zero scrape time, got %q", report.FeedFreshness)
	}
}

func TestStatusServedFromCache(t *testing.T) {
	repo := activeRepo()
	svc := newTestService(t, repo, &fakeFeed{scrapedAt: time.Now()}, true)

	first, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if first.Cached {
		t.Fatalf("expected first report uncached")
	}

	second, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status repeat: %v", err)
	}
	if !second.Cached {
		t.Fatalf("expected second report from cache")
	}
	if repo.buildCalls != 1 {
		t.Fatalf("expected one rebuild, got %d", repo.buildCalls)
	}
}

func TestStatusInvalidateDropsCache(t *testing.T) {
	repo := activeRepo()
	svc := newTestService(t, repo, &fakeFeed{scrapedAt: time.Now()}, true)

	if _, err := svc.Status(context.Background()); err != nil {
		t.Fatalf("Status: %v", err)
	}
	svc.Invalidate(context.Background())

	report, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status after invalidate: %v", err)
	}
	if report.Cached {
		t.Fatalf("expected rebuild after invalidate")
	}
	if repo.buildCalls != 2 {
		t.Fatalf("expected two rebuilds, got %d", repo.buildCalls)
	}
}
