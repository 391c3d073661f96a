// Package service builds the engine status report: install state, recent
// activity, derived-table counts, and feed freshness. Reports are cached in
// redis because dashboards poll this endpoint aggressively.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	feedrepo "dealersync_backend/internal/feed/repository"
	"dealersync_backend/internal/reconcile"
	"dealersync_backend/internal/reconcile/repository"
	"dealersync_backend/platform/config"
	"dealersync_backend/platform/logger"
)

const cacheKey = "engine:status"

// activeRunThreshold is the minimum number of recent engine runs for the
// engine to report active. A single run can be a manual poke; two within
// the window means the pipeline is alive.
const activeRunThreshold = 2

// Feed freshness levels. The scrape normally lands several times a day;
// past 12 hours something upstream is wedged, past 24 the feed is dead.
const (
	FeedFresh = "fresh"
	FeedStale = "stale"
	FeedDead  = "dead"

	feedStaleAfter = 12 * time.Hour
	feedDeadAfter  = 24 * time.Hour
)

// HandlerStatus is one registered handler in the report.
type HandlerStatus struct {
	Name       string    `json:"name"`
	Enabled    bool      `json:"enabled"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// Report is the full engine status.
type Report struct {
	InstalledAndActive bool            `json:"installedAndActive"`
	Handlers           []HandlerStatus `json:"handlers"`
	RunsInWindow       int             `json:"runsInWindow"`
	ActiveWindow       string          `json:"activeWindow"`

	QueuePending           int `json:"queuePending"`
	StockTotal             int `json:"stockTotal"`
	StockSold              int `json:"stockSold"`
	PhotosPending          int `json:"photosPending"`
	ProposalsPending       int `json:"proposalsPending"`
	Delivered              int `json:"delivered"`
	StockAvailabilityDrift int `json:"stockAvailabilityDrift"`
	StockAbsentFromFeed    int `json:"stockAbsentFromFeed"`

	FeedTotal     int       `json:"feedTotal"`
	FeedReserved  int       `json:"feedReserved"`
	FeedScrapedAt time.Time `json:"feedScrapedAt"`
	FeedFreshness string    `json:"feedFreshness"`

	GeneratedAt time.Time `json:"generatedAt"`
	Cached      bool      `json:"cached"`
}

// Service assembles and caches status reports.
type Service struct {
	cfg   config.EngineConfig
	log   *logger.Logger
	feed  feedrepo.Reader
	repo  repository.Repository
	dict  *reconcile.StateDictionary
	cache *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// New creates the status service. cache may be nil, in which case every
// request rebuilds the report.
func New(cfg config.EngineConfig, log *logger.Logger, feed feedrepo.Reader, repo repository.Repository, dict *reconcile.StateDictionary, cache *redis.Client, ttl time.Duration) *Service {
	return &Service{
		cfg:   cfg,
		log:   log,
		feed:  feed,
		repo:  repo,
		dict:  dict,
		cache: cache,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Status returns the engine status report, from cache when possible.
func (s *Service) Status(ctx context.Context) (Report, error) {
	if cached, ok := s.fromCache(ctx); ok {
		return cached, nil
	}

	report, err := s.build(ctx)
	if err != nil {
		return Report{}, err
	}

	s.toCache(ctx, report)
	return report, nil
}

func (s *Service) build(ctx context.Context) (Report, error) {
	now := s.now()
	report := Report{GeneratedAt: now}

	handlers, err := s.repo.ListHandlers(ctx)
	if err != nil {
		return report, err
	}
	for _, h := range handlers {
		report.Handlers = append(report.Handlers, HandlerStatus{
			Name:       h.Name,
			Enabled:    h.Enabled,
			LastSeenAt: h.LastSeenAt,
		})
	}

	window := s.cfg.GetActiveWindow()
	report.ActiveWindow = window.String()
	report.RunsInWindow, err = s.repo.CountRunsSince(ctx, now.Add(-window))
	if err != nil {
		return report, err
	}
	report.InstalledAndActive = len(handlers) > 0 && report.RunsInWindow >= activeRunThreshold

	counters := []struct {
		dst  *int
		load func(context.Context) (int, error)
	}{
		{&report.QueuePending, s.repo.CountQueuePending},
		{&report.StockTotal, s.repo.CountStock},
		{&report.StockSold, s.repo.CountStockSold},
		{&report.PhotosPending, s.repo.CountPhotosPending},
		{&report.ProposalsPending, s.repo.CountProposalsPending},
		{&report.Delivered, s.repo.CountDelivered},
		{&report.StockAbsentFromFeed, s.repo.CountStockAbsentFromFeed},
		{&report.FeedTotal, s.feed.Count},
	}
	for _, c := range counters {
		if *c.dst, err = c.load(ctx); err != nil {
			return report, err
		}
	}

	report.StockAvailabilityDrift, err = s.repo.CountStockAvailabilityDrift(ctx, s.dict.AvailablePatterns())
	if err != nil {
		return report, err
	}

	report.FeedReserved, err = s.feed.CountMatching(ctx, s.dict.ReservedPatterns())
	if err != nil {
		return report, err
	}

	report.FeedScrapedAt, err = s.feed.LastScrapedAt(ctx)
	if err != nil {
		return report, err
	}
	report.FeedFreshness = freshness(now, report.FeedScrapedAt)

	return report, nil
}

func freshness(now, scrapedAt time.Time) string {
	age := now.Sub(scrapedAt)
	switch {
	case scrapedAt.IsZero() || age >= feedDeadAfter:
		return FeedDead
	case age >= feedStaleAfter:
		return FeedStale
	default:
		return FeedFresh
	}
}

func (s *Service) fromCache(ctx context.Context) (Report, bool) {
	if s.cache == nil {
		return Report{}, false
	}

	data, err := s.cache.Get(ctx, cacheKey).Bytes()
	if err != nil {
		return Report{}, false
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return Report{}, false
	}
	report.Cached = true
	return report, true
}

func (s *Service) toCache(ctx context.Context, report Report) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}

	data, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey, data, s.ttl).Err(); err != nil {
		s.log.Warn("status cache write failed", "error", err)
	}
}

// Invalidate drops the cached report, used after installs so the next read
// reflects the new handlers immediately.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey).Err(); err != nil {
		s.log.Warn("status cache invalidate failed", "error", err)
	}
}
