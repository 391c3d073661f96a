package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"dealersync_backend/internal/engine"
	"dealersync_backend/internal/events"
	feedrepo "dealersync_backend/internal/feed/repository"
	apphttp "dealersync_backend/internal/http"
	"dealersync_backend/internal/http/router"
	"dealersync_backend/internal/notification"
	"dealersync_backend/internal/scheduler"
	"dealersync_backend/internal/status"
	statussvc "dealersync_backend/internal/status/service"
	"dealersync_backend/internal/sweep"
	sweepsvc "dealersync_backend/internal/sweep/service"
	"dealersync_backend/platform/config"
	"dealersync_backend/platform/db"
	"dealersync_backend/platform/logger"
	"dealersync_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	enqueuer, closeEnqueuer := initEnqueuer(cfg, log)
	if closeEnqueuer != nil {
		defer closeEnqueuer()
	}

	statusCache := initStatusCache(cfg, log)
	if statusCache != nil {
		defer statusCache.Close()
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	feedRepo := feedrepo.New(pool)

	engineModule, err := engine.NewModule(cfg, pool, feedRepo, eventBus, val, log)
	if err != nil {
		log.Error("failed to initialize engine module", "error", err)
		panic("failed to initialize engine module: " + err.Error())
	}

	archiver := initArchiver(ctx, cfg, log)
	sweepService := sweepsvc.New(cfg, log, feedRepo, engineModule.Service(), eventBus, archiver)
	sweepModule := sweep.NewModule(sweepService, enqueuer, eventBus, val)

	statusService := statussvc.New(cfg, log, feedRepo, engineModule.Repository(),
		engineModule.Service().Dictionary(), statusCache, cfg.GetStatusCacheTTL())
	statusModule := status.NewModule(statusService)

	// Drift alerts ride the event bus; nothing to wire beyond the subscription.
	notification.NewDriftMailer(cfg, eventBus, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			engineModule,
			sweepModule,
			statusModule,
		},
	}

	ginEngine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- ginEngine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initEnqueuer(cfg config.SchedulerConfig, log *logger.Logger) (scheduler.Enqueuer, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; sweep and feed-change endpoints disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func initStatusCache(cfg config.StatusCacheConfig, log *logger.Logger) *redis.Client {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; status reports are uncached")
		return nil
	}

	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to parse redis url", "error", err)
		return nil
	}
	if cfg.GetRedisTLSInsecure() && opt.TLSConfig != nil {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return redis.NewClient(opt)
}

func initArchiver(ctx context.Context, cfg config.ArchiveConfig, log *logger.Logger) sweepsvc.Archiver {
	if !cfg.IsArchiveEnabled() {
		log.Warn("MINIO_ENDPOINT not configured; sweep reports are not archived")
		return nil
	}

	archiver, err := sweepsvc.NewMinioArchiver(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize sweep report archiver", "error", err)
		return nil
	}
	log.Info("sweep report archive initialized", "bucket", cfg.GetMinioBucketSweepReports())
	return archiver
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("%s: %w", name, lastErr)
}
