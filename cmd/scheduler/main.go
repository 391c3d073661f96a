package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dealersync_backend/internal/events"
	feedrepo "dealersync_backend/internal/feed/repository"
	"dealersync_backend/internal/notification"
	enginerepo "dealersync_backend/internal/reconcile/repository"
	enginesvc "dealersync_backend/internal/reconcile/service"
	"dealersync_backend/internal/scheduler"
	sweepsvc "dealersync_backend/internal/sweep/service"
	"dealersync_backend/platform/config"
	"dealersync_backend/platform/db"
	"dealersync_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

	// Drift alerts fire from sweeps, which run in this process.
	notification.NewDriftMailer(cfg, eventBus, log)

	feedRepo := feedrepo.New(pool)
	engineService, err := enginesvc.New(cfg, log, feedRepo, enginerepo.New(pool), eventBus)
	if err != nil {
		log.Error("failed to initialize engine service", "error", err)
		panic("failed to initialize engine service: " + err.Error())
	}

	archiver := initArchiver(ctx, cfg, log)
	sweepService := sweepsvc.New(cfg, log, feedRepo, engineService, eventBus, archiver)

	worker, err := scheduler.NewWorker(cfg, engineService, sweepService, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer client.Close()

	periodic := scheduler.NewPeriodicEnqueuer(cfg, client, log)
	go periodic.Run(ctx)

	log.Info("scheduler worker running",
		"queue", cfg.GetAsynqQueueName(),
		"fullSweepInterval", cfg.GetFullSweepInterval().String(),
		"reservationSyncInterval", cfg.GetReservationSyncInterval().String(),
	)
	worker.Run(ctx)
	log.Info("scheduler stopped")
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
