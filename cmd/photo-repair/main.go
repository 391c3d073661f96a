// Command photo-repair re-runs the engine over every vehicle whose photo
// tracker claims an engine-written completion, resetting the ones the feed
// no longer backs up. It exists for recovering from bad feed imports; the
// periodic full sweep does the same correction continuously.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"dealersync_backend/internal/events"
	feedrepo "dealersync_backend/internal/feed/repository"
	enginerepo "dealersync_backend/internal/reconcile/repository"
	enginesvc "dealersync_backend/internal/reconcile/service"
	"dealersync_backend/platform/config"
	"dealersync_backend/platform/db"
	"dealersync_backend/platform/logger"
)

const source = "photo_repair"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting photo repair")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	engineRepo := enginerepo.New(pool)
	engineService, err := enginesvc.New(cfg, log, feedrepo.New(pool), engineRepo, events.NewInMemoryBus(log))
	if err != nil {
		log.Error("failed to initialize engine service", "error", err)
		panic("failed to initialize engine service: " + err.Error())
	}

	plates, err := listAutoCompletedPlates(ctx, pool)
	if err != nil {
		log.Error("failed to list auto-completed plates", "error", err)
		panic("failed to list auto-completed plates: " + err.Error())
	}
	log.Info("auto-completed trackers found", "count", len(plates))

	repaired, unchanged, failed := 0, 0, 0
	for _, plate := range plates {
		if ctx.Err() != nil {
			log.Info("interrupted", "remaining", len(plates)-repaired-unchanged-failed)
			break
		}

		outcome, err := engineService.ReconcileVehicle(ctx, plate, source)
		switch {
		case err != nil:
			failed++
			log.Error("repair failed", "plate", plate, "error", err)
		case len(outcome.Writes) > 0:
			repaired++
		default:
			unchanged++
		}
	}

	log.Info("photo repair complete", "repaired", repaired, "unchanged", unchanged, "failed", failed)
}

func listAutoCompletedPlates(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx,
		`SELECT license_plate FROM photo_tracker WHERE status = 'completed_auto' ORDER BY license_plate`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plates []string
	for rows.Next() {
		var plate string
		if err := rows.Scan(&plate); err != nil {
			return nil, err
		}
		plates = append(plates, plate)
	}
	return plates, rows.Err()
}
