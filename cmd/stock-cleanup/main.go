// Command stock-cleanup is the gated destructive path: it deletes pending
// photo-tracker entries for sold vehicles and executes pending delivery
// proposals. Without DESTRUCTIVE_APPLY=true it only reports what it would
// do, so the output can be reviewed before anything is removed.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"dealersync_backend/internal/events"
	feedrepo "dealersync_backend/internal/feed/repository"
	enginerepo "dealersync_backend/internal/reconcile/repository"
	enginesvc "dealersync_backend/internal/reconcile/service"
	"dealersync_backend/platform/config"
	"dealersync_backend/platform/db"
	"dealersync_backend/platform/logger"
)

const proposalBatch = 500

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting stock cleanup", "destructiveApply", cfg.DestructiveApply)

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

	// Sold vehicles with a pending tracker: photography no longer needed.
	plates, err := engineRepo.ListSoldWithPhotoEntries(ctx)
	if err != nil {
		log.Error("failed to list sold vehicles with photo entries", "error", err)
		panic("failed to list sold vehicles with photo entries: " + err.Error())
	}

	removed := 0
	for _, plate := range plates {
		if ctx.Err() != nil {
			break
		}
		if !cfg.DestructiveApply {
			log.Info("would delete photo entry", "plate", plate)
			continue
		}
		if err := engineRepo.DeletePhotoEntry(ctx, plate); err != nil {
			log.Error("photo entry delete failed", "plate", plate, "error", err)
			continue
		}
		removed++
	}
	log.Info("sold-vehicle photo entries processed", "candidates", len(plates), "removed", removed)

	// Delivery proposals recorded by the engine.
	applied, skipped, err := engineService.ExecuteProposals(ctx, proposalBatch)
	if err != nil {
		log.Error("proposal execution failed", "error", err)
		panic("proposal execution failed: " + err.Error())
	}
	for _, proposal := range applied {
		log.Info("delivery applied", "plate", proposal.LicensePlate, "deliveryDate", proposal.DeliveryDate)
	}
	log.Info("stock cleanup complete", "proposalsApplied", len(applied), "proposalsSkipped", skipped)
}
