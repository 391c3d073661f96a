package scheduler

import (
	"context"
	"time"

	"dealersync_backend/platform/config"
	"dealersync_backend/platform/logger"
)

// PeriodicEnqueuer puts the recurring sweeps on the queue: a full sweep as
// the batch safety net under the reactive path, and a reservation sync on a
// tighter interval.
type PeriodicEnqueuer struct {
	client              Enqueuer
	log                 *logger.Logger
	fullInterval        time.Duration
	reservationInterval time.Duration
}

func NewPeriodicEnqueuer(cfg config.SchedulerConfig, client Enqueuer, log *logger.Logger) *PeriodicEnqueuer {
	return &PeriodicEnqueuer{
		client:              client,
		log:                 log,
		fullInterval:        cfg.GetFullSweepInterval(),
		reservationInterval: cfg.GetReservationSyncInterval(),
	}
}

func (p *PeriodicEnqueuer) Run(ctx context.Context) {
	if p == nil || p.client == nil {
		return
	}
	if p.fullInterval <= 0 && p.reservationInterval <= 0 {
		return
	}

	fullTick := tickerOrNever(p.fullInterval)
	defer fullTick.Stop()
	reservationTick := tickerOrNever(p.reservationInterval)
	defer reservationTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fullTick.C:
			if err := p.client.EnqueueFullSweep(ctx, FullSweepPayload{RequestedBy: "scheduler"}); err != nil {
				p.log.Warn("full sweep enqueue failed", "error", err)
			}
		case <-reservationTick.C:
			if err := p.client.EnqueueReservationSync(ctx, ReservationSyncPayload{RequestedBy: "scheduler"}); err != nil {
				p.log.Warn("reservation sync enqueue failed", "error", err)
			}
		}
	}
}

// tickerOrNever returns a ticker that never fires for non-positive
// intervals, so a disabled loop still selects cleanly.
func tickerOrNever(interval time.Duration) *time.Ticker {
	if interval <= 0 {
		ticker := time.NewTicker(time.Hour)
		ticker.Stop()
		return ticker
	}
	return time.NewTicker(interval)
}
