package scheduler

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	enginesvc "dealersync_backend/internal/reconcile/service"
	sweepsvc "dealersync_backend/internal/sweep/service"
	"dealersync_backend/platform/config"
	"dealersync_backend/platform/logger"
)

// Worker consumes engine tasks from the queue. It is the out-of-process
// entry point of the engine: the scraper ETL bridge enqueues feed.row_changed
// tasks, periodic loops and operator endpoints enqueue sweeps.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	engine *enginesvc.Service
	sweeps *sweepsvc.Service
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, engine *enginesvc.Service, sweeps *sweepsvc.Service, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		engine: engine,
		sweeps: sweeps,
		log:    log,
	}

	mux.HandleFunc(TaskFeedRowChanged, w.handleFeedRowChanged)
	mux.HandleFunc(TaskFullSweep, w.handleFullSweep)
	mux.HandleFunc(TaskReservationSync, w.handleReservationSync)

	return w, nil
}

func (w *Worker) handleFeedRowChanged(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFeedRowChangedPayload(task)
	if err != nil {
		return err
	}
	if payload.LicensePlate == "" {
		return nil
	}

	_, err = w.engine.ReconcileVehicle(ctx, payload.LicensePlate, "event")
	return err
}

func (w *Worker) handleFullSweep(ctx context.Context, task *asynq.Task) error {
	if _, err := ParseFullSweepPayload(task); err != nil {
		return err
	}
	_, err := w.sweeps.FullSweep(ctx)
	return err
}

func (w *Worker) handleReservationSync(ctx context.Context, task *asynq.Task) error {
	if _, err := ParseReservationSyncPayload(task); err != nil {
		return err
	}
	_, err := w.sweeps.SyncReservations(ctx)
	return err
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
