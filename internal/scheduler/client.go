package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"dealersync_backend/platform/config"
)

type Client struct {
	client *asynq.Client
	queue  string
}

// Enqueuer is the narrow surface HTTP handlers use to trigger async work.
type Enqueuer interface {
	EnqueueFeedRowChanged(ctx context.Context, payload FeedRowChangedPayload) error
	EnqueueFullSweep(ctx context.Context, payload FullSweepPayload) error
	EnqueueReservationSync(ctx context.Context, payload ReservationSyncPayload) error
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
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

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

// Compile-time check that Client implements Enqueuer.
var _ Enqueuer = (*Client)(nil)

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) EnqueueFeedRowChanged(ctx context.Context, payload FeedRowChangedPayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewFeedRowChangedTask(payload)
	if err != nil {
		return err
	}

	// One plate in flight at a time; a re-enqueue while the first task is
	// pending is redundant work, not lost work.
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue),
		asynq.TaskID("feed-row-"+payload.LicensePlate))
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}
	return nil
}

func (c *Client) EnqueueFullSweep(ctx context.Context, payload FullSweepPayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewFullSweepTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

func (c *Client) EnqueueReservationSync(ctx context.Context, payload ReservationSyncPayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewReservationSyncTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
