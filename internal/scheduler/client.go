package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"outreach_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// reconcileTaskTimeout caps a single queued run. The run itself stops at
// RECONCILE_RUN_TIMEOUT, which config keeps shorter.
const reconcileTaskTimeout = 30 * time.Minute

// ErrRunAlreadyQueued is returned when an identical run is still pending.
var ErrRunAlreadyQueued = errors.New("reconciliation run already queued")

type Client struct {
	client *asynq.Client
	queue  string
}

// RunEnqueuer queues an asynchronous reconciliation run.
type RunEnqueuer interface {
	EnqueueReconcileRun(ctx context.Context, payload ReconcileInboxPayload) (string, error)
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

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueReconcileRun queues a run and returns the task id. Runs are never retried by
// the queue; the next periodic tick picks up whatever a failed run missed.
func (c *Client) EnqueueReconcileRun(ctx context.Context, payload ReconcileInboxPayload) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("scheduler client not configured")
	}

	task, err := NewReconcileInboxTask(payload)
	if err != nil {
		return "", err
	}

	info, err := c.client.EnqueueContext(ctx, task, reconcileTaskOptions(c.queue)...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return "", ErrRunAlreadyQueued
	}
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func reconcileTaskOptions(queue string) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(queue),
		asynq.MaxRetry(0),
		asynq.Timeout(reconcileTaskTimeout),
		asynq.Unique(reconcileTaskTimeout),
	}
}

// NewRedisClient opens a go-redis client with the same URL and TLS handling as the queue.
func NewRedisClient(cfg config.SchedulerConfig) (*redis.Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisOptions(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

func queueName(cfg config.SchedulerConfig) string {
	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}
	return queue
}

func redisOptions(redisURL string, tlsInsecure bool) (*redis.Options, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		opt.TLSConfig = clone
	} else if tlsInsecure {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return opt, nil
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redisOptions(redisURL, tlsInsecure)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
