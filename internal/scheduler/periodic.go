package scheduler

import (
	"context"
	"fmt"
	"time"

	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues a reconciliation run on the configured cron spec.
type Periodic struct {
	scheduler *asynq.Scheduler
	entryID   string
	spec      string
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	spec := cfg.GetReconcileCron()
	if spec == "" {
		spec = "@every 1h"
	}

	task, err := NewReconcileInboxTask(ReconcileInboxPayload{Trigger: TriggerPeriodic})
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	entryID, err := scheduler.Register(spec, task, reconcileTaskOptions(queueName(cfg))...)
	if err != nil {
		return nil, fmt.Errorf("register reconcile schedule %q: %w", spec, err)
	}

	return &Periodic{scheduler: scheduler, entryID: entryID, spec: spec, log: log}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	if err := p.scheduler.Start(); err != nil {
		p.log.Error("periodic scheduler failed to start", "error", err)
		return
	}
	p.log.Info("periodic reconciliation scheduled", "spec", p.spec, "entry_id", p.entryID)

	<-ctx.Done()
	p.scheduler.Shutdown()
}
