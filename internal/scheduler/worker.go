package scheduler

import (
	"context"
	"fmt"

	"outreach_backend/internal/reconciliation/domain"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// ReconcileRunner executes one reconciliation run.
type ReconcileRunner interface {
	Run(ctx context.Context) (domain.RunSummary, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner ReconcileRunner
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, runner ReconcileRunner, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 2
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		runner: runner,
		log:    log,
	}

	mux.HandleFunc(TaskReconcileInbox, w.handleReconcileInbox)

	return w, nil
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

func (w *Worker) handleReconcileInbox(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReconcileInboxPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	summary, err := w.runner.Run(ctx)
	if err != nil {
		w.log.Error("reconciliation run failed", "trigger", payload.Trigger, "error", err)
		if apperr.Is(err, apperr.KindUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if summary.Skipped {
		w.log.Info("reconciliation run skipped, another run holds the lock", "trigger", payload.Trigger)
		return nil
	}

	w.log.Info("reconciliation task finished",
		"trigger", payload.Trigger,
		"requested_by", payload.RequestedBy,
		"reason", payload.Reason,
		"processed_users", summary.ProcessedUsers,
		"replies_logged", summary.RepliesLogged,
		"bounces_logged", summary.BouncesLogged,
	)
	return nil
}
