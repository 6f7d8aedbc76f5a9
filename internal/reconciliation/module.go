// Package reconciliation provides the inbox reconciliation bounded context module.
// It polls connected mailboxes for replies and bounces and guards campaigns
// against excessive bounce rates.
package reconciliation

import (
	"fmt"
	"time"

	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/mailbox/gmail"
	"outreach_backend/internal/mailbox/graph"
	"outreach_backend/internal/reconciliation/handler"
	"outreach_backend/internal/reconciliation/repository"
	"outreach_backend/internal/reconciliation/service"
	"outreach_backend/internal/runlock"
	"outreach_backend/internal/scheduler"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// runLockGrace keeps the redis lock alive past the run deadline so a run that
// is winding down cannot overlap the next one.
const runLockGrace = 5 * time.Minute

// Config is the configuration the reconciliation module reads.
type Config interface {
	config.ReconcileConfig
	config.ProviderConfig
}

// Module is the reconciliation bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// NewService wires the reconciliation service against Postgres and the
// configured mailbox providers. A nil redisClient falls back to a Postgres
// advisory lock for run exclusivity.
func NewService(pool *pgxpool.Pool, redisClient redis.UniversalClient, cfg Config, log *logger.Logger) (*service.Service, *repository.Repository, error) {
	rules, err := service.LoadBounceRules(cfg.GetBounceRulesPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load bounce rules: %w", err)
	}

	var locker service.RunLocker
	if redisClient != nil {
		locker = runlock.NewRedis(redisClient, cfg.GetReconcileRunTimeout()+runLockGrace)
	} else {
		locker = runlock.NewPostgres(pool)
	}

	adapters := []service.MailboxAdapter{
		gmail.New(cfg, log),
		graph.New(cfg, log),
	}

	repo := repository.New(pool)
	return service.New(repo, adapters, locker, rules, cfg, log), repo, nil
}

// NewModule creates the reconciliation module. enqueuer may be nil when no
// background queue is configured.
func NewModule(pool *pgxpool.Pool, redisClient redis.UniversalClient, enqueuer scheduler.RunEnqueuer, cfg Config, val *validator.Validator, log *logger.Logger) (*Module, error) {
	svc, repo, err := NewService(pool, redisClient, cfg, log)
	if err != nil {
		return nil, err
	}

	return &Module{
		handler: handler.New(svc, enqueuer, val, log),
		service: svc,
		repo:    repo,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "reconciliation"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts reconciliation routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Periodic trigger, guarded by the cron secret
	ctx.Cron.GET("/reconcile-inbox", m.handler.TriggerRun)
	ctx.Cron.POST("/reconcile-inbox", m.handler.TriggerRun)

	ctx.Admin.GET("/campaigns/:id/health", m.handler.GetCampaignHealth)
	ctx.Admin.POST("/reconciliation/runs", m.handler.EnqueueRun)
}
