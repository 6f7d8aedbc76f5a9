// Command reconcile runs a single inbox reconciliation pass and prints the
// run summary as JSON. Useful for backfills and for cron hosts that cannot
// reach the HTTP trigger.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outreach_backend/internal/reconciliation"
	"outreach_backend/internal/scheduler"
	"outreach_backend/platform/config"
	"outreach_backend/platform/db"
	"outreach_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

func main() {
	timeout := flag.Duration("timeout", 30*time.Minute, "maximum duration of the run")
	flag.Parse()

	if err := run(*timeout); err != nil {
		fmt.Fprintln(os.Stderr, "reconcile:", err)
		os.Exit(1)
	}
}

func run(timeout time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	var redisClient redis.UniversalClient
	if cfg.GetRedisURL() != "" {
		client, err := scheduler.NewRedisClient(cfg)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = client.Close() }()
		redisClient = client
	}

	svc, _, err := reconciliation.NewService(pool, redisClient, cfg, log)
	if err != nil {
		return err
	}

	summary, err := svc.Run(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
