package scheduler

import (
	"context"
	"time"

	"outreach_backend/platform/logger"
)

const (
	defaultCursorCleanupInterval = 6 * time.Hour
	defaultCursorRetention       = 7 * 24 * time.Hour
)

// CursorStore removes reconciliation cursors that have not advanced for a while,
// typically because the user disconnected the mailbox.
type CursorStore interface {
	DeleteCursorsBefore(ctx context.Context, before time.Time) (int64, error)
}

// CursorCleanup periodically prunes stale reconciliation cursors.
type CursorCleanup struct {
	store     CursorStore
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewCursorCleanup(store CursorStore, log *logger.Logger, interval, retention time.Duration) *CursorCleanup {
	if interval <= 0 {
		interval = defaultCursorCleanupInterval
	}
	if retention <= 0 {
		retention = defaultCursorRetention
	}

	return &CursorCleanup{
		store:     store,
		log:       log,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

func (c *CursorCleanup) Run(ctx context.Context) {
	if c == nil || c.store == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *CursorCleanup) cleanup(ctx context.Context) {
	deleted, err := c.store.DeleteCursorsBefore(ctx, c.now().Add(-c.retention))
	if err != nil {
		c.log.Warn("reconciliation cursor cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		c.log.Info("reconciliation cursor cleanup deleted stale cursors", "deleted", deleted)
	}
}
