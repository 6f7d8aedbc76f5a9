// Package service implements inbox reconciliation: it reads each connected mailbox,
// settles prospects that replied or bounced, and trips the per-campaign bounce-rate breaker.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"outreach_backend/internal/reconciliation/domain"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RunLockKey names the exclusive lock held for the duration of a run.
const RunLockKey = "reconciliation-run"

// Options tune the polling window and fan-out of a run.
type Options struct {
	Lookback     time.Duration
	Overlap      time.Duration
	MaxLookback  time.Duration
	PageSize     int
	Concurrency  int
	FetchTimeout time.Duration
	RunTimeout   time.Duration
}

// OptionsFromConfig reads run options from the reconcile config section.
func OptionsFromConfig(cfg config.ReconcileConfig) Options {
	return Options{
		Lookback:     cfg.GetReconcileLookback(),
		Overlap:      cfg.GetReconcileOverlap(),
		MaxLookback:  cfg.GetReconcileMaxLookback(),
		PageSize:     cfg.GetReconcilePageSize(),
		Concurrency:  cfg.GetReconcileConcurrency(),
		FetchTimeout: cfg.GetReconcileFetchTimeout(),
		RunTimeout:   cfg.GetReconcileRunTimeout(),
	}
}

// Service coordinates one reconciliation run across all connected users.
type Service struct {
	store    Store
	adapters map[domain.Provider]MailboxAdapter
	locker   RunLocker
	matcher  *Matcher
	replies  *ReplyClassifier
	bounces  *BounceClassifier
	monitor  *HealthMonitor
	opts     Options
	log      *logger.Logger
	now      func() time.Time
}

// New wires the run coordinator. Adapters are keyed by their Provider.
func New(store Store, adapters []MailboxAdapter, locker RunLocker, rules BounceRules, cfg config.ReconcileConfig, log *logger.Logger) *Service {
	byProvider := make(map[domain.Provider]MailboxAdapter, len(adapters))
	for _, a := range adapters {
		byProvider[a.Provider()] = a
	}

	monitor := NewHealthMonitor(store, cfg.GetBounceRateThreshold(), cfg.GetBounceWindow(), log)
	return &Service{
		store:    store,
		adapters: byProvider,
		locker:   locker,
		matcher:  NewMatcher(store),
		replies:  NewReplyClassifier(store, log),
		bounces:  NewBounceClassifier(store, monitor, rules, log),
		monitor:  monitor,
		opts:     OptionsFromConfig(cfg),
		log:      log,
		now:      time.Now,
	}
}

// CampaignHealth returns the bounce-rate snapshot for a campaign.
func (s *Service) CampaignHealth(ctx context.Context, campaignID uuid.UUID) (CampaignHealth, error) {
	return s.monitor.Snapshot(ctx, campaignID)
}

type userResult struct {
	replies        int
	bounces        int
	providerErrors int
	completed      bool
}

// Run reconciles every connected user once. Only failures to acquire the run lock or
// to load users are returned; everything else degrades per user or per message.
// A second concurrent run returns a Skipped summary.
func (s *Service) Run(ctx context.Context) (domain.RunSummary, error) {
	start := s.now()
	log := s.log.WithRunID(uuid.NewString())
	var summary domain.RunSummary

	release, acquired, err := s.locker.TryAcquire(ctx, RunLockKey)
	if err != nil {
		return summary, apperr.Unavailable("acquire reconciliation lock", err)
	}
	if !acquired {
		log.Info("reconciliation run already in progress, skipping")
		summary.Skipped = true
		summary.DurationMs = s.now().Sub(start).Milliseconds()
		return summary, nil
	}
	defer release()

	// the run must finish well inside the lock TTL
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	users, err := s.store.ListConnectedUsers(ctx)
	if err != nil {
		log.DatabaseError("list connected users", err)
		return summary, apperr.Unavailable("load connected users", err)
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(max(1, s.opts.Concurrency))

	for _, user := range users {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			result := s.reconcileUser(ctx, log, user, start)

			mu.Lock()
			defer mu.Unlock()
			if result.completed {
				summary.ProcessedUsers++
			}
			summary.RepliesLogged += result.replies
			summary.BouncesLogged += result.bounces
			summary.ProviderErrors += result.providerErrors
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		summary.Partial = true
	}
	summary.DurationMs = s.now().Sub(start).Milliseconds()
	log.RunCompleted(summary.ProcessedUsers, summary.RepliesLogged, summary.BouncesLogged, summary.DurationMs, summary.Partial)
	return summary, nil
}

func (s *Service) reconcileUser(ctx context.Context, runLog *logger.Logger, user domain.User, runStart time.Time) (result userResult) {
	log := runLog.WithUserID(user.ID.String())
	defer func() {
		if r := recover(); r != nil {
			log.Error("user reconciliation panicked", "panic", fmt.Sprint(r))
		}
	}()

	// built on the first bounce candidate, shared across this user's providers
	var index *ProspectIndex

	for _, provider := range user.ConnectedProviders() {
		adapter, ok := s.adapters[provider]
		if !ok {
			log.Debug("no adapter registered for provider", "provider", string(provider))
			continue
		}

		since := s.pollLowerBound(ctx, log, user.ID, provider, runStart)

		fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
		messages, err := adapter.FetchRecentMessages(fetchCtx, user.Credentials[provider], since, s.opts.PageSize)
		cancel()
		if err != nil {
			log.ProviderFetchFailed(string(provider), user.ID.String(), err)
			result.providerErrors++
			continue
		}
		completed := true
		for _, msg := range messages {
			if ctx.Err() != nil {
				completed = false
				break
			}
			s.processMessage(ctx, log, user.ID, adapter, msg, &index, &result)
		}

		if completed {
			if len(messages) >= s.opts.PageSize {
				log.Warn("provider page limit reached, next run resumes from the newest fetched message",
					"provider", string(provider), "limit", s.opts.PageSize)
			}
			if err := s.store.SaveCursor(ctx, user.ID, provider, s.nextCursor(messages, runStart)); err != nil {
				log.Warn("failed to save reconciliation cursor", "provider", string(provider), "error", err)
			}
		}
	}
	result.completed = ctx.Err() == nil
	return result
}

// nextCursor is the run start unless the page was full. A full page leaves newer
// messages unread, so the cursor is placed where the next poll lower bound
// (cursor minus overlap) lands on the newest fetched message.
func (s *Service) nextCursor(messages []domain.InboundMessage, runStart time.Time) time.Time {
	if len(messages) < s.opts.PageSize {
		return runStart
	}

	var newest time.Time
	for _, msg := range messages {
		if msg.ReceivedAt.After(newest) {
			newest = msg.ReceivedAt
		}
	}
	if newest.IsZero() {
		return runStart
	}
	if resume := newest.Add(s.opts.Overlap); resume.Before(runStart) {
		return resume
	}
	return runStart
}

func (s *Service) processMessage(ctx context.Context, log *logger.Logger, userID uuid.UUID, adapter MailboxAdapter, msg domain.InboundMessage, index **ProspectIndex, result *userResult) {
	prospect, err := s.matcher.MatchSender(ctx, userID, msg.From)
	if errors.Is(err, ErrUnparsableAddress) {
		// bare "MAILER-DAEMON" senders can still be bounce notifications
		log.Debug("unparsable sender, checking bounce markers only", "message_id", msg.ID)
		prospect, err = nil, nil
	}
	if err != nil {
		log.Warn("prospect lookup failed", "message_id", msg.ID, "error", err)
		return
	}

	if prospect != nil {
		logged, err := s.replies.ClassifyReply(ctx, *prospect, msg)
		if err != nil {
			log.Warn("reply classification failed", "message_id", msg.ID, "error", err)
			return
		}
		if logged {
			result.replies++
		}
		if *index != nil {
			(*index).Remove(prospect.ID)
		}
		return
	}

	if !adapter.SupportsBounceDetection() || !s.bounces.IsBounceNotification(msg) {
		return
	}

	if *index == nil {
		prospects, err := s.store.ListAwaitingProspects(ctx, userID)
		if err != nil {
			log.Warn("failed to load awaiting prospects", "error", err)
			return
		}
		*index = NewProspectIndex(userID, prospects)
	}

	logged, err := s.bounces.ClassifyBounce(ctx, *index, msg)
	result.bounces += logged
	if err != nil {
		log.Warn("bounce classification failed", "message_id", msg.ID, "error", err)
	}
}

// pollLowerBound resumes from the stored cursor minus the overlap, bounded by the
// max lookback. Without a cursor it falls back to lookback plus overlap.
func (s *Service) pollLowerBound(ctx context.Context, log *logger.Logger, userID uuid.UUID, provider domain.Provider, runStart time.Time) time.Time {
	fallback := runStart.Add(-(s.opts.Lookback + s.opts.Overlap))

	cursor, ok, err := s.store.GetCursor(ctx, userID, provider)
	if err != nil {
		log.Warn("failed to load reconciliation cursor", "provider", string(provider), "error", err)
		return fallback
	}
	if !ok {
		return fallback
	}

	since := cursor.Add(-s.opts.Overlap)
	if floor := runStart.Add(-s.opts.MaxLookback); since.Before(floor) {
		since = floor
	}
	return since
}
