package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"outreach_backend/internal/reconciliation/domain"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeInteraction struct {
	prospectID uuid.UUID
	campaignID uuid.UUID
	kind       domain.InteractionType
	content    string
	createdAt  time.Time
}

type cursorKey struct {
	userID   uuid.UUID
	provider domain.Provider
}

type fakeStore struct {
	mu           sync.Mutex
	users        []domain.User
	campaigns    map[uuid.UUID]*domain.Campaign
	prospects    []*domain.Prospect
	interactions []fakeInteraction
	cursors      map[cursorKey]time.Time

	listUsersErr error
	pauseCalls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns: make(map[uuid.UUID]*domain.Campaign),
		cursors:   make(map[cursorKey]time.Time),
	}
}

func (s *fakeStore) addUser(email string, creds map[domain.Provider]string) domain.User {
	user := domain.User{ID: uuid.New(), Email: email, Credentials: creds}
	s.users = append(s.users, user)
	return user
}

func (s *fakeStore) addCampaign(userID uuid.UUID, status domain.CampaignStatus) *domain.Campaign {
	c := &domain.Campaign{ID: uuid.New(), UserID: userID, Name: "Spring outreach", Status: status}
	s.campaigns[c.ID] = c
	return c
}

func (s *fakeStore) addProspect(campaignID uuid.UUID, email string, status domain.ProspectStatus) *domain.Prospect {
	p := &domain.Prospect{ID: uuid.New(), CampaignID: campaignID, Email: email, Status: status}
	s.prospects = append(s.prospects, p)
	return p
}

func (s *fakeStore) seedInteractions(campaignID uuid.UUID, kind domain.InteractionType, n int, at time.Time) {
	for i := 0; i < n; i++ {
		s.interactions = append(s.interactions, fakeInteraction{
			prospectID: uuid.New(),
			campaignID: campaignID,
			kind:       kind,
			createdAt:  at,
		})
	}
}

func (s *fakeStore) countInteractions(prospectID uuid.UUID, kind domain.InteractionType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, i := range s.interactions {
		if i.prospectID == prospectID && i.kind == kind {
			n++
		}
	}
	return n
}

func (s *fakeStore) prospect(id uuid.UUID) domain.Prospect {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.prospects {
		if p.ID == id {
			return *p
		}
	}
	return domain.Prospect{}
}

func (s *fakeStore) campaignStatus(id uuid.UUID) domain.CampaignStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaigns[id].Status
}

func (s *fakeStore) ownedBy(p *domain.Prospect, userID uuid.UUID) bool {
	c, ok := s.campaigns[p.CampaignID]
	return ok && c.UserID == userID
}

func (s *fakeStore) ListConnectedUsers(ctx context.Context) ([]domain.User, error) {
	if s.listUsersErr != nil {
		return nil, s.listUsersErr
	}
	return append([]domain.User(nil), s.users...), nil
}

func (s *fakeStore) FindAwaitingProspect(ctx context.Context, userID uuid.UUID, email string) (*domain.Prospect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.prospects {
		if s.ownedBy(p, userID) && strings.EqualFold(p.Email, email) && p.Status.IsAwaitingResponse() {
			found := *p
			return &found, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ListAwaitingProspects(ctx context.Context, userID uuid.UUID) ([]domain.Prospect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Prospect
	for _, p := range s.prospects {
		if s.ownedBy(p, userID) && p.Status.IsAwaitingResponse() {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeStore) HasInteraction(ctx context.Context, prospectID uuid.UUID, kind domain.InteractionType) (bool, error) {
	return s.countInteractions(prospectID, kind) > 0, nil
}

func (s *fakeStore) RecordTransition(ctx context.Context, t domain.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target *domain.Prospect
	for _, p := range s.prospects {
		if p.ID == t.ProspectID {
			target = p
		}
	}
	if target == nil {
		return errors.New("prospect not found")
	}
	for _, i := range s.interactions {
		if i.prospectID == t.ProspectID && i.kind == t.Interaction {
			return domain.ErrInteractionExists
		}
	}

	s.interactions = append(s.interactions, fakeInteraction{
		prospectID: t.ProspectID,
		campaignID: target.CampaignID,
		kind:       t.Interaction,
		content:    t.Content,
		createdAt:  t.OccurredAt,
	})
	target.Status = t.Status
	return nil
}

func (s *fakeStore) GetCampaign(ctx context.Context, campaignID uuid.UUID) (domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return domain.Campaign{}, domain.ErrCampaignNotFound
	}
	return *c, nil
}

func (s *fakeStore) CountInteractionsSince(ctx context.Context, campaignID uuid.UUID, since, until time.Time) (domain.InteractionCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts domain.InteractionCounts
	for _, i := range s.interactions {
		if i.campaignID != campaignID || i.createdAt.Before(since) || i.createdAt.After(until) {
			continue
		}
		switch i.kind {
		case domain.InteractionEmailSent:
			counts.Sent++
		case domain.InteractionEmailBounced:
			counts.Bounced++
		}
	}
	return counts, nil
}

func (s *fakeStore) AutoPauseCampaign(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseCalls++
	c, ok := s.campaigns[campaignID]
	if !ok || c.Status != domain.CampaignStatusActive {
		return false, nil
	}
	c.Status = domain.CampaignStatusPausedAuto
	return true, nil
}

func (s *fakeStore) GetCursor(ctx context.Context, userID uuid.UUID, provider domain.Provider) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.cursors[cursorKey{userID, provider}]
	return at, ok, nil
}

func (s *fakeStore) SaveCursor(ctx context.Context, userID uuid.UUID, provider domain.Provider, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cursorKey{userID, provider}
	if prev, ok := s.cursors[key]; !ok || at.After(prev) {
		s.cursors[key] = at
	}
	return nil
}

type fakeAdapter struct {
	mu       sync.Mutex
	provider domain.Provider
	bounces  bool
	byToken  map[string][]domain.InboundMessage
	errs     map[string]error
	sinces   []time.Time

	// block holds every fetch until its context ends.
	block   bool
	onFetch func()
}

func newFakeAdapter(provider domain.Provider) *fakeAdapter {
	return &fakeAdapter{
		provider: provider,
		bounces:  true,
		byToken:  make(map[string][]domain.InboundMessage),
		errs:     make(map[string]error),
	}
}

func (a *fakeAdapter) Provider() domain.Provider     { return a.provider }
func (a *fakeAdapter) SupportsBounceDetection() bool { return a.bounces }

func (a *fakeAdapter) FetchRecentMessages(ctx context.Context, accessToken string, since time.Time, limit int) ([]domain.InboundMessage, error) {
	a.mu.Lock()
	a.sinces = append(a.sinces, since)
	block, onFetch := a.block, a.onFetch
	err := a.errs[accessToken]
	var msgs []domain.InboundMessage
	for _, m := range a.byToken[accessToken] {
		if m.ReceivedAt.IsZero() || !m.ReceivedAt.Before(since) {
			msgs = append(msgs, m)
		}
	}
	a.mu.Unlock()

	if onFetch != nil {
		onFetch()
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	err      error
	released int
}

func (l *fakeLocker) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		l.released++
	}, true, nil
}

type testReconcileConfig struct {
	lookback    time.Duration
	overlap     time.Duration
	maxLookback time.Duration
	pageSize    int
	concurrency int
	threshold   float64
	window      time.Duration
	runTimeout  time.Duration
}

func defaultTestConfig() testReconcileConfig {
	return testReconcileConfig{
		lookback:    time.Hour,
		overlap:     30 * time.Minute,
		maxLookback: 24 * time.Hour,
		pageSize:    50,
		concurrency: 2,
		threshold:   0.05,
		window:      7 * 24 * time.Hour,
		runTimeout:  25 * time.Minute,
	}
}

func (c testReconcileConfig) GetReconcileLookback() time.Duration     { return c.lookback }
func (c testReconcileConfig) GetReconcileOverlap() time.Duration      { return c.overlap }
func (c testReconcileConfig) GetReconcileMaxLookback() time.Duration  { return c.maxLookback }
func (c testReconcileConfig) GetReconcilePageSize() int               { return c.pageSize }
func (c testReconcileConfig) GetReconcileConcurrency() int            { return c.concurrency }
func (c testReconcileConfig) GetReconcileFetchTimeout() time.Duration { return 5 * time.Second }
func (c testReconcileConfig) GetReconcileRunTimeout() time.Duration   { return c.runTimeout }
func (c testReconcileConfig) GetBounceRateThreshold() float64         { return c.threshold }
func (c testReconcileConfig) GetBounceWindow() time.Duration          { return c.window }
func (c testReconcileConfig) GetBounceRulesPath() string              { return "" }

func newTestService(store *fakeStore, locker *fakeLocker, adapters ...MailboxAdapter) *Service {
	svc := New(store, adapters, locker, DefaultBounceRules(), defaultTestConfig(), logger.Nop())
	clock := func() time.Time { return testNow }
	svc.now = clock
	svc.monitor.now = clock
	svc.replies.now = clock
	svc.bounces.now = clock
	return svc
}
