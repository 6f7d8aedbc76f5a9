package service

import (
	"context"
	"time"

	"outreach_backend/internal/reconciliation/domain"

	"github.com/google/uuid"
)

// UserReader loads the users that have at least one connected mailbox.
type UserReader interface {
	ListConnectedUsers(ctx context.Context) ([]domain.User, error)
}

// ProspectReader resolves prospects still awaiting a response.
type ProspectReader interface {
	FindAwaitingProspect(ctx context.Context, userID uuid.UUID, email string) (*domain.Prospect, error)
	ListAwaitingProspects(ctx context.Context, userID uuid.UUID) ([]domain.Prospect, error)
}

// InteractionWriter records settled replies and bounces.
type InteractionWriter interface {
	HasInteraction(ctx context.Context, prospectID uuid.UUID, kind domain.InteractionType) (bool, error)
	RecordTransition(ctx context.Context, t domain.Transition) error
}

// CampaignHealthStore backs the bounce-rate circuit breaker.
type CampaignHealthStore interface {
	GetCampaign(ctx context.Context, campaignID uuid.UUID) (domain.Campaign, error)
	CountInteractionsSince(ctx context.Context, campaignID uuid.UUID, since, until time.Time) (domain.InteractionCounts, error)
	AutoPauseCampaign(ctx context.Context, campaignID uuid.UUID) (bool, error)
}

// CursorStore persists the last processed time per user and provider.
type CursorStore interface {
	GetCursor(ctx context.Context, userID uuid.UUID, provider domain.Provider) (time.Time, bool, error)
	SaveCursor(ctx context.Context, userID uuid.UUID, provider domain.Provider, at time.Time) error
}

// Store is everything a reconciliation run reads and writes.
type Store interface {
	UserReader
	ProspectReader
	InteractionWriter
	CampaignHealthStore
	CursorStore
}

// MailboxAdapter fetches a bounded batch of recently received messages from one provider.
// FetchRecentMessages returns the oldest limit messages received at or after since,
// oldest first, so a full page can be resumed from its newest message.
type MailboxAdapter interface {
	Provider() domain.Provider
	SupportsBounceDetection() bool
	FetchRecentMessages(ctx context.Context, accessToken string, since time.Time, limit int) ([]domain.InboundMessage, error)
}

// RunLocker grants exclusive ownership of a named run. release must be called on every path
// after a successful acquire.
type RunLocker interface {
	TryAcquire(ctx context.Context, key string) (release func(), acquired bool, err error)
}
