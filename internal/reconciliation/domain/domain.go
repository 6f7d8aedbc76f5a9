// Package domain holds the types and lifecycle rules of inbox reconciliation.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInteractionExists reports that the reply/bounce for a prospect was already recorded.
	ErrInteractionExists = errors.New("interaction already recorded")
	// ErrCampaignNotFound is returned when a campaign id does not resolve.
	ErrCampaignNotFound = errors.New("campaign not found")
)

// Provider identifies a connected mailbox backend.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
)

type CampaignStatus string

const (
	CampaignStatusDraft      CampaignStatus = "draft"
	CampaignStatusActive     CampaignStatus = "active"
	CampaignStatusPaused     CampaignStatus = "paused"
	CampaignStatusPausedAuto CampaignStatus = "paused_auto"
	CampaignStatusCompleted  CampaignStatus = "completed"
)

type ProspectStatus string

const (
	ProspectStatusNew       ProspectStatus = "new"
	ProspectStatusContacted ProspectStatus = "contacted"
	ProspectStatusActive    ProspectStatus = "active"
	ProspectStatusReplied   ProspectStatus = "replied"
	ProspectStatusBounced   ProspectStatus = "bounced"
)

// AwaitingResponseStatuses are the prospect states a reply or bounce can still settle.
var AwaitingResponseStatuses = []ProspectStatus{ProspectStatusContacted, ProspectStatusActive}

// IsAwaitingResponse reports whether s is in the awaiting-response set.
func (s ProspectStatus) IsAwaitingResponse() bool {
	for _, candidate := range AwaitingResponseStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

type InteractionType string

const (
	InteractionEmailSent    InteractionType = "email_sent"
	InteractionEmailOpened  InteractionType = "email_opened"
	InteractionEmailReplied InteractionType = "email_replied"
	InteractionEmailBounced InteractionType = "email_bounced"
	InteractionEmailFailed  InteractionType = "email_failed"
)

// User is a platform user with zero or more connected mailboxes.
type User struct {
	ID          uuid.UUID
	Email       string
	Credentials map[Provider]string
}

// ConnectedProviders returns providers with a non-empty access token, Gmail first.
func (u User) ConnectedProviders() []Provider {
	providers := make([]Provider, 0, 2)
	for _, p := range []Provider{ProviderGmail, ProviderOutlook} {
		if u.Credentials[p] != "" {
			providers = append(providers, p)
		}
	}
	return providers
}

type Campaign struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Status    CampaignStatus
	UpdatedAt time.Time
}

type Prospect struct {
	ID         uuid.UUID
	CampaignID uuid.UUID
	Email      string
	Status     ProspectStatus
}

// InboundMessage is a provider message normalized for classification.
type InboundMessage struct {
	ID         string
	From       string
	Subject    string
	ReceivedAt time.Time
	// FailedRecipients carries X-Failed-Recipients addresses when the provider exposes them.
	FailedRecipients []string
}

// Transition is one settled reply or bounce for a prospect.
type Transition struct {
	ProspectID  uuid.UUID
	Interaction InteractionType
	Status      ProspectStatus
	Content     string
	OccurredAt  time.Time
}

// InteractionCounts are sends and bounces inside a health window.
type InteractionCounts struct {
	Sent    int
	Bounced int
}

// RunSummary is returned to the invoker of a reconciliation run.
type RunSummary struct {
	ProcessedUsers int   `json:"processedUsers"`
	RepliesLogged  int   `json:"repliesLogged"`
	BouncesLogged  int   `json:"bouncesLogged"`
	DurationMs     int64 `json:"durationMs"`
	ProviderErrors int   `json:"providerErrors,omitempty"`
	Partial        bool  `json:"partial,omitempty"`
	Skipped        bool  `json:"skipped,omitempty"`
}
