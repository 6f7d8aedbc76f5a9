package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach_backend/internal/reconciliation/domain"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

// CampaignHealth is a point-in-time view of a campaign's bounce rate.
type CampaignHealth struct {
	CampaignID  uuid.UUID
	Status      domain.CampaignStatus
	Sent        int
	Bounced     int
	BounceRate  float64
	Threshold   float64
	WindowStart time.Time
	WindowEnd   time.Time
	Tripped     bool
}

// HealthMonitor auto-pauses active campaigns whose rolling bounce rate exceeds the threshold.
type HealthMonitor struct {
	store     CampaignHealthStore
	threshold float64
	window    time.Duration
	log       *logger.Logger
	now       func() time.Time
}

func NewHealthMonitor(store CampaignHealthStore, threshold float64, window time.Duration, log *logger.Logger) *HealthMonitor {
	return &HealthMonitor{
		store:     store,
		threshold: threshold,
		window:    window,
		log:       log,
		now:       time.Now,
	}
}

// shouldAutoPause trips strictly above the threshold and never on an empty window.
func shouldAutoPause(counts domain.InteractionCounts, threshold float64) bool {
	if counts.Sent <= 0 {
		return false
	}
	return bounceRate(counts) > threshold
}

func bounceRate(counts domain.InteractionCounts) float64 {
	if counts.Sent <= 0 {
		return 0
	}
	return float64(counts.Bounced) / float64(counts.Sent)
}

// EvaluateAndMaybePause never returns an error: failures are logged and the campaign
// keeps its prior state.
func (m *HealthMonitor) EvaluateAndMaybePause(ctx context.Context, campaignID uuid.UUID) {
	if _, err := m.evaluate(ctx, campaignID); err != nil {
		m.log.Error("campaign health evaluation failed", "campaign_id", campaignID.String(), "error", err)
	}
}

func (m *HealthMonitor) evaluate(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	campaign, err := m.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return false, fmt.Errorf("load campaign: %w", err)
	}
	if campaign.Status != domain.CampaignStatusActive {
		return false, nil
	}

	until := m.now().UTC()
	counts, err := m.store.CountInteractionsSince(ctx, campaignID, until.Add(-m.window), until)
	if err != nil {
		return false, fmt.Errorf("count interactions: %w", err)
	}
	if !shouldAutoPause(counts, m.threshold) {
		return false, nil
	}

	paused, err := m.store.AutoPauseCampaign(ctx, campaignID)
	if err != nil {
		return false, fmt.Errorf("auto-pause campaign: %w", err)
	}
	if !paused {
		// status changed underneath us
		return false, nil
	}

	m.log.CampaignAutoPaused(campaignID.String(), counts.Sent, counts.Bounced, bounceRate(counts))
	return true, nil
}

// Snapshot reports the current window counts without changing anything.
func (m *HealthMonitor) Snapshot(ctx context.Context, campaignID uuid.UUID) (CampaignHealth, error) {
	campaign, err := m.store.GetCampaign(ctx, campaignID)
	if errors.Is(err, domain.ErrCampaignNotFound) {
		return CampaignHealth{}, apperr.NotFound("campaign not found")
	}
	if err != nil {
		return CampaignHealth{}, apperr.Wrap(apperr.KindInternal, "load campaign", err)
	}

	until := m.now().UTC()
	since := until.Add(-m.window)
	counts, err := m.store.CountInteractionsSince(ctx, campaignID, since, until)
	if err != nil {
		return CampaignHealth{}, apperr.Wrap(apperr.KindInternal, "count interactions", err)
	}

	return CampaignHealth{
		CampaignID:  campaign.ID,
		Status:      campaign.Status,
		Sent:        counts.Sent,
		Bounced:     counts.Bounced,
		BounceRate:  bounceRate(counts),
		Threshold:   m.threshold,
		WindowStart: since,
		WindowEnd:   until,
		Tripped:     shouldAutoPause(counts, m.threshold),
	}, nil
}
