package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outreach_backend/internal/reconciliation/domain"
	"outreach_backend/platform/logger"
)

// ReplyClassifier settles a matched prospect as replied.
type ReplyClassifier struct {
	interactions InteractionWriter
	log          *logger.Logger
	now          func() time.Time
}

func NewReplyClassifier(interactions InteractionWriter, log *logger.Logger) *ReplyClassifier {
	return &ReplyClassifier{interactions: interactions, log: log, now: time.Now}
}

// ClassifyReply records an email_replied interaction and moves the prospect to replied.
// It returns false without writing when the reply was already recorded.
func (c *ReplyClassifier) ClassifyReply(ctx context.Context, prospect domain.Prospect, msg domain.InboundMessage) (bool, error) {
	sender, err := ExtractAddress(msg.From)
	if err != nil {
		return false, err
	}
	if sender != NormalizeAddress(prospect.Email) {
		return false, fmt.Errorf("sender %q does not match prospect %s", sender, prospect.ID)
	}

	exists, err := c.interactions.HasInteraction(ctx, prospect.ID, domain.InteractionEmailReplied)
	if err != nil {
		return false, fmt.Errorf("check reply interaction: %w", err)
	}
	if exists {
		return false, nil
	}

	err = c.interactions.RecordTransition(ctx, domain.Transition{
		ProspectID:  prospect.ID,
		Interaction: domain.InteractionEmailReplied,
		Status:      domain.ProspectStatusReplied,
		Content:     msg.Subject,
		OccurredAt:  c.now().UTC(),
	})
	if errors.Is(err, domain.ErrInteractionExists) {
		c.log.Info("reply already recorded by a concurrent run", "prospect_id", prospect.ID.String())
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("record reply: %w", err)
	}

	c.log.Info("prospect replied", "prospect_id", prospect.ID.String(), "campaign_id", prospect.CampaignID.String())
	return true, nil
}
