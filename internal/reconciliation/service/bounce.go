package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"outreach_backend/internal/reconciliation/domain"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

// ProspectIndex is one user's awaiting prospects for the current run, keyed by
// normalized address. It is never shared across users or runs.
type ProspectIndex struct {
	userID  uuid.UUID
	byEmail map[string][]domain.Prospect
}

func NewProspectIndex(userID uuid.UUID, prospects []domain.Prospect) *ProspectIndex {
	idx := &ProspectIndex{userID: userID, byEmail: make(map[string][]domain.Prospect, len(prospects))}
	for _, p := range prospects {
		if !p.Status.IsAwaitingResponse() {
			continue
		}
		key := NormalizeAddress(p.Email)
		if key == "" {
			continue
		}
		idx.byEmail[key] = append(idx.byEmail[key], p)
	}
	return idx
}

func (i *ProspectIndex) UserID() uuid.UUID { return i.userID }

func (i *ProspectIndex) Len() int {
	n := 0
	for _, ps := range i.byEmail {
		n += len(ps)
	}
	return n
}

// Lookup returns the awaiting prospects with exactly this address.
func (i *ProspectIndex) Lookup(addr string) []domain.Prospect {
	return append([]domain.Prospect(nil), i.byEmail[NormalizeAddress(addr)]...)
}

// MatchText returns every awaiting prospect whose address appears in text as a delimited token.
func (i *ProspectIndex) MatchText(text string) []domain.Prospect {
	haystack := strings.ToLower(text)
	var matched []domain.Prospect
	for addr, ps := range i.byEmail {
		if containsAddressToken(haystack, addr) {
			matched = append(matched, ps...)
		}
	}
	return matched
}

// Remove drops a settled prospect so later messages in the run cannot match it.
func (i *ProspectIndex) Remove(prospectID uuid.UUID) {
	for addr, ps := range i.byEmail {
		for n, p := range ps {
			if p.ID != prospectID {
				continue
			}
			ps = append(ps[:n], ps[n+1:]...)
			if len(ps) == 0 {
				delete(i.byEmail, addr)
			} else {
				i.byEmail[addr] = ps
			}
			return
		}
	}
}

type campaignEvaluator interface {
	EvaluateAndMaybePause(ctx context.Context, campaignID uuid.UUID)
}

// BounceClassifier settles prospects named in delivery-failure notifications.
type BounceClassifier struct {
	interactions InteractionWriter
	monitor      campaignEvaluator
	rules        BounceRules
	log          *logger.Logger
	now          func() time.Time
}

func NewBounceClassifier(interactions InteractionWriter, monitor campaignEvaluator, rules BounceRules, log *logger.Logger) *BounceClassifier {
	return &BounceClassifier{
		interactions: interactions,
		monitor:      monitor,
		rules:        rules,
		log:          log,
		now:          time.Now,
	}
}

// IsBounceNotification applies the configured sender and subject markers.
func (c *BounceClassifier) IsBounceNotification(msg domain.InboundMessage) bool {
	return c.rules.Matches(msg.From, msg.Subject)
}

// ClassifyBounce records a bounce for each prospect the notification names and
// re-evaluates the owning campaign after every recorded bounce. It returns the
// number of bounces written.
func (c *BounceClassifier) ClassifyBounce(ctx context.Context, idx *ProspectIndex, msg domain.InboundMessage) (int, error) {
	if idx == nil || !c.IsBounceNotification(msg) {
		return 0, nil
	}

	var errs []error
	logged := 0
	for _, prospect := range c.resolveRecipients(idx, msg) {
		recorded, err := c.recordBounce(ctx, prospect, msg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		idx.Remove(prospect.ID)
		if !recorded {
			continue
		}
		logged++
		c.monitor.EvaluateAndMaybePause(ctx, prospect.CampaignID)
	}
	return logged, errors.Join(errs...)
}

// resolveRecipients prefers the structured X-Failed-Recipients header and falls back
// to scanning the subject.
func (c *BounceClassifier) resolveRecipients(idx *ProspectIndex, msg domain.InboundMessage) []domain.Prospect {
	var matched []domain.Prospect
	seen := make(map[uuid.UUID]struct{})
	for _, raw := range msg.FailedRecipients {
		addr, err := ExtractAddress(raw)
		if err != nil {
			continue
		}
		for _, p := range idx.Lookup(addr) {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			matched = append(matched, p)
		}
	}
	if len(matched) > 0 {
		return matched
	}
	return idx.MatchText(msg.Subject)
}

func (c *BounceClassifier) recordBounce(ctx context.Context, prospect domain.Prospect, msg domain.InboundMessage) (bool, error) {
	exists, err := c.interactions.HasInteraction(ctx, prospect.ID, domain.InteractionEmailBounced)
	if err != nil {
		return false, fmt.Errorf("check bounce interaction for %s: %w", prospect.ID, err)
	}
	if exists {
		return false, nil
	}

	err = c.interactions.RecordTransition(ctx, domain.Transition{
		ProspectID:  prospect.ID,
		Interaction: domain.InteractionEmailBounced,
		Status:      domain.ProspectStatusBounced,
		Content:     msg.Subject,
		OccurredAt:  c.now().UTC(),
	})
	if errors.Is(err, domain.ErrInteractionExists) {
		c.log.Info("bounce already recorded by a concurrent run", "prospect_id", prospect.ID.String())
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("record bounce for %s: %w", prospect.ID, err)
	}

	c.log.Info("prospect bounced", "prospect_id", prospect.ID.String(), "campaign_id", prospect.CampaignID.String())
	return true, nil
}
