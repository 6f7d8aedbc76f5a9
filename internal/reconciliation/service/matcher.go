package service

import (
	"context"

	"outreach_backend/internal/reconciliation/domain"

	"github.com/google/uuid"
)

// Matcher resolves an inbound sender to one of the user's awaiting prospects.
type Matcher struct {
	prospects ProspectReader
}

func NewMatcher(prospects ProspectReader) *Matcher {
	return &Matcher{prospects: prospects}
}

// MatchSender returns the awaiting prospect whose address equals the sender, or nil.
// Prospects that already replied or bounced are never returned.
func (m *Matcher) MatchSender(ctx context.Context, userID uuid.UUID, from string) (*domain.Prospect, error) {
	addr, err := ExtractAddress(from)
	if err != nil {
		return nil, err
	}

	prospect, err := m.prospects.FindAwaitingProspect(ctx, userID, addr)
	if err != nil {
		return nil, err
	}
	if prospect == nil || !prospect.Status.IsAwaitingResponse() {
		return nil, nil
	}
	return prospect, nil
}
