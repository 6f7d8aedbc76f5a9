package service

import (
	"context"
	"testing"
	"time"

	"outreach_backend/internal/reconciliation/domain"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

type countingEvaluator struct{ calls int }

func (e *countingEvaluator) EvaluateAndMaybePause(ctx context.Context, campaignID uuid.UUID) {
	e.calls++
}

func newClassifierStore(status domain.ProspectStatus) (*fakeStore, *domain.Prospect) {
	store := newFakeStore()
	user := store.addUser("owner@outreach.test", nil)
	campaign := store.addCampaign(user.ID, domain.CampaignStatusActive)
	return store, store.addProspect(campaign.ID, "jane@x.com", status)
}

func (s *fakeStore) addInteraction(p *domain.Prospect, kind domain.InteractionType) {
	s.interactions = append(s.interactions, fakeInteraction{
		prospectID: p.ID,
		campaignID: p.CampaignID,
		kind:       kind,
		createdAt:  testNow.Add(-time.Hour),
	})
}

func TestClassifyReplyTwiceRecordsOnce(t *testing.T) {
	store, jane := newClassifierStore(domain.ProspectStatusContacted)
	replies := NewReplyClassifier(store, logger.Nop())
	msg := domain.InboundMessage{ID: "m1", From: "jane@x.com", Subject: "Re: hello"}

	first, err := replies.ClassifyReply(context.Background(), *jane, msg)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	second, err := replies.ClassifyReply(context.Background(), *jane, msg)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}

	if !first || second {
		t.Fatalf("expected logged true then false, got %v then %v", first, second)
	}
	if n := store.countInteractions(jane.ID, domain.InteractionEmailReplied); n != 1 {
		t.Fatalf("expected exactly 1 reply interaction, got %d", n)
	}
}

func TestClassifyReplySkipsExistingInteraction(t *testing.T) {
	for _, status := range []domain.ProspectStatus{domain.ProspectStatusContacted, domain.ProspectStatusActive} {
		t.Run(string(status), func(t *testing.T) {
			store, jane := newClassifierStore(status)
			store.addInteraction(jane, domain.InteractionEmailReplied)
			replies := NewReplyClassifier(store, logger.Nop())

			logged, err := replies.ClassifyReply(context.Background(), *jane, domain.InboundMessage{ID: "m1", From: "jane@x.com"})
			if err != nil {
				t.Fatalf(msgUnexpectedErr, err)
			}
			if logged {
				t.Fatal("expected existing reply to be left alone")
			}
			if n := store.countInteractions(jane.ID, domain.InteractionEmailReplied); n != 1 {
				t.Fatalf("expected exactly 1 reply interaction, got %d", n)
			}
			if got := store.prospect(jane.ID).Status; got != status {
				t.Fatalf(msgStatusWant, status, got)
			}
		})
	}
}

func TestClassifyBounceTwiceRecordsOnce(t *testing.T) {
	store, jane := newClassifierStore(domain.ProspectStatusContacted)
	monitor := &countingEvaluator{}
	bounces := NewBounceClassifier(store, monitor, DefaultBounceRules(), logger.Nop())
	msg := domain.InboundMessage{ID: "b1", From: "postmaster@x.com", Subject: "Undeliverable: jane@x.com"}

	// a fresh index per call, as two separate runs would build
	first, err := bounces.ClassifyBounce(context.Background(), NewProspectIndex(uuid.Nil, []domain.Prospect{*jane}), msg)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	second, err := bounces.ClassifyBounce(context.Background(), NewProspectIndex(uuid.Nil, []domain.Prospect{*jane}), msg)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}

	if first != 1 || second != 0 {
		t.Fatalf("expected bounces 1 then 0, got %d then %d", first, second)
	}
	if n := store.countInteractions(jane.ID, domain.InteractionEmailBounced); n != 1 {
		t.Fatalf("expected exactly 1 bounce interaction, got %d", n)
	}
	if monitor.calls != 1 {
		t.Fatalf("expected 1 campaign evaluation, got %d", monitor.calls)
	}
}

func TestClassifyBounceSkipsExistingInteraction(t *testing.T) {
	for _, status := range []domain.ProspectStatus{domain.ProspectStatusContacted, domain.ProspectStatusActive} {
		t.Run(string(status), func(t *testing.T) {
			store, jane := newClassifierStore(status)
			store.addInteraction(jane, domain.InteractionEmailBounced)
			monitor := &countingEvaluator{}
			bounces := NewBounceClassifier(store, monitor, DefaultBounceRules(), logger.Nop())
			idx := NewProspectIndex(uuid.Nil, []domain.Prospect{*jane})

			logged, err := bounces.ClassifyBounce(context.Background(), idx,
				domain.InboundMessage{ID: "b1", From: "mailer-daemon@x.com", Subject: "Delivery failure for jane@x.com"})
			if err != nil {
				t.Fatalf(msgUnexpectedErr, err)
			}
			if logged != 0 {
				t.Fatalf("expected no new bounce, got %d", logged)
			}
			if n := store.countInteractions(jane.ID, domain.InteractionEmailBounced); n != 1 {
				t.Fatalf("expected exactly 1 bounce interaction, got %d", n)
			}
			if monitor.calls != 0 {
				t.Fatalf("campaign must not be re-evaluated, got %d calls", monitor.calls)
			}
			if idx.Len() != 0 {
				t.Fatal("settled prospect should leave the index")
			}
		})
	}
}
