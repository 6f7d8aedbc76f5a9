package service

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"outreach_backend/internal/reconciliation/domain"

	"github.com/google/uuid"
)

func TestExtractAddress(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "Jane Doe <JANE@Example.com>", want: "jane@example.com"},
		{header: `"Doe, Jane" <jane@x.com>`, want: "jane@x.com"},
		{header: "  Bob@Y.com ", want: "bob@y.com"},
		{header: "Doe, Jane <jane@x.com>", want: "jane@x.com"},
	}

	for _, tt := range tests {
		got, err := ExtractAddress(tt.header)
		if err != nil {
			t.Fatalf("ExtractAddress(%q): %v", tt.header, err)
		}
		if got != tt.want {
			t.Fatalf("ExtractAddress(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestExtractAddressRejectsGarbage(t *testing.T) {
	for _, header := range []string{"", "no address here", "Jane <>", "@x.com"} {
		if _, err := ExtractAddress(header); !errors.Is(err, ErrUnparsableAddress) {
			t.Fatalf("ExtractAddress(%q) expected ErrUnparsableAddress, got %v", header, err)
		}
	}
}

func TestContainsAddressToken(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{text: "delivery status notification (failure) jane@x.com", want: true},
		{text: "undeliverable: <jane@x.com>", want: true},
		{text: "could not deliver to jane@x.com.", want: true},
		{text: "failure for mary.jane@x.com", want: false},
		{text: "failure for jane@x.com.au", want: false},
		{text: "failure for jane@x.community", want: false},
		{text: "nothing here", want: false},
	}

	for _, tt := range tests {
		if got := containsAddressToken(tt.text, "jane@x.com"); got != tt.want {
			t.Fatalf("containsAddressToken(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestProspectIndexRemove(t *testing.T) {
	userID := uuid.New()
	a := domain.Prospect{ID: uuid.New(), Email: "a@x.com", Status: domain.ProspectStatusContacted}
	b := domain.Prospect{ID: uuid.New(), Email: "A@x.com", Status: domain.ProspectStatusActive}
	done := domain.Prospect{ID: uuid.New(), Email: "c@x.com", Status: domain.ProspectStatusReplied}

	idx := NewProspectIndex(userID, []domain.Prospect{a, b, done})
	if idx.Len() != 2 {
		t.Fatalf("expected 2 awaiting prospects, got %d", idx.Len())
	}

	idx.Remove(a.ID)
	if got := idx.Lookup("a@x.com"); len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("unexpected lookup after remove: %+v", got)
	}
	if got := idx.MatchText("Undeliverable: c@x.com"); len(got) != 0 {
		t.Fatalf("settled prospect must not be indexed, got %+v", got)
	}
}

func TestLoadBounceRules(t *testing.T) {
	rules, err := LoadBounceRules("")
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if !rules.Matches("MAILER-DAEMON@googlemail.com", "hello") {
		t.Fatal("default sender marker should match")
	}

	path := filepath.Join(t.TempDir(), "bounce_rules.yaml")
	content := "sender_markers:\n  - Bounce-Handler\nsubject_markers: []\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}

	rules, err = LoadBounceRules(path)
	if err != nil {
		t.Fatalf(msgUnexpectedErr, err)
	}
	if rules.Matches("postmaster@y.com", "hi") {
		t.Fatal("overridden sender markers should replace defaults")
	}
	if !rules.Matches("bounce-handler@y.com", "hi") {
		t.Fatal("custom sender marker should match case-insensitively")
	}
	if !rules.Matches("someone@y.com", "Undeliverable message") {
		t.Fatal("empty subject list should keep defaults")
	}
}

func TestLoadBounceRulesMissingFile(t *testing.T) {
	if _, err := LoadBounceRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing rules file")
	}
}
