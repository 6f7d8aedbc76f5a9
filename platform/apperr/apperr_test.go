package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusUnavailableMapsTo503(t *testing.T) {
	err := Unavailable("load users", errors.New("connection refused"))
	if err.HTTPStatus() != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", err.HTTPStatus())
	}
}

func TestGetKindFollowsWrappedChain(t *testing.T) {
	inner := NotFound("campaign not found")
	wrapped := fmt.Errorf("snapshot: %w", inner)

	if !Is(wrapped, KindNotFound) {
		t.Fatalf("expected wrapped error to be KindNotFound, got %v", GetKind(wrapped))
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Fatalf("expected plain error to be KindUnknown")
	}
}

func TestErrorMessageIncludesOpAndCause(t *testing.T) {
	err := Unavailable("database unreachable", errors.New("dial tcp")).WithOp("reconcile")
	if got := err.Error(); got != "reconcile: database unreachable: dial tcp" {
		t.Fatalf("unexpected message %q", got)
	}
	if !errors.Is(err, err.Err) {
		t.Fatalf("expected Unwrap to expose cause")
	}
}
