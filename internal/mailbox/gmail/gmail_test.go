package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"outreach_backend/internal/mailbox"
	"outreach_backend/platform/logger"
)

type testProviderConfig struct {
	endpoint string
}

func (c testProviderConfig) GetGmailEndpoint() string           { return c.endpoint }
func (c testProviderConfig) GetGmailRequestsPerSecond() float64 { return 0 }
func (c testProviderConfig) GetGraphBaseURL() string            { return "" }
func (c testProviderConfig) GetGraphRequestsPerSecond() float64 { return 0 }
func (c testProviderConfig) GetGraphBounceDetection() bool      { return true }

func TestFetchRecentMessagesReadsMetadata(t *testing.T) {
	since := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	received := since.Add(30 * time.Minute)

	var gotQuery, gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"messages":[{"id":"m1"},{"id":"old"}]}`)
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "metadata" {
			t.Errorf("expected metadata format, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"m1","internalDate":"%d","payload":{"headers":[
			{"name":"From","value":"Mail Delivery Subsystem <mailer-daemon@googlemail.com>"},
			{"name":"Subject","value":"Delivery Status Notification (Failure)"},
			{"name":"X-Failed-Recipients","value":"bob@y.com, ann@y.com"}
		]}}`, received.UnixMilli())
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/old", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"old","internalDate":"%d","payload":{"headers":[]}}`, since.Add(-time.Hour).UnixMilli())
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := New(testProviderConfig{endpoint: srv.URL + "/"}, logger.Nop())
	msgs, err := adapter.FetchRecentMessages(context.Background(), "token-123", since, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotQuery != fmt.Sprintf("in:inbox after:%d", since.Unix()) {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if gotAuth != "Bearer token-123" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message inside the window, got %d", len(msgs))
	}
	msg := msgs[0]
	if !strings.Contains(msg.From, "mailer-daemon@googlemail.com") || !msg.ReceivedAt.Equal(received) {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if len(msg.FailedRecipients) != 2 || msg.FailedRecipients[0] != "bob@y.com" {
		t.Fatalf("unexpected failed recipients: %v", msg.FailedRecipients)
	}
}

func TestFetchRecentMessagesReturnsOldestFirst(t *testing.T) {
	since := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	var pageTokens []string
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("pageToken")
		pageTokens = append(pageTokens, token)
		w.Header().Set("Content-Type", "application/json")
		if token == "" {
			fmt.Fprint(w, `{"messages":[{"id":"m3"},{"id":"m2"}],"nextPageToken":"p2"}`)
			return
		}
		fmt.Fprint(w, `{"messages":[{"id":"m1"}]}`)
	})
	for i, id := range []string{"m1", "m2", "m3"} {
		received := since.Add(time.Duration(i+1) * time.Minute)
		mux.HandleFunc("/gmail/v1/users/me/messages/"+id, func(w http.ResponseWriter, r *http.Request) {
			if id == "m3" {
				t.Errorf("newest message beyond the limit must not be loaded")
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"id":%q,"internalDate":"%d","payload":{"headers":[]}}`, id, received.UnixMilli())
		})
	}

	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := New(testProviderConfig{endpoint: srv.URL + "/"}, logger.Nop())
	msgs, err := adapter.FetchRecentMessages(context.Background(), "token-123", since, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pageTokens) != 2 || pageTokens[1] != "p2" {
		t.Fatalf("expected two listing pages, got %v", pageTokens)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("expected m1 then m2, got %+v", msgs)
	}
}

func TestFetchRecentMessagesMapsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"code":401,"message":"Invalid Credentials"}}`)
	}))
	defer srv.Close()

	adapter := New(testProviderConfig{endpoint: srv.URL + "/"}, logger.Nop())
	_, err := adapter.FetchRecentMessages(context.Background(), "expired", time.Now().Add(-time.Hour), 10)
	if !errors.Is(err, mailbox.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAdapterCapabilities(t *testing.T) {
	adapter := New(testProviderConfig{}, logger.Nop())
	if adapter.Provider() != "gmail" || !adapter.SupportsBounceDetection() {
		t.Fatalf("unexpected capabilities: %s %v", adapter.Provider(), adapter.SupportsBounceDetection())
	}
}
