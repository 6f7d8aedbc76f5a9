// Package graph reads recent inbox messages through Microsoft Graph.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"outreach_backend/internal/mailbox"
	"outreach_backend/internal/reconciliation/domain"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"golang.org/x/time/rate"
)

const maxPageSize = 1000

// Adapter implements the reconciliation mailbox port for Outlook mailboxes.
type Adapter struct {
	httpClient      *http.Client
	baseURL         string
	limiter         *rate.Limiter
	bounceDetection bool
	log             *logger.Logger
}

func New(cfg config.ProviderConfig, log *logger.Logger) *Adapter {
	return &Adapter{
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		baseURL:         strings.TrimRight(cfg.GetGraphBaseURL(), "/"),
		limiter:         mailbox.NewLimiter(cfg.GetGraphRequestsPerSecond()),
		bounceDetection: cfg.GetGraphBounceDetection(),
		log:             log,
	}
}

func (a *Adapter) Provider() domain.Provider { return domain.ProviderOutlook }

func (a *Adapter) SupportsBounceDetection() bool { return a.bounceDetection }

// FetchRecentMessages returns the oldest limit inbox messages received at or after
// since, oldest first.
func (a *Adapter) FetchRecentMessages(ctx context.Context, accessToken string, since time.Time, limit int) ([]domain.InboundMessage, error) {
	params := url.Values{}
	params.Set("$filter", "receivedDateTime ge "+since.UTC().Format(time.RFC3339))
	params.Set("$top", strconv.Itoa(mailbox.ClampLimit(limit, maxPageSize)))
	params.Set("$select", "id,from,subject,receivedDateTime,internetMessageHeaders")
	params.Set("$orderby", "receivedDateTime asc")

	reqURL := fmt.Sprintf("%s/me/mailFolders/inbox/messages?%s", a.baseURL, params.Encode())

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var page messagePage
	if err := a.doRequest(ctx, accessToken, reqURL, &page); err != nil {
		return nil, err
	}

	messages := make([]domain.InboundMessage, 0, len(page.Value))
	for _, m := range page.Value {
		messages = append(messages, m.toInbound())
	}
	return messages, nil
}

func (a *Adapter) doRequest(ctx context.Context, accessToken, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d", mailbox.ErrUnauthorized, resp.StatusCode)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: retry after %s", mailbox.ErrRateLimited, resp.Header.Get("Retry-After"))
	default:
		a.log.Error("graph upstream error", "status", resp.StatusCode)
		return fmt.Errorf("upstream error: status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type messagePage struct {
	Value []apiMessage `json:"value"`
}

type apiMessage struct {
	ID               string    `json:"id"`
	Subject          string    `json:"subject"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
	From             *struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	InternetMessageHeaders []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"internetMessageHeaders"`
}

func (m apiMessage) toInbound() domain.InboundMessage {
	inbound := domain.InboundMessage{
		ID:         m.ID,
		Subject:    m.Subject,
		ReceivedAt: m.ReceivedDateTime.UTC(),
	}
	if m.From != nil && m.From.EmailAddress.Address != "" {
		addr := mail.Address{Name: m.From.EmailAddress.Name, Address: m.From.EmailAddress.Address}
		inbound.From = addr.String()
	}
	for _, h := range m.InternetMessageHeaders {
		if strings.EqualFold(h.Name, "X-Failed-Recipients") {
			inbound.FailedRecipients = mailbox.SplitAddressList(h.Value)
		}
	}
	return inbound
}
