// Package gmail reads recent inbox messages through the Gmail REST API.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"outreach_backend/internal/mailbox"
	"outreach_backend/internal/reconciliation/domain"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	user        = "me"
	maxPageSize = 500
	// listing stops here; anything older is out of reach for this poll
	maxListPages = 10
)

var metadataHeaders = []string{"From", "Subject", "X-Failed-Recipients"}

// Adapter implements the reconciliation mailbox port for Gmail.
type Adapter struct {
	endpoint string
	limiter  *rate.Limiter
	log      *logger.Logger
}

func New(cfg config.ProviderConfig, log *logger.Logger) *Adapter {
	return &Adapter{
		endpoint: cfg.GetGmailEndpoint(),
		limiter:  mailbox.NewLimiter(cfg.GetGmailRequestsPerSecond()),
		log:      log,
	}
}

func (a *Adapter) Provider() domain.Provider { return domain.ProviderGmail }

func (a *Adapter) SupportsBounceDetection() bool { return true }

// FetchRecentMessages returns the oldest limit inbox messages received at or after
// since, oldest first, with the headers needed for classification. Messages whose
// metadata cannot be loaded are skipped; a rejected token fails the whole call.
func (a *Adapter) FetchRecentMessages(ctx context.Context, accessToken string, since time.Time, limit int) ([]domain.InboundMessage, error) {
	srv, err := a.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	ids, err := a.listMessageIDs(ctx, srv, since)
	if err != nil {
		return nil, err
	}
	// the listing is newest first
	if n := mailbox.ClampLimit(limit, maxPageSize); len(ids) > n {
		ids = ids[len(ids)-n:]
	}

	messages := make([]domain.InboundMessage, 0, len(ids))
	for _, id := range ids {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		msg, err := srv.Users.Messages.Get(user, id).
			Format("metadata").
			MetadataHeaders(metadataHeaders...).
			Context(ctx).
			Do()
		if err != nil {
			err = classify(err)
			if errors.Is(err, mailbox.ErrUnauthorized) {
				return nil, fmt.Errorf("get gmail message: %w", err)
			}
			a.log.Warn("gmail message metadata unavailable", "message_id", id, "error", err)
			continue
		}

		inbound := toInbound(msg)
		if inbound.ReceivedAt.Before(since) {
			continue
		}
		messages = append(messages, inbound)
	}

	slices.SortStableFunc(messages, func(x, y domain.InboundMessage) int {
		return x.ReceivedAt.Compare(y.ReceivedAt)
	})
	return messages, nil
}

// listMessageIDs pages through the inbox listing for the poll window.
func (a *Adapter) listMessageIDs(ctx context.Context, srv *gmailapi.Service, since time.Time) ([]string, error) {
	call := srv.Users.Messages.List(user).
		Q(fmt.Sprintf("in:inbox after:%d", since.Unix())).
		MaxResults(maxPageSize)

	var ids []string
	for page := 0; page < maxListPages; page++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("list gmail messages: %w", classify(err))
		}
		for _, ref := range resp.Messages {
			ids = append(ids, ref.Id)
		}
		if resp.NextPageToken == "" {
			return ids, nil
		}
		call.PageToken(resp.NextPageToken)
	}

	a.log.Warn("gmail listing truncated", "pages", maxListPages, "listed", len(ids))
	return ids, nil
}

func (a *Adapter) service(ctx context.Context, accessToken string) (*gmailapi.Service, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, src))}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}

	srv, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", mailbox.ErrUnauthorized, apiErr.Message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", mailbox.ErrRateLimited, apiErr.Message)
	default:
		return err
	}
}

func toInbound(msg *gmailapi.Message) domain.InboundMessage {
	inbound := domain.InboundMessage{
		ID:         msg.Id,
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload == nil {
		return inbound
	}
	inbound.From = getHeader(msg.Payload.Headers, "From")
	inbound.Subject = getHeader(msg.Payload.Headers, "Subject")
	inbound.FailedRecipients = mailbox.SplitAddressList(getHeader(msg.Payload.Headers, "X-Failed-Recipients"))
	return inbound
}

func getHeader(headers []*gmailapi.MessagePartHeader, name string) string {
	for _, header := range headers {
		if http.CanonicalHeaderKey(header.Name) == http.CanonicalHeaderKey(name) {
			return header.Value
		}
	}
	return ""
}
