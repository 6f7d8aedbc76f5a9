// Package mailbox holds what the provider adapters share: error kinds, page
// limits and request pacing.
package mailbox

import (
	"errors"
	"strings"

	"golang.org/x/time/rate"
)

var (
	// ErrUnauthorized means the provider rejected the stored access token.
	ErrUnauthorized = errors.New("mailbox credentials rejected")
	// ErrRateLimited means the provider throttled the request.
	ErrRateLimited = errors.New("mailbox provider rate limited")
)

// DefaultPageSize is used when a caller passes a non-positive limit.
const DefaultPageSize = 50

// ClampLimit bounds a requested page size to [1, ceiling].
func ClampLimit(limit, ceiling int) int {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > ceiling {
		return ceiling
	}
	return limit
}

// NewLimiter paces outbound provider calls. A non-positive rate disables pacing.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// SplitAddressList splits a comma separated header such as X-Failed-Recipients.
func SplitAddressList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
