package service

import (
	"errors"
	"net/mail"
	"strings"
)

// ErrUnparsableAddress is returned when no bare address can be extracted from a header.
var ErrUnparsableAddress = errors.New("unparsable sender address")

// NormalizeAddress lower-cases and trims an address for comparison.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ExtractAddress returns the bare, normalized address from a possibly decorated
// header value such as `"Jane Doe" <jane@x.com>`.
func ExtractAddress(header string) (string, error) {
	raw := strings.TrimSpace(header)
	if raw == "" {
		return "", ErrUnparsableAddress
	}

	if parsed, err := mail.ParseAddress(raw); err == nil {
		return NormalizeAddress(parsed.Address), nil
	}

	// Lenient fallback for display names net/mail rejects (unquoted commas, stray quotes).
	if open := strings.LastIndex(raw, "<"); open >= 0 {
		if end := strings.Index(raw[open:], ">"); end > 0 {
			raw = raw[open+1 : open+end]
		}
	}

	candidate := NormalizeAddress(strings.Trim(raw, `"' `))
	at := strings.IndexByte(candidate, '@')
	if at <= 0 || at == len(candidate)-1 || strings.Count(candidate, "@") != 1 {
		return "", ErrUnparsableAddress
	}
	if strings.ContainsAny(candidate, " \t<>,;\"") {
		return "", ErrUnparsableAddress
	}
	return candidate, nil
}

// containsAddressToken reports whether addr occurs in text as a delimited token,
// so jane@x.com does not match inside mary.jane@x.com or jane@x.com.au.
// Both arguments must already be lower-cased.
func containsAddressToken(text, addr string) bool {
	if addr == "" {
		return false
	}

	offset := 0
	for offset <= len(text)-len(addr) {
		idx := strings.Index(text[offset:], addr)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(addr)
		if leftDelimited(text, start) && rightDelimited(text, end) {
			return true
		}
		offset = start + 1
	}
	return false
}

func leftDelimited(text string, start int) bool {
	return start == 0 || !isLocalPartByte(text[start-1])
}

func rightDelimited(text string, end int) bool {
	if end == len(text) {
		return true
	}
	c := text[end]
	if c == '.' {
		// trailing sentence punctuation, not a longer domain
		return end+1 == len(text) || !isDomainByte(text[end+1])
	}
	return !isDomainByte(c)
}

func isLocalPartByte(c byte) bool {
	if isDomainByte(c) {
		return true
	}
	switch c {
	case '.', '%', '+', '\'':
		return true
	}
	return false
}

func isDomainByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_'
}
