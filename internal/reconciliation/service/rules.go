package service

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// BounceRules are the case-insensitive markers that flag a delivery-failure notification.
// Matching is deliberately permissive: any sender or subject marker is enough.
type BounceRules struct {
	SenderMarkers  []string `yaml:"sender_markers"`
	SubjectMarkers []string `yaml:"subject_markers"`
}

func DefaultBounceRules() BounceRules {
	return BounceRules{
		SenderMarkers:  []string{"mailer-daemon", "postmaster"},
		SubjectMarkers: []string{"delivery", "undeliverable"},
	}
}

// LoadBounceRules reads marker overrides from a YAML file. An empty path or an
// empty list in the file keeps the defaults for that list.
func LoadBounceRules(path string) (BounceRules, error) {
	rules := DefaultBounceRules()
	if strings.TrimSpace(path) == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read bounce rules: %w", err)
	}

	var fromFile BounceRules
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return rules, fmt.Errorf("parse bounce rules: %w", err)
	}

	if markers := normalizeMarkers(fromFile.SenderMarkers); len(markers) > 0 {
		rules.SenderMarkers = markers
	}
	if markers := normalizeMarkers(fromFile.SubjectMarkers); len(markers) > 0 {
		rules.SubjectMarkers = markers
	}
	return rules, nil
}

// Matches reports whether a message looks like a bounce notification.
func (r BounceRules) Matches(from, subject string) bool {
	sender := strings.ToLower(from)
	for _, marker := range r.SenderMarkers {
		if strings.Contains(sender, marker) {
			return true
		}
	}

	subj := strings.ToLower(subject)
	for _, marker := range r.SubjectMarkers {
		if strings.Contains(subj, marker) {
			return true
		}
	}
	return false
}

func normalizeMarkers(markers []string) []string {
	out := make([]string, 0, len(markers))
	for _, m := range markers {
		if trimmed := strings.ToLower(strings.TrimSpace(m)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
