package feed

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SubscriptionsFile is a YAML list of feeds to subscribe to at start:
//
//	feeds:
//	  - url: https://example.com/feed.xml
//	    title: Example
//	    active: false
type SubscriptionsFile struct {
	path string
}

type subscriptionsDoc struct {
	Feeds []Subscription `yaml:"feeds"`
}

func NewSubscriptionsFile(path string) *SubscriptionsFile {
	return &SubscriptionsFile{path: path}
}

// Load returns the valid entries in file order, skipping duplicate URLs.
// A missing file is not an error.
func (s *SubscriptionsFile) Load() ([]Subscription, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var doc subscriptionsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	seen := make(map[string]bool, len(doc.Feeds))
	subscriptions := make([]Subscription, 0, len(doc.Feeds))
	for i, sub := range doc.Feeds {
		sub.URL = strings.TrimSpace(sub.URL)
		sub.Title = strings.TrimSpace(sub.Title)

		if err := validateSubscription(sub); err != nil {
			slog.Warn("Skipping invalid subscription", "file", s.path, "index", i, "error", err)
			continue
		}
		if seen[sub.URL] {
			slog.Debug("Skipping duplicate subscription", "url", sub.URL)
			continue
		}
		seen[sub.URL] = true
		subscriptions = append(subscriptions, sub)
	}

	return subscriptions, nil
}

// IsActive defaults to true when the entry leaves it out.
func (s Subscription) IsActive() bool {
	return s.Active == nil || *s.Active
}

func validateSubscription(sub Subscription) error {
	if sub.URL == "" {
		return fmt.Errorf("feed URL is required")
	}
	u, err := url.Parse(sub.URL)
	if err != nil {
		return fmt.Errorf("invalid feed URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	return nil
}
