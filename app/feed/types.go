package feed

import (
	"time"
)

type Dialect string

const (
	DialectNone Dialect = ""
	DialectRSS  Dialect = "rss"
	DialectAtom Dialect = "atom"
)

// Document-level fields, used when subscribing to a feed

type Metadata struct {
	Dialect     Dialect
	Title       string
	Link        string
	Description string
}

type Feed struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	IsActive    bool       `json:"isActive"`
	LastFetched *time.Time `json:"lastFetched,omitempty"`
	AddedDate   time.Time  `json:"addedDate"`
}

// FeedUpdate carries the fields to merge into an existing Feed. Nil fields are left untouched.
type FeedUpdate struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	IsActive    *bool      `json:"isActive,omitempty"`
	LastFetched *time.Time `json:"lastFetched,omitempty"`
}

func (u FeedUpdate) Apply(f Feed) Feed {
	if u.Title != nil {
		f.Title = *u.Title
	}
	if u.Description != nil {
		f.Description = *u.Description
	}
	if u.IsActive != nil {
		f.IsActive = *u.IsActive
	}
	if u.LastFetched != nil {
		t := *u.LastFetched
		f.LastFetched = &t
	}
	return f
}

type Item struct {
	ID          string    `json:"id"`
	FeedID      string    `json:"feedId"`
	FeedTitle   string    `json:"feedTitle"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Description string    `json:"description"`
	Content     string    `json:"content,omitempty"`
	Author      string    `json:"author,omitempty"`
	Categories  []string  `json:"categories,omitempty"` // nil when the entry has none
	PubDate     time.Time `json:"pubDate"`
	IsRead      bool      `json:"isRead"`
}

// View preferences

type ViewType string

const (
	ViewList ViewType = "list"
	ViewGrid ViewType = "grid"
)

type Preferences struct {
	ViewType       ViewType `json:"viewType"`
	SelectedFeeds  []string `json:"selectedFeeds"` // empty means all feeds
	ShowOnlyUnread bool     `json:"showOnlyUnread"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		ViewType:      ViewList,
		SelectedFeeds: []string{},
	}
}

type PreferencesUpdate struct {
	ViewType       *ViewType `json:"viewType,omitempty"`
	SelectedFeeds  []string  `json:"selectedFeeds,omitempty"`
	ShowOnlyUnread *bool     `json:"showOnlyUnread,omitempty"`
}

func (u PreferencesUpdate) Apply(p Preferences) Preferences {
	if u.ViewType != nil {
		p.ViewType = *u.ViewType
	}
	if u.SelectedFeeds != nil {
		p.SelectedFeeds = append([]string{}, u.SelectedFeeds...)
	}
	if u.ShowOnlyUnread != nil {
		p.ShowOnlyUnread = *u.ShowOnlyUnread
	}
	return p
}

// Subscriptions file types

type Subscription struct {
	URL    string `yaml:"url"`
	Title  string `yaml:"title"`
	Active *bool  `yaml:"active"`
}
