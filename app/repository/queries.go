package repository

import (
	"github.com/samber/lo"

	"github.com/lysyi3m/rss-reader/app/feed"
)

type Stats struct {
	Feeds       int `json:"feeds"`
	ActiveFeeds int `json:"active_feeds"`
	Items       int `json:"items"`
	Unread      int `json:"unread"`
}

func (r *FeedRepository) Feeds() []feed.Feed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.feedsSnapshot()
}

func (r *FeedRepository) Items() []feed.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.itemsSnapshot()
}

func (r *FeedRepository) Preferences() feed.Preferences {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prefsSnapshot()
}

// View is the projection of the current items under the current preferences.
func (r *FeedRepository) View() []feed.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewSnapshot()
}

func (r *FeedRepository) Feed(feedID string) (feed.Feed, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found, ok := lo.Find(r.feeds, func(f feed.Feed) bool { return f.ID == feedID })
	return copyFeed(found), ok
}

func (r *FeedRepository) Item(itemID string) (feed.Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found, ok := lo.Find(r.items, func(i feed.Item) bool { return i.ID == itemID })
	return copyItem(found), ok
}

// FeedItems returns one feed's items, newest first.
func (r *FeedRepository) FeedItems(feedID string) []feed.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyItems(feed.Project(r.items, feed.Preferences{SelectedFeeds: []string{feedID}}))
}

func (r *FeedRepository) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		Feeds:       len(r.feeds),
		ActiveFeeds: lo.CountBy(r.feeds, func(f feed.Feed) bool { return f.IsActive }),
		Items:       len(r.items),
		Unread:      lo.CountBy(r.items, func(i feed.Item) bool { return !i.IsRead }),
	}
}

// Subscriptions. The observer is called with the current snapshot right
// away and then after every change, while the repository is locked: it must
// not call back into the repository synchronously. Each returns an
// unsubscribe function.

func (r *FeedRepository) SubscribeFeeds(fn func([]feed.Feed)) func() {
	return r.feedsSubject.Subscribe(fn)
}

func (r *FeedRepository) SubscribeItems(fn func([]feed.Item)) func() {
	return r.itemsSubject.Subscribe(fn)
}

func (r *FeedRepository) SubscribePreferences(fn func(feed.Preferences)) func() {
	return r.prefsSubject.Subscribe(fn)
}

func (r *FeedRepository) SubscribeView(fn func([]feed.Item)) func() {
	return r.viewSubject.Subscribe(fn)
}

// ItemsNeedingContent lists up to limit items matching need, newest first.
// A limit of zero or less lists them all.
func (r *FeedRepository) ItemsNeedingContent(need func(feed.Item) bool, limit int) []feed.Item {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := lo.Filter(r.items, func(i feed.Item, _ int) bool { return need(i) })
	candidates = feed.Project(candidates, feed.Preferences{})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return copyItems(candidates)
}
