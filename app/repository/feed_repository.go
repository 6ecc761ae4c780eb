package repository

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/lysyi3m/rss-reader/app/feed"
	"github.com/lysyi3m/rss-reader/app/storage"
)

// Storage keys
const (
	KeyFeeds       = "rss_feeds"
	KeyItems       = "rss_items"
	KeyPreferences = "feed_preferences"
)

const defaultFeedTitle = "New Feed"

var ErrFeedNotFound = errors.New("feed not found")

// FeedRepository owns the feed and item collections and the view
// preferences. Every mutation persists the affected record and then
// publishes fresh snapshots; subscribers only ever see copies.
type FeedRepository struct {
	store   storage.Store
	fetcher feed.Fetcher
	parser  *feed.Parser
	now     func() time.Time
	newID   func() string

	// mu serializes read-modify-write of the collections. Network fetches
	// happen outside of it.
	mu    sync.Mutex
	feeds []feed.Feed
	items []feed.Item
	prefs feed.Preferences

	feedsSubject *Subject[[]feed.Feed]
	itemsSubject *Subject[[]feed.Item]
	prefsSubject *Subject[feed.Preferences]
	viewSubject  *Subject[[]feed.Item]
}

func NewFeedRepository(store storage.Store, fetcher feed.Fetcher, parser *feed.Parser) *FeedRepository {
	r := &FeedRepository{
		store:   store,
		fetcher: fetcher,
		parser:  parser,
		now:     time.Now,
		newID:   func() string { return "feed_" + uuid.NewString() },
		feeds:   []feed.Feed{},
		items:   []feed.Item{},
		prefs:   feed.DefaultPreferences(),
	}

	r.load()

	r.feedsSubject = NewSubject(r.feedsSnapshot())
	r.itemsSubject = NewSubject(r.itemsSnapshot())
	r.prefsSubject = NewSubject(r.prefsSnapshot())
	r.viewSubject = NewSubject(r.viewSnapshot())

	return r
}

// load restores persisted state. Unreadable records are treated as absent.
func (r *FeedRepository) load() {
	if feeds, ok, err := storage.LoadJSON[[]feed.Feed](r.store, KeyFeeds); err != nil {
		slog.Error("Failed to load feeds", "error", err)
	} else if ok && feeds != nil {
		r.feeds = feeds
	}

	if items, ok, err := storage.LoadJSON[[]feed.Item](r.store, KeyItems); err != nil {
		slog.Error("Failed to load items", "error", err)
	} else if ok && items != nil {
		r.items = items
	}

	if prefs, ok, err := storage.LoadJSON[feed.Preferences](r.store, KeyPreferences); err != nil {
		slog.Error("Failed to load preferences", "error", err)
	} else if ok {
		if prefs.ViewType == "" {
			prefs.ViewType = feed.ViewList
		}
		if prefs.SelectedFeeds == nil {
			prefs.SelectedFeeds = []string{}
		}
		r.prefs = prefs
	}

	slog.Debug("Repository state loaded", "feeds", len(r.feeds), "items", len(r.items))
}

// AddFeed fetches and parses url before anything is stored. On fetch failure
// no feed is created and ok is false.
func (r *FeedRepository) AddFeed(ctx context.Context, url, title string) (feed.Feed, bool) {
	url = strings.TrimSpace(url)
	title = strings.TrimSpace(title)
	if url == "" {
		return feed.Feed{}, false
	}

	id := r.newID()

	data, err := r.fetch(ctx, url)
	if err != nil {
		slog.Warn("Failed to add feed", "url", url, "error", err)
		return feed.Feed{}, false
	}

	metadata, parsed := r.parser.Run(data, id, title)

	now := r.now()
	newFeed := feed.Feed{
		ID:          id,
		URL:         url,
		Title:       cmp.Or(title, metadata.Title, defaultFeedTitle),
		Description: metadata.Description,
		IsActive:    true,
		LastFetched: &now,
		AddedDate:   now,
	}
	for i := range parsed {
		parsed[i].FeedTitle = newFeed.Title
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.feeds = append(r.feeds, newFeed)
	added := r.mergeItems(parsed)
	r.saveFeeds()
	r.saveItems()

	slog.Info("Feed added", "feed", id, "url", url, "title", newFeed.Title, "dialect", metadata.Dialect, "items", added)

	return copyFeed(newFeed), true
}

// RemoveFeed deletes the feed and every item it owns.
func (r *FeedRepository) RemoveFeed(feedID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.feeds = lo.Reject(r.feeds, func(f feed.Feed, _ int) bool { return f.ID == feedID })
	r.items = lo.Reject(r.items, func(i feed.Item, _ int) bool { return i.FeedID == feedID })

	r.saveFeeds()
	r.saveItems()

	slog.Debug("Feed removed", "feed", feedID)
}

// UpdateFeed merges update into the feed. Unknown ids are ignored.
func (r *FeedRepository) UpdateFeed(feedID string, update feed.FeedUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.updateFeedLocked(feedID, update)
}

func (r *FeedRepository) updateFeedLocked(feedID string, update feed.FeedUpdate) bool {
	index := slices.IndexFunc(r.feeds, func(f feed.Feed) bool { return f.ID == feedID })
	if index < 0 {
		return false
	}

	feeds := slices.Clone(r.feeds)
	feeds[index] = update.Apply(feeds[index])
	r.feeds = feeds
	r.saveFeeds()
	return true
}

// RefreshFeed re-fetches one feed and returns how many unseen items were
// added. Unknown feeds and failed fetches yield 0.
func (r *FeedRepository) RefreshFeed(ctx context.Context, feedID string) int {
	added, _ := r.Refresh(ctx, feedID)
	return added
}

// Refresh is RefreshFeed with the reason for a zero result: ErrFeedNotFound
// or feed.ErrFetch.
func (r *FeedRepository) Refresh(ctx context.Context, feedID string) (int, error) {
	current, ok := r.Feed(feedID)
	if !ok {
		return 0, ErrFeedNotFound
	}

	data, err := r.fetch(ctx, current.URL)
	if err != nil {
		slog.Warn("Failed to refresh feed", "feed", feedID, "url", current.URL, "error", err)
		return 0, err
	}

	_, parsed := r.parser.Run(data, current.ID, current.Title)

	r.mu.Lock()
	defer r.mu.Unlock()

	// The feed may have been removed while fetching.
	if !slices.ContainsFunc(r.feeds, func(f feed.Feed) bool { return f.ID == feedID }) {
		slog.Debug("Feed removed during refresh, discarding items", "feed", feedID)
		return 0, ErrFeedNotFound
	}

	added := r.mergeItems(parsed)
	if added > 0 {
		r.saveItems()
	}

	now := r.now()
	r.updateFeedLocked(feedID, feed.FeedUpdate{LastFetched: &now})

	slog.Debug("Feed refreshed", "feed", feedID, "total", len(parsed), "new", added)

	return added, nil
}

// fetch treats a blank document like any other fetch failure, whichever
// Fetcher is plugged in.
func (r *FeedRepository) fetch(ctx context.Context, url string) ([]byte, error) {
	data, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, feed.ErrFetch
	}
	return data, nil
}

// RefreshAllFeeds refreshes every active feed concurrently and returns the
// total of new items. One feed failing does not affect the others.
func (r *FeedRepository) RefreshAllFeeds(ctx context.Context) int {
	active := lo.Filter(r.Feeds(), func(f feed.Feed, _ int) bool { return f.IsActive })
	if len(active) == 0 {
		return 0
	}

	counts := make([]int, len(active))
	var wg sync.WaitGroup
	for i, f := range active {
		wg.Add(1)
		go func(i int, feedID string) {
			defer wg.Done()
			counts[i] = r.RefreshFeed(ctx, feedID)
		}(i, f.ID)
	}
	wg.Wait()

	total := lo.Sum(counts)
	slog.Info("Feeds refreshed", "feeds", len(active), "new", total)

	return total
}

func (r *FeedRepository) MarkAsRead(itemID string) {
	r.setRead(func(i feed.Item) bool { return i.ID == itemID }, true)
}

func (r *FeedRepository) MarkAsUnread(itemID string) {
	r.setRead(func(i feed.Item) bool { return i.ID == itemID }, false)
}

// MarkAllAsRead marks the items of feedID as read, or every item when
// feedID is empty.
func (r *FeedRepository) MarkAllAsRead(feedID string) {
	r.setRead(func(i feed.Item) bool { return feedID == "" || i.FeedID == feedID }, true)
}

func (r *FeedRepository) setRead(match func(feed.Item) bool, read bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = lo.Map(r.items, func(item feed.Item, _ int) feed.Item {
		if match(item) {
			item.IsRead = read
		}
		return item
	})
	r.saveItems()
}

// SetItemContent replaces an item's content, keeping everything else.
func (r *FeedRepository) SetItemContent(itemID, content string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := slices.IndexFunc(r.items, func(i feed.Item) bool { return i.ID == itemID })
	if index < 0 {
		return false
	}

	items := slices.Clone(r.items)
	items[index].Content = content
	r.items = items
	r.saveItems()
	return true
}

func (r *FeedRepository) UpdatePreferences(update feed.PreferencesUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prefs = update.Apply(r.prefs)

	if err := storage.SaveJSON(r.store, KeyPreferences, r.prefs); err != nil {
		slog.Error("Failed to save preferences", "error", err)
	}
	r.prefsSubject.Publish(r.prefsSnapshot())
	r.viewSubject.Publish(r.viewSnapshot())
}

// mergeItems appends the items whose id is not present yet, across all
// feeds, and returns how many were added. Existing items are untouched.
func (r *FeedRepository) mergeItems(parsed []feed.Item) int {
	seen := make(map[string]struct{}, len(r.items)+len(parsed))
	for _, item := range r.items {
		seen[item.ID] = struct{}{}
	}

	fresh := make([]feed.Item, 0, len(parsed))
	for _, item := range parsed {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		fresh = append(fresh, item)
	}

	if len(fresh) > 0 {
		r.items = append(slices.Clip(r.items), fresh...)
	}
	return len(fresh)
}

// saveFeeds persists and publishes the feed collection. Callers hold mu.
func (r *FeedRepository) saveFeeds() {
	if err := storage.SaveJSON(r.store, KeyFeeds, r.feeds); err != nil {
		slog.Error("Failed to save feeds", "error", err)
	}
	r.feedsSubject.Publish(r.feedsSnapshot())
}

// saveItems persists and publishes the items and the projection. Callers hold mu.
func (r *FeedRepository) saveItems() {
	if err := storage.SaveJSON(r.store, KeyItems, r.items); err != nil {
		slog.Error("Failed to save items", "error", err)
	}
	r.itemsSubject.Publish(r.itemsSnapshot())
	r.viewSubject.Publish(r.viewSnapshot())
}

func (r *FeedRepository) feedsSnapshot() []feed.Feed {
	return lo.Map(r.feeds, func(f feed.Feed, _ int) feed.Feed { return copyFeed(f) })
}

func (r *FeedRepository) itemsSnapshot() []feed.Item {
	return copyItems(r.items)
}

func (r *FeedRepository) viewSnapshot() []feed.Item {
	return copyItems(feed.Project(r.items, r.prefs))
}

// copyFeed and copyItem detach everything a caller could write through
// from repository state.
func copyFeed(f feed.Feed) feed.Feed {
	if f.LastFetched != nil {
		lastFetched := *f.LastFetched
		f.LastFetched = &lastFetched
	}
	return f
}

func copyItem(i feed.Item) feed.Item {
	i.Categories = slices.Clone(i.Categories)
	return i
}

func copyItems(items []feed.Item) []feed.Item {
	return lo.Map(items, func(i feed.Item, _ int) feed.Item { return copyItem(i) })
}

func (r *FeedRepository) prefsSnapshot() feed.Preferences {
	prefs := r.prefs
	prefs.SelectedFeeds = slices.Clone(r.prefs.SelectedFeeds)
	return prefs
}
