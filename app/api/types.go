package api

import (
	"context"

	"github.com/lysyi3m/rss-reader/app/feed"
	"github.com/lysyi3m/rss-reader/app/repository"
	"github.com/lysyi3m/rss-reader/app/tasks"
)

type GeneratorInterface interface {
	Run(feed feed.Feed, items []feed.Item) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

// Repository is the part of repository.FeedRepository the handlers use.
type Repository interface {
	AddFeed(ctx context.Context, url, title string) (feed.Feed, bool)
	RemoveFeed(feedID string)
	UpdateFeed(feedID string, update feed.FeedUpdate)
	RefreshFeed(ctx context.Context, feedID string) int
	RefreshAllFeeds(ctx context.Context) int
	MarkAsRead(itemID string)
	MarkAsUnread(itemID string)
	MarkAllAsRead(feedID string)
	UpdatePreferences(update feed.PreferencesUpdate)

	Feeds() []feed.Feed
	Feed(feedID string) (feed.Feed, bool)
	Item(itemID string) (feed.Item, bool)
	FeedItems(feedID string) []feed.Item
	View() []feed.Item
	Preferences() feed.Preferences
	Stats() repository.Stats
	SubscribeView(fn func([]feed.Item)) func()
}

var _ Repository = (*repository.FeedRepository)(nil)

type Handler struct {
	repo      Repository
	generator GeneratorInterface
	scheduler tasks.TaskSchedulerInterface
	version   string
}

type addFeedRequest struct {
	URL   string `json:"url" binding:"required"`
	Title string `json:"title"`
}

// lastFetched is managed by refreshes and cannot be set over the API.
type updateFeedRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"isActive"`
}

type refreshResponse struct {
	NewItems int `json:"new_items"`
}
