package tasks

import (
	"context"

	"github.com/lysyi3m/rss-reader/app/feed"
)

// TaskSchedulerInterface is what the application uses to drive background work.
//
//	scheduler := NewScheduler(repo, pages, extractor, Options{...})
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewRefreshFeedTask(feedID, repo))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	EnqueueRefreshAll() int
	EnqueueExtractContent(feedID string) error
}

// FeedRefresher refreshes a single feed. Implemented by repository.FeedRepository.
type FeedRefresher interface {
	Refresh(ctx context.Context, feedID string) (int, error)
}

// FeedStore is the repository surface the scheduler needs.
type FeedStore interface {
	FeedRefresher
	Feeds() []feed.Feed
	ItemsNeedingContent(need func(feed.Item) bool, limit int) []feed.Item
	SetItemContent(itemID, content string) bool
}

// PageFetcher retrieves article HTML. Implemented by feed.HTTPFetcher.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) ([]byte, error)
}
