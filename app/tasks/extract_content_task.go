package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/rss-reader/app/feed"
)

const defaultExtractBatch = 20

type ExtractContentTask struct {
	Task
	store            FeedStore
	pages            PageFetcher
	contentExtractor *feed.ContentExtractor
	attempts         *ExtractionAttempts
	timeout          time.Duration
	limit            int
}

// NewExtractContentTask works on items of feedID, or of every feed when
// feedID is empty. attempts is shared between runs; nil starts a fresh count.
func NewExtractContentTask(feedID string, store FeedStore, pages PageFetcher, contentExtractor *feed.ContentExtractor, attempts *ExtractionAttempts, timeout time.Duration) *ExtractContentTask {
	if attempts == nil {
		attempts = NewExtractionAttempts()
	}
	return &ExtractContentTask{
		Task:             NewTask(TaskTypeExtractContent, feedID),
		store:            store,
		pages:            pages,
		contentExtractor: contentExtractor,
		attempts:         attempts,
		timeout:          timeout,
		limit:            defaultExtractBatch,
	}
}

// Execute never fails because of a single article: those are logged and
// skipped so the batch is not retried as a whole.
func (t *ExtractContentTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	items := t.store.ItemsNeedingContent(func(item feed.Item) bool {
		if t.FeedID != "" && item.FeedID != t.FeedID {
			return false
		}
		return t.contentExtractor.NeedsExtraction(item)
	}, 0)
	items = t.attempts.pick(items, t.limit)

	if len(items) == 0 {
		slog.Debug("No items need content extraction", "feed", t.FeedID)
		return nil
	}

	successCount := 0
	errorCount := 0

	for _, item := range items {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := t.extractContentForItem(ctx, item); err != nil {
			t.attempts.Failed(item.ID)
			slog.Error("Failed to extract content for item", "item_id", item.ID, "url", item.Link, "attempts", t.attempts.Count(item.ID), "error", err)
			errorCount++
		} else {
			t.attempts.Succeeded(item.ID)
			successCount++
		}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"feed", t.FeedID,
		"duration", t.GetDuration(),
		"success", successCount,
		"errors", errorCount)

	return nil
}

func (t *ExtractContentTask) extractContentForItem(ctx context.Context, item feed.Item) error {
	if item.Link == "" {
		return fmt.Errorf("item has no link")
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	data, err := t.pages.FetchPage(ctx, item.Link)
	if err != nil {
		return fmt.Errorf("failed to fetch article content: %w", err)
	}

	extracted, err := t.contentExtractor.Run(data, item.Link)
	if err != nil {
		return fmt.Errorf("failed to extract content: %w", err)
	}

	if !t.store.SetItemContent(item.ID, extracted) {
		return fmt.Errorf("item no longer exists")
	}

	slog.Debug("Content extracted successfully", "item_id", item.ID, "url", item.Link, "content_length", len(extracted))
	return nil
}
