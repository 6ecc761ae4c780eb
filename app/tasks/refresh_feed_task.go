package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-reader/app/repository"
)

type RefreshFeedTask struct {
	Task
	refresher FeedRefresher
	// Added is the number of new items of the last successful run.
	Added int
}

func NewRefreshFeedTask(feedID string, refresher FeedRefresher) *RefreshFeedTask {
	return &RefreshFeedTask{
		Task:      NewTask(TaskTypeRefreshFeed, feedID),
		refresher: refresher,
	}
}

// Execute fails only when the document could not be fetched, which makes
// the scheduler retry it. A feed removed in the meantime is not an error.
func (t *RefreshFeedTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	added, err := t.refresher.Refresh(ctx, t.FeedID)
	if errors.Is(err, repository.ErrFeedNotFound) {
		slog.Debug("Feed no longer exists, skipping", "feed", t.FeedID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to refresh feed: %w", err)
	}

	t.Added = added

	slog.Info("Task completed",
		"type", t.GetType(),
		"feed", t.FeedID,
		"duration", t.GetDuration(),
		"new", added)

	return nil
}
