package tasks

import (
	"slices"
	"sync"

	"github.com/lysyi3m/rss-reader/app/feed"
)

const maxExtractAttempts = 3

// ExtractionAttempts counts failed content extractions per item across task
// runs. Items that failed less often are tried first; items that reached
// maxExtractAttempts are not tried again.
type ExtractionAttempts struct {
	mu       sync.Mutex
	failures map[string]int
}

func NewExtractionAttempts() *ExtractionAttempts {
	return &ExtractionAttempts{failures: make(map[string]int)}
}

func (a *ExtractionAttempts) Failed(itemID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[itemID]++
}

func (a *ExtractionAttempts) Succeeded(itemID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.failures, itemID)
}

func (a *ExtractionAttempts) Count(itemID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failures[itemID]
}

// pick drops exhausted items, orders the rest by failure count (keeping the
// given order among equals) and returns at most limit of them.
func (a *ExtractionAttempts) pick(items []feed.Item, limit int) []feed.Item {
	a.mu.Lock()
	defer a.mu.Unlock()

	items = slices.DeleteFunc(items, func(item feed.Item) bool {
		return a.failures[item.ID] >= maxExtractAttempts
	})
	slices.SortStableFunc(items, func(x, y feed.Item) int {
		return a.failures[x.ID] - a.failures[y.ID]
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
