package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/lysyi3m/rss-reader/app/feed"
)

type mockPages map[string]string

func (m mockPages) FetchPage(ctx context.Context, url string) ([]byte, error) {
	page, ok := m[url]
	if !ok {
		return nil, fmt.Errorf("HTTP error: 404")
	}
	return []byte(page), nil
}

const articleHTML = `<html><head><title>Post</title></head><body>
<nav>Menu</nav>
<article>
<h1>Post</h1>
<p>This article body is long enough for the readability algorithm to treat it as the main content of the page and keep it.</p>
<p>A second paragraph adds more words so that the scoring threshold is comfortably exceeded by the candidate node.</p>
<p>A third paragraph closes the article with yet more prose about nothing in particular, which is fine for a test.</p>
</article>
<footer>Footer</footer>
</body></html>`

func TestExtractContentTask(t *testing.T) {
	store := newMockFeedStore()
	store.items = []feed.Item{
		{ID: "1", FeedID: "a", Link: "https://e.com/1", Description: "sum"},
		{ID: "2", FeedID: "a", Link: "https://e.com/missing"},
		{ID: "3", FeedID: "a", Link: "https://e.com/3", Description: "sum", Content: "<p>already full</p>"},
		{ID: "4", FeedID: "b", Link: "https://e.com/4"},
	}
	pages := mockPages{
		"https://e.com/1": articleHTML,
		"https://e.com/4": articleHTML,
	}

	task := NewExtractContentTask("a", store, pages, feed.NewContentExtractor(), nil, 0)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected per-item failures to be absorbed, got %v", err)
	}

	if !strings.Contains(store.items[0].Content, "main content of the page") {
		t.Errorf("Expected extracted content for item 1, got %q", store.items[0].Content)
	}
	if store.items[1].Content != "" {
		t.Error("Expected failed item to stay empty")
	}
	if store.items[2].Content != "<p>already full</p>" {
		t.Error("Expected item with content to be left alone")
	}
	if store.items[3].Content != "" {
		t.Error("Expected other feed's item to be skipped")
	}
}

func TestExtractContentTaskAllFeeds(t *testing.T) {
	store := newMockFeedStore()
	store.items = []feed.Item{
		{ID: "1", FeedID: "a", Link: "https://e.com/1"},
		{ID: "4", FeedID: "b", Link: "https://e.com/4"},
	}
	pages := mockPages{
		"https://e.com/1": articleHTML,
		"https://e.com/4": articleHTML,
	}

	if err := NewExtractContentTask("", store, pages, feed.NewContentExtractor(), nil, 0).Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, item := range store.items {
		if item.Content == "" {
			t.Errorf("Expected content for item %s", item.ID)
		}
	}
}

// countingPages fails every fetch and records how often each URL was asked for.
type countingPages struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingPages) FetchPage(ctx context.Context, url string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[url]++
	return nil, fmt.Errorf("HTTP error: 404")
}

func TestExtractContentTaskRotatesFailingItems(t *testing.T) {
	store := newMockFeedStore()
	total := defaultExtractBatch + 5
	for i := 0; i < total; i++ {
		store.items = append(store.items, feed.Item{
			ID:     fmt.Sprintf("item-%d", i),
			FeedID: "a",
			Link:   fmt.Sprintf("https://e.com/%d", i),
		})
	}
	pages := &countingPages{calls: map[string]int{}}
	attempts := NewExtractionAttempts()

	run := func() {
		t.Helper()
		task := NewExtractContentTask("", store, pages, feed.NewContentExtractor(), attempts, 0)
		if err := task.Execute(context.Background()); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	}

	run()
	run()
	for i := 0; i < total; i++ {
		if calls := pages.calls[fmt.Sprintf("https://e.com/%d", i)]; calls == 0 {
			t.Errorf("Expected item %d to be tried within two runs", i)
		}
	}

	for i := 0; i < 10; i++ {
		run()
	}
	for i := 0; i < total; i++ {
		url := fmt.Sprintf("https://e.com/%d", i)
		if calls := pages.calls[url]; calls != maxExtractAttempts {
			t.Errorf("Expected %d attempts on %s, got %d", maxExtractAttempts, url, calls)
		}
		if count := attempts.Count(fmt.Sprintf("item-%d", i)); count != maxExtractAttempts {
			t.Errorf("Expected failure count %d for item %d, got %d", maxExtractAttempts, i, count)
		}
	}
}

func TestExtractionAttemptsResetOnSuccess(t *testing.T) {
	store := newMockFeedStore()
	store.items = []feed.Item{{ID: "1", FeedID: "a", Link: "https://e.com/1"}}
	attempts := NewExtractionAttempts()

	failing := NewExtractContentTask("", store, mockPages{}, feed.NewContentExtractor(), attempts, 0)
	if err := failing.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if attempts.Count("1") != 1 {
		t.Fatalf("Expected one failure, got %d", attempts.Count("1"))
	}

	working := NewExtractContentTask("", store, mockPages{"https://e.com/1": articleHTML}, feed.NewContentExtractor(), attempts, 0)
	if err := working.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if attempts.Count("1") != 0 {
		t.Errorf("Expected failures forgotten after success, got %d", attempts.Count("1"))
	}
}
