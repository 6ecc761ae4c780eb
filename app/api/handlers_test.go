package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-reader/app/feed"
	"github.com/lysyi3m/rss-reader/app/repository"
	"github.com/lysyi3m/rss-reader/app/storage"
	"github.com/lysyi3m/rss-reader/app/tasks"
)

type fetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

const alphaDoc = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Alpha</title>
<description>Alpha news</description>
<item><title>First</title><link>http://alpha.example/1</link><pubDate>Mon, 01 Jan 2024 00:00:00 GMT</pubDate></item>
<item><title>Second</title><link>http://alpha.example/2</link><pubDate>Tue, 02 Jan 2024 00:00:00 GMT</pubDate></item>
</channel></rss>`

type mockScheduler struct {
	mu        sync.Mutex
	extracted []string
}

func (m *mockScheduler) Start()                                     {}
func (m *mockScheduler) Stop()                                      {}
func (m *mockScheduler) EnqueueTask(task tasks.TaskInterface) error { return nil }
func (m *mockScheduler) EnqueueRefreshAll() int                     { return 0 }

func (m *mockScheduler) EnqueueExtractContent(feedID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extracted = append(m.extracted, feedID)
	return nil
}

type testServer struct {
	docs      map[string]string
	router    *gin.Engine
	repo      *repository.FeedRepository
	scheduler *mockScheduler
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()

	docs := map[string]string{
		"https://alpha.example/rss": alphaDoc,
	}
	fetcher := fetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		if ctx.Err() != nil {
			return nil, feed.ErrFetch
		}
		doc, ok := docs[url]
		if !ok {
			return nil, feed.ErrFetch
		}
		return []byte(doc), nil
	})

	repo := repository.NewFeedRepository(storage.NewMemoryStore("test"), fetcher, feed.NewParser())
	scheduler := &mockScheduler{}
	handler := NewHandler(repo, feed.NewGenerator("https://reader.example", "test"), scheduler, "test")

	return &testServer{
		docs:      docs,
		router:    NewServer(handler, apiKey),
		repo:      repo,
		scheduler: scheduler,
	}
}

func (s *testServer) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) addAlpha(t *testing.T) feed.Feed {
	t.Helper()
	added, ok := s.repo.AddFeed(context.Background(), "https://alpha.example/rss", "")
	if !ok {
		t.Fatal("Failed to add test feed")
	}
	return added
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestAddFeedEndpoint(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(http.MethodPost, "/api/feeds", `{"url":"https://alpha.example/rss"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	added := decode[feed.Feed](t, w)
	if added.Title != "Alpha" || added.Description != "Alpha news" {
		t.Errorf("Unexpected feed: %+v", added)
	}
	if len(s.repo.Items()) != 2 {
		t.Errorf("Expected 2 items, got %d", len(s.repo.Items()))
	}
	if len(s.scheduler.extracted) != 1 || s.scheduler.extracted[0] != added.ID {
		t.Errorf("Expected content extraction for %s, got %v", added.ID, s.scheduler.extracted)
	}
}

func TestAddFeedEndpointErrors(t *testing.T) {
	s := newTestServer(t, "")

	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing url", `{"title":"x"}`, http.StatusBadRequest},
		{"malformed json", `{"url":`, http.StatusBadRequest},
		{"unreachable", `{"url":"https://missing.example/rss"}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/feeds", tt.body)
			if w.Code != tt.code {
				t.Errorf("Expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
		})
	}

	if len(s.repo.Feeds()) != 0 {
		t.Errorf("Expected no feeds, got %d", len(s.repo.Feeds()))
	}
}

func TestListFeedsEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	s.addAlpha(t)

	w := s.do(http.MethodGet, "/api/feeds", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	resp := decode[struct {
		Feeds []feed.Feed `json:"feeds"`
		Total int         `json:"total"`
	}](t, w)
	if resp.Total != 1 || len(resp.Feeds) != 1 || resp.Feeds[0].Title != "Alpha" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestUpdateFeedEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	added := s.addAlpha(t)

	w := s.do(http.MethodPatch, "/api/feeds/"+added.ID, `{"title":"Renamed","isActive":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	updated := decode[feed.Feed](t, w)
	if updated.Title != "Renamed" || updated.IsActive {
		t.Errorf("Update not applied: %+v", updated)
	}
	if updated.Description != "Alpha news" {
		t.Errorf("Expected description to be untouched, got %q", updated.Description)
	}

	if w := s.do(http.MethodPatch, "/api/feeds/feed_missing", `{"title":"x"}`); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown feed, got %d", w.Code)
	}
}

func TestRemoveFeedEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	added := s.addAlpha(t)

	if w := s.do(http.MethodDelete, "/api/feeds/"+added.ID, ""); w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}
	if len(s.repo.Feeds()) != 0 || len(s.repo.Items()) != 0 {
		t.Errorf("Expected feed and items removed, got %d feeds and %d items", len(s.repo.Feeds()), len(s.repo.Items()))
	}

	if w := s.do(http.MethodDelete, "/api/feeds/"+added.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", w.Code)
	}
}

func TestRefreshEndpoints(t *testing.T) {
	s := newTestServer(t, "")
	added := s.addAlpha(t)

	w := s.do(http.MethodPost, "/api/feeds/"+added.ID+"/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if resp := decode[refreshResponse](t, w); resp.NewItems != 0 {
		t.Errorf("Expected no new items on unchanged document, got %d", resp.NewItems)
	}

	w = s.do(http.MethodPost, "/api/feeds/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if resp := decode[refreshResponse](t, w); resp.NewItems != 0 {
		t.Errorf("Expected no new items, got %d", resp.NewItems)
	}

	if w := s.do(http.MethodPost, "/api/feeds/feed_missing/refresh", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown feed, got %d", w.Code)
	}
}

func TestItemsEndpointFollowsPreferences(t *testing.T) {
	s := newTestServer(t, "")
	s.addAlpha(t)

	w := s.do(http.MethodGet, "/api/items", "")
	resp := decode[struct {
		Items []feed.Item `json:"items"`
		Total int         `json:"total"`
	}](t, w)
	if resp.Total != 2 {
		t.Fatalf("Expected 2 items, got %d", resp.Total)
	}
	if resp.Items[0].Title != "Second" {
		t.Errorf("Expected newest item first, got %q", resp.Items[0].Title)
	}

	first := resp.Items[0].ID
	if w := s.do(http.MethodPost, "/api/items/"+first+"/read", ""); w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}
	if w := s.do(http.MethodPatch, "/api/preferences", `{"showOnlyUnread":true}`); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w = s.do(http.MethodGet, "/api/items", "")
	resp = decode[struct {
		Items []feed.Item `json:"items"`
		Total int         `json:"total"`
	}](t, w)
	if resp.Total != 1 || resp.Items[0].Title != "First" {
		t.Errorf("Expected only the unread item, got %+v", resp.Items)
	}

	if w := s.do(http.MethodDelete, "/api/items/"+first+"/read", ""); w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}
	if got := len(s.repo.View()); got != 2 {
		t.Errorf("Expected 2 items after marking unread, got %d", got)
	}

	if w := s.do(http.MethodPost, "/api/items/missing/read", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown item, got %d", w.Code)
	}
}

func TestMarkAllReadEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	added := s.addAlpha(t)

	if w := s.do(http.MethodPost, "/api/items/read?feed="+added.ID, ""); w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}
	if unread := s.repo.Stats().Unread; unread != 0 {
		t.Errorf("Expected 0 unread, got %d", unread)
	}
}

func TestPreferencesEndpoints(t *testing.T) {
	s := newTestServer(t, "")

	prefs := decode[feed.Preferences](t, s.do(http.MethodGet, "/api/preferences", ""))
	if prefs.ViewType != feed.ViewList || prefs.SelectedFeeds == nil || prefs.ShowOnlyUnread {
		t.Errorf("Unexpected default preferences: %+v", prefs)
	}

	w := s.do(http.MethodPatch, "/api/preferences", `{"viewType":"grid","selectedFeeds":["feed_1"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	prefs = decode[feed.Preferences](t, w)
	if prefs.ViewType != feed.ViewGrid || len(prefs.SelectedFeeds) != 1 {
		t.Errorf("Update not applied: %+v", prefs)
	}

	if w := s.do(http.MethodPatch, "/api/preferences", `{"viewType":"table"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown view type, got %d", w.Code)
	}
	if s.repo.Preferences().ViewType != feed.ViewGrid {
		t.Error("Rejected update must not change preferences")
	}
}

func TestGetFeedRSS(t *testing.T) {
	s := newTestServer(t, "")
	added := s.addAlpha(t)

	w := s.do(http.MethodGet, "/feeds/"+added.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("Expected XML content type, got %q", ct)
	}
	if got := w.Header().Get("X-Feed-Items"); got != "2" {
		t.Errorf("Expected X-Feed-Items 2, got %q", got)
	}
	if w.Header().Get("X-Last-Updated") == "" {
		t.Error("Expected X-Last-Updated header")
	}

	body := w.Body.String()
	for _, want := range []string{"<title>Alpha</title>", "http://alpha.example/1", "https://reader.example/feeds/" + added.ID} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected RSS to contain %q", want)
		}
	}

	if w := s.do(http.MethodGet, "/feeds/feed_missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, "secret")
	s.addAlpha(t)

	w := s.do(http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 without API key, got %d", w.Code)
	}

	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" || resp["feeds"] != float64(1) || resp["unread"] != float64(2) {
		t.Errorf("Unexpected health response: %v", resp)
	}
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, "secret")

	tests := []struct {
		name    string
		headers []string
		code    int
	}{
		{"no key", nil, http.StatusUnauthorized},
		{"wrong key", []string{"X-API-Key", "nope"}, http.StatusUnauthorized},
		{"header key", []string{"X-API-Key", "secret"}, http.StatusOK},
		{"bearer token", []string{"Authorization", "Bearer secret"}, http.StatusOK},
		{"basic auth ignored", []string{"Authorization", "Basic secret"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodGet, "/api/feeds", "", tt.headers...)
			if w.Code != tt.code {
				t.Errorf("Expected %d, got %d", tt.code, w.Code)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, "secret")

	w := s.do(http.MethodOptions, "/api/feeds", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PATCH") {
		t.Errorf("Expected PATCH to be allowed, got %q", got)
	}
}

func TestStreamEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	s.addAlpha(t)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream", nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Stream request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Expected event stream, got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	next := func() []feed.Item {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("Failed to read event: %v", err)
			}
			if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data:"); ok {
				var items []feed.Item
				if err := json.Unmarshal([]byte(data), &items); err != nil {
					t.Fatalf("Failed to decode event %q: %v", data, err)
				}
				return items
			}
		}
	}

	initial := next()
	if len(initial) != 2 {
		t.Fatalf("Expected initial snapshot with 2 items, got %d", len(initial))
	}

	s.repo.MarkAsRead(initial[0].ID)

	updated := next()
	if len(updated) != 2 || !updated[0].IsRead {
		t.Errorf("Expected update with first item read, got %+v", updated)
	}
}

func TestFeedOperationsOutliveClientDisconnect(t *testing.T) {
	s := newTestServer(t, "")

	gone, cancel := context.WithCancel(context.Background())
	cancel()

	doGone := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body)).WithContext(gone)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		return w
	}

	w := doGone(http.MethodPost, "/api/feeds", `{"url":"https://alpha.example/rss"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected add to complete after disconnect, got %d: %s", w.Code, w.Body.String())
	}
	added := decode[feed.Feed](t, w)

	s.docs["https://alpha.example/rss"] = strings.Replace(alphaDoc, "</channel>",
		`<item><title>Third</title><link>http://alpha.example/3</link></item></channel>`, 1)

	w = doGone(http.MethodPost, "/api/feeds/"+added.ID+"/refresh", "")
	if resp := decode[refreshResponse](t, w); resp.NewItems != 1 {
		t.Errorf("Expected refresh to complete after disconnect, got %d new items", resp.NewItems)
	}

	s.docs["https://alpha.example/rss"] = strings.Replace(alphaDoc, "</channel>",
		`<item><title>Fourth</title><link>http://alpha.example/4</link></item></channel>`, 1)

	w = doGone(http.MethodPost, "/api/feeds/refresh", "")
	if resp := decode[refreshResponse](t, w); resp.NewItems != 1 {
		t.Errorf("Expected refresh-all to complete after disconnect, got %d new items", resp.NewItems)
	}
}

func TestHTTPServerShutdownEndsStreams(t *testing.T) {
	s := newTestServer(t, "")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	server := NewHTTPServer(ln.Addr().String(), s.router)
	go server.Serve(ln)

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/stream")
	if err != nil {
		t.Fatalf("Stream request failed: %v", err)
	}
	defer resp.Body.Close()

	if _, err := bufio.NewReader(resp.Body).ReadString('\n'); err != nil {
		t.Fatalf("Failed to read first event: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Expected open stream not to hold shutdown, took %v", elapsed)
	}
}
