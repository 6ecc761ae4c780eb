package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrFetch is the only error Fetch returns. Callers cannot tell a timeout
// from a 404 and are not meant to.
var ErrFetch = errors.New("feed document could not be fetched")

const (
	feedAccept   = "application/rss+xml, application/xml, text/xml, application/atom+xml"
	maxBodyBytes = 10 << 20
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

var _ Fetcher = (*HTTPFetcher)(nil)

type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

func NewHTTPFetcher(client *http.Client, userAgent string, timeout time.Duration) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{
		client:    client,
		userAgent: userAgent,
		timeout:   timeout,
	}
}

// Fetch retrieves a feed document. A blank body counts as a failure. It
// does not retry.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	data, err := f.get(ctx, url, feedAccept)
	if err == nil && len(bytes.TrimSpace(data)) == 0 {
		err = fmt.Errorf("empty response body")
	}
	if err != nil {
		slog.Debug("Feed fetch failed", "url", url, "error", err)
		return nil, ErrFetch
	}
	return data, nil
}

// FetchPage retrieves an HTML article page for content extraction.
// Unlike Fetch it keeps the underlying cause.
func (f *HTTPFetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	data, contentType, err := f.do(ctx, url, "text/html")
	if err != nil {
		return nil, err
	}
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, fmt.Errorf("content type is not HTML: %s", contentType)
	}
	return data, nil
}

func (f *HTTPFetcher) get(ctx context.Context, url, accept string) ([]byte, error) {
	data, _, err := f.do(ctx, url, accept)
	return data, err
}

func (f *HTTPFetcher) do(ctx context.Context, url, accept string) ([]byte, string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", accept)
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}
