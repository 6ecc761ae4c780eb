package feed

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
)

var ErrNoContent = errors.New("no content extracted")

// ContentExtractor turns an article page into readable HTML.
type ContentExtractor struct{}

func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{}
}

// NeedsExtraction reports whether an item carries no body beyond its summary.
func (e *ContentExtractor) NeedsExtraction(item Item) bool {
	if item.Link == "" {
		return false
	}
	content := strings.TrimSpace(item.Content)
	return content == "" || content == strings.TrimSpace(item.Description)
}

// Run extracts the article body. pageURL, when parseable, is used to resolve
// relative links in the result.
func (e *ContentExtractor) Run(data []byte, pageURL string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	var base *url.URL
	if pageURL != "" {
		if parsed, err := url.Parse(pageURL); err == nil {
			base = parsed
		}
	}

	article, err := readability.FromReader(bytes.NewReader(data), base)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	content := strings.TrimSpace(article.Content)
	if content == "" {
		return "", ErrNoContent
	}

	slog.Debug("Content extracted",
		"url", pageURL,
		"title", article.Title,
		"content_length", len(content))

	return content, nil
}
