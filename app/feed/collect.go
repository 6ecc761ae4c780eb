package feed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/mmcdole/gofeed/rss"
	"github.com/samber/lo"
)

// rawItem matches RSS item children by local name, whatever their namespace.
type rawItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	Encoded     string   `xml:"encoded"`
	Author      string   `xml:"author"`
	Creator     string   `xml:"creator"`
	PubDate     string   `xml:"pubDate"`
	Categories  []string `xml:"category"`
}

func (r rawItem) toRSS() *rss.Item {
	item := &rss.Item{
		Title:       r.Title,
		Link:        r.Link,
		Description: r.Description,
		Content:     r.Encoded,
		Author:      r.Author,
		PubDate:     r.PubDate,
		Categories: lo.Map(r.Categories, func(c string, _ int) *rss.Category {
			return &rss.Category{Value: c}
		}),
	}
	if creator := strings.TrimSpace(r.Creator); creator != "" {
		item.DublinCoreExt = &ext.DublinCoreExtension{Creator: []string{creator}}
	}
	return item
}

// collectRSSItems reads every item element in document order, wherever it
// sits. The title is taken from a channel or feed element.
func collectRSSItems(data []byte) (*Metadata, []*rss.Item, error) {
	decoder := newDecoder(data)
	metadata := &Metadata{Dialect: DialectRSS}

	var items []*rss.Item
	var stack []string
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		switch el := token.(type) {
		case xml.StartElement:
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}

			if el.Name.Local == "item" {
				var raw rawItem
				if err := decoder.DecodeElement(&raw, &el); err != nil {
					return nil, nil, fmt.Errorf("failed to decode item: %w", err)
				}
				items = append(items, raw.toRSS())
				continue
			}

			if el.Name.Local == "title" && metadata.Title == "" && (parent == "channel" || parent == "feed") {
				var title string
				if err := decoder.DecodeElement(&title, &el); err != nil {
					return nil, nil, fmt.Errorf("failed to decode title: %w", err)
				}
				metadata.Title = strings.TrimSpace(title)
				continue
			}

			stack = append(stack, el.Name.Local)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	return metadata, items, nil
}
