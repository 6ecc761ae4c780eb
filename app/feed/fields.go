package feed

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
	"github.com/samber/lo"
)

// Canonical item fields
const (
	fieldTitle       = "title"
	fieldLink        = "link"
	fieldDescription = "description"
	fieldContent     = "content"
	fieldAuthor      = "author"
)

// fieldTable maps a canonical field to an ordered list of source selectors.
// The first selector yielding a non-empty (trimmed) value wins.
type fieldTable[T any] map[string][]func(T) string

func (t fieldTable[T]) get(field string, entry T) string {
	for _, source := range t[field] {
		if value := strings.TrimSpace(source(entry)); value != "" {
			return value
		}
	}
	return ""
}

// dateTable is an ordered list of date selectors; the first one that
// yields a parseable date wins.
type dateTable[T any] []func(T) *time.Time

func (t dateTable[T]) first(entry T) *time.Time {
	for _, source := range t {
		if parsed := source(entry); parsed != nil {
			return parsed
		}
	}
	return nil
}

var rssFields = fieldTable[*rss.Item]{
	fieldTitle:       {rssTitle},
	fieldLink:        {rssLink},
	fieldDescription: {rssDescription},
	fieldContent:     {rssContentEncoded, rssDescription},
	fieldAuthor:      {rssAuthor, rssCreator},
}

var rssDates = dateTable[*rss.Item]{
	func(i *rss.Item) *time.Time { return parseDate(i.PubDateParsed, i.PubDate) },
}

func rssTitle(i *rss.Item) string          { return i.Title }
func rssLink(i *rss.Item) string           { return i.Link }
func rssDescription(i *rss.Item) string    { return i.Description }
func rssContentEncoded(i *rss.Item) string { return i.Content }
func rssAuthor(i *rss.Item) string         { return i.Author }

// rssCreator reads dc:creator.
func rssCreator(i *rss.Item) string {
	if i.DublinCoreExt == nil || len(i.DublinCoreExt.Creator) == 0 {
		return ""
	}
	return i.DublinCoreExt.Creator[0]
}

// rssCategories keeps document order; no categories at all is nil, not empty.
func rssCategories(i *rss.Item) []string {
	categories := lo.FilterMap(i.Categories, func(c *rss.Category, _ int) (string, bool) {
		if c == nil {
			return "", false
		}
		value := strings.TrimSpace(c.Value)
		return value, value != ""
	})
	if len(categories) == 0 {
		return nil
	}
	return categories
}

var atomFields = fieldTable[*atom.Entry]{
	fieldTitle:       {atomTitle},
	fieldLink:        {atomEntryLink},
	fieldDescription: {atomSummary},
	fieldContent:     {atomContent, atomSummary},
	fieldAuthor:      {atomAuthorName},
}

var atomDates = dateTable[*atom.Entry]{
	func(e *atom.Entry) *time.Time { return parseDate(e.PublishedParsed, e.Published) },
	func(e *atom.Entry) *time.Time { return parseDate(e.UpdatedParsed, e.Updated) },
}

func atomTitle(e *atom.Entry) string   { return e.Title }
func atomSummary(e *atom.Entry) string { return e.Summary }

func atomContent(e *atom.Entry) string {
	if e.Content == nil {
		return ""
	}
	return e.Content.Value
}

func atomEntryLink(e *atom.Entry) string {
	return atomLink(e.Links)
}

// atomLink prefers rel="alternate" and falls back to the first link.
func atomLink(links []*atom.Link) string {
	links = lo.Compact(links)
	if len(links) == 0 {
		return ""
	}
	if alternate, ok := lo.Find(links, func(l *atom.Link) bool { return l.Rel == "alternate" }); ok {
		return strings.TrimSpace(alternate.Href)
	}
	return strings.TrimSpace(links[0].Href)
}

// atomAuthorName reads author > name of the first author that has one.
func atomAuthorName(e *atom.Entry) string {
	for _, author := range e.Authors {
		if author != nil && strings.TrimSpace(author.Name) != "" {
			return author.Name
		}
	}
	return ""
}
