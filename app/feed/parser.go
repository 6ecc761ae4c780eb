package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
	"golang.org/x/text/encoding/htmlindex"
)

const defaultItemTitle = "No Title"

type Parser struct {
	now func() time.Time
}

func NewParser() *Parser {
	return &Parser{
		now: time.Now,
	}
}

// Run never fails: a document that is not well-formed XML, or whose
// dialect parser rejects it, yields empty metadata and no items.
func (p *Parser) Run(data []byte, feedID, feedTitle string) (*Metadata, []Item) {
	dialect, root, err := detectDialect(data)
	if err != nil {
		slog.Warn("Feed document is not well-formed XML", "feed", feedID, "error", err)
		return &Metadata{}, nil
	}

	if dialect == DialectNone {
		slog.Debug("Feed document has no entries", "feed", feedID, "root", root)
		// Still read the channel metadata of an empty feed.
		switch root {
		case "rss", "RDF":
			dialect = DialectRSS
		case "feed":
			dialect = DialectAtom
		default:
			return &Metadata{}, nil
		}
	}

	if dialect == DialectRSS {
		return p.runRSS(data, feedID, feedTitle)
	}
	return p.runAtom(data, feedID, feedTitle)
}

func (p *Parser) runRSS(data []byte, feedID, feedTitle string) (*Metadata, []Item) {
	// A fresh gofeed parser per document: it keeps per-parse state on the struct.
	doc, err := (&rss.Parser{}).Parse(bytes.NewReader(data))
	if err != nil {
		// gofeed only accepts rss/RDF roots; item nodes elsewhere are still entries.
		slog.Debug("RSS parser rejected document, collecting items directly", "feed", feedID, "error", err)
		metadata, entries, err := collectRSSItems(data)
		if err != nil {
			slog.Warn("Failed to parse RSS document", "feed", feedID, "error", err)
			return &Metadata{Dialect: DialectRSS}, nil
		}
		return metadata, p.rssItems(entries, feedID, feedTitle)
	}

	metadata := &Metadata{
		Dialect:     DialectRSS,
		Title:       strings.TrimSpace(doc.Title),
		Link:        strings.TrimSpace(doc.Link),
		Description: strings.TrimSpace(doc.Description),
	}

	return metadata, p.rssItems(doc.Items, feedID, feedTitle)
}

func (p *Parser) rssItems(entries []*rss.Item, feedID, feedTitle string) []Item {
	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		item := Item{
			Title:       rssFields.get(fieldTitle, entry),
			Link:        rssFields.get(fieldLink, entry),
			Description: rssFields.get(fieldDescription, entry),
			Content:     rssFields.get(fieldContent, entry),
			Author:      rssFields.get(fieldAuthor, entry),
			Categories:  rssCategories(entry),
			PubDate:     p.orNow(rssDates.first(entry)),
		}
		items = append(items, p.stamp(item, feedID, feedTitle))
	}
	return items
}

func (p *Parser) runAtom(data []byte, feedID, feedTitle string) (*Metadata, []Item) {
	doc, err := (&atom.Parser{}).Parse(bytes.NewReader(data))
	if err != nil {
		slog.Warn("Failed to parse Atom document", "feed", feedID, "error", err)
		return &Metadata{Dialect: DialectAtom}, nil
	}

	metadata := &Metadata{
		Dialect:     DialectAtom,
		Title:       strings.TrimSpace(doc.Title),
		Link:        atomLink(doc.Links),
		Description: strings.TrimSpace(doc.Subtitle),
	}

	items := make([]Item, 0, len(doc.Entries))
	for _, entry := range doc.Entries {
		if entry == nil {
			continue
		}
		item := Item{
			Title:       atomFields.get(fieldTitle, entry),
			Link:        atomFields.get(fieldLink, entry),
			Description: atomFields.get(fieldDescription, entry),
			Content:     atomFields.get(fieldContent, entry),
			Author:      atomFields.get(fieldAuthor, entry),
			PubDate:     p.orNow(atomDates.first(entry)),
		}
		items = append(items, p.stamp(item, feedID, feedTitle))
	}

	return metadata, items
}

func (p *Parser) stamp(item Item, feedID, feedTitle string) Item {
	if item.Title == "" {
		item.Title = defaultItemTitle
	}
	item.ID = DeriveItemID(feedID, item.Link)
	item.FeedID = feedID
	item.FeedTitle = feedTitle
	item.IsRead = false
	return item
}

func (p *Parser) orNow(t *time.Time) time.Time {
	if t == nil {
		return p.now()
	}
	return *t
}

// detectDialect scans the whole document once. Any syntax error makes the
// document unusable. RSS entry nodes win over Atom ones wherever they appear.
func detectDialect(data []byte) (Dialect, string, error) {
	decoder := newDecoder(data)

	var hasItem, hasEntry bool
	var root string
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return DialectNone, "", err
		}

		if start, ok := token.(xml.StartElement); ok {
			if root == "" {
				root = start.Name.Local
			}
			switch start.Name.Local {
			case "item":
				hasItem = true
			case "entry":
				hasEntry = true
			}
		}
	}

	if root == "" {
		return DialectNone, "", fmt.Errorf("document has no root element")
	}
	if hasItem {
		return DialectRSS, root, nil
	}
	if hasEntry {
		return DialectAtom, root, nil
	}
	return DialectNone, root, nil
}

func newDecoder(data []byte) *xml.Decoder {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = true
	decoder.Entity = xml.HTMLEntity
	decoder.CharsetReader = charsetReader
	return decoder
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// parseDate falls back to dateparse for layouts gofeed does not know.
func parseDate(parsed *time.Time, raw string) *time.Time {
	if parsed != nil {
		return parsed
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return nil
	}
	return &t
}
