package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"
)

// Generator renders a subscribed feed back out as RSS 2.0.
type Generator struct {
	baseURL string
	version string
}

func NewGenerator(baseURL, version string) *Generator {
	return &Generator{
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
	}
}

// Run expects items already in display order.
func (g *Generator) Run(feed Feed, items []Item) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", feed.Title, 4)
	g.writeElement(&buf, "link", feed.URL, 4)
	description := feed.Description
	if description == "" {
		description = fmt.Sprintf("Items from %s", feed.URL)
	}
	g.writeElement(&buf, "description", description, 4)

	if g.baseURL != "" {
		selfLink := fmt.Sprintf("%s/feeds/%s", g.baseURL, feed.ID)
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(selfLink)))
	}

	lastBuildDate := time.Now().In(time.Local)
	if feed.LastFetched != nil {
		lastBuildDate = *feed.LastFetched
	}
	if len(items) > 0 && !items[0].PubDate.IsZero() {
		lastBuildDate = items[0].PubDate
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("RSS-Reader/%s", cmp.Or(g.version, "dev")), 4)

	for _, item := range items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, item Item) {
	buf.WriteString("    <item>\n")

	guid := cmp.Or(item.Link, item.ID)
	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(guid)))
	xml.EscapeText(buf, []byte(guid))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", item.Title, 6)
	g.writeElement(buf, "link", item.Link, 6)
	g.writeElement(buf, "description", cmp.Or(item.Description, "No description available"), 6)

	if item.Content != "" && item.Content != item.Description {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(strings.ReplaceAll(item.Content, "]]>", "]]]]><![CDATA[>"))
		buf.WriteString("]]></content:encoded>\n")
	}

	g.writeElement(buf, "pubDate", item.PubDate.Format(time.RFC1123Z), 6)
	g.writeElement(buf, "author", item.Author, 6)

	for _, category := range item.Categories {
		g.writeElement(buf, "category", category, 6)
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
