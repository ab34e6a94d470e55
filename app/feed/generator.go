package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"mime"
	"path"
	"time"
)

// Channel describes the RSS channel a rendered feed is published under.
type Channel struct {
	Title       string
	Link        string
	SelfLink    string
	Description string
	Generator   string
	BuiltAt     time.Time
}

// Generator writes rendered items as RSS 2.0. Events carry the RSS event
// module so other aggregators can import them again.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Run(channel Channel, items []Item) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:ev="http://purl.org/rss/1.0/modules/event/">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", cmp.Or(channel.Title, "Event Feed"), 4)
	g.writeElement(&buf, "link", channel.Link, 4)
	g.writeElement(&buf, "description", cmp.Or(channel.Description, "Events and posts near you"), 4)

	if channel.SelfLink != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(channel.SelfLink)))
	}

	builtAt := channel.BuiltAt
	if builtAt.IsZero() {
		builtAt = time.Now()
	}
	g.writeElement(&buf, "lastBuildDate", builtAt.In(time.Local).Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", channel.Generator, 4)

	for _, item := range items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, item Item) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(item.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", item.Title, 6)
	g.writeElement(buf, "description", cmp.Or(item.Description, "No description available"), 6)

	if published, ok := parseTimestamp(item.SortTimestamp); ok {
		g.writeElement(buf, "pubDate", published.Format(time.RFC1123Z), 6)
	}

	g.writeElement(buf, "author", item.Author.Name, 6)
	g.writeElement(buf, "category", string(item.Kind), 6)
	if item.IsBoosted() {
		g.writeElement(buf, "category", "promoted", 6)
	}

	if item.Event != nil {
		g.writeElement(buf, "ev:startdate", item.Event.StartsAt, 6)
		g.writeElement(buf, "ev:enddate", item.Event.EndsAt, 6)
		g.writeElement(buf, "ev:location", cmp.Or(item.Event.Venue, item.Location), 6)
	}

	if item.Post != nil {
		for _, mediaURL := range item.Post.MediaURLs {
			mediaType := g.mediaType(mediaURL)
			if mediaType == "" {
				continue
			}
			// RSS 2.0 requires length; 0 means unknown.
			buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"0\" type=\"%s\" />\n",
				html.EscapeString(mediaURL),
				html.EscapeString(mediaType)))
		}
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

func (g *Generator) mediaType(mediaURL string) string {
	if IsVideoURL(mediaURL) {
		return "video/mp4"
	}
	return mime.TypeByExtension(path.Ext(mediaURL))
}
