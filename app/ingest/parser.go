// Package ingest turns syndicated RSS/Atom calendars and post feeds into
// organic feed items.
package ingest

import (
	"bytes"
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/event-feed/app/feed"
	"github.com/lysyi3m/event-feed/app/source"
)

// eventNamespace is the prefix gofeed files RSS event module elements under
// (xmlns:ev="http://purl.org/rss/1.0/modules/event/").
const eventNamespace = "ev"

var trackingParams = []string{"fbclid", "gclid", "mc_cid", "mc_eid", "ref_src"}

type Metadata struct {
	Title       string
	Link        string
	Description string
	ImageURL    string
	Language    string
}

// Entry is one imported item plus the hash used to skip unchanged entries.
type Entry struct {
	Item        feed.Item
	Link        string
	ContentHash string
}

type Parser struct {
	gofeedParser *gofeed.Parser
	now          func() time.Time
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
		now:          time.Now,
	}
}

func (p *Parser) Run(data []byte, config *source.Config) (*Metadata, []Entry, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:       parsed.Title,
		Link:        parsed.Link,
		Description: parsed.Description,
		Language:    parsed.Language,
	}
	if parsed.Image != nil {
		metadata.ImageURL = parsed.Image.URL
	}

	entries := make([]Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, p.normalizeItem(item, config, metadata))
	}

	return metadata, entries, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item, config *source.Config, metadata *Metadata) Entry {
	link := p.normalizeURL(item.Link)
	guid := cmp.Or(item.GUID, link)

	published := p.now().UTC()
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed.UTC()
	}

	media, cover, hasVideo := p.extractMedia(item)

	normalized := feed.Item{
		ID:            p.generateID(config.Name, guid),
		Kind:          config.ItemKind(hasVideo),
		SortTimestamp: published.Format(time.RFC3339),
		Title:         strings.TrimSpace(item.Title),
		CoverImage:    cover,
		Location:      config.Location,
		Description:   strings.TrimSpace(item.Description),
		Author:        p.extractAuthor(item, config, metadata),
		Distance:      config.Distance,
	}

	switch normalized.Kind {
	case feed.KindPost:
		normalized.Post = &feed.PostFields{MediaURLs: media}
	default:
		normalized.Event = p.extractEvent(item, published)
		if venue := normalized.Event.Venue; normalized.Location == "" && venue != "" {
			normalized.Location = venue
		}
	}

	return Entry{
		Item:        normalized,
		Link:        link,
		ContentHash: p.generateContentHash(normalized.Title, link),
	}
}

func (p *Parser) extractEvent(item *gofeed.Item, published time.Time) *feed.EventFields {
	event := &feed.EventFields{StartsAt: published.Format(time.RFC3339)}

	if start := p.extension(item, "startdate"); start != "" {
		event.StartsAt = start
	}
	event.EndsAt = p.extension(item, "enddate")
	event.Venue = p.extension(item, "location")

	return event
}

func (p *Parser) extension(item *gofeed.Item, name string) string {
	namespace, ok := item.Extensions[eventNamespace]
	if !ok {
		return ""
	}
	values := namespace[name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

// extractMedia returns video and image enclosure URLs, the first image to use
// as cover and whether any enclosure is a video.
func (p *Parser) extractMedia(item *gofeed.Item) ([]string, string, bool) {
	var media []string
	var cover string
	var hasVideo bool

	if item.Image != nil {
		cover = item.Image.URL
	}

	for _, enclosure := range item.Enclosures {
		if enclosure == nil || enclosure.URL == "" {
			continue
		}
		switch {
		case strings.HasPrefix(enclosure.Type, "video/") || feed.IsVideoURL(enclosure.URL):
			media = append(media, enclosure.URL)
			hasVideo = true
		case strings.HasPrefix(enclosure.Type, "image/"):
			media = append(media, enclosure.URL)
			if cover == "" {
				cover = enclosure.URL
			}
		}
	}

	return media, cover, hasVideo
}

func (p *Parser) extractAuthor(item *gofeed.Item, config *source.Config, metadata *Metadata) feed.Author {
	if config.Author.Name != "" {
		return feed.Author{ID: cmp.Or(config.Author.ID, config.Name), Name: config.Author.Name}
	}

	var name string
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		name = cmp.Or(strings.TrimSpace(item.Authors[0].Name), strings.TrimSpace(item.Authors[0].Email))
	} else if item.Author != nil {
		name = cmp.Or(strings.TrimSpace(item.Author.Name), strings.TrimSpace(item.Author.Email))
	}

	if name == "" {
		return feed.Author{ID: config.Name, Name: cmp.Or(metadata.Title, config.Name)}
	}
	return feed.Author{ID: config.Name + ":" + strings.ToLower(name), Name: name}
}

// generateID is stable across imports for the same source entry.
func (p *Parser) generateID(sourceName, guid string) string {
	hash := sha256.Sum256([]byte(sourceName + "|" + guid))
	return hex.EncodeToString(hash[:])[:24]
}

func (p *Parser) generateContentHash(title, link string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|%s", title, link)))
	return hex.EncodeToString(hash[:])
}

// normalizeURL strips tracking parameters so the same entry shared through
// different campaigns hashes the same.
func (p *Parser) normalizeURL(raw string) string {
	if raw == "" {
		return raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return raw
	}

	query := parsed.Query()
	changed := false
	for key := range query {
		if strings.HasPrefix(strings.ToLower(key), "utm_") || p.isTrackingParam(key) {
			query.Del(key)
			changed = true
		}
	}
	if !changed {
		return raw
	}

	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func (p *Parser) isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	for _, param := range trackingParams {
		if key == param {
			return true
		}
	}
	return false
}
