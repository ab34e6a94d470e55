package feed

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateRSS(t *testing.T) {
	generator := NewGenerator()

	builtAt := time.Date(2026, 10, 3, 12, 0, 0, 0, time.UTC)
	channel := Channel{
		Title:     "Test Feed",
		Link:      "https://example.com",
		SelfLink:  "https://example.com/feed.xml",
		Generator: "Event-Feed/test",
		BuiltAt:   builtAt,
	}

	items := []Item{
		{
			ID:            "event-1",
			Kind:          KindEvent,
			SortTimestamp: "2026-10-01T10:00:00Z",
			Title:         "Rooftop Jazz",
			Description:   "Live music",
			Location:      "Brooklyn",
			Author:        Author{ID: "venue", Name: "The Venue"},
			Event:         &EventFields{StartsAt: "2026-10-04T20:00:00Z", EndsAt: "2026-10-04T23:00:00Z", Venue: "The Roof"},
		},
		{
			ID:            "post-1",
			Kind:          KindPost,
			SortTimestamp: "2026-10-01T09:00:00Z",
			Title:         "Clip",
			Post:          &PostFields{MediaURLs: []string{"https://cdn.example.com/clip.mp4", "https://cdn.example.com/still.jpg"}},
		},
	}

	rss, err := generator.Run(channel, items)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`xmlns:ev="http://purl.org/rss/1.0/modules/event/"`,
		"<title>Test Feed</title>",
		`<atom:link href="https://example.com/feed.xml" rel="self" type="application/rss+xml" />`,
		"<lastBuildDate>" + builtAt.In(time.Local).Format(time.RFC1123Z) + "</lastBuildDate>",
		"<generator>Event-Feed/test</generator>",
		`<guid isPermaLink="false">event-1</guid>`,
		"<ev:startdate>2026-10-04T20:00:00Z</ev:startdate>",
		"<ev:enddate>2026-10-04T23:00:00Z</ev:enddate>",
		"<ev:location>The Roof</ev:location>",
		"<author>The Venue</author>",
		"<category>event</category>",
		"<category>post</category>",
		`<enclosure url="https://cdn.example.com/clip.mp4" length="0" type="video/mp4" />`,
		`<enclosure url="https://cdn.example.com/still.jpg" length="0" type="image/jpeg" />`,
		"<pubDate>" + time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC).Format(time.RFC1123Z) + "</pubDate>",
	}

	for _, fragment := range expected {
		if !strings.Contains(rss, fragment) {
			t.Errorf("Expected RSS to contain %q", fragment)
		}
	}

	if strings.Count(rss, "<item>") != 2 {
		t.Errorf("Expected 2 items, got %d", strings.Count(rss, "<item>"))
	}
	if !strings.Contains(rss, "<description>No description available</description>") {
		t.Error("Expected placeholder description for the post")
	}
}

func TestGenerateMarksPromotedItems(t *testing.T) {
	generator := NewGenerator()

	item := Item{
		ID:        "boost-c1-e1",
		Kind:      KindEvent,
		Title:     "Promoted",
		Promotion: &Promotion{CampaignID: "c1", EventID: "e1"},
		Event:     &EventFields{},
	}

	rss, err := generator.Run(Channel{}, []Item{item})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.Contains(rss, "<category>promoted</category>") {
		t.Error("Expected promoted category")
	}
	if strings.Contains(rss, "<pubDate>") {
		t.Error("Expected no pubDate without a sort timestamp")
	}
	if !strings.Contains(rss, "<title>Event Feed</title>") {
		t.Error("Expected default channel title")
	}
}

func TestGenerateWithSpecialCharacters(t *testing.T) {
	generator := NewGenerator()

	item := Item{
		ID:          "a&b",
		Kind:        KindEvent,
		Title:       `Tom & Jerry's "Show" <live>`,
		Description: "1 < 2",
	}

	rss, err := generator.Run(Channel{Title: "A & B"}, []Item{item})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.Contains(rss, "<title>A &amp; B</title>") {
		t.Error("Expected escaped channel title")
	}
	if !strings.Contains(rss, "Tom &amp; Jerry&#39;s &#34;Show&#34; &lt;live&gt;") {
		t.Errorf("Expected escaped item title, got: %s", rss)
	}
	if !strings.Contains(rss, "<description>1 &lt; 2</description>") {
		t.Error("Expected escaped description")
	}
	if !strings.Contains(rss, `<guid isPermaLink="false">a&amp;b</guid>`) {
		t.Error("Expected escaped guid")
	}
}

func TestGenerateWithEmptyItems(t *testing.T) {
	generator := NewGenerator()

	rss, err := generator.Run(Channel{Title: "Empty"}, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if strings.Contains(rss, "<item>") {
		t.Error("Expected no items")
	}
	if !strings.HasSuffix(rss, "</channel>\n</rss>") {
		t.Error("Expected well-formed closing tags")
	}
}
