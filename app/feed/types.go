package feed

import (
	"time"
)

type Kind string

const (
	KindEvent Kind = "event"
	KindPost  Kind = "post"
)

// Item is a renderable unit of the feed. Exactly one of Event or Post is set,
// matching Kind. Items are treated as immutable values once built.
type Item struct {
	ID            string   `json:"id"`
	Kind          Kind     `json:"kind"`
	SortTimestamp string   `json:"sort_timestamp"` // RFC 3339, organic ordering only
	Title         string   `json:"title"`
	CoverImage    string   `json:"cover_image,omitempty"`
	Location      string   `json:"location,omitempty"`
	Description   string   `json:"description,omitempty"`
	Author        Author   `json:"author"`
	Distance      *float64 `json:"distance,omitempty"`

	Event     *EventFields `json:"event,omitempty"`
	Post      *PostFields  `json:"post,omitempty"`
	Promotion *Promotion   `json:"promotion,omitempty"`
}

type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type EventFields struct {
	StartsAt string `json:"starts_at,omitempty"`
	EndsAt   string `json:"ends_at,omitempty"`
	Venue    string `json:"venue,omitempty"`
}

type PostFields struct {
	MediaURLs []string `json:"media_urls"`
	Metrics   Metrics  `json:"metrics"`
}

type Metrics struct {
	Likes          int  `json:"likes"`
	Comments       int  `json:"comments"`
	ViewerHasLiked bool `json:"viewer_has_liked"`
	ViewerHasSaved bool `json:"viewer_has_saved"`
}

// Promotion marks an item as boosted.
type Promotion struct {
	CampaignID      string  `json:"campaign_id"`
	CreativeID      string  `json:"creative_id,omitempty"`
	EventID         string  `json:"event_id"`
	Priority        int     `json:"priority"`
	RateModel       string  `json:"rate_model,omitempty"`
	RemainingBudget float64 `json:"remaining_budget"`
	FrequencyCap    int     `json:"frequency_cap,omitempty"`
	Objective       string  `json:"objective,omitempty"`
}

func (i Item) IsBoosted() bool {
	return i.Promotion != nil
}

// HasVideo reports whether the item carries playable media.
func (i Item) HasVideo() bool {
	if i.Post == nil {
		return false
	}
	for _, u := range i.Post.MediaURLs {
		if IsVideoURL(u) {
			return true
		}
	}
	return false
}

// EffectiveDate is the event start when present, else the sort timestamp.
// The boolean is false when neither parses.
func (i Item) EffectiveDate() (time.Time, bool) {
	if i.Event != nil && i.Event.StartsAt != "" {
		if t, ok := parseTimestamp(i.Event.StartsAt); ok {
			return t, true
		}
	}
	return parseTimestamp(i.SortTimestamp)
}

// Cursor is an opaque continuation token owned by the backend.
type Cursor string

type Page struct {
	Items      []Item `json:"items"`
	NextCursor Cursor `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// CampaignBoostRow is the raw promotional row as returned by the boost source.
type CampaignBoostRow struct {
	CampaignID      string         `json:"campaign_id"`
	CreativeID      string         `json:"creative_id,omitempty"`
	EventID         string         `json:"event_id,omitempty"`
	Priority        int            `json:"priority"`
	RateModel       string         `json:"rate_model,omitempty"`
	RemainingBudget float64        `json:"remaining_budget"`
	FrequencyCap    int            `json:"frequency_cap,omitempty"`
	Objective       string         `json:"objective,omitempty"`
	Event           BoostEvent     `json:"event"`
	Creative        *BoostCreative `json:"creative,omitempty"`
}

type BoostEvent struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	CoverImage  string   `json:"cover_image,omitempty"`
	Location    string   `json:"location,omitempty"`
	Venue       string   `json:"venue,omitempty"`
	StartsAt    string   `json:"starts_at,omitempty"`
	EndsAt      string   `json:"ends_at,omitempty"`
	Distance    *float64 `json:"distance,omitempty"`
	Host        Author   `json:"host"`
}

// BoostCreative is set when the campaign promotes a post-shaped creative.
type BoostCreative struct {
	Caption   string   `json:"caption,omitempty"`
	MediaURLs []string `json:"media_urls,omitempty"`
	Author    Author   `json:"author"`
}

// FilterState holds user-selected predicates. Empty collections match everything.
type FilterState struct {
	Dates        []string `json:"dates"`
	Locations    []string `json:"locations"`
	Categories   []string `json:"categories"`
	SearchRadius float64  `json:"search_radius"`
}

const (
	DateThisMonth   = "This Month"
	DateThisWeekend = "This Weekend"
	DateTonight     = "Tonight"
	DateHalloween   = "Halloween"
	DateNextWeek    = "Next Week"
	DateNextMonth   = "Next Month"

	LocationNearMe = "Near Me"

	// MaxSearchRadius disables radius filtering.
	MaxSearchRadius = 100
)

func DefaultFilterState() FilterState {
	return FilterState{SearchRadius: MaxSearchRadius}
}
