package feed

import (
	"testing"
	"time"
)

// Wednesday 2026-10-14 15:00 UTC
var fixedNow = time.Date(2026, time.October, 14, 15, 0, 0, 0, time.UTC)

func testFilterer() *Filterer {
	return NewFiltererAt(func() time.Time { return fixedNow })
}

func distance(d float64) *float64 {
	return &d
}

func eventAt(id, startsAt string) Item {
	return Item{ID: id, Kind: KindEvent, Event: &EventFields{StartsAt: startsAt}}
}

func TestFilterer_EmptyStateMatchesEverything(t *testing.T) {
	filterer := testFilterer()

	items := []Item{
		eventAt("e1", "2020-01-01T00:00:00Z"),
		{ID: "p1", Kind: KindPost, Location: "Berlin", Distance: distance(500)},
		{ID: "p2", Kind: KindPost},
	}

	for _, state := range []FilterState{{}, DefaultFilterState()} {
		result := filterer.Run(items, state)
		if len(result) != 3 {
			t.Errorf("Expected 3 items for state %+v, got %d", state, len(result))
		}
	}
}

func TestFilterer_RadiusHundredIgnoresDistance(t *testing.T) {
	filterer := testFilterer()

	items := []Item{
		{ID: "far", Distance: distance(250)},
		{ID: "near", Distance: distance(3)},
	}

	result := filterer.Run(items, FilterState{SearchRadius: 100})

	if len(result) != 2 {
		t.Errorf("Expected 2 items, got %d", len(result))
	}
}

func TestFilterer_RadiusFiltersByDistance(t *testing.T) {
	filterer := testFilterer()

	items := []Item{
		{ID: "far", Distance: distance(25)},
		{ID: "edge", Distance: distance(10)},
		{ID: "unknown"},
	}

	result := filterer.Run(items, FilterState{SearchRadius: 10})

	if len(result) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(result))
	}
	if result[0].ID != "edge" || result[1].ID != "unknown" {
		t.Errorf("Expected edge and unknown, got %s and %s", result[0].ID, result[1].ID)
	}
}

func TestFilterer_LocationSubstringCaseInsensitive(t *testing.T) {
	filterer := testFilterer()

	items := []Item{
		{ID: "a", Location: "Brooklyn, New York"},
		{ID: "b", Location: "Austin, TX"},
		{ID: "c"},
	}

	result := filterer.Run(items, FilterState{Locations: []string{"new york"}})

	if len(result) != 1 || result[0].ID != "a" {
		t.Errorf("Expected only item a, got %v", ids(result))
	}
}

func TestFilterer_NearMeMatchesAll(t *testing.T) {
	filterer := testFilterer()

	items := []Item{
		{ID: "a", Location: "Brooklyn"},
		{ID: "b"},
	}

	result := filterer.Run(items, FilterState{Locations: []string{"Austin", LocationNearMe}})

	if len(result) != 2 {
		t.Errorf("Expected 2 items, got %d", len(result))
	}
}

func TestFilterer_CategoryMatchesObjectiveOrDescription(t *testing.T) {
	filterer := testFilterer()

	items := []Item{
		{ID: "desc", Description: "Live MUSIC all night"},
		{ID: "objective", Promotion: &Promotion{Objective: "music discovery"}},
		{ID: "none", Description: "Comedy open mic"},
	}

	result := filterer.Run(items, FilterState{Categories: []string{"Music"}})

	if len(result) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(result))
	}
	if filterer.Explain(items[2], FilterState{Categories: []string{"Music"}}) == "" {
		t.Error("Expected a reason for the hidden item")
	}
}

func TestFilterer_DateWindows(t *testing.T) {
	filterer := testFilterer()

	tests := []struct {
		label    string
		startsAt string
		expected bool
	}{
		{DateThisMonth, "2026-10-02T10:00:00Z", true},
		{DateThisMonth, "2026-11-02T10:00:00Z", false},
		{DateThisMonth, "2025-10-02T10:00:00Z", false},
		{DateTonight, "2026-10-14T22:30:00Z", true},
		{DateTonight, "2026-10-14T00:00:00Z", true},
		{DateTonight, "2026-10-15T00:00:00Z", false},
		{DateThisWeekend, "2026-10-16T00:00:00Z", true},
		{DateThisWeekend, "2026-10-18T23:59:59Z", true},
		{DateThisWeekend, "2026-10-19T00:00:00Z", false},
		{DateThisWeekend, "2026-10-15T20:00:00Z", false},
		{DateHalloween, "2019-10-31T21:00:00Z", true},
		{DateHalloween, "2026-10-30T21:00:00Z", false},
		{DateNextWeek, "2026-10-21T00:00:00Z", true},
		{DateNextWeek, "2026-10-27T23:00:00Z", true},
		{DateNextWeek, "2026-10-28T00:00:00Z", false},
		{DateNextWeek, "2026-10-20T23:00:00Z", false},
		{DateNextMonth, "2026-11-30T12:00:00Z", true},
		{DateNextMonth, "2026-12-01T12:00:00Z", false},
		{"Someday", "2026-10-14T12:00:00Z", false},
	}

	for _, tt := range tests {
		item := eventAt("e", tt.startsAt)
		got := filterer.Matches(item, FilterState{Dates: []string{tt.label}})
		if got != tt.expected {
			t.Errorf("%s with %s: expected %v, got %v", tt.label, tt.startsAt, tt.expected, got)
		}
	}
}

func TestFilterer_WeekendWhenTodayIsSaturday(t *testing.T) {
	saturday := time.Date(2026, time.October, 17, 12, 0, 0, 0, time.UTC)
	filterer := NewFiltererAt(func() time.Time { return saturday })

	friday := eventAt("fri", "2026-10-16T21:00:00Z")
	sunday := eventAt("sun", "2026-10-18T21:00:00Z")
	nextFriday := eventAt("next", "2026-10-23T21:00:00Z")

	state := FilterState{Dates: []string{DateThisWeekend}}
	if !filterer.Matches(friday, state) || !filterer.Matches(sunday, state) {
		t.Error("Expected the current weekend to match on Saturday")
	}
	if filterer.Matches(nextFriday, state) {
		t.Error("Expected the following weekend not to match")
	}
}

func TestFilterer_DateFallsBackToSortTimestamp(t *testing.T) {
	filterer := testFilterer()

	post := Item{ID: "p", Kind: KindPost, SortTimestamp: "2026-10-14T09:00:00Z"}
	old := Item{ID: "o", Kind: KindPost, SortTimestamp: "2026-01-14T09:00:00Z"}

	state := FilterState{Dates: []string{DateTonight}}
	if !filterer.Matches(post, state) {
		t.Error("Expected post dated today to match Tonight")
	}
	if filterer.Matches(old, state) {
		t.Error("Expected old post not to match Tonight")
	}
}

func TestFilterer_UnparseableDatePassesThrough(t *testing.T) {
	filterer := testFilterer()

	items := []Item{
		{ID: "none", Kind: KindPost},
		{ID: "garbage", Kind: KindEvent, SortTimestamp: "soon", Event: &EventFields{StartsAt: "tbd"}},
	}

	result := filterer.Run(items, FilterState{Dates: []string{DateHalloween}})

	if len(result) != 2 {
		t.Errorf("Expected items without dates to pass, got %d", len(result))
	}
}

func TestFilterer_Idempotent(t *testing.T) {
	filterer := testFilterer()

	items := []Item{
		{ID: "a", Location: "Brooklyn", Distance: distance(4), Description: "jazz"},
		{ID: "b", Location: "Queens", Distance: distance(40), Description: "jazz"},
		{ID: "c", Location: "Brooklyn", Description: "rock"},
		eventAt("d", "2026-10-14T20:00:00Z"),
	}
	state := FilterState{Locations: []string{"brooklyn"}, Categories: []string{"jazz"}, SearchRadius: 10}

	once := filterer.Run(items, state)
	twice := filterer.Run(once, state)

	if len(once) != len(twice) {
		t.Fatalf("Expected idempotent filtering, got %d then %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID {
			t.Errorf("Position %d: expected %s, got %s", i, once[i].ID, twice[i].ID)
		}
	}
}
