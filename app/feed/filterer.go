package feed

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Filterer applies a FilterState to a rendered list. It never mutates the
// state or the items it is given.
type Filterer struct {
	now func() time.Time
}

func NewFilterer() *Filterer {
	return &Filterer{now: time.Now}
}

// NewFiltererAt pins the clock used for relative date windows.
func NewFiltererAt(now func() time.Time) *Filterer {
	return &Filterer{now: now}
}

func (f *Filterer) Run(items []Item, state FilterState) []Item {
	filtered := make([]Item, 0, len(items))
	for _, item := range items {
		if ok, _ := f.applyFilters(item, state); ok {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func (f *Filterer) Matches(item Item, state FilterState) bool {
	ok, _ := f.applyFilters(item, state)
	return ok
}

// Explain returns the reason an item is hidden, or an empty string.
func (f *Filterer) Explain(item Item, state FilterState) string {
	_, reason := f.applyFilters(item, state)
	return reason
}

func (f *Filterer) applyFilters(item Item, state FilterState) (bool, string) {
	if !f.matchesDates(item, state.Dates) {
		return false, fmt.Sprintf("Excluded by date filter: outside %v", state.Dates)
	}
	if !f.matchesLocations(item, state.Locations) {
		return false, fmt.Sprintf("Excluded by location filter: does not contain any of %v", state.Locations)
	}
	if !f.matchesCategories(item, state.Categories) {
		return false, fmt.Sprintf("Excluded by category filter: does not contain any of %v", state.Categories)
	}
	if !f.matchesRadius(item, state.SearchRadius) {
		return false, fmt.Sprintf("Excluded by radius filter: farther than %g", state.SearchRadius)
	}
	return true, ""
}

func (f *Filterer) matchesDates(item Item, dates []string) bool {
	if len(dates) == 0 {
		return true
	}

	when, ok := item.EffectiveDate()
	if !ok {
		// Items with missing metadata stay visible.
		return true
	}

	now := f.now()
	for _, label := range dates {
		if inDateWindow(label, when, now) {
			return true
		}
	}
	return false
}

func inDateWindow(label string, when, now time.Time) bool {
	when = when.In(now.Location())
	today := startOfDay(now)

	switch label {
	case DateThisMonth:
		return when.Year() == now.Year() && when.Month() == now.Month()
	case DateThisWeekend:
		friday := weekendStart(today)
		return within(when, friday, friday.AddDate(0, 0, 3))
	case DateTonight:
		return within(when, today, today.AddDate(0, 0, 1))
	case DateHalloween:
		return when.Month() == time.October && when.Day() == 31
	case DateNextWeek:
		start := today.AddDate(0, 0, 7)
		return within(when, start, start.AddDate(0, 0, 7))
	case DateNextMonth:
		next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
		return when.Year() == next.Year() && when.Month() == next.Month()
	default:
		return false
	}
}

// weekendStart is Friday 00:00 of the current weekend when today is Friday
// through Sunday, otherwise of the upcoming one.
func weekendStart(today time.Time) time.Time {
	switch wd := today.Weekday(); wd {
	case time.Friday:
		return today
	case time.Saturday:
		return today.AddDate(0, 0, -1)
	case time.Sunday:
		return today.AddDate(0, 0, -2)
	default:
		return today.AddDate(0, 0, int(time.Friday-wd))
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func (f *Filterer) matchesLocations(item Item, locations []string) bool {
	if len(locations) == 0 {
		return true
	}
	for _, location := range locations {
		if location == LocationNearMe {
			return true
		}
		if f.matchesFilter(item.Location, location) {
			return true
		}
	}
	return false
}

func (f *Filterer) matchesCategories(item Item, categories []string) bool {
	if len(categories) == 0 {
		return true
	}
	value := item.Description
	if item.Promotion != nil && item.Promotion.Objective != "" {
		value = item.Promotion.Objective + " " + item.Description
	}
	for _, category := range categories {
		if f.matchesFilter(value, category) {
			return true
		}
	}
	return false
}

func (f *Filterer) matchesRadius(item Item, radius float64) bool {
	if radius <= 0 || radius >= MaxSearchRadius || item.Distance == nil {
		return true
	}
	return *item.Distance <= radius
}

func (f *Filterer) matchesFilter(value, pattern string) bool {
	fold := cases.Fold()
	return strings.Contains(fold.String(value), fold.String(pattern))
}
