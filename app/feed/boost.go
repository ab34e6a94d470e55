package feed

import (
	"cmp"
	"fmt"
	"slices"
)

// BoostID derives a stable identity so repeated fetches of the same boost
// render under the same key.
func BoostID(row CampaignBoostRow) string {
	return fmt.Sprintf("boost-%s-%s", row.CampaignID, cmp.Or(row.CreativeID, row.EventID))
}

// NormalizeBoosts converts raw campaign rows into feed items ordered by
// descending priority. Rows without a target event are dropped and duplicate
// ids keep their first occurrence.
func NormalizeBoosts(rows []CampaignBoostRow) []Item {
	items := make([]Item, 0, len(rows))
	seen := make(map[string]bool, len(rows))

	for _, row := range rows {
		if row.EventID == "" {
			continue
		}
		id := BoostID(row)
		if seen[id] {
			continue
		}
		seen[id] = true
		items = append(items, boostItem(id, row))
	}

	slices.SortStableFunc(items, func(a, b Item) int {
		return cmp.Compare(b.Promotion.Priority, a.Promotion.Priority)
	})

	return items
}

func boostItem(id string, row CampaignBoostRow) Item {
	item := Item{
		ID:            id,
		Kind:          KindEvent,
		SortTimestamp: row.Event.StartsAt,
		Title:         row.Event.Title,
		CoverImage:    row.Event.CoverImage,
		Location:      row.Event.Location,
		Description:   row.Event.Description,
		Author:        row.Event.Host,
		Distance:      row.Event.Distance,
		Promotion: &Promotion{
			CampaignID:      row.CampaignID,
			CreativeID:      row.CreativeID,
			EventID:         row.EventID,
			Priority:        row.Priority,
			RateModel:       row.RateModel,
			RemainingBudget: row.RemainingBudget,
			FrequencyCap:    row.FrequencyCap,
			Objective:       row.Objective,
		},
	}

	if row.Creative != nil && len(row.Creative.MediaURLs) > 0 {
		item.Kind = KindPost
		item.Description = cmp.Or(row.Creative.Caption, item.Description)
		item.Author = row.Creative.Author
		item.Post = &PostFields{MediaURLs: slices.Clone(row.Creative.MediaURLs)}
		return item
	}

	item.Event = &EventFields{
		StartsAt: row.Event.StartsAt,
		EndsAt:   row.Event.EndsAt,
		Venue:    row.Event.Venue,
	}
	return item
}

// TargetEventID is the detail page a boosted item routes to.
func TargetEventID(item Item) string {
	if item.Promotion == nil {
		return item.ID
	}
	return item.Promotion.EventID
}
