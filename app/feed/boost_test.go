package feed

import (
	"testing"
)

func TestNormalizeBoosts_DerivesStableIDs(t *testing.T) {
	rows := []CampaignBoostRow{
		{CampaignID: "c1", CreativeID: "cr1", EventID: "e1", Priority: 1},
		{CampaignID: "c2", EventID: "e2", Priority: 1},
	}

	first := NormalizeBoosts(rows)
	second := NormalizeBoosts(rows)

	if len(first) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(first))
	}
	if first[0].ID != "boost-c1-cr1" {
		t.Errorf("Expected id 'boost-c1-cr1', got '%s'", first[0].ID)
	}
	if first[1].ID != "boost-c2-e2" {
		t.Errorf("Expected id 'boost-c2-e2', got '%s'", first[1].ID)
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("Expected repeated normalization to keep id %s, got %s", first[i].ID, second[i].ID)
		}
	}
}

func TestNormalizeBoosts_DropsRowsWithoutEvent(t *testing.T) {
	rows := []CampaignBoostRow{
		{CampaignID: "c1", CreativeID: "cr1"},
		{CampaignID: "c2", EventID: "e2"},
	}

	result := NormalizeBoosts(rows)

	if len(result) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(result))
	}
	if result[0].Promotion.CampaignID != "c2" {
		t.Errorf("Expected campaign c2 to survive, got %s", result[0].Promotion.CampaignID)
	}
}

func TestNormalizeBoosts_DeduplicatesKeepingFirst(t *testing.T) {
	rows := []CampaignBoostRow{
		{CampaignID: "c1", EventID: "e1", Priority: 1, Event: BoostEvent{Title: "first"}},
		{CampaignID: "c1", EventID: "e1", Priority: 9, Event: BoostEvent{Title: "second"}},
	}

	result := NormalizeBoosts(rows)

	if len(result) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(result))
	}
	if result[0].Title != "first" {
		t.Errorf("Expected first occurrence to win, got '%s'", result[0].Title)
	}
}

func TestNormalizeBoosts_StablePriorityOrder(t *testing.T) {
	rows := []CampaignBoostRow{
		{CampaignID: "a", EventID: "e1", Priority: 1},
		{CampaignID: "b", EventID: "e2", Priority: 5},
		{CampaignID: "c", EventID: "e3", Priority: 1},
		{CampaignID: "d", EventID: "e4", Priority: 5},
	}

	result := NormalizeBoosts(rows)

	expected := []string{"b", "d", "a", "c"}
	for i, campaign := range expected {
		if result[i].Promotion.CampaignID != campaign {
			t.Errorf("Position %d: expected campaign %s, got %s", i, campaign, result[i].Promotion.CampaignID)
		}
	}
}

func TestNormalizeBoosts_PostShapedCreative(t *testing.T) {
	rows := []CampaignBoostRow{
		{
			CampaignID: "c1",
			CreativeID: "cr1",
			EventID:    "e1",
			Event:      BoostEvent{Title: "Warehouse Party", Description: "event text"},
			Creative: &BoostCreative{
				Caption:   "see you there",
				MediaURLs: []string{"https://cdn.example.com/clip.mp4"},
				Author:    Author{ID: "u1", Name: "Promoter"},
			},
		},
		{CampaignID: "c2", EventID: "e2", Event: BoostEvent{Title: "Jazz Night", StartsAt: "2026-10-31T20:00:00Z"}},
	}

	result := NormalizeBoosts(rows)

	if result[0].Kind != KindPost {
		t.Errorf("Expected post kind for media creative, got %s", result[0].Kind)
	}
	if !result[0].HasVideo() {
		t.Error("Expected boosted post to carry video")
	}
	if result[0].Description != "see you there" {
		t.Errorf("Expected caption as description, got '%s'", result[0].Description)
	}
	if result[1].Kind != KindEvent || result[1].Event == nil {
		t.Fatalf("Expected event kind with event fields, got %s", result[1].Kind)
	}
	if result[1].Event.StartsAt != "2026-10-31T20:00:00Z" {
		t.Errorf("Expected start time carried over, got '%s'", result[1].Event.StartsAt)
	}
	if TargetEventID(result[0]) != "e1" {
		t.Errorf("Expected target event e1, got %s", TargetEventID(result[0]))
	}
}
