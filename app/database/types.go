package database

import (
	"time"
)

type Source struct {
	Name          string
	URL           string
	Kind          string
	Title         string
	Link          string
	Description   string
	ImageURL      string
	Language      string
	LastFetchedAt *time.Time
	NextFetchAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SourceMetadata is what an import learns about the syndicated feed itself.
type SourceMetadata struct {
	Title       string
	Link        string
	Description string
	ImageURL    string
	Language    string
}

// ItemStats summarizes the item table for the health endpoint.
type ItemStats struct {
	Total  int `json:"total"`
	Events int `json:"events"`
	Posts  int `json:"posts"`
}
