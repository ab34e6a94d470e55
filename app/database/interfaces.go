package database

import (
	"context"
	"time"

	"github.com/lysyi3m/event-feed/app/feed"
)

type SourceRepository interface {
	GetSource(ctx context.Context, name string) (*Source, error)
	GetSourceCount(ctx context.Context) (int, error)

	UpsertSource(ctx context.Context, name, url, kind string) error
	UpdateSourceMetadata(ctx context.Context, name string, metadata SourceMetadata, nextFetch time.Time) error
}

type ItemRepository interface {
	GetPage(ctx context.Context, cursor feed.Cursor, limit int, userID string) (feed.Page, error)
	GetItem(ctx context.Context, id, userID string) (*feed.Item, error)
	GetItemStats(ctx context.Context) (ItemStats, error)

	UpsertItem(ctx context.Context, sourceName string, item feed.Item, contentHash string) error
	CheckDuplicate(ctx context.Context, sourceName, contentHash string) (bool, error)
	SetCommentCount(ctx context.Context, id string, count int) error
}

type EngagementRepository interface {
	ToggleLike(ctx context.Context, itemID, userID string) (bool, int, error)
	ToggleSave(ctx context.Context, itemID, userID string) (bool, error)
}

type BoostRepository interface {
	GetBoostRows(ctx context.Context, placement string, limit int, userID string) ([]feed.CampaignBoostRow, error)
	UpsertBoost(ctx context.Context, placement string, row feed.CampaignBoostRow) error
	RecordImpression(ctx context.Context, campaignID, userID string) error
}
