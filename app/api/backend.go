package api

import (
	"context"

	"github.com/lysyi3m/event-feed/app/database"
	"github.com/lysyi3m/event-feed/app/engine"
	"github.com/lysyi3m/event-feed/app/feed"
)

var (
	_ engine.OrganicSource      = (*Backend)(nil)
	_ engine.BoostSource        = (*Backend)(nil)
	_ engine.Mutations          = (*Backend)(nil)
	_ engine.ImpressionRecorder = (*Backend)(nil)
)

// Backend serves the engine contracts straight from the repositories for one
// viewer, so the server can render feeds in-process.
type Backend struct {
	items       database.ItemRepository
	engagements database.EngagementRepository
	boosts      database.BoostRepository
	pageSize    int
	userID      string
}

func NewBackend(items database.ItemRepository, engagements database.EngagementRepository,
	boosts database.BoostRepository, pageSize int, userID string) *Backend {
	return &Backend{
		items:       items,
		engagements: engagements,
		boosts:      boosts,
		pageSize:    pageSize,
		userID:      userID,
	}
}

func (b *Backend) FetchOrganicPage(ctx context.Context, cursor feed.Cursor) (feed.Page, error) {
	return b.items.GetPage(ctx, cursor, b.pageSize, b.userID)
}

func (b *Backend) FetchBoostRows(ctx context.Context, placement string, limit int, userID string) ([]feed.CampaignBoostRow, error) {
	return b.boosts.GetBoostRows(ctx, placement, limit, userID)
}

func (b *Backend) ToggleLike(ctx context.Context, itemID string) (engine.LikeResult, error) {
	liked, count, err := b.engagements.ToggleLike(ctx, itemID, b.userID)
	if err != nil {
		return engine.LikeResult{}, err
	}
	return engine.LikeResult{OK: true, IsLiked: liked, LikeCount: count}, nil
}

func (b *Backend) ToggleSaved(ctx context.Context, itemID string) (bool, error) {
	return b.engagements.ToggleSave(ctx, itemID, b.userID)
}

func (b *Backend) RecordImpression(ctx context.Context, campaignID, userID string) error {
	return b.boosts.RecordImpression(ctx, campaignID, userID)
}
