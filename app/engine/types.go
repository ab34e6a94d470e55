package engine

import (
	"context"
	"errors"
	"time"

	"github.com/lysyi3m/event-feed/app/engagement"
	"github.com/lysyi3m/event-feed/app/feed"
	"github.com/lysyi3m/event-feed/app/fetch"
)

var (
	// ErrInitialLoad is fail-stop: the feed shows an error state until Retry.
	ErrInitialLoad = errors.New("initial load failed")
	// ErrPagination leaves loaded items in place and can be retried.
	ErrPagination = errors.New("pagination failed")
	// ErrBoostFetch is absorbed as an empty boost queue.
	ErrBoostFetch = errors.New("boost fetch failed")
	// ErrMutation is reported after an optimistic change was rolled back.
	ErrMutation = engagement.ErrMutation

	ErrUnknownItem = errors.New("unknown item")
	// ErrNotEngageable rejects likes and saves on promoted items, whose ids
	// exist only in the rendered list.
	ErrNotEngageable = errors.New("item does not accept engagement")
	ErrClosed        = errors.New("engine closed")
)

type OrganicSource interface {
	FetchOrganicPage(ctx context.Context, cursor feed.Cursor) (feed.Page, error)
}

type BoostSource interface {
	FetchBoostRows(ctx context.Context, placement string, limit int, userID string) ([]feed.CampaignBoostRow, error)
}

// LikeResult carries the absolute like state after a server-side toggle.
type LikeResult struct {
	OK        bool `json:"ok"`
	IsLiked   bool `json:"is_liked"`
	LikeCount int  `json:"like_count"`
}

type Mutations interface {
	ToggleLike(ctx context.Context, itemID string) (LikeResult, error)
	ToggleSaved(ctx context.Context, itemID string) (bool, error)
}

// ImpressionRecorder is told when a boosted item first becomes active.
type ImpressionRecorder interface {
	RecordImpression(ctx context.Context, campaignID, userID string) error
}

// Intents are outbound navigation requests. The engine never routes itself.
type Intents struct {
	OnEventSelect  func(eventID string)
	OnAuthorSelect func(authorID string)
}

type Sources struct {
	Organic     OrganicSource
	Boosts      BoostSource
	Mutations   Mutations
	Impressions ImpressionRecorder
}

type Config struct {
	Placement     string
	BoostLimit    int
	UserID        string
	BoostInterval int

	Fetch               fetch.Config
	VisibilityThreshold float64
	AutoplayFallback    time.Duration
	// RootMargin is how far ahead of the viewport the pagination sentinel
	// triggers. Zero means the sentinel must actually be visible.
	RootMargin float64

	// Now drives the date filters. Defaults to time.Now.
	Now func() time.Time
}

type LoadState int

const (
	LoadIdle LoadState = iota
	LoadLoading
	LoadReady
	LoadFailed
)

func (s LoadState) String() string {
	switch s {
	case LoadIdle:
		return "idle"
	case LoadLoading:
		return "loading"
	case LoadReady:
		return "ready"
	case LoadFailed:
		return "failed"
	default:
		return "unknown"
	}
}
