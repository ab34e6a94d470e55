package api

import (
	"time"

	"github.com/lysyi3m/event-feed/app/database"
	"github.com/lysyi3m/event-feed/app/feed"
	"github.com/lysyi3m/event-feed/app/fetch"
	"github.com/lysyi3m/event-feed/app/source"
	"github.com/lysyi3m/event-feed/app/tasks"
)

const (
	defaultRenderPages = 1
	maxRenderPages     = 5
)

// RenderSettings configures the engine behind GET /feed.
type RenderSettings struct {
	Placement           string
	BoostLimit          int
	BoostInterval       int
	PageSize            int
	Fetch               fetch.Config
	VisibilityThreshold float64
	AutoplayFallback    time.Duration
}

type Handler struct {
	sourceRepo     database.SourceRepository
	itemRepo       database.ItemRepository
	engagementRepo database.EngagementRepository
	boostRepo      database.BoostRepository
	configCache    *source.ConfigCache
	scheduler      tasks.TaskSchedulerInterface
	generator      *feed.Generator
	render         RenderSettings
	appVersion     string
}

type likeResponse struct {
	OK        bool `json:"ok"`
	IsLiked   bool `json:"is_liked"`
	LikeCount int  `json:"like_count"`
}

type saveResponse struct {
	IsSaved bool `json:"is_saved"`
}
