package engine

import (
	"github.com/lysyi3m/event-feed/app/engagement"
	"github.com/lysyi3m/event-feed/app/feed"
	"github.com/lysyi3m/event-feed/app/playback"
)

// Snapshot is a read-only view of the rendered feed with engagement overlays
// already applied.
type Snapshot struct {
	State              LoadState            `json:"-"`
	Status             string               `json:"status"`
	Error              string               `json:"error,omitempty"`
	BoostError         string               `json:"boost_error,omitempty"`
	Degraded           bool                 `json:"degraded"`
	Items              []feed.Item          `json:"items"`
	Playback           []playback.ItemState `json:"playback"`
	ActiveIndex        int                  `json:"active_index"`
	HasNextPage        bool                 `json:"has_next_page"`
	IsFetchingNextPage bool                 `json:"is_fetching_next_page"`
	Filter             feed.FilterState     `json:"filter"`
}

func (e *Engine) Snapshot() Snapshot {
	pages := e.controller.State()
	play := e.machine.State()

	e.mu.RLock()
	snapshot := Snapshot{
		State:              e.state,
		Status:             e.state.String(),
		Degraded:           e.degraded,
		ActiveIndex:        play.Active,
		HasNextPage:        pages.HasNextPage,
		IsFetchingNextPage: pages.IsFetchingNextPage,
		Filter:             e.filter,
		Items:              make([]feed.Item, len(e.rendered)),
	}
	if e.loadErr != nil {
		snapshot.Error = e.loadErr.Error()
	}
	if e.boostErr != nil {
		snapshot.BoostError = e.boostErr.Error()
	}
	copy(snapshot.Items, e.rendered)
	e.mu.RUnlock()

	hasVideo := make([]bool, len(snapshot.Items))
	for i, item := range snapshot.Items {
		snapshot.Items[i] = e.withOverlays(item)
		hasVideo[i] = item.HasVideo()
	}
	snapshot.Playback = e.machine.Items(hasVideo)

	return snapshot
}

func (e *Engine) withOverlays(item feed.Item) feed.Item {
	if item.Post == nil {
		return item
	}

	post := *item.Post
	changed := false

	if like, ok := e.store.Overlay(engagement.MetricLike, item.ID); ok {
		post.Metrics.ViewerHasLiked = like.Active
		post.Metrics.Likes = like.Count
		changed = true
	}
	if save, ok := e.store.Overlay(engagement.MetricSave, item.ID); ok {
		post.Metrics.ViewerHasSaved = save.Active
		changed = true
	}
	if comments, ok := e.store.Overlay(engagement.MetricComment, item.ID); ok {
		post.Metrics.Comments = comments.Count
		changed = true
	}

	if changed {
		item.Post = &post
	}
	return item
}
