// Package engine composes the feed pipeline: fetch organic pages and boost
// rows, normalize, interleave, filter, then track the active item, playback
// and optimistic engagement for the rendered list.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/event-feed/app/engagement"
	"github.com/lysyi3m/event-feed/app/feed"
	"github.com/lysyi3m/event-feed/app/fetch"
	"github.com/lysyi3m/event-feed/app/metrics"
	"github.com/lysyi3m/event-feed/app/pagination"
	"github.com/lysyi3m/event-feed/app/playback"
	"github.com/lysyi3m/event-feed/app/viewport"
)

// Engine owns the rendered list. Presentation reads it through Snapshot.
//
// Lock order is pagination controller, then engine. The engine never calls
// into the controller, tracker or playback machine while holding e.mu.
type Engine struct {
	sources Sources
	intents Intents
	config  Config

	pages      *fetch.Fetcher[feed.Page]
	boostRows  *fetch.Fetcher[[]feed.CampaignBoostRow]
	controller *pagination.Controller
	sentinel   pagination.Sentinel
	tracker    *viewport.Tracker
	machine    *playback.Machine
	gate       *playback.Gate
	store      *engagement.Store

	interleaver *feed.Interleaver
	filterer    *feed.Filterer

	mu         sync.RWMutex
	generation uint64
	state      LoadState
	loadErr    error
	boostErr   error
	degraded   bool
	organic    []feed.Item
	boosts     []feed.Item
	filter     feed.FilterState
	rendered   []feed.Item
	impressed  map[string]bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	notices  chan error
	releases []func()
}

func New(sources Sources, intents Intents, config Config) *Engine {
	if config.BoostInterval <= 0 {
		config.BoostInterval = feed.DefaultBoostInterval
	}

	filterer := feed.NewFilterer()
	if config.Now != nil {
		filterer = feed.NewFiltererAt(config.Now)
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		sources:     sources,
		intents:     intents,
		config:      config,
		pages:       fetch.New[feed.Page]("organic", config.Fetch),
		sentinel:    pagination.NewSentinel(config.RootMargin),
		boostRows:   fetch.New[[]feed.CampaignBoostRow]("boosts", config.Fetch),
		tracker:     viewport.NewTracker(config.VisibilityThreshold),
		machine:     playback.NewMachine(),
		interleaver: feed.NewInterleaver(config.BoostInterval),
		filterer:    filterer,
		filter:      feed.DefaultFilterState(),
		impressed:   make(map[string]bool),
		ctx:         ctx,
		cancel:      cancel,
		notices:     make(chan error, 16),
	}

	e.controller = pagination.NewController(e.fetchPage, e.appendPage)
	e.store = engagement.NewStore(e.mutationDefinitions())
	e.gate = playback.NewGate(config.AutoplayFallback, func() {
		e.machine.Dispatch(playback.Unlock())
	})

	e.releases = append(e.releases,
		e.tracker.Subscribe(e.onActiveChange),
		e.store.Subscribe(e.onEngagement),
	)

	e.wg.Add(1)
	go e.forwardPaginationErrors()

	return e
}

// Load fetches the first organic page and the boost rows concurrently and
// rebuilds the rendered list. A failed organic read is fail-stop and wraps
// ErrInitialLoad; a failed boost read only empties the boost queue.
func (e *Engine) Load(ctx context.Context) error {
	if e.ctx.Err() != nil {
		return ErrClosed
	}

	e.controller.Reset()

	e.mu.Lock()
	e.generation++
	generation := e.generation
	e.state = LoadLoading
	e.loadErr = nil
	e.mu.Unlock()

	var (
		first    fetch.Result[feed.Page]
		rows     fetch.Result[[]feed.CampaignBoostRow]
		boostErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result, err := e.pages.Fetch(gctx, pageKey(""), func(ctx context.Context) (feed.Page, error) {
			return e.sources.Organic.FetchOrganicPage(ctx, "")
		})
		if err != nil {
			return err
		}
		first = result
		return nil
	})
	g.Go(func() error {
		if e.sources.Boosts == nil {
			return nil
		}
		result, err := e.boostRows.Fetch(gctx, e.boostKey(), func(ctx context.Context) ([]feed.CampaignBoostRow, error) {
			return e.sources.Boosts.FetchBoostRows(ctx, e.config.Placement, e.config.BoostLimit, e.config.UserID)
		})
		if err != nil {
			boostErr = fmt.Errorf("%w: %w", ErrBoostFetch, err)
			return nil
		}
		rows = result
		return nil
	})
	err := g.Wait()

	e.mu.Lock()
	if generation != e.generation {
		e.mu.Unlock()
		slog.Debug("Dropping superseded initial load", "generation", generation)
		return nil
	}

	if err != nil {
		e.state = LoadFailed
		e.loadErr = fmt.Errorf("%w: %w", ErrInitialLoad, err)
		loadErr := e.loadErr
		e.mu.Unlock()
		slog.Error("Initial feed load failed", "error", err)
		return loadErr
	}

	if boostErr != nil {
		slog.Warn("Boost fetch failed, rendering organic feed only", "placement", e.config.Placement, "error", boostErr)
	}

	e.organic = dedupe(nil, first.Value.Items)
	e.boosts = feed.NormalizeBoosts(rows.Value)
	e.boostErr = boostErr
	e.degraded = first.Degraded || rows.Degraded
	e.state = LoadReady
	e.impressed = make(map[string]bool)
	rendered := e.rebuildLocked()
	e.mu.Unlock()

	metrics.BoostsInjected.Add(float64(countBoosted(rendered)))
	slog.Info("Feed loaded", "organic", len(first.Value.Items), "boosts", len(rows.Value), "rendered", len(rendered), "degraded", first.Degraded || rows.Degraded)

	e.store.Supersede()
	e.tracker.Reset()
	e.machine.Dispatch(playback.SetActive(0))
	e.controller.Seed(first.Value)
	e.syncViewport(len(rendered))
	return nil
}

// Retry reruns the initial load after a fail-stop error.
func (e *Engine) Retry(ctx context.Context) error {
	return e.Load(ctx)
}

// SetFilter re-filters the loaded items. No fetch is issued.
func (e *Engine) SetFilter(state feed.FilterState) {
	e.mu.Lock()
	e.filter = state
	rendered := e.rebuildLocked()
	e.mu.Unlock()

	e.tracker.Reset()
	e.machine.Dispatch(playback.SetActive(0))
	e.syncViewport(len(rendered))
}

func (e *Engine) Filter() feed.FilterState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.filter
}

// OnSentinel forwards a sentinel intersection to the pagination controller.
func (e *Engine) OnSentinel() bool {
	if e.State() != LoadReady {
		return false
	}
	return e.controller.OnSentinel(e.ctx)
}

// OnScroll checks the sentinel at sentinelTop against the scrolled viewport
// and starts a page fetch when it comes within the root margin.
func (e *Engine) OnScroll(sentinelTop, scrollTop, viewportHeight float64) bool {
	if !e.sentinel.Intersects(sentinelTop, scrollTop, viewportHeight) {
		return false
	}
	return e.OnSentinel()
}

// FetchNextPage loads the next organic page synchronously.
func (e *Engine) FetchNextPage(ctx context.Context) error {
	if e.State() != LoadReady {
		return pagination.ErrNoMorePages
	}
	err := e.controller.FetchNextPage(ctx)
	if err == nil || errors.Is(err, pagination.ErrBusy) || errors.Is(err, pagination.ErrNoMorePages) || errors.Is(err, pagination.ErrSuperseded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPagination, err)
}

// WaitForPages blocks until background page fetches return.
func (e *Engine) WaitForPages() {
	e.controller.Wait()
}

// Observe applies viewport intersection entries.
func (e *Engine) Observe(entries ...viewport.Entry) int {
	return e.tracker.Observe(entries...)
}

// Gesture is any tap, scroll or key press. The first one unlocks autoplay.
func (e *Engine) Gesture() {
	e.gate.Gesture()
}

func (e *Engine) TogglePause() playback.State {
	return e.machine.Dispatch(playback.TogglePause())
}

func (e *Engine) ToggleMute() playback.State {
	return e.machine.Dispatch(playback.ToggleMute())
}

// ToggleLike applies the like optimistically and returns the new state.
func (e *Engine) ToggleLike(itemID string) (engagement.State, error) {
	item, err := e.engageable(itemID)
	if err != nil {
		return engagement.State{}, err
	}
	var canonical engagement.State
	if item.Post != nil {
		canonical = engagement.State{Active: item.Post.Metrics.ViewerHasLiked, Count: item.Post.Metrics.Likes}
	}
	return e.store.Toggle(engagement.MetricLike, itemID, canonical)
}

func (e *Engine) ToggleSave(itemID string) (engagement.State, error) {
	item, err := e.engageable(itemID)
	if err != nil {
		return engagement.State{}, err
	}
	var canonical engagement.State
	if item.Post != nil {
		canonical = engagement.State{Active: item.Post.Metrics.ViewerHasSaved}
	}
	return e.store.Toggle(engagement.MetricSave, itemID, canonical)
}

// OnCommentCountChange receives counts pushed by the comment thread.
func (e *Engine) OnCommentCountChange(itemID string, count int) {
	e.store.SetCount(engagement.MetricComment, itemID, count)
}

// WaitForMutations blocks until no engagement mutation is in flight.
func (e *Engine) WaitForMutations() {
	e.store.Wait()
}

// SelectEvent emits the event navigation intent. Boosted items resolve to
// the event they promote.
func (e *Engine) SelectEvent(itemID string) error {
	item, ok := e.item(itemID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	target := item.ID
	if item.IsBoosted() {
		target = feed.TargetEventID(item)
	}
	if e.intents.OnEventSelect != nil {
		e.intents.OnEventSelect(target)
	}
	return nil
}

func (e *Engine) SelectAuthor(authorID string) {
	if authorID != "" && e.intents.OnAuthorSelect != nil {
		e.intents.OnAuthorSelect(authorID)
	}
}

// Notices reports pagination failures and rolled back mutations. Sends never
// block.
func (e *Engine) Notices() <-chan error {
	return e.notices
}

func (e *Engine) State() LoadState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Close releases subscriptions and discards every in-flight result.
func (e *Engine) Close() {
	e.cancel()
	e.gate.Stop()
	for _, release := range e.releases {
		release()
	}
	e.controller.Wait()
	e.store.Close()
	e.wg.Wait()
}

func (e *Engine) fetchPage(ctx context.Context, cursor feed.Cursor) (feed.Page, error) {
	result, err := e.pages.Fetch(ctx, pageKey(cursor), func(ctx context.Context) (feed.Page, error) {
		return e.sources.Organic.FetchOrganicPage(ctx, cursor)
	})
	if err != nil {
		return feed.Page{}, err
	}
	if result.Degraded {
		e.mu.Lock()
		e.degraded = true
		e.mu.Unlock()
	}
	return result.Value, nil
}

// appendPage runs under the pagination controller lock.
func (e *Engine) appendPage(page feed.Page) {
	e.mu.Lock()
	e.organic = dedupe(e.organic, page.Items)
	rendered := e.rebuildLocked()
	e.mu.Unlock()

	slog.Debug("Appended organic page", "items", len(page.Items), "rendered", len(rendered), "has_more", page.HasMore)
	e.syncViewport(len(rendered))
}

func (e *Engine) rebuildLocked() []feed.Item {
	e.rendered = e.filterer.Run(e.interleaver.Run(e.organic, e.boosts), e.filter)
	return e.rendered
}

func (e *Engine) syncViewport(length int) {
	e.tracker.SetLength(length)
	e.machine.Dispatch(playback.SetLength(length))
}

func (e *Engine) onActiveChange(index int) {
	e.machine.Dispatch(playback.SetActive(index))

	if e.sources.Impressions == nil {
		return
	}

	e.mu.Lock()
	if index < 0 || index >= len(e.rendered) || !e.rendered[index].IsBoosted() {
		e.mu.Unlock()
		return
	}
	item := e.rendered[index]
	if e.impressed[item.ID] {
		e.mu.Unlock()
		return
	}
	e.impressed[item.ID] = true
	e.mu.Unlock()

	campaignID := item.Promotion.CampaignID
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.sources.Impressions.RecordImpression(e.ctx, campaignID, e.config.UserID); err != nil && e.ctx.Err() == nil {
			slog.Warn("Failed to record boost impression", "campaign", campaignID, "error", err)
		}
	}()
}

func (e *Engine) onEngagement(event engagement.Event) {
	if event.Err != nil {
		e.notify(event.Err)
	}
}

func (e *Engine) forwardPaginationErrors() {
	defer e.wg.Done()
	for {
		select {
		case err := <-e.controller.Errors():
			slog.Warn("Next page fetch failed", "error", err)
			e.notify(fmt.Errorf("%w: %w", ErrPagination, err))
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Engine) notify(err error) {
	select {
	case e.notices <- err:
	default:
		slog.Warn("Notice channel full, dropping notice", "error", err)
	}
}

func (e *Engine) mutationDefinitions() map[engagement.Metric]engagement.Definition {
	if e.sources.Mutations == nil {
		return nil
	}
	mutations := e.sources.Mutations
	return map[engagement.Metric]engagement.Definition{
		engagement.MetricLike: {
			Counted: true,
			Mutate: func(ctx context.Context, itemID string) (engagement.State, error) {
				result, err := mutations.ToggleLike(ctx, itemID)
				if err != nil {
					return engagement.State{}, err
				}
				if !result.OK {
					return engagement.State{}, fmt.Errorf("like toggle rejected for %s", itemID)
				}
				return engagement.State{Active: result.IsLiked, Count: result.LikeCount}, nil
			},
		},
		engagement.MetricSave: {
			Mutate: func(ctx context.Context, itemID string) (engagement.State, error) {
				saved, err := mutations.ToggleSaved(ctx, itemID)
				if err != nil {
					return engagement.State{}, err
				}
				return engagement.State{Active: saved}, nil
			},
		},
	}
}

func (e *Engine) engageable(itemID string) (feed.Item, error) {
	item, ok := e.item(itemID)
	if !ok {
		return feed.Item{}, fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	if item.IsBoosted() {
		return feed.Item{}, fmt.Errorf("%w: %s", ErrNotEngageable, itemID)
	}
	return item, nil
}

func (e *Engine) item(itemID string) (feed.Item, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, item := range e.rendered {
		if item.ID == itemID {
			return item, true
		}
	}
	return feed.Item{}, false
}

func (e *Engine) boostKey() string {
	return fmt.Sprintf("boosts:%s:%d:%s", e.config.Placement, e.config.BoostLimit, e.config.UserID)
}

func pageKey(cursor feed.Cursor) string {
	return "organic:" + string(cursor)
}

func dedupe(existing, incoming []feed.Item) []feed.Item {
	seen := make(map[string]bool, len(existing)+len(incoming))
	out := make([]feed.Item, 0, len(existing)+len(incoming))
	for _, item := range existing {
		seen[item.ID] = true
		out = append(out, item)
	}
	for _, item := range incoming {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		out = append(out, item)
	}
	return out
}

func countBoosted(items []feed.Item) int {
	n := 0
	for _, item := range items {
		if item.IsBoosted() {
			n++
		}
	}
	return n
}
