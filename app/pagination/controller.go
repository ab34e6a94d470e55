// Package pagination drives infinite scroll: a sentinel near the end of the
// list asks for the next organic page, and at most one page fetch is ever in
// flight per controller.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lysyi3m/event-feed/app/feed"
	"github.com/lysyi3m/event-feed/app/metrics"
)

var (
	ErrBusy        = errors.New("page fetch already in flight")
	ErrNoMorePages = errors.New("no more pages")
	ErrSuperseded  = errors.New("page fetch superseded")
)

type PageFunc func(ctx context.Context, cursor feed.Cursor) (feed.Page, error)

type State struct {
	HasNextPage        bool
	IsFetchingNextPage bool
	Cursor             feed.Cursor
}

type Controller struct {
	fetch  PageFunc
	onPage func(feed.Page)

	mu         sync.Mutex
	cursor     feed.Cursor
	hasNext    bool
	fetching   bool
	generation uint64

	errs chan error
	wg   sync.WaitGroup
}

// NewController wires the page reader and the sink that appends successful
// pages. onPage runs while the controller lock is held, so it must not call
// back into the controller.
func NewController(fetch PageFunc, onPage func(feed.Page)) *Controller {
	return &Controller{
		fetch:  fetch,
		onPage: onPage,
		errs:   make(chan error, 8),
	}
}

// Seed records the cursor of the already loaded first page.
func (c *Controller) Seed(first feed.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor = first.NextCursor
	c.hasNext = first.HasMore
}

// Reset invalidates any in-flight fetch; its result will be dropped. The
// in-flight call still counts against the single-fetch limit until it returns.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.cursor = ""
	c.hasNext = false
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{HasNextPage: c.hasNext, IsFetchingNextPage: c.fetching, Cursor: c.cursor}
}

// Errors reports failed page fetches. Sends never block the fetch path.
func (c *Controller) Errors() <-chan error {
	return c.errs
}

// OnSentinel is the intersection callback. It starts a background fetch when
// one is allowed and reports whether it did.
func (c *Controller) OnSentinel(ctx context.Context) bool {
	cursor, generation, ok := c.begin()
	if !ok {
		return false
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.run(ctx, cursor, generation); err != nil && !errors.Is(err, ErrSuperseded) {
			c.report(err)
		}
	}()
	return true
}

// FetchNextPage fetches synchronously under the same exclusion rules as
// OnSentinel.
func (c *Controller) FetchNextPage(ctx context.Context) error {
	c.mu.Lock()
	if c.fetching {
		c.mu.Unlock()
		return ErrBusy
	}
	if !c.hasNext {
		c.mu.Unlock()
		return ErrNoMorePages
	}
	c.mu.Unlock()

	cursor, generation, ok := c.begin()
	if !ok {
		return ErrBusy
	}
	return c.run(ctx, cursor, generation)
}

// Wait blocks until background fetches started by OnSentinel return.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) begin() (feed.Cursor, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasNext || c.fetching {
		return "", 0, false
	}
	c.fetching = true
	return c.cursor, c.generation, true
}

func (c *Controller) run(ctx context.Context, cursor feed.Cursor, generation uint64) error {
	page, err := c.fetch(ctx, cursor)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetching = false

	if generation != c.generation || ctx.Err() != nil {
		metrics.PageFetches.WithLabelValues("superseded").Inc()
		slog.Debug("Dropping superseded page", "cursor", string(cursor))
		return ErrSuperseded
	}

	if err != nil {
		metrics.PageFetches.WithLabelValues("failure").Inc()
		return fmt.Errorf("failed to fetch page after cursor %q: %w", cursor, err)
	}

	metrics.PageFetches.WithLabelValues("success").Inc()
	c.cursor = page.NextCursor
	c.hasNext = page.HasMore
	if c.onPage != nil {
		c.onPage(page)
	}
	return nil
}

func (c *Controller) report(err error) {
	select {
	case c.errs <- err:
	default:
		slog.Warn("Pagination error channel full, dropping error", "error", err)
	}
}
