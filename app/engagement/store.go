// Package engagement keeps optimistic overlays for toggleable item metrics
// such as likes and saves. Every metric goes through the same three
// transitions: apply locally, confirm from the server, roll back on failure.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lysyi3m/event-feed/app/metrics"
)

var (
	ErrMutation      = errors.New("mutation failed")
	ErrUnknownMetric = errors.New("unknown metric")
	ErrClosed        = errors.New("engagement store closed")
)

type Metric string

const (
	MetricLike    Metric = "like"
	MetricSave    Metric = "save"
	MetricComment Metric = "comment"
)

// State is the viewer-facing value of one metric on one item. Count is
// meaningful only for counted metrics.
type State struct {
	Active bool `json:"active"`
	Count  int  `json:"count"`
}

// Mutator performs the server-side toggle and returns the absolute values
// the server now holds.
type Mutator func(ctx context.Context, itemID string) (State, error)

type Definition struct {
	Mutate  Mutator
	Counted bool
}

// Event is published after every overlay change. Err is set, wrapping
// ErrMutation, when the change is a rollback.
type Event struct {
	Metric Metric
	ItemID string
	State  State
	Err    error
}

type key struct {
	metric Metric
	itemID string
}

type entry struct {
	overlay  State
	snapshot State
	desired  bool
	inFlight bool
}

type Store struct {
	definitions map[Metric]Definition

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	entries     map[key]*entry
	subscribers map[uint64]func(Event)
	nextSub     uint64
}

func NewStore(definitions map[Metric]Definition) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		definitions: definitions,
		ctx:         ctx,
		cancel:      cancel,
		entries:     make(map[key]*entry),
		subscribers: make(map[uint64]func(Event)),
	}
}

// Toggle flips the metric for itemID and returns the optimistic state right
// away. canonical is the last server-read value and is only consulted when no
// overlay exists yet. The mutation runs in the background; while one is in
// flight further toggles only update the desired state, which is sent once the
// in-flight call resolves.
func (s *Store) Toggle(metric Metric, itemID string, canonical State) (State, error) {
	definition, ok := s.definitions[metric]
	if !ok || definition.Mutate == nil {
		return canonical, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}
	if s.ctx.Err() != nil {
		return canonical, ErrClosed
	}

	k := key{metric: metric, itemID: itemID}

	s.mu.Lock()
	e, exists := s.entries[k]
	if !exists {
		e = &entry{overlay: canonical}
		s.entries[k] = e
	}
	if !e.inFlight {
		e.snapshot = e.overlay
	}

	e.desired = !e.overlay.Active
	e.overlay = predict(e.overlay, e.desired, definition.Counted)
	state := e.overlay

	start := !e.inFlight
	if start {
		e.inFlight = true
		s.wg.Add(1)
	}
	subs := s.snapshotSubscribers()
	s.mu.Unlock()

	notify(subs, Event{Metric: metric, ItemID: itemID, State: state})

	if start {
		go s.run(k, definition)
	}
	return state, nil
}

// Overlay returns the pending or confirmed overlay for the item, if any.
func (s *Store) Overlay(metric Metric, itemID string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key{metric: metric, itemID: itemID}]
	if !ok {
		return State{}, false
	}
	return e.overlay, true
}

// Pending reports whether a mutation for the item is in flight.
func (s *Store) Pending(metric Metric, itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key{metric: metric, itemID: itemID}]
	return ok && e.inFlight
}

// SetCount overwrites the count of a metric that is not toggled locally,
// e.g. comment counts pushed by the comment thread.
func (s *Store) SetCount(metric Metric, itemID string, count int) {
	if count < 0 {
		count = 0
	}
	k := key{metric: metric, itemID: itemID}

	s.mu.Lock()
	e, ok := s.entries[k]
	if !ok {
		e = &entry{}
		s.entries[k] = e
	}
	e.overlay.Count = count
	if !e.inFlight {
		e.snapshot = e.overlay
	}
	state := e.overlay
	subs := s.snapshotSubscribers()
	s.mu.Unlock()

	notify(subs, Event{Metric: metric, ItemID: itemID, State: state})
}

// Supersede drops every settled overlay so the next render uses fresh
// canonical values. Overlays with a mutation in flight are kept.
func (s *Store) Supersede() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if !e.inFlight {
			delete(s.entries, k)
		}
	}
}

// Subscribe registers fn for overlay changes and returns its release func.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
		})
	}
}

// Wait blocks until no mutation is in flight.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close cancels in-flight mutations and discards their results.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Store) run(k key, definition Definition) {
	defer s.wg.Done()

	for {
		result, err := definition.Mutate(s.ctx, k.itemID)

		s.mu.Lock()
		e := s.entries[k]
		if s.ctx.Err() != nil || e == nil {
			if e != nil {
				e.inFlight = false
			}
			s.mu.Unlock()
			slog.Debug("Discarding mutation result after close", "metric", string(k.metric), "item", k.itemID)
			return
		}

		if err != nil {
			e.overlay = e.snapshot
			e.inFlight = false
			state := e.overlay
			subs := s.snapshotSubscribers()
			s.mu.Unlock()

			metrics.Mutations.WithLabelValues(string(k.metric), "rollback").Inc()
			slog.Warn("Mutation failed, rolled back", "metric", string(k.metric), "item", k.itemID, "error", err)
			notify(subs, Event{
				Metric: k.metric,
				ItemID: k.itemID,
				State:  state,
				Err:    fmt.Errorf("%w: %s %s: %w", ErrMutation, k.metric, k.itemID, err),
			})
			return
		}

		metrics.Mutations.WithLabelValues(string(k.metric), "confirmed").Inc()
		e.snapshot = result

		if result.Active != e.desired {
			// The viewer toggled again while the call was in flight.
			e.overlay = predict(result, e.desired, definition.Counted)
			s.mu.Unlock()
			continue
		}

		e.overlay = result
		e.inFlight = false
		state := e.overlay
		subs := s.snapshotSubscribers()
		s.mu.Unlock()

		notify(subs, Event{Metric: k.metric, ItemID: k.itemID, State: state})
		return
	}
}

func predict(current State, active bool, counted bool) State {
	next := State{Active: active, Count: current.Count}
	if !counted || current.Active == active {
		return next
	}
	if active {
		next.Count++
	} else if next.Count > 0 {
		next.Count--
	}
	return next
}

func (s *Store) snapshotSubscribers() []func(Event) {
	subs := make([]func(Event), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(Event), event Event) {
	for _, fn := range subs {
		fn(event)
	}
}
