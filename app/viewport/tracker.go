// Package viewport picks the single rendered item that occupies the most
// visible area. Exactly one index is active once anything has qualified.
package viewport

import (
	"sync"
)

// DefaultThreshold is the minimum visible fraction an item needs to become active.
const DefaultThreshold = 0.5

// Entry is one intersection observation for a rendered item.
type Entry struct {
	Index int
	Ratio float64
}

type Tracker struct {
	threshold float64

	// notifyMu is held across a state change and its notification so
	// subscribers see changes in the order they were applied.
	notifyMu sync.Mutex

	mu        sync.Mutex
	ratios    map[int]float64
	order     map[int]uint64
	nextOrder uint64
	length    int
	active    int
	hasActive bool

	subscribers map[uint64]func(int)
	nextSub     uint64
}

func NewTracker(threshold float64) *Tracker {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Tracker{
		threshold:   threshold,
		ratios:      make(map[int]float64),
		order:       make(map[int]uint64),
		subscribers: make(map[uint64]func(int)),
	}
}

// Register starts observing an item container. Registration order breaks ties.
func (t *Tracker) Register(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.register(index)
}

// Unregister stops observing an item, e.g. when it is unmounted.
func (t *Tracker) Unregister(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ratios, index)
	delete(t.order, index)
}

// SetLength tracks the rendered list size. Observations past the end are
// dropped and the active index is clamped into range.
func (t *Tracker) SetLength(n int) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	if n < 0 {
		n = 0
	}
	t.length = n
	for index := range t.ratios {
		if index >= n {
			delete(t.ratios, index)
			delete(t.order, index)
		}
	}

	changed := false
	if n == 0 {
		changed = t.hasActive && t.active != 0
		t.active = 0
	} else if t.active > n-1 {
		t.active = n - 1
		changed = true
	}
	active := t.active
	subs := t.snapshotSubscribers()
	t.mu.Unlock()

	if changed {
		notify(subs, active)
	}
}

// Observe applies a batch of intersection entries and returns the active index.
func (t *Tracker) Observe(entries ...Entry) int {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	for _, entry := range entries {
		if entry.Index < 0 || (t.length > 0 && entry.Index >= t.length) {
			continue
		}
		t.register(entry.Index)
		t.ratios[entry.Index] = entry.Ratio
	}

	best, found := t.pick()
	changed := found && (!t.hasActive || best != t.active)
	if found {
		t.active = best
		t.hasActive = true
	}
	active := t.active
	subs := t.snapshotSubscribers()
	t.mu.Unlock()

	if changed {
		notify(subs, active)
	}
	return active
}

// Active returns the active index and whether any item has ever qualified.
func (t *Tracker) Active() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active, t.hasActive
}

// Subscribe registers fn for active index changes. The returned func releases
// the subscription and is safe to call more than once.
func (t *Tracker) Subscribe(fn func(active int)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++
	t.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subscribers, id)
		})
	}
}

// Reset forgets all observations, used when the rendered list is rebuilt.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ratios = make(map[int]float64)
	t.order = make(map[int]uint64)
	t.nextOrder = 0
	t.active = 0
	t.hasActive = false
}

func (t *Tracker) register(index int) {
	if _, ok := t.order[index]; ok {
		return
	}
	t.order[index] = t.nextOrder
	t.nextOrder++
}

func (t *Tracker) pick() (int, bool) {
	best, bestRatio, found := 0, 0.0, false
	for index, ratio := range t.ratios {
		if ratio < t.threshold {
			continue
		}
		if !found || ratio > bestRatio || (ratio == bestRatio && t.order[index] < t.order[best]) {
			best, bestRatio, found = index, ratio, true
		}
	}
	return best, found
}

func (t *Tracker) snapshotSubscribers() []func(int) {
	subs := make([]func(int), 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(int), active int) {
	for _, fn := range subs {
		fn(active)
	}
}
