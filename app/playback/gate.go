package playback

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFallback opens the gate even if the user never interacts.
const DefaultFallback = 3 * time.Second

// Gate is the one-shot autoplay unlock. It opens on the first gesture or when
// the fallback timer fires, whichever comes first, and never closes again.
type Gate struct {
	once     sync.Once
	unlocked atomic.Bool
	onUnlock func()

	mu    sync.Mutex
	timer *time.Timer
}

// NewGate arms the fallback timer. A fallback <= 0 disables it.
func NewGate(fallback time.Duration, onUnlock func()) *Gate {
	g := &Gate{onUnlock: onUnlock}
	if fallback > 0 {
		g.timer = time.AfterFunc(fallback, func() { g.open("fallback") })
	}
	return g
}

// Gesture records a tap, scroll or key press.
func (g *Gate) Gesture() {
	g.open("gesture")
}

func (g *Gate) Unlocked() bool {
	return g.unlocked.Load()
}

// Stop disarms the fallback timer without opening the gate.
func (g *Gate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

func (g *Gate) open(reason string) {
	g.once.Do(func() {
		g.unlocked.Store(true)
		g.Stop()
		slog.Debug("Autoplay unlocked", "reason", reason)
		if g.onUnlock != nil {
			g.onUnlock()
		}
	})
}
