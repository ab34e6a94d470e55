package pagination

// DefaultRootMargin starts the next fetch this many pixels before the
// sentinel actually scrolls into view.
const DefaultRootMargin = 800

type Sentinel struct {
	RootMargin float64
}

func NewSentinel(rootMargin float64) Sentinel {
	if rootMargin < 0 {
		rootMargin = 0
	}
	return Sentinel{RootMargin: rootMargin}
}

// Intersects reports whether the sentinel, positioned at sentinelTop in
// content coordinates, falls inside the viewport extended by the margin.
func (s Sentinel) Intersects(sentinelTop, scrollTop, viewportHeight float64) bool {
	return sentinelTop <= scrollTop+viewportHeight+s.RootMargin
}
