package feed

// DefaultBoostInterval is the organic checkpoint spacing used for boost injection.
const DefaultBoostInterval = 4

type Interleaver struct {
	interval int
}

func NewInterleaver(interval int) *Interleaver {
	if interval <= 0 {
		interval = DefaultBoostInterval
	}
	return &Interleaver{interval: interval}
}

// Run merges organic items (already newest first) with the normalized boost
// queue. Boosts the organic list cannot absorb stay bunched at the tail.
func (il *Interleaver) Run(organic, boosts []Item) []Item {
	mixed := AlternateKinds(organic)

	out := make([]Item, 0, len(mixed)+len(boosts))
	queue := boosts

	for i, item := range mixed {
		out = append(out, item)
		if i > 0 && i%il.interval == 0 && len(queue) > 0 {
			out = append(out, queue[0])
			queue = queue[1:]
		}
	}

	return append(out, queue...)
}

// AlternateKinds alternates events and posts starting with the kind of the
// first item, keeping relative order inside each kind. A single-kind list is
// returned unchanged.
func AlternateKinds(items []Item) []Item {
	if len(items) == 0 {
		return items
	}

	primaryKind := items[0].Kind
	var primary, secondary []Item
	for _, item := range items {
		if item.Kind == primaryKind {
			primary = append(primary, item)
		} else {
			secondary = append(secondary, item)
		}
	}

	if len(secondary) == 0 {
		return items
	}

	out := make([]Item, 0, len(items))
	for len(primary) > 0 || len(secondary) > 0 {
		if len(primary) > 0 {
			out = append(out, primary[0])
			primary = primary[1:]
		}
		if len(secondary) > 0 {
			out = append(out, secondary[0])
			secondary = secondary[1:]
		}
	}
	return out
}
