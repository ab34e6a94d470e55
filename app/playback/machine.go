// Package playback derives per-item video state from the active index. A
// video plays only when its item is active, not paused by the user, the
// autoplay gate is open and the item actually carries video.
package playback

import (
	"log/slog"
	"sync"
)

type ActionType int

const (
	ActionSetActive ActionType = iota
	ActionSetLength
	ActionTogglePause
	ActionToggleMute
	ActionUnlock
)

func (a ActionType) String() string {
	switch a {
	case ActionSetActive:
		return "set_active"
	case ActionSetLength:
		return "set_length"
	case ActionTogglePause:
		return "toggle_pause"
	case ActionToggleMute:
		return "toggle_mute"
	case ActionUnlock:
		return "unlock"
	default:
		return "unknown"
	}
}

type Action struct {
	Type  ActionType
	Value int
}

func SetActive(index int) Action { return Action{Type: ActionSetActive, Value: index} }
func SetLength(n int) Action     { return Action{Type: ActionSetLength, Value: n} }
func TogglePause() Action        { return Action{Type: ActionTogglePause} }
func ToggleMute() Action         { return Action{Type: ActionToggleMute} }
func Unlock() Action             { return Action{Type: ActionUnlock} }

// State is the whole playback state. Pause applies to the active item only
// and is cleared whenever the active index moves.
type State struct {
	Active   int
	Length   int
	Paused   bool
	Muted    bool
	Unlocked bool
}

// InitialState starts muted and locked, which is what autoplay policies allow.
func InitialState() State {
	return State{Muted: true}
}

// Reduce applies one action. It never mutates its input.
func Reduce(s State, a Action) State {
	switch a.Type {
	case ActionSetActive:
		index := clamp(a.Value, s.Length)
		if index != s.Active {
			s.Paused = false
		}
		s.Active = index
	case ActionSetLength:
		n := a.Value
		if n < 0 {
			n = 0
		}
		s.Length = n
		if index := clamp(s.Active, n); index != s.Active {
			s.Active = index
			s.Paused = false
		}
	case ActionTogglePause:
		if s.Length > 0 {
			s.Paused = !s.Paused
		}
	case ActionToggleMute:
		s.Muted = !s.Muted
	case ActionUnlock:
		s.Unlocked = true
	}
	return s
}

// ItemState is what the presentation layer needs for one rendered item.
type ItemState struct {
	Index   int  `json:"index"`
	Active  bool `json:"active"`
	Mounted bool `json:"mounted"`
	Playing bool `json:"playing"`
	Paused  bool `json:"paused"`
	Muted   bool `json:"muted"`
}

// Item derives the state of the item at index.
func (s State) Item(index int, hasVideo bool) ItemState {
	active := s.Length > 0 && index == s.Active
	mounted := hasVideo && index >= 0 && index < s.Length && abs(index-s.Active) <= 1

	item := ItemState{
		Index:   index,
		Active:  active,
		Mounted: mounted,
		Paused:  active && s.Paused,
		Muted:   true,
	}
	item.Playing = active && !s.Paused && s.Unlocked && hasVideo
	if item.Playing {
		item.Muted = s.Muted
	}
	return item
}

// Machine serializes dispatches against a single State.
type Machine struct {
	mu    sync.RWMutex
	state State
}

func NewMachine() *Machine {
	return &Machine{state: InitialState()}
}

func (m *Machine) Dispatch(a Action) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Reduce(m.state, a)
	slog.Debug("Playback action", "action", a.Type.String(), "value", a.Value, "active", m.state.Active)
	return m.state
}

func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Items derives item states for a list where hasVideo[i] reports whether the
// item at i carries video.
func (m *Machine) Items(hasVideo []bool) []ItemState {
	state := m.State()
	items := make([]ItemState, len(hasVideo))
	for i, video := range hasVideo {
		items[i] = state.Item(i, video)
	}
	return items
}

func clamp(index, length int) int {
	if length <= 0 || index < 0 {
		return 0
	}
	if index > length-1 {
		return length - 1
	}
	return index
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
