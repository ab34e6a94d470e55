package source

import (
	"time"

	"github.com/lysyi3m/event-feed/app/feed"
)

const (
	// KindAuto maps entries with video enclosures to posts and everything else to events.
	KindAuto = "auto"

	DefaultRefreshInterval = 3600
	DefaultMaxItems        = 100
	DefaultTimeout         = 30
)

// Config describes one syndicated calendar or post feed. Name is derived
// from the file name.
type Config struct {
	Name     string   `yaml:"-"`
	URL      string   `yaml:"url"`
	Kind     string   `yaml:"kind"`
	Location string   `yaml:"location"`
	Distance *float64 `yaml:"distance"`
	Author   Author   `yaml:"author"`
	Settings Settings `yaml:"settings"`
}

type Author struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type Settings struct {
	Enabled         bool `yaml:"enabled"`
	RefreshInterval int  `yaml:"refresh_interval"` // seconds
	MaxItems        int  `yaml:"max_items"`
	Timeout         int  `yaml:"timeout"` // seconds
}

func (s Settings) RefreshEvery() time.Duration {
	return time.Duration(s.RefreshInterval) * time.Second
}

func (s Settings) TimeoutAfter() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// ItemKind resolves the kind for one imported entry.
func (c *Config) ItemKind(hasVideo bool) feed.Kind {
	switch c.Kind {
	case string(feed.KindEvent):
		return feed.KindEvent
	case string(feed.KindPost):
		return feed.KindPost
	default:
		if hasVideo {
			return feed.KindPost
		}
		return feed.KindEvent
	}
}
