package cfg

import "time"

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	SourcesDir        string
	Port              string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Feed assembly
	BoostPlacement      string
	BoostLimit          int
	BoostInterval       int
	PageSize            int
	FetchMaxRetries     int
	FetchBaseDelayMs    int
	AutoplayFallbackMs  int
	VisibilityThreshold float64

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

func (c *Cfg) FetchBaseDelay() time.Duration {
	return time.Duration(c.FetchBaseDelayMs) * time.Millisecond
}

func (c *Cfg) AutoplayFallback() time.Duration {
	return time.Duration(c.AutoplayFallbackMs) * time.Millisecond
}
