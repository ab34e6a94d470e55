package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/event-feed.db" description:"SQLite database file"`

	// Application configuration
	SourcesDir        string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of background workers for source imports"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"30" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Feed assembly
	BoostPlacement      string  `long:"boost-placement" env:"BOOST_PLACEMENT" default:"home_feed" description:"Placement key used when reading boost rows"`
	BoostLimit          int     `long:"boost-limit" env:"BOOST_LIMIT" default:"10" description:"Maximum boost rows per load"`
	BoostInterval       int     `long:"boost-interval" env:"BOOST_INTERVAL" default:"4" description:"Organic items between injected boosts"`
	PageSize            int     `long:"page-size" env:"PAGE_SIZE" default:"20" description:"Organic items per page"`
	FetchMaxRetries     int     `long:"fetch-max-retries" env:"FETCH_MAX_RETRIES" default:"3" description:"Retries for idempotent reads"`
	FetchBaseDelayMs    int     `long:"fetch-base-delay" env:"FETCH_BASE_DELAY_MS" default:"500" description:"Base backoff delay in milliseconds"`
	AutoplayFallbackMs  int     `long:"autoplay-fallback" env:"AUTOPLAY_FALLBACK_MS" default:"3000" description:"Autoplay unlock fallback in milliseconds"`
	VisibilityThreshold float64 `long:"visibility-threshold" env:"VISIBILITY_THRESHOLD" default:"0.6" description:"Visible fraction required to activate an item"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Event Feed/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return parse(nil)
}

func parse(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:              raw.DBPath,
		SourcesDir:          raw.SourcesDir,
		Port:                raw.Port,
		WorkerCount:         raw.WorkerCount,
		SchedulerInterval:   raw.SchedulerInterval,
		APIAccessKey:        raw.APIAccessKey,
		BoostPlacement:      raw.BoostPlacement,
		BoostLimit:          raw.BoostLimit,
		BoostInterval:       raw.BoostInterval,
		PageSize:            raw.PageSize,
		FetchMaxRetries:     raw.FetchMaxRetries,
		FetchBaseDelayMs:    raw.FetchBaseDelayMs,
		AutoplayFallbackMs:  raw.AutoplayFallbackMs,
		VisibilityThreshold: raw.VisibilityThreshold,
		UserAgent:           raw.UserAgent,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(cfg *Cfg) error {
	if cfg.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if cfg.BoostInterval < 1 {
		return fmt.Errorf("boost interval must be at least 1")
	}
	if cfg.PageSize < 1 {
		return fmt.Errorf("page size must be at least 1")
	}
	if cfg.FetchMaxRetries < 0 {
		return fmt.Errorf("fetch max retries must be non-negative")
	}
	if cfg.VisibilityThreshold <= 0 || cfg.VisibilityThreshold > 1 {
		return fmt.Errorf("visibility threshold must be in (0, 1]")
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
