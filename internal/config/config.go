// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat and map 1:1 to FACEGATE_<KEY> environment variables.
// - Provide New() to build a Config with defaults.
// - External errors must be wrapped with this package's sentinels.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`
	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// CORSOrigins lists origins allowed to call the API.
	CORSOrigins []string `koanf:"cors_origins"`
	// MetricsEnabled turns metric recording on; /metrics is served either way.
	MetricsEnabled bool `koanf:"metrics_enabled"`
	// MetricsRefresh is how often runtime gauges are sampled.
	MetricsRefresh time.Duration `koanf:"metrics_refresh"`

	// GalleryPath points at the enrolled gallery (.json or .msgpack).
	GalleryPath string `koanf:"gallery_path"`
	// GalleryMode is "all" (nearest sample) or "mean" (one centroid per identity).
	GalleryMode string `koanf:"gallery_mode"`
	// DatasetDir holds labelled face images for POST /api/gallery/enroll.
	DatasetDir string `koanf:"dataset_dir"`
	// MatchThreshold is the minimum confidence for a known identity.
	MatchThreshold float64 `koanf:"match_threshold"`

	// LedgerBackend is "json" or "sqlite".
	LedgerBackend string `koanf:"ledger_backend"`
	LedgerPath    string `koanf:"ledger_path"`
	LedgerDSN     string `koanf:"ledger_dsn"`
	// DebouncePolicy is "cooldown" or "session".
	DebouncePolicy string        `koanf:"debounce_policy"`
	Cooldown       time.Duration `koanf:"cooldown"`
	// Timezone decides the ledger's day boundary, e.g. "Local" or "Europe/Berlin".
	Timezone string `koanf:"timezone"`

	// Default source ids used when a start request omits them.
	EntrySource string `koanf:"entry_source"`
	ExitSource  string `koanf:"exit_source"`

	FrameStride     int           `koanf:"frame_stride"`
	MaxReadFailures int           `koanf:"max_read_failures"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	RetryBackoff    time.Duration `koanf:"retry_backoff"`
	TargetPeriod    time.Duration `koanf:"target_period"`
	MinSleep        time.Duration `koanf:"min_sleep"`
	LatencyWindow   int           `koanf:"latency_window"`
	StopTimeout     time.Duration `koanf:"stop_timeout"`

	DetectorURL         string        `koanf:"detector_url"`
	DetectorTimeout     time.Duration `koanf:"detector_timeout"`
	DetectorMaxSide     int           `koanf:"detector_max_side"`
	DetectorJPEGQuality int           `koanf:"detector_jpeg_quality"`

	NotifyQueueSize int `koanf:"notify_queue_size"`
	NotifyWorkers   int `koanf:"notify_workers"`
	// MQTTBroker enables event publication when set, e.g. "tcp://localhost:1883".
	MQTTBroker   string `koanf:"mqtt_broker"`
	MQTTTopic    string `koanf:"mqtt_topic"`
	MQTTClientID string `koanf:"mqtt_client_id"`
	MQTTQoS      int    `koanf:"mqtt_qos"`

	FlushInterval time.Duration `koanf:"flush_interval"`
	// PruneAt is the daily "HH:MM" at which stale debounce state is dropped.
	PruneAt string `koanf:"prune_at"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:    "info",
		LogFormat:   "text",
		Addr:        ":9080",
		CORSOrigins: []string{"*"},

		MetricsEnabled: true,
		MetricsRefresh: 10 * time.Second,

		GalleryPath:    "data/gallery.json",
		GalleryMode:    "all",
		DatasetDir:     "data/dataset",
		MatchThreshold: 0.6,

		LedgerBackend:  "json",
		LedgerPath:     "data/attendance.json",
		LedgerDSN:      "data/attendance.db",
		DebouncePolicy: "cooldown",
		Cooldown:       60 * time.Second,
		Timezone:       "Local",

		EntrySource: "0",
		ExitSource:  "1",

		FrameStride:     5,
		MaxReadFailures: 3,
		ReadTimeout:     2 * time.Second,
		RetryBackoff:    500 * time.Millisecond,
		TargetPeriod:    200 * time.Millisecond,
		MinSleep:        50 * time.Millisecond,
		LatencyWindow:   30,
		StopTimeout:     5 * time.Second,

		DetectorURL:         "http://localhost:8000",
		DetectorTimeout:     10 * time.Second,
		DetectorMaxSide:     640,
		DetectorJPEGQuality: 90,

		NotifyQueueSize: 1024,
		NotifyWorkers:   2,
		MQTTTopic:       "facegate/attendance",
		MQTTClientID:    "facegate",
		MQTTQoS:         1,

		FlushInterval: 30 * time.Second,
		PruneAt:       "00:05",
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.MatchThreshold <= 0 || c.MatchThreshold > 1:
		return fmt.Errorf("%w: match_threshold must be in (0,1], got %v", ErrInvalidConfig, c.MatchThreshold)
	case c.GalleryMode != "all" && c.GalleryMode != "mean":
		return fmt.Errorf("%w: gallery_mode must be all or mean, got %q", ErrInvalidConfig, c.GalleryMode)
	case c.LedgerBackend != "json" && c.LedgerBackend != "sqlite":
		return fmt.Errorf("%w: ledger_backend must be json or sqlite, got %q", ErrInvalidConfig, c.LedgerBackend)
	case c.DebouncePolicy != "cooldown" && c.DebouncePolicy != "session":
		return fmt.Errorf("%w: debounce_policy must be cooldown or session, got %q", ErrInvalidConfig, c.DebouncePolicy)
	case c.DebouncePolicy == "cooldown" && c.Cooldown <= 0:
		return fmt.Errorf("%w: cooldown must be positive", ErrInvalidConfig)
	case c.FrameStride < 1:
		return fmt.Errorf("%w: frame_stride must be >= 1", ErrInvalidConfig)
	case c.MaxReadFailures < 1:
		return fmt.Errorf("%w: max_read_failures must be >= 1", ErrInvalidConfig)
	case c.MinSleep < 0 || c.TargetPeriod < 0:
		return fmt.Errorf("%w: pacing durations must not be negative", ErrInvalidConfig)
	case c.MetricsRefresh <= 0:
		return fmt.Errorf("%w: metrics_refresh must be positive", ErrInvalidConfig)
	case c.MQTTQoS < 0 || c.MQTTQoS > 2:
		return fmt.Errorf("%w: mqtt_qos must be 0, 1 or 2", ErrInvalidConfig)
	}
	if _, err := time.Parse("15:04", c.PruneAt); err != nil {
		return fmt.Errorf("%w: prune_at must be HH:MM, got %q", ErrInvalidConfig, c.PruneAt)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
