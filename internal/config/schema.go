// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for mnemod.
package config

import (
	"log/slog"
	"time"

	"github.com/mnemod/mnemod/internal/record"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Capture   CaptureConfig   `yaml:"capture"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Quality   QualityConfig   `yaml:"quality"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Recall    RecallConfig    `yaml:"recall"`
	Profile   ProfileConfig   `yaml:"profile"`
	Retention RetentionConfig `yaml:"retention"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	cfg := &Config{Version: "1"}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	c.Log.defaults()
	c.Store.defaults()
	c.Capture.defaults()
	c.Dedup.defaults()
	c.Quality.defaults()
	c.Tracker.defaults()
	c.Recall.defaults()
	c.Profile.defaults()
	c.Retention.defaults()
	c.Gateway.defaults()
	c.Telemetry.defaults()
}

// LogConfig controls the structured logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

func (c *LogConfig) defaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

// SlogLevel maps the configured level onto slog's scale.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	// Path is the database file. Parent directories are created.
	Path string `yaml:"path"`

	// BusyTimeout is the SQLite busy handler timeout.
	BusyTimeout string `yaml:"busy_timeout"`

	// ReadConns bounds the read pool. Zero sizes it from GOMAXPROCS.
	ReadConns int `yaml:"read_conns"`
}

func (c *StoreConfig) defaults() {
	if c.Path == "" {
		c.Path = "mnemod.db"
	}
	if c.BusyTimeout == "" {
		c.BusyTimeout = "5s"
	}
}

// ParsedBusyTimeout returns the busy timeout as a time.Duration.
// Assumes the value has been checked by Validate.
func (c StoreConfig) ParsedBusyTimeout() time.Duration {
	return parsedOr(c.BusyTimeout, 5*time.Second)
}

// CaptureConfig sizes the asynchronous capture service.
type CaptureConfig struct {
	// Workers is the number of goroutines draining the inbox.
	Workers int `yaml:"workers"`

	// QueueSize bounds the inbox; a full inbox refuses new observations.
	QueueSize int `yaml:"queue_size"`

	// MaxAttempts bounds retries for transient store failures.
	MaxAttempts int `yaml:"max_attempts"`

	RetryInitialDelay string `yaml:"retry_initial_delay"`
	RetryMaxDelay     string `yaml:"retry_max_delay"`

	// DrainTimeout bounds how long shutdown waits for queued work.
	DrainTimeout string `yaml:"drain_timeout"`
}

func (c *CaptureConfig) defaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryInitialDelay == "" {
		c.RetryInitialDelay = "50ms"
	}
	if c.RetryMaxDelay == "" {
		c.RetryMaxDelay = "1s"
	}
	if c.DrainTimeout == "" {
		c.DrainTimeout = "5s"
	}
}

// ParsedRetryInitialDelay returns the first retry delay.
func (c CaptureConfig) ParsedRetryInitialDelay() time.Duration {
	return parsedOr(c.RetryInitialDelay, 50*time.Millisecond)
}

// ParsedRetryMaxDelay returns the backoff ceiling.
func (c CaptureConfig) ParsedRetryMaxDelay() time.Duration {
	return parsedOr(c.RetryMaxDelay, time.Second)
}

// ParsedDrainTimeout returns the shutdown drain bound.
func (c CaptureConfig) ParsedDrainTimeout() time.Duration {
	return parsedOr(c.DrainTimeout, 5*time.Second)
}

// DedupConfig tunes similarity matching.
type DedupConfig struct {
	// Window is how many recent records a new observation is compared
	// against.
	Window int `yaml:"window"`

	// Threshold is the similarity score at which two observations merge.
	Threshold float64 `yaml:"threshold"`
}

func (c *DedupConfig) defaults() {
	if c.Window <= 0 {
		c.Window = 50
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.75
	}
}

// QualityConfig sets the storage bars passive observations must clear, per
// target tier. Explicit saves bypass them. Tier1 sits lower because a fact
// already confirmed across threads has earned some trust.
type QualityConfig struct {
	Tier1Threshold float64 `yaml:"tier1_threshold"`
	Tier2Threshold float64 `yaml:"tier2_threshold"`
	Tier3Threshold float64 `yaml:"tier3_threshold"`
}

func (c *QualityConfig) defaults() {
	if c.Tier1Threshold <= 0 {
		c.Tier1Threshold = 0.62
	}
	if c.Tier2Threshold <= 0 {
		c.Tier2Threshold = 0.70
	}
	if c.Tier3Threshold <= 0 {
		c.Tier3Threshold = 0.70
	}
}

// TrackerConfig bounds the cross-thread topic tracker.
type TrackerConfig struct {
	MaxUsers  int `yaml:"max_users"`
	MaxTopics int `yaml:"max_topics"`

	// PromoteThreads is how many distinct threads a topic needs before
	// the next capture of it lands at tier1.
	PromoteThreads int `yaml:"promote_threads"`
}

func (c *TrackerConfig) defaults() {
	if c.MaxUsers <= 0 {
		c.MaxUsers = 1024
	}
	if c.MaxTopics <= 0 {
		c.MaxTopics = 256
	}
	if c.PromoteThreads <= 0 {
		c.PromoteThreads = 2
	}
}

// RecallConfig sets the defaults a recall request gets when it leaves the
// knobs unset. Hard caps live in the recall package and are not
// configurable.
type RecallConfig struct {
	DefaultDeadline string `yaml:"default_deadline"`
	MaxItems        int    `yaml:"max_items"`
}

func (c *RecallConfig) defaults() {
	if c.DefaultDeadline == "" {
		c.DefaultDeadline = "200ms"
	}
	if c.MaxItems <= 0 {
		c.MaxItems = 10
	}
}

// ParsedDefaultDeadline returns the default recall deadline.
func (c RecallConfig) ParsedDefaultDeadline() time.Duration {
	return parsedOr(c.DefaultDeadline, 200*time.Millisecond)
}

// ProfileConfig tunes the per-user profile cache.
type ProfileConfig struct {
	MaxFacts int    `yaml:"max_facts"`
	TTL      string `yaml:"ttl"`
}

func (c *ProfileConfig) defaults() {
	if c.MaxFacts <= 0 {
		c.MaxFacts = 12
	}
	if c.TTL == "" {
		c.TTL = "5m"
	}
}

// ParsedTTL returns the cache entry lifetime.
func (c ProfileConfig) ParsedTTL() time.Duration {
	return parsedOr(c.TTL, 5*time.Minute)
}

// RetentionConfig schedules the sweep and sets record lifetimes.
type RetentionConfig struct {
	// Schedule is a 5-field cron expression.
	Schedule string `yaml:"schedule"`

	// PurgeGrace is how long soft-deleted rows linger before the hard
	// purge.
	PurgeGrace string `yaml:"purge_grace"`

	// TTL maps tier names (tier1, tier2, tier3) to lifetimes.
	TTL map[string]string `yaml:"ttl"`
}

func (c *RetentionConfig) defaults() {
	if c.Schedule == "" {
		c.Schedule = "17 3 * * *"
	}
	if c.PurgeGrace == "" {
		c.PurgeGrace = "720h" // 30 days
	}
	if c.TTL == nil {
		c.TTL = map[string]string{
			"tier1": "8760h", // 365 days
			"tier2": "4320h", // 180 days
			"tier3": "2160h", // 90 days
		}
	}
}

// ParsedPurgeGrace returns the tombstone grace period.
func (c RetentionConfig) ParsedPurgeGrace() time.Duration {
	return parsedOr(c.PurgeGrace, 30*24*time.Hour)
}

// ParsedTTLs converts the tier lifetime table, skipping entries Validate
// would have rejected. An empty result means "use the built-in defaults".
func (c RetentionConfig) ParsedTTLs() map[record.Tier]time.Duration {
	ttls := make(map[record.Tier]time.Duration, len(c.TTL))
	for name, raw := range c.TTL {
		tier, err := record.ParseTier(name)
		if err != nil {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			continue
		}
		ttls[tier] = d
	}
	if len(ttls) == 0 {
		return nil
	}
	return ttls
}

// GatewayConfig configures the HTTP surface.
type GatewayConfig struct {
	// Listen is the host:port the HTTP server binds.
	Listen string `yaml:"listen"`

	// AuthToken protects every endpoint except health when set. Empty
	// disables auth, which only makes sense on loopback.
	AuthToken string `yaml:"auth_token"`

	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

func (c *GatewayConfig) defaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8077"
	}
	if c.ReadTimeout == "" {
		c.ReadTimeout = "10s"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "10s"
	}
}

// ParsedReadTimeout returns the server read timeout.
func (c GatewayConfig) ParsedReadTimeout() time.Duration {
	return parsedOr(c.ReadTimeout, 10*time.Second)
}

// ParsedWriteTimeout returns the server write timeout.
func (c GatewayConfig) ParsedWriteTimeout() time.Duration {
	return parsedOr(c.WriteTimeout, 10*time.Second)
}

// TelemetryConfig enables OTLP trace export. An empty endpoint disables
// tracing entirely.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

func (c *TelemetryConfig) defaults() {
	if c.ServiceName == "" {
		c.ServiceName = "mnemod"
	}
}

// parsedOr parses a duration string validated earlier, falling back to the
// default when it is somehow still invalid.
func parsedOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
