package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mnemod/mnemod/internal/record"
)

// maxRecallDeadline mirrors the hard cap enforced by the recall engine.
const maxRecallDeadline = 500 * time.Millisecond

// scheduleParser accepts the standard 5-field cron syntax.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks the structural validity of a Config: the version field,
// value ranges, duration syntax, and the retention tier table. All problems
// are reported at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	errs = append(errs, cfg.Log.validate()...)
	errs = append(errs, cfg.Store.validate()...)
	errs = append(errs, cfg.Capture.validate()...)
	errs = append(errs, cfg.Dedup.validate()...)
	errs = append(errs, cfg.Quality.validate()...)
	errs = append(errs, cfg.Tracker.validate()...)
	errs = append(errs, cfg.Recall.validate()...)
	errs = append(errs, cfg.Profile.validate()...)
	errs = append(errs, cfg.Retention.validate()...)
	errs = append(errs, cfg.Gateway.validate()...)

	return errors.Join(errs...)
}

func (c LogConfig) validate() []error {
	var errs []error
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", c.Level))
	}
	switch c.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format %q is not text or json", c.Format))
	}
	return errs
}

func (c StoreConfig) validate() []error {
	var errs []error
	if c.Path == "" {
		errs = append(errs, errors.New("config: store.path is required"))
	}
	errs = append(errs, validateDuration("store.busy_timeout", c.BusyTimeout)...)
	if c.ReadConns < 0 {
		errs = append(errs, fmt.Errorf("config: store.read_conns must not be negative, got %d", c.ReadConns))
	}
	return errs
}

func (c CaptureConfig) validate() []error {
	var errs []error
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("config: capture.workers must be positive, got %d", c.Workers))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("config: capture.queue_size must be positive, got %d", c.QueueSize))
	}
	if c.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("config: capture.max_attempts must be positive, got %d", c.MaxAttempts))
	}
	errs = append(errs, validateDuration("capture.retry_initial_delay", c.RetryInitialDelay)...)
	errs = append(errs, validateDuration("capture.retry_max_delay", c.RetryMaxDelay)...)
	errs = append(errs, validateDuration("capture.drain_timeout", c.DrainTimeout)...)
	return errs
}

func (c DedupConfig) validate() []error {
	var errs []error
	if c.Window <= 0 {
		errs = append(errs, fmt.Errorf("config: dedup.window must be positive, got %d", c.Window))
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("config: dedup.threshold must be in (0, 1], got %g", c.Threshold))
	}
	return errs
}

func (c QualityConfig) validate() []error {
	var errs []error
	checks := []struct {
		field string
		value float64
	}{
		{"quality.tier1_threshold", c.Tier1Threshold},
		{"quality.tier2_threshold", c.Tier2Threshold},
		{"quality.tier3_threshold", c.Tier3Threshold},
	}
	for _, ch := range checks {
		if ch.value <= 0 || ch.value > 1 {
			errs = append(errs, fmt.Errorf("config: %s must be in (0, 1], got %g", ch.field, ch.value))
		}
	}
	return errs
}

func (c TrackerConfig) validate() []error {
	var errs []error
	if c.MaxUsers <= 0 {
		errs = append(errs, fmt.Errorf("config: tracker.max_users must be positive, got %d", c.MaxUsers))
	}
	if c.MaxTopics <= 0 {
		errs = append(errs, fmt.Errorf("config: tracker.max_topics must be positive, got %d", c.MaxTopics))
	}
	if c.PromoteThreads < 2 {
		errs = append(errs, fmt.Errorf("config: tracker.promote_threads must be at least 2, got %d", c.PromoteThreads))
	}
	return errs
}

func (c RecallConfig) validate() []error {
	var errs []error
	d, err := time.ParseDuration(c.DefaultDeadline)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("config: recall.default_deadline %q is not a duration: %w", c.DefaultDeadline, err))
	case d <= 0:
		errs = append(errs, fmt.Errorf("config: recall.default_deadline must be positive, got %s", d))
	case d > maxRecallDeadline:
		errs = append(errs, fmt.Errorf("config: recall.default_deadline %s exceeds the %s cap", d, maxRecallDeadline))
	}
	if c.MaxItems <= 0 || c.MaxItems > 20 {
		errs = append(errs, fmt.Errorf("config: recall.max_items must be in 1..20, got %d", c.MaxItems))
	}
	return errs
}

func (c ProfileConfig) validate() []error {
	var errs []error
	if c.MaxFacts <= 0 {
		errs = append(errs, fmt.Errorf("config: profile.max_facts must be positive, got %d", c.MaxFacts))
	}
	errs = append(errs, validateDuration("profile.ttl", c.TTL)...)
	return errs
}

func (c RetentionConfig) validate() []error {
	var errs []error
	if _, err := scheduleParser.Parse(c.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("config: retention.schedule %q: %w", c.Schedule, err))
	}
	errs = append(errs, validateDuration("retention.purge_grace", c.PurgeGrace)...)
	for name, raw := range c.TTL {
		if _, err := record.ParseTier(name); err != nil {
			errs = append(errs, fmt.Errorf("config: retention.ttl key %q is not a tier", name))
		}
		errs = append(errs, validateDuration("retention.ttl."+name, raw)...)
	}
	return errs
}

func (c GatewayConfig) validate() []error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		errs = append(errs, fmt.Errorf("config: gateway.listen %q is not host:port: %w", c.Listen, err))
	}
	errs = append(errs, validateDuration("gateway.read_timeout", c.ReadTimeout)...)
	errs = append(errs, validateDuration("gateway.write_timeout", c.WriteTimeout)...)
	return errs
}

// validateDuration checks that field holds a positive Go duration.
func validateDuration(field, raw string) []error {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return []error{fmt.Errorf("config: %s %q is not a duration: %w", field, raw, err)}
	}
	if d <= 0 {
		return []error{fmt.Errorf("config: %s must be positive, got %s", field, d)}
	}
	return nil
}
