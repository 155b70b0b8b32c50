package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct {
	cronParser cron.Parser
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateSchedule validates a cron spec or descriptor such as "@every 10m".
// An empty schedule is valid and disables the job.
func (v *Validator) ValidateSchedule(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := v.cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Executor
	if cfg.Executor.RetryBaseDelayMs < 0 {
		errors = append(errors, fmt.Errorf("executor.retry_base_delay_ms must be >= 0"))
	}
	if cfg.Executor.RetryMaxDelayMs < 0 {
		errors = append(errors, fmt.Errorf("executor.retry_max_delay_ms must be >= 0"))
	}
	if cfg.Executor.RetryMaxDelayMs > 0 && cfg.Executor.RetryMaxDelayMs < cfg.Executor.RetryBaseDelayMs {
		errors = append(errors, fmt.Errorf("executor.retry_max_delay_ms must be >= retry_base_delay_ms"))
	}
	if cfg.Executor.DefaultTimeoutMs < 0 {
		errors = append(errors, fmt.Errorf("executor.default_timeout_ms must be >= 0"))
	}
	if cfg.Executor.BatchLimit < 0 {
		errors = append(errors, fmt.Errorf("executor.batch_limit must be >= 0"))
	}

	// Server
	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, fmt.Errorf("server: %w", err))
	}
	if cfg.Server.RateLimitPerMinute < 0 {
		errors = append(errors, fmt.Errorf("server.rate_limit_per_minute must be >= 0"))
	}
	if cfg.Server.RateLimitPerMinute > 0 && cfg.Server.RateLimitBurst < 1 {
		errors = append(errors, fmt.Errorf("server.rate_limit_burst must be >= 1 when rate limiting is enabled"))
	}
	if err := v.ValidateSchedule(cfg.Server.CachePurgeSchedule); err != nil {
		errors = append(errors, fmt.Errorf("server.cache_purge_schedule: %w", err))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errors = append(errors, fmt.Errorf("server.shutdown_timeout must be >= 0"))
	}

	// Tracing
	if cfg.Tracing.Enabled && strings.TrimSpace(cfg.Tracing.ServiceName) == "" {
		errors = append(errors, fmt.Errorf("tracing.service_name is required when tracing is enabled"))
	}
	switch cfg.Tracing.Exporter {
	case "", "none", "stdout":
	default:
		errors = append(errors, fmt.Errorf("tracing.exporter must be one of none, stdout"))
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errors = append(errors, fmt.Errorf("tracing.sample_ratio must be between 0 and 1"))
	}

	// Tools
	if cfg.Tools.SearchURL != "" {
		if u, err := url.Parse(cfg.Tools.SearchURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Errorf("tools.search_url must be an absolute URL"))
		}
	}

	// Logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Logging.MaxSizeMB < 0 {
		errors = append(errors, fmt.Errorf("logging.max_size_mb must be >= 0"))
	}
	if cfg.Logging.MaxBackups < 0 {
		errors = append(errors, fmt.Errorf("logging.max_backups must be >= 0"))
	}

	return errors
}
