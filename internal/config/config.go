package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Config represents the main toolkit configuration
type Config struct {
	// Executor policies applied to every tool
	Executor ExecutorConfig `json:"executor" yaml:"executor" mapstructure:"executor"`

	// Logging
	Logging LoggingConfig `json:"logging" yaml:"logging" mapstructure:"logging"`

	// HTTP server
	Server ServerConfig `json:"server" yaml:"server" mapstructure:"server"`

	// Metrics
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" mapstructure:"metrics"`

	// Tracing
	Tracing TracingConfig `json:"tracing" yaml:"tracing" mapstructure:"tracing"`

	// Built-in tools
	Tools ToolsConfig `json:"tools" yaml:"tools" mapstructure:"tools"`
}

// ExecutorConfig holds executor-wide defaults
type ExecutorConfig struct {
	RetryBaseDelayMs int `json:"retry_base_delay_ms" yaml:"retry_base_delay_ms" mapstructure:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `json:"retry_max_delay_ms" yaml:"retry_max_delay_ms" mapstructure:"retry_max_delay_ms"`
	DefaultTimeoutMs int `json:"default_timeout_ms" yaml:"default_timeout_ms" mapstructure:"default_timeout_ms"` // 0 = none
	BatchLimit       int `json:"batch_limit" yaml:"batch_limit" mapstructure:"batch_limit"`                      // 0 = unbounded
}

// RetryBaseDelay returns the first backoff delay.
func (e ExecutorConfig) RetryBaseDelay() time.Duration {
	return time.Duration(e.RetryBaseDelayMs) * time.Millisecond
}

// RetryMaxDelay returns the backoff cap.
func (e ExecutorConfig) RetryMaxDelay() time.Duration {
	return time.Duration(e.RetryMaxDelayMs) * time.Millisecond
}

// DefaultTimeout returns the timeout for tools that declare none.
func (e ExecutorConfig) DefaultTimeout() time.Duration {
	return time.Duration(e.DefaultTimeoutMs) * time.Millisecond
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" mapstructure:"level"`
	File       string `json:"file" yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" mapstructure:"max_size_mb"` // 0 = never rotate
	MaxBackups int    `json:"max_backups" yaml:"max_backups" mapstructure:"max_backups"` // 0 = keep all
	Compress   bool   `json:"compress" yaml:"compress" mapstructure:"compress"`
	Console    bool   `json:"console" yaml:"console" mapstructure:"console"`
	Pretty     bool   `json:"pretty" yaml:"pretty" mapstructure:"pretty"`
	Redaction  bool   `json:"redaction" yaml:"redaction" mapstructure:"redaction"`
	AuditFile  string `json:"audit_file" yaml:"audit_file" mapstructure:"audit_file"` // empty = no audit log
}

// ServerConfig holds HTTP adapter configuration
type ServerConfig struct {
	Host               string `json:"host" yaml:"host" mapstructure:"host"`
	Port               int    `json:"port" yaml:"port" mapstructure:"port"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"` // 0 = unlimited
	RateLimitBurst     int    `json:"rate_limit_burst" yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	CachePurgeSchedule string `json:"cache_purge_schedule" yaml:"cache_purge_schedule" mapstructure:"cache_purge_schedule"` // cron spec, empty = never
	ShutdownTimeout    int    `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`             // seconds
	SharedSecret       string `json:"shared_secret" yaml:"shared_secret" mapstructure:"shared_secret"`                      // empty = unsigned
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
	Exporter    string  `json:"exporter" yaml:"exporter" mapstructure:"exporter"`             // "none" or "stdout"
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio" mapstructure:"sample_ratio"` // 0..1
}

// ToolsConfig configures the built-in tools
type ToolsConfig struct {
	WorkspaceRoot string `json:"workspace_root" yaml:"workspace_root" mapstructure:"workspace_root"`
	SearchURL     string `json:"search_url" yaml:"search_url" mapstructure:"search_url"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Executor: ExecutorConfig{
			RetryBaseDelayMs: 200,
			RetryMaxDelayMs:  10000,
			DefaultTimeoutMs: 0,
			BatchLimit:       0,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			Console:    true,
			Pretty:     true,
			Redaction:  true,
		},
		Server: ServerConfig{
			Host:               "127.0.0.1",
			Port:               8080,
			RateLimitPerMinute: 600,
			RateLimitBurst:     50,
			CachePurgeSchedule: "@every 10m",
			ShutdownTimeout:    10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "toolkit",
			Exporter:    "none",
			SampleRatio: 1,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}
