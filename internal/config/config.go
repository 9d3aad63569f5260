// Package config loads the settings of the errtrap example programs.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/strongdm/errtrap/pkg/errtrap"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the top-level configuration.
type Config struct {
	// Logging configures the error log and the program's own logger.
	Logging LoggingConfig `yaml:"logging" toml:"logging"`

	// ReportingLevel lists the severities handed to the signal hook, using
	// E_* names or Go constant names. A leading "-" or "~" removes a
	// severity. Empty means all.
	ReportingLevel []string `yaml:"reporting_level" toml:"reporting_level"`

	// DeveloperMode selects detailed report pages for every request.
	DeveloperMode bool `yaml:"developer_mode" toml:"developer_mode"`

	// Timezone is the IANA zone report times are shown in. Empty means local.
	Timezone string `yaml:"timezone" toml:"timezone"`

	// Title is the report page title.
	Title string `yaml:"title" toml:"title"`

	Trace  TraceConfig  `yaml:"trace" toml:"trace"`
	Scrub  ScrubConfig  `yaml:"scrub" toml:"scrub"`
	Sinks  SinksConfig  `yaml:"sinks" toml:"sinks"`
	Server ServerConfig `yaml:"server" toml:"server"`
}

// LoggingConfig defines logging options.
type LoggingConfig struct {
	// Enabled writes one line per captured failure to the configured sinks.
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Level is the minimum level of the program logger (debug, info, warn, error).
	Level string `yaml:"level" toml:"level"`

	// Format is text or json.
	Format string `yaml:"format" toml:"format"`
}

// TraceConfig selects the stack source.
type TraceConfig struct {
	// Enhanced uses the enhanced trace source when available.
	Enhanced bool `yaml:"enhanced" toml:"enhanced"`
}

// ScrubConfig controls scrubbing of the copies written to sinks.
type ScrubConfig struct {
	Enabled        bool `yaml:"enabled" toml:"enabled"`
	MaxMessageSize int  `yaml:"max_message_size" toml:"max_message_size"`
	MaxFrames      int  `yaml:"max_frames" toml:"max_frames"`
}

// SinksConfig lists the log destinations.
type SinksConfig struct {
	// Stderr writes log lines to standard error.
	Stderr bool `yaml:"stderr" toml:"stderr"`

	// Verbose adds stack traces to stderr output.
	Verbose bool `yaml:"verbose" toml:"verbose"`

	// Slog writes records through the program logger.
	Slog bool `yaml:"slog" toml:"slog"`

	// Async queues writes in the background.
	Async     bool `yaml:"async" toml:"async"`
	QueueSize int  `yaml:"queue_size" toml:"queue_size"`

	CXDB CXDBConfig `yaml:"cxdb" toml:"cxdb"`
}

// CXDBConfig configures the cxdb sink.
type CXDBConfig struct {
	Enabled   bool     `yaml:"enabled" toml:"enabled"`
	Addr      string   `yaml:"addr" toml:"addr"`
	ClientTag string   `yaml:"client_tag" toml:"client_tag"`
	Labels    []string `yaml:"labels" toml:"labels"`
}

// ServerConfig configures the example HTTP server.
type ServerConfig struct {
	Addr            string        `yaml:"addr" toml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	Buffered        bool          `yaml:"buffered" toml:"buffered"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Format:  "text",
		},
		Title: errtrap.DefaultTitle,
		Trace: TraceConfig{Enhanced: true},
		Scrub: ScrubConfig{
			MaxMessageSize: 4096,
			MaxFrames:      32,
		},
		Sinks: SinksConfig{
			Stderr:    true,
			QueueSize: 1000,
			CXDB: CXDBConfig{
				Addr:      "localhost:9009",
				ClientTag: "errtrap",
				Labels:    []string{"error", "unlinked"},
			},
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Buffered:        true,
		},
	}
}

// Severity resolves ReportingLevel to a mask.
func (c *Config) Severity() (errtrap.Severity, error) {
	if len(c.ReportingLevel) == 0 {
		return errtrap.SeverityAll, nil
	}
	return errtrap.ParseSeverity(c.ReportingLevel)
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// ScrubberConfig converts the scrub section.
func (c *Config) ScrubberConfig() errtrap.ScrubberConfig {
	cfg := errtrap.DefaultScrubberConfig()
	if c.Scrub.MaxMessageSize > 0 {
		cfg.MaxMessageSize = c.Scrub.MaxMessageSize
	}
	if c.Scrub.MaxFrames > 0 {
		cfg.MaxFrames = c.Scrub.MaxFrames
	}
	return cfg
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if !slices.Contains(logLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("%w: logging.level must be one of %v, got %q", ErrInvalidConfig, logLevels, c.Logging.Level)
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Logging.Format)) {
		return fmt.Errorf("%w: logging.format must be one of %v, got %q", ErrInvalidConfig, logFormats, c.Logging.Format)
	}
	if _, err := c.Severity(); err != nil {
		return fmt.Errorf("%w: reporting_level: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: timezone: %w", ErrInvalidConfig, err)
	}
	if c.Sinks.Async && c.Sinks.QueueSize <= 0 {
		return fmt.Errorf("%w: sinks.queue_size must be positive", ErrInvalidConfig)
	}
	if c.Sinks.CXDB.Enabled && c.Sinks.CXDB.Addr == "" {
		return fmt.Errorf("%w: sinks.cxdb.addr is required when cxdb is enabled", ErrInvalidConfig)
	}
	return nil
}
