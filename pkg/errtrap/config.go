// config.go holds the handler-wide settings read on every capture.

package errtrap

import (
	"context"
	"sync/atomic"
)

// Config is the handler-wide configuration. It is written by
// Handler.Initialize and Handler.SetDeveloperMode and read by the capture
// hooks, possibly from many requests at once.
type Config struct {
	loggingEnabled atomic.Bool
	reportingLevel atomic.Int64
	verboseReports atomic.Bool
}

// LoggingEnabled reports whether captured failures are written to the sink.
func (c *Config) LoggingEnabled() bool {
	return c.loggingEnabled.Load()
}

// ReportingLevel is the severity mask recorded at initialization.
func (c *Config) ReportingLevel() Severity {
	return Severity(c.reportingLevel.Load())
}

// Verbose returns the verbosity for the request in ctx: the request-level
// developer mode when one was set, the handler-wide one otherwise.
// Defaults to false.
func (c *Config) Verbose(ctx context.Context) bool {
	if isDev, ok := requestDeveloperMode(ctx); ok {
		return isDev
	}
	return c.verboseReports.Load()
}
