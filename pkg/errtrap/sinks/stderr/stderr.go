// Package stderr provides a sink that writes one log line per captured failure.
// This is the default destination for the error log.
package stderr

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/strongdm/errtrap/pkg/errtrap"
)

// StderrSinkOption configures the stderr sink.
type StderrSinkOption func(*stderrSinkConfig)

type stderrSinkConfig struct {
	verbose bool
	out     io.Writer
}

// WithVerbose appends the stack trace below each log line.
func WithVerbose() StderrSinkOption {
	return func(c *stderrSinkConfig) {
		c.verbose = true
	}
}

// WithWriter sends output to w instead of os.Stderr.
func WithWriter(w io.Writer) StderrSinkOption {
	return func(c *stderrSinkConfig) {
		if w != nil {
			c.out = w
		}
	}
}

// stderrSink writes log lines to stderr.
type stderrSink struct {
	verbose bool

	mu  sync.Mutex
	out io.Writer
}

// NewStderrSink creates a sink that writes to stderr.
func NewStderrSink(opts ...StderrSinkOption) errtrap.Sink {
	cfg := &stderrSinkConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return &stderrSink{
		verbose: cfg.verbose,
		out:     cfg.out,
	}
}

// Write outputs the record's log line:
// <category>: <message> in <file>:<line> [<correlationId>]
func (s *stderrSink) Write(ctx context.Context, rec errtrap.ErrorRecord) error {
	var b strings.Builder
	b.WriteString(rec.LogLine())
	b.WriteByte('\n')

	// Stack trace (only in verbose mode)
	if s.verbose && len(rec.StackTrace) > 0 {
		b.WriteString("        Stack trace:\n")
		for _, line := range strings.Split(strings.TrimRight(rec.TraceString(), "\n"), "\n") {
			fmt.Fprintf(&b, "          %s\n", line)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.out
	if out == nil {
		// Resolved per write so tests can swap os.Stderr.
		out = os.Stderr
	}
	if _, err := io.WriteString(out, b.String()); err != nil {
		return fmt.Errorf("write log line: %w", err)
	}
	return nil
}

// Flush is a no-op for stderr sink.
func (s *stderrSink) Flush(ctx context.Context) error {
	return nil
}

// Close is a no-op for stderr sink.
func (s *stderrSink) Close() error {
	return nil
}
