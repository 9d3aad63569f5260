// Package slogsink writes captured failures to a structured slog logger.
package slogsink

import (
	"context"
	"log/slog"

	"github.com/strongdm/errtrap/pkg/errtrap"
)

// Option configures the slog sink.
type Option func(*slogSink)

// WithLevel sets the level records are logged at (default: slog.LevelError).
func WithLevel(level slog.Level) Option {
	return func(s *slogSink) {
		s.level = level
	}
}

// WithTrace attaches the stack trace as a "trace" attribute.
func WithTrace() Option {
	return func(s *slogSink) {
		s.trace = true
	}
}

type slogSink struct {
	logger *slog.Logger
	level  slog.Level
	trace  bool
}

// New creates a sink that logs each record's log line as the message, with
// the record fields as attributes. A nil logger uses slog.Default().
func New(logger *slog.Logger, opts ...Option) errtrap.Sink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &slogSink{logger: logger, level: slog.LevelError}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *slogSink) Write(ctx context.Context, rec errtrap.ErrorRecord) error {
	attrs := []slog.Attr{
		slog.String("category", rec.Category),
		slog.Int("code", rec.Code),
		slog.String("file", rec.File),
		slog.Int("line", rec.Line),
		slog.String("correlation_id", rec.CorrelationID),
		slog.String("fingerprint", errtrap.Fingerprint(rec)),
		slog.Bool("handled", rec.WasExplicitlyHandled),
	}
	if uri := rec.URI(); uri != "" {
		attrs = append(attrs, slog.String("uri", uri))
	}
	if s.trace && len(rec.StackTrace) > 0 {
		attrs = append(attrs, slog.String("trace", rec.TraceString()))
	}
	s.logger.LogAttrs(ctx, s.level, rec.LogLine(), attrs...)
	return nil
}

func (s *slogSink) Flush(ctx context.Context) error { return nil }

func (s *slogSink) Close() error { return nil }
