// builder.go assembles ErrorRecords and drives logging and rendering.

package errtrap

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// correlationIDLength is the number of hex characters kept from the hash.
const correlationIDLength = 5

// NewCorrelationID returns a short, human-quotable token: the first five hex
// characters of an MD5 over a fresh random UUID. Uniqueness is best-effort.
func NewCorrelationID() string {
	sum := md5.Sum([]byte(uuid.NewString()))
	return hex.EncodeToString(sum[:])[:correlationIDLength]
}

// Raw is the input to Build: what a capture hook knows about a failure.
type Raw struct {
	Message    string
	Category   string
	Code       int
	File       string
	Line       int
	Trace      []Frame
	WasHandled bool
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithSink sets the sink that receives one record per capture when logging
// is enabled.
func WithSink(sink Sink) BuilderOption {
	return func(b *Builder) {
		b.sink = sink
	}
}

// WithRenderer replaces the HTML renderer.
func WithRenderer(r Renderer) BuilderOption {
	return func(b *Builder) {
		b.renderer = r
	}
}

// WithIDGenerator replaces NewCorrelationID.
func WithIDGenerator(gen func() string) BuilderOption {
	return func(b *Builder) {
		b.newID = gen
	}
}

// WithTimezone sets the location report times are shown in.
func WithTimezone(loc *time.Location) BuilderOption {
	return func(b *Builder) {
		if loc != nil {
			b.location = loc
		}
	}
}

// WithLogger sets the logger used for sink and render failures.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithScrubbing scrubs the copy of each record handed to the sink. The
// logged line then no longer carries the message and file verbatim: secrets
// become [REDACTED], user directories become [PATH] and long messages are
// truncated. The correlation id, category and line are kept, and the report
// page still shows the unscrubbed record.
func WithScrubbing(cfg ScrubberConfig) BuilderOption {
	return func(b *Builder) {
		b.scrubber = NewScrubber(cfg)
	}
}

// WithDefaultScrubbing is WithScrubbing(DefaultScrubberConfig()).
func WithDefaultScrubbing() BuilderOption {
	return WithScrubbing(DefaultScrubberConfig())
}

// WithEnvironment sets the environment used when a context carries no
// request scope.
func WithEnvironment(env Environment) BuilderOption {
	return func(b *Builder) {
		if env != nil {
			b.fallbackEnv = env
		}
	}
}

// WithRuntimeInfo overrides the runtime version and OS stamped on records.
func WithRuntimeInfo(info RuntimeInfo) BuilderOption {
	return func(b *Builder) {
		b.runtime = info
	}
}

// Builder turns raw failure data into ErrorRecords, logs them and renders
// the report page.
type Builder struct {
	sink        Sink
	renderer    Renderer
	scrubber    *Scrubber
	newID       func() string
	location    *time.Location
	logger      *slog.Logger
	fallbackEnv Environment
	runtime     RuntimeInfo
}

// NewBuilder creates a Builder with the given options.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		sink:        &noopSinkInternal{},
		renderer:    NewHTMLRenderer(""),
		newID:       NewCorrelationID,
		location:    time.Local,
		logger:      slog.Default(),
		fallbackEnv: ProcessEnvironment(),
		runtime:     CurrentRuntime(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.sink == nil {
		b.sink = &noopSinkInternal{}
	}
	return b
}

// Build assembles the record for raw, stamping the environment of the
// request in ctx and a fresh correlation id.
func (b *Builder) Build(ctx context.Context, raw Raw) ErrorRecord {
	env, ok := EnvironmentFromContext(ctx)
	if !ok {
		env = b.fallbackEnv
	}

	rec := ErrorRecord{
		Category:             raw.Category,
		Code:                 raw.Code,
		Message:              raw.Message,
		File:                 raw.File,
		Line:                 raw.Line,
		StackTrace:           raw.Trace,
		CapturedAt:           env.RequestTime().In(b.location),
		RuntimeVersion:       b.runtime.Version,
		OSName:               b.runtime.OS,
		RequestURI:           env.RequestURI(),
		RequestHost:          env.RequestHost(),
		ScriptPath:           env.ScriptPath(),
		Referer:              env.Referer(),
		WasExplicitlyHandled: raw.WasHandled,
	}

	// Generated last: the id never takes part in classification.
	rec.CorrelationID = b.newID()
	return rec
}

// Capture builds the record for raw, writes it to the sink when logging is
// enabled in cfg, and renders the page in the verbosity effective for ctx.
// The returned outcome is always terminal.
func (b *Builder) Capture(ctx context.Context, raw Raw, cfg *Config) Outcome {
	rec := b.Build(ctx, raw)

	if cfg.LoggingEnabled() {
		logged := rec
		if b.scrubber != nil {
			logged = b.scrubber.ScrubRecord(rec)
		}
		// Sink failures never prevent the report.
		if err := b.sink.Write(ctx, logged); err != nil {
			b.logger.Warn("errtrap: sink write failed",
				"correlation_id", rec.CorrelationID,
				"error", err,
			)
		}
	}

	verbose := cfg.Verbose(ctx)
	body, err := b.renderer.Render(rec, verbose)
	if err != nil {
		b.logger.Error("errtrap: render failed",
			"correlation_id", rec.CorrelationID,
			"verbose", verbose,
			"error", err,
		)
		body = fallbackPage(rec)
	}
	return terminate(rec, body)
}

// Flush flushes the sink.
func (b *Builder) Flush(ctx context.Context) error {
	return b.sink.Flush(ctx)
}

// Close closes the sink.
func (b *Builder) Close() error {
	return b.sink.Close()
}
