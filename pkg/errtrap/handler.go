// handler.go installs the capture hooks on a Host and owns their configuration.

package errtrap

import (
	"context"
	"sync"
)

// Option configures a Handler.
type Option func(*handlerOptions)

type handlerOptions struct {
	builder     *Builder
	traceSource TraceSource
}

// WithBuilder sets the record builder used by every hook.
func WithBuilder(b *Builder) Option {
	return func(o *handlerOptions) {
		o.builder = b
	}
}

// WithTraceSource sets the stack source. The enhanced or standard path is
// chosen once, when the Handler is created.
func WithTraceSource(src TraceSource) Option {
	return func(o *handlerOptions) {
		o.traceSource = src
	}
}

// Handler is the installation point for the three capture hooks. The
// application's startup sequence owns it; tests can Initialize and
// Uninstall it against a fake Host.
type Handler struct {
	cfg     *Config
	builder *Builder
	traces  *TraceCollector

	mu   sync.Mutex
	host Host
}

// New creates a Handler. Reports are anonymous until SetDeveloperMode(true)
// is called.
func New(opts ...Option) *Handler {
	o := &handlerOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.builder == nil {
		o.builder = NewBuilder()
	}
	return &Handler{
		cfg:     &Config{},
		builder: o.builder,
		traces:  NewTraceCollector(o.traceSource),
	}
}

// Initialize disables the host's default error display, records the host's
// reporting level, stores loggingEnabled and registers the uncaught-fault,
// runtime-signal and end-of-request hooks. Initializing again replaces the
// hooks on the previous host.
func (h *Handler) Initialize(host Host, loggingEnabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.host != nil && h.host != host {
		clearHooks(h.host)
	}

	host.DisableDefaultDisplay()
	level := host.ReportingLevel()
	h.cfg.reportingLevel.Store(int64(level))
	h.cfg.loggingEnabled.Store(loggingEnabled)

	host.OnUncaughtFault(uncaughtFaultHook(h.builder, h.cfg, h.traces))
	host.OnRuntimeSignal(runtimeSignalHook(h.builder, h.cfg, h.traces), level)
	host.OnProcessExit(processExitHook(host, h.builder, h.cfg, h.traces))
	h.host = host
}

// Install is Initialize.
func (h *Handler) Install(host Host, loggingEnabled bool) {
	h.Initialize(host, loggingEnabled)
}

// Uninstall removes the hooks from the host they were installed on.
func (h *Handler) Uninstall() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.host == nil {
		return
	}
	clearHooks(h.host)
	h.host = nil
}

func clearHooks(host Host) {
	host.OnUncaughtFault(nil)
	host.OnRuntimeSignal(nil, 0)
	host.OnProcessExit(nil)
}

// SetDeveloperMode switches between detailed and anonymous reports for every
// request that has not set its own mode with SetRequestDeveloperMode.
func (h *Handler) SetDeveloperMode(isDeveloper bool) {
	h.cfg.verboseReports.Store(isDeveloper)
}

// Config returns the handler-wide configuration.
func (h *Handler) Config() *Config {
	return h.cfg
}

// Handle reports an error the caller caught itself exactly like an uncaught
// one, with category "Caught <Type>". The error's own stack is used when it
// carries one (see WithStack), otherwise the caller's. The returned outcome
// is terminal: the caller must end the request with it. A nil err yields
// Continue.
func (h *Handler) Handle(ctx context.Context, err error) Outcome {
	if err == nil {
		return Continue()
	}

	f := FaultFromError(err)
	trace := f.Trace
	if len(trace) == 0 {
		trace = h.traces.Capture()
		if f.File == "" && len(trace) > 0 {
			f.File, f.Line = trace[0].File, trace[0].Line
		}
	}

	return h.builder.Capture(ctx, Raw{
		Message:    f.Message,
		Category:   "Caught " + f.TypeName,
		Code:       f.Code,
		File:       f.File,
		Line:       f.Line,
		Trace:      trace,
		WasHandled: true,
	}, h.cfg)
}

// Flush flushes the builder's sink.
func (h *Handler) Flush(ctx context.Context) error {
	return h.builder.Flush(ctx)
}

// Close closes the builder's sink.
func (h *Handler) Close() error {
	return h.builder.Close()
}

func uncaughtFaultHook(b *Builder, cfg *Config, traces *TraceCollector) FaultHook {
	return func(ctx context.Context, f Fault) Outcome {
		return b.Capture(ctx, Raw{
			Message:  "Uncaught " + f.TypeName + ": " + f.Message,
			Category: Classify(f.Code),
			Code:     f.Code,
			File:     f.File,
			Line:     f.Line,
			Trace:    traces.Capture(),
		}, cfg)
	}
}

func runtimeSignalHook(b *Builder, cfg *Config, traces *TraceCollector) SignalHook {
	return func(ctx context.Context, s Signal) Outcome {
		return b.Capture(ctx, Raw{
			Message:  s.Message,
			Category: Classify(int(s.Severity)),
			Code:     int(s.Severity),
			File:     s.File,
			Line:     s.Line,
			Trace:    traces.Capture(),
		}, cfg)
	}
}

func processExitHook(host Host, b *Builder, cfg *Config, traces *TraceCollector) ExitHook {
	return func(ctx context.Context) Outcome {
		last, ok := host.LastError(ctx)
		if !ok {
			// Normal completion.
			return Continue()
		}
		return b.Capture(ctx, Raw{
			Message:  last.Message,
			Category: Classify(int(last.Type)),
			Code:     int(last.Type),
			File:     last.File,
			Line:     last.Line,
			Trace:    traces.Capture(),
		}, cfg)
	}
}
