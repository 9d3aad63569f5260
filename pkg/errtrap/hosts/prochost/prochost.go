// Package prochost binds errtrap to a process that serves exactly one
// request, the way a CGI program does. The request environment comes from
// the CGI variables; the report page goes to the process output and the
// process exits with a failure status.
package prochost

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	bugerrors "github.com/bugsnag/bugsnag-go/errors"
	"github.com/bugsnag/panicwrap"

	"github.com/strongdm/errtrap/pkg/errtrap"
)

// Exit statuses returned by Run.
const (
	ExitOK    = 0
	ExitFatal = 255
)

var processStart = time.Now()

// CGIEnvironment reads the request metadata from CGI variables through
// lookup (os.Getenv when nil). The request time is the process start.
func CGIEnvironment(lookup func(string) string) errtrap.Environment {
	if lookup == nil {
		lookup = os.Getenv
	}
	script := lookup("SCRIPT_FILENAME")
	if script == "" {
		script = lookup("SCRIPT_NAME")
	}
	if script == "" {
		script = os.Args[0]
	}
	return errtrap.StaticEnvironment{
		Time:   processStart,
		URI:    lookup("REQUEST_URI"),
		Host:   lookup("HTTP_HOST"),
		Script: script,
		Ref:    lookup("HTTP_REFERER"),
	}
}

// Option configures a Host.
type Option func(*Host)

// WithReportingLevel sets the severity mask reported by ReportingLevel
// (default: errtrap.SeverityAll).
func WithReportingLevel(level errtrap.Severity) Option {
	return func(h *Host) {
		h.level = level
	}
}

// WithOutput sets where the response is written (default: os.Stdout).
func WithOutput(w io.Writer) Option {
	return func(h *Host) {
		h.out = w
	}
}

// WithDiagnostics sets where default diagnostics go while display is still
// enabled (default: os.Stderr).
func WithDiagnostics(w io.Writer) Option {
	return func(h *Host) {
		h.diag = w
	}
}

// WithEnvironment replaces CGIEnvironment(nil).
func WithEnvironment(env errtrap.Environment) Option {
	return func(h *Host) {
		h.env = env
	}
}

// WithCGIHeaders prefixes report pages with a CGI header block.
func WithCGIHeaders() Option {
	return func(h *Host) {
		h.cgi = true
	}
}

// WithLogger sets the logger used when a crash report cannot be parsed.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Host implements errtrap.Host for single-request processes.
type Host struct {
	level  errtrap.Severity
	out    io.Writer
	diag   io.Writer
	env    errtrap.Environment
	cgi    bool
	logger *slog.Logger

	mu      sync.RWMutex
	display bool
	fault   errtrap.FaultHook
	signal  errtrap.SignalHook
	mask    errtrap.Severity
	exit    errtrap.ExitHook
}

var _ errtrap.Host = (*Host)(nil)

// New creates a Host.
func New(opts ...Option) *Host {
	h := &Host{
		level:   errtrap.SeverityAll,
		out:     os.Stdout,
		diag:    os.Stderr,
		logger:  slog.Default(),
		display: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.env == nil {
		h.env = CGIEnvironment(nil)
	}
	return h
}

// DisableDefaultDisplay implements errtrap.Host.
func (h *Host) DisableDefaultDisplay() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.display = false
}

// ReportingLevel implements errtrap.Host.
func (h *Host) ReportingLevel() errtrap.Severity {
	return h.level
}

// OnUncaughtFault implements errtrap.Host.
func (h *Host) OnUncaughtFault(hook errtrap.FaultHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fault = hook
}

// OnRuntimeSignal implements errtrap.Host.
func (h *Host) OnRuntimeSignal(hook errtrap.SignalHook, mask errtrap.Severity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signal = hook
	h.mask = mask
}

// OnProcessExit implements errtrap.Host. The hook runs when Run returns and
// when Monitor observes a crash.
func (h *Host) OnProcessExit(hook errtrap.ExitHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exit = hook
}

// LastError implements errtrap.Host.
func (h *Host) LastError(ctx context.Context) (errtrap.LastError, bool) {
	return errtrap.LastErrorFromContext(ctx)
}

func (h *Host) snapshot() (fault errtrap.FaultHook, signal errtrap.SignalHook, mask errtrap.Severity, exit errtrap.ExitHook, display bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.fault, h.signal, h.mask, h.exit, h.display
}

type stateKey struct{}

type state struct {
	host *Host

	mu      sync.Mutex
	outcome *errtrap.Outcome
	aborted bool
}

func (s *state) set(o errtrap.Outcome) {
	if !o.Terminate {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		s.outcome = &o
	}
}

func (s *state) abort() {
	s.mu.Lock()
	s.aborted = true
	s.mu.Unlock()
	panic(errtrap.Unwind{})
}

func stateFrom(ctx context.Context) *state {
	st, _ := ctx.Value(stateKey{}).(*state)
	return st
}

// Run serves the process's request with fn. Output written by fn is held
// back until fn returns, so a report page can replace it. A non-nil error
// returned by fn is treated as an uncaught fault.
//
// Run returns ExitOK after normal completion and ExitFatal after a report.
func (h *Host) Run(ctx context.Context, fn func(ctx context.Context, w io.Writer) error) int {
	ctx = errtrap.WithRequest(ctx, h.env)
	st := &state{host: h}
	ctx = context.WithValue(ctx, stateKey{}, st)

	var buf bytes.Buffer
	crashed := h.run(ctx, st, &buf, fn)

	_, _, _, exit, display := h.snapshot()
	if exit != nil {
		st.set(exit(ctx))
	}

	st.mu.Lock()
	outcome, aborted := st.outcome, st.aborted
	st.mu.Unlock()

	switch {
	case outcome != nil:
		h.writeOutcome(*outcome)
		return ExitFatal
	case aborted || crashed:
		if last, ok := errtrap.LastErrorFromContext(ctx); ok && display {
			fmt.Fprintf(h.diag, "%s: %s in %s on line %d\n", last.Type, last.Message, last.File, last.Line)
		}
		return ExitFatal
	default:
		_, _ = h.out.Write(buf.Bytes())
		return ExitOK
	}
}

// run reports whether fn failed without any hook taking the failure.
func (h *Host) run(ctx context.Context, st *state, w io.Writer, fn func(context.Context, io.Writer) error) (crashed bool) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if _, ok := rec.(errtrap.Unwind); ok {
			return
		}

		fault, _, _, _, display := h.snapshot()
		if fault == nil {
			if !display {
				panic(rec)
			}
			fmt.Fprintf(h.diag, "panic: %v\n", rec)
			crashed = true
			return
		}
		st.set(fault(ctx, errtrap.FaultFromPanic(rec)))
	}()

	err := fn(ctx, w)
	if err == nil {
		return false
	}

	fault, _, _, _, display := h.snapshot()
	if fault == nil {
		if display {
			fmt.Fprintf(h.diag, "error: %v\n", err)
		}
		return true
	}
	st.set(fault(ctx, errtrap.FaultFromError(err)))
	return false
}

func (h *Host) writeOutcome(o errtrap.Outcome) {
	if h.cgi {
		status := o.Status
		if status == 0 {
			status = 500
		}
		fmt.Fprintf(h.out, "Status: %d\r\nContent-Type: text/html; charset=utf-8\r\nCache-Control: no-store\r\n\r\n", status)
	}
	_, _ = h.out.Write(o.Body)
}

// Signal raises a runtime signal from code running under Run. The caller's
// file and line are recorded. Fatal severities end the run and are reported
// by the exit hook; severities within the registered mask go to the signal
// hook and end the run. Anything else returns normally.
func Signal(ctx context.Context, severity errtrap.Severity, message string) {
	st := stateFrom(ctx)
	if st == nil {
		return
	}
	_, file, line, _ := runtime.Caller(1)
	st.host.dispatchSignal(ctx, st, errtrap.Signal{Severity: severity, Message: message, File: file, Line: line})
}

func (h *Host) dispatchSignal(ctx context.Context, st *state, s errtrap.Signal) {
	if s.Severity.Fatal() {
		errtrap.SetLastError(ctx, errtrap.LastError{Message: s.Message, Type: s.Severity, File: s.File, Line: s.Line})
		st.abort()
	}
	_, hook, mask, _, _ := h.snapshot()
	if hook == nil || mask&s.Severity == 0 {
		return
	}
	st.set(hook(ctx, s))
	st.abort()
}

// Terminate ends the run with o when o is terminal.
func Terminate(ctx context.Context, o errtrap.Outcome) {
	st := stateFrom(ctx)
	if st == nil || !o.Terminate {
		return
	}
	st.set(o)
	st.abort()
}

// Handle reports err through handler and ends the run. A nil err returns
// immediately.
func Handle(ctx context.Context, handler *errtrap.Handler, err error) {
	if err == nil {
		return
	}
	Terminate(ctx, handler.Handle(ctx, err))
}

// Monitor re-executes the process under a crash monitor. Panics that escape
// Run, such as those in stray goroutines, kill the process; the monitor
// parses the crash output and reports it through the exit hook.
//
// Call Monitor first thing in main. In the monitoring process it does not
// return.
func (h *Host) Monitor(ctx context.Context) error {
	return panicwrap.BasicMonitor(func(output string) {
		h.ReportCrash(ctx, output)
	})
}

// ReportCrash reports a Go crash dump as the request's fatal error and
// writes the report page. It returns the outcome, which is Continue when no
// exit hook is installed.
func (h *Host) ReportCrash(ctx context.Context, output string) errtrap.Outcome {
	ctx = errtrap.WithRequest(ctx, h.env)

	parsed, err := bugerrors.ParsePanic(output)
	if err != nil || parsed == nil {
		h.logger.Warn("errtrap: crash output not parsed", "error", err)
		errtrap.SetLastError(ctx, errtrap.LastError{
			Message: firstLine(output),
			Type:    errtrap.SeverityError,
		})
	} else {
		last := errtrap.LastError{
			Message: "Uncaught " + parsed.TypeName() + ": " + parsed.Error(),
			Type:    errtrap.SeverityError,
		}
		if frames := parsed.StackFrames(); len(frames) > 0 {
			last.File, last.Line = frames[0].File, frames[0].LineNumber
		}
		errtrap.SetLastError(ctx, last)
	}

	_, _, _, exit, _ := h.snapshot()
	if exit == nil {
		return errtrap.Continue()
	}
	o := exit(ctx)
	if o.Terminate {
		h.writeOutcome(o)
	}
	return o
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
