// Package httphost binds errtrap to net/http. Each request served through
// Middleware gets its own request scope: environment, developer mode and
// last-error slot never leak between concurrent requests.
package httphost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/strongdm/errtrap/pkg/errtrap"
)

// Option configures a Host.
type Option func(*Host)

// WithReportingLevel sets the severity mask reported by ReportingLevel
// (default: errtrap.SeverityAll).
func WithReportingLevel(level errtrap.Severity) Option {
	return func(h *Host) {
		h.level = level
	}
}

// WithoutBuffering streams responses straight to the client. A report can
// then only replace the page if the handler had not written anything yet.
func WithoutBuffering() Option {
	return func(h *Host) {
		h.buffered = false
	}
}

// WithScriptPath sets the script path reported for requests that were not
// routed through a pattern-matching mux (default: the executable path).
func WithScriptPath(path string) Option {
	return func(h *Host) {
		h.script = path
	}
}

// Host implements errtrap.Host for net/http servers.
type Host struct {
	level    errtrap.Severity
	buffered bool
	script   string

	mu      sync.RWMutex
	display bool
	fault   errtrap.FaultHook
	signal  errtrap.SignalHook
	mask    errtrap.Severity
	exit    errtrap.ExitHook
}

var _ errtrap.Host = (*Host)(nil)

// New creates a Host. Until DisableDefaultDisplay is called, unhandled panics
// are answered with Go's diagnostic text.
func New(opts ...Option) *Host {
	script, err := os.Executable()
	if err != nil {
		script = os.Args[0]
	}
	h := &Host{
		level:    errtrap.SeverityAll,
		buffered: true,
		script:   script,
		display:  true,
	}
	for _, opt := range opts {
		opt(h)
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

// OnProcessExit implements errtrap.Host. The hook runs at the end of every
// request served by Middleware.
func (h *Host) OnProcessExit(hook errtrap.ExitHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exit = hook
}

// LastError implements errtrap.Host.
func (h *Host) LastError(ctx context.Context) (errtrap.LastError, bool) {
	return errtrap.LastErrorFromContext(ctx)
}

func (h *Host) hooks() (errtrap.FaultHook, errtrap.SignalHook, errtrap.Severity, errtrap.ExitHook, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.fault, h.signal, h.mask, h.exit, h.display
}

type stateKey struct{}

// state is the per-request bookkeeping of the binding.
type state struct {
	host *Host

	mu      sync.Mutex
	outcome *errtrap.Outcome
	aborted bool
}

// set stores o if it is the first terminal outcome of the request.
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

func (s *state) result() (*errtrap.Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome, s.aborted
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

// Middleware serves next with the capture hooks active. It recovers panics
// into the uncaught-fault hook, runs the end-of-request hook after every
// request, and writes at most one report page.
func (h *Host) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env := &requestEnvironment{r: r, at: time.Now(), script: h.script}
		ctx := errtrap.WithRequest(r.Context(), env)
		st := &state{host: h}
		ctx = context.WithValue(ctx, stateKey{}, st)
		r = r.WithContext(ctx)

		var rw responseWriter
		if h.buffered {
			rw = newBufferedWriter(w)
		} else {
			rw = &passthroughWriter{ResponseWriter: w}
		}

		h.serve(rw, r, next, st)

		_, _, _, exit, display := h.hooks()
		if exit != nil {
			st.set(exit(ctx))
		}

		outcome, aborted := st.result()
		switch {
		case outcome != nil:
			writeOutcome(w, rw, *outcome)
		case aborted:
			h.writeUnhandledFatal(w, rw, ctx, display)
		default:
			rw.commit()
		}
	})
}

func (h *Host) serve(w responseWriter, r *http.Request, next http.Handler, st *state) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if _, ok := rec.(errtrap.Unwind); ok {
			return
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}

		fault, _, _, _, display := h.hooks()
		if fault == nil {
			if !display {
				panic(rec)
			}
			writeDiagnostic(w, fmt.Sprintf("panic: %v\n\n%s", rec, debug.Stack()))
			return
		}
		st.set(fault(r.Context(), errtrap.FaultFromPanic(rec)))
	}()
	next.ServeHTTP(w, r)
}

// writeUnhandledFatal answers a request aborted by a fatal signal when no
// end-of-request hook produced a report.
func (h *Host) writeUnhandledFatal(w http.ResponseWriter, rw responseWriter, ctx context.Context, display bool) {
	if rw.headerSent() {
		return
	}
	if last, ok := errtrap.LastErrorFromContext(ctx); ok && display {
		writeDiagnostic(w, fmt.Sprintf("%s: %s in %s on line %d\n", last.Type, last.Message, last.File, last.Line))
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
}

func writeDiagnostic(w http.ResponseWriter, text string) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(text))
}

func writeOutcome(w http.ResponseWriter, rw responseWriter, o errtrap.Outcome) {
	if !rw.headerSent() {
		h := w.Header()
		h.Del("Content-Length")
		h.Set("Content-Type", "text/html; charset=utf-8")
		h.Set("Cache-Control", "no-store")
		status := o.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		w.WriteHeader(status)
	}
	_, _ = w.Write(o.Body)
}

// Signal raises a runtime signal from request code, the way a runtime
// reports warnings and notices. The caller's file and line are recorded.
//
// Fatal severities are stored in the request's last-error slot and end the
// request; the end-of-request hook reports them. Severities within the
// registered mask go to the signal hook and end the request. Anything else
// returns normally, as does a call outside Middleware.
func Signal(ctx context.Context, severity errtrap.Severity, message string) {
	st := stateFrom(ctx)
	if st == nil {
		return
	}
	_, file, line, _ := runtime.Caller(1)
	st.host.dispatchSignal(ctx, st, errtrap.Signal{
		Severity: severity,
		Message:  message,
		File:     file,
		Line:     line,
	})
}

// Signalf is Signal with a formatted message.
func Signalf(ctx context.Context, severity errtrap.Severity, format string, args ...any) {
	st := stateFrom(ctx)
	if st == nil {
		return
	}
	_, file, line, _ := runtime.Caller(1)
	st.host.dispatchSignal(ctx, st, errtrap.Signal{
		Severity: severity,
		Message:  fmt.Sprintf(format, args...),
		File:     file,
		Line:     line,
	})
}

func (h *Host) dispatchSignal(ctx context.Context, st *state, s errtrap.Signal) {
	if s.Severity.Fatal() {
		errtrap.SetLastError(ctx, errtrap.LastError{
			Message: s.Message,
			Type:    s.Severity,
			File:    s.File,
			Line:    s.Line,
		})
		st.abort()
	}

	_, hook, mask, _, _ := h.hooks()
	if hook == nil || mask&s.Severity == 0 {
		return
	}
	st.set(hook(ctx, s))
	st.abort()
}

// Terminate ends the request in ctx with o when o is terminal. It does not
// return in that case. Outside Middleware it does nothing.
func Terminate(ctx context.Context, o errtrap.Outcome) {
	st := stateFrom(ctx)
	if st == nil || !o.Terminate {
		return
	}
	st.set(o)
	st.abort()
}

// Handle reports err through handler as an explicitly handled error and ends
// the request. A nil err returns immediately.
func Handle(ctx context.Context, handler *errtrap.Handler, err error) {
	if err == nil {
		return
	}
	Terminate(ctx, handler.Handle(ctx, err))
}

// ErrNotServing is returned by Serving when ctx was not created by Middleware.
var ErrNotServing = errors.New("httphost: context is not served by Middleware")

// Serving returns nil if ctx belongs to a request served by Middleware.
func Serving(ctx context.Context) error {
	if stateFrom(ctx) == nil {
		return ErrNotServing
	}
	return nil
}

type requestEnvironment struct {
	r      *http.Request
	at     time.Time
	script string
}

func (e *requestEnvironment) RequestTime() time.Time { return e.at }

func (e *requestEnvironment) RequestURI() string {
	if e.r.RequestURI != "" {
		return e.r.RequestURI
	}
	return e.r.URL.RequestURI()
}

func (e *requestEnvironment) RequestHost() string { return e.r.Host }

func (e *requestEnvironment) ScriptPath() string {
	if e.r.Pattern != "" {
		return e.r.Pattern
	}
	return e.script
}

func (e *requestEnvironment) Referer() string { return e.r.Referer() }
