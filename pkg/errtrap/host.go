// host.go defines the capability a runtime binding implements so the
// Handler can install its capture hooks.

package errtrap

import (
	"context"
	"net/http"
)

// Fault is an uncaught failure delivered by a host, typically a recovered panic.
type Fault struct {
	// TypeName is the unqualified Go type name of the failure value.
	TypeName string
	Message  string
	Code     int
	File     string
	Line     int

	// Trace is the failure's own stack, if it carried one.
	Trace []Frame
}

// Signal is a runtime-signaled error, warning or notice.
type Signal struct {
	Severity Severity
	Message  string
	File     string
	Line     int
}

// LastError is the content of a host's "last error" slot: a fatal failure
// that bypassed the signal hook.
type LastError struct {
	Message string
	Type    Severity
	File    string
	Line    int
}

// Outcome is what a hook hands back to the host. A terminal outcome carries
// the rendered page; the host writes it and ends the request.
type Outcome struct {
	// Terminate is true when a report was rendered and the request must end.
	Terminate bool

	// Status is the HTTP status to send with Body.
	Status int

	// Body is the rendered HTML page.
	Body []byte

	// Record is the record that produced Body.
	Record *ErrorRecord
}

// Continue is the non-terminal outcome: nothing was captured.
func Continue() Outcome {
	return Outcome{}
}

func terminate(rec ErrorRecord, body []byte) Outcome {
	return Outcome{Terminate: true, Status: http.StatusInternalServerError, Body: body, Record: &rec}
}

// Unwind is the panic value a host binding raises to end a request after it
// stored the request's outcome or last error. Recover lets it pass without
// recording a failure.
type Unwind struct{}

// FaultHook handles an uncaught fault.
type FaultHook func(ctx context.Context, f Fault) Outcome

// SignalHook handles a runtime signal matching the registered severity mask.
type SignalHook func(ctx context.Context, s Signal) Outcome

// ExitHook runs at the end of every request.
type ExitHook func(ctx context.Context) Outcome

// Host is the capability a runtime binding implements. Registering a nil
// hook removes the previous one; the channel then behaves as if unhandled.
type Host interface {
	// DisableDefaultDisplay stops the host from emitting its own diagnostic
	// output for failures.
	DisableDefaultDisplay()

	// ReportingLevel is the severity mask currently configured on the host.
	ReportingLevel() Severity

	// OnUncaughtFault registers the hook for uncaught faults.
	OnUncaughtFault(hook FaultHook)

	// OnRuntimeSignal registers the hook for signals within mask. Signals
	// outside mask must never reach the hook.
	OnRuntimeSignal(hook SignalHook, mask Severity)

	// OnProcessExit registers the hook run at the end of every request.
	OnProcessExit(hook ExitHook)

	// LastError returns the fatal failure recorded for the request in ctx.
	LastError(ctx context.Context) (LastError, bool)
}
