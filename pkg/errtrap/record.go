// record.go defines the canonical error record built for every captured failure.

package errtrap

import (
	"fmt"
	"strings"
	"time"
)

// Frame is one entry of a captured call stack.
type Frame struct {
	// Function is the package-qualified function name.
	Function string

	// File is the absolute source file path.
	File string

	// Line is the source line within File.
	Line int
}

// String formats the frame the way Go prints goroutine stacks.
func (f Frame) String() string {
	return fmt.Sprintf("%s\n\t%s:%d", f.Function, f.File, f.Line)
}

// ErrorRecord is the normalized representation of one captured failure.
// It is built once by the Builder and never modified afterwards.
type ErrorRecord struct {
	// Classification

	// Category is the human-readable classification ("Warning", "Caught RangeFault").
	Category string

	// Code is the raw numeric code supplied by the failure channel.
	Code int

	// Failure details

	// Message is the failure message.
	Message string

	// File and Line locate the failure in source.
	File string
	Line int

	// StackTrace is ordered most-recent-first and never contains the
	// capturing hook's own frame.
	StackTrace []Frame

	// Environment

	// CapturedAt is the request start time, not the capture time.
	CapturedAt time.Time

	// RuntimeVersion and OSName describe the running binary.
	RuntimeVersion string
	OSName         string

	// RequestURI, RequestHost and ScriptPath describe the in-flight request.
	RequestURI  string
	RequestHost string
	ScriptPath  string

	// Referer is the referring page, used for the back link. May be empty.
	Referer string

	// WasExplicitlyHandled is true only for failures forwarded via Handle.
	WasExplicitlyHandled bool

	// CorrelationID is the short token shown to the user and written to the log.
	CorrelationID string
}

// LogLine formats the record as the single line written to log sinks:
// "<category>: <message> in <file>:<line> [<correlationId>]".
func (r ErrorRecord) LogLine() string {
	return fmt.Sprintf("%s: %s in %s:%d [%s]", r.Category, r.Message, r.File, r.Line, r.CorrelationID)
}

// URI joins the request host and URI the way the report pages show them.
func (r ErrorRecord) URI() string {
	return r.RequestHost + r.RequestURI
}

// TraceString renders StackTrace as text, one frame per two lines.
func (r ErrorRecord) TraceString() string {
	var b strings.Builder
	for i, f := range r.StackTrace {
		fmt.Fprintf(&b, "#%d %s\n", i, f)
	}
	return b.String()
}
