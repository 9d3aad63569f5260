// trace.go captures the call stack at the moment a failure is reported.

package errtrap

import (
	"runtime"

	bugerrors "github.com/bugsnag/bugsnag-go/errors"
)

// maxTraceDepth bounds the number of frames captured per record.
const maxTraceDepth = 64

// TraceSource is the capability the TraceCollector draws stacks from.
// The skip argument counts frames to drop above the source's own frame.
// Implementations return frames most-recent-first.
type TraceSource interface {
	// Enhanced reports whether CaptureEnhanced is usable.
	Enhanced() bool

	// CaptureEnhanced returns the stack from the enhanced debugging source.
	CaptureEnhanced(skip int) []Frame

	// CaptureStandard returns the stack from runtime.Callers.
	CaptureStandard(skip int) []Frame
}

// RuntimeTraceSource is the default TraceSource. The enhanced path goes
// through bugsnag's stack frames, which split package and function names
// and resolve closures the same way bugsnag reports do.
type RuntimeTraceSource struct {
	// DisableEnhanced forces the standard runtime.Callers path.
	DisableEnhanced bool
}

// Enhanced implements TraceSource.
func (s *RuntimeTraceSource) Enhanced() bool {
	return !s.DisableEnhanced
}

// CaptureEnhanced implements TraceSource.
func (s *RuntimeTraceSource) CaptureEnhanced(skip int) []Frame {
	// bugsnag's skip 0 starts at this frame.
	return framesFromBugsnag(bugerrors.New("trace", skip+1).StackFrames())
}

// CaptureStandard implements TraceSource.
func (s *RuntimeTraceSource) CaptureStandard(skip int) []Frame {
	return callers(skip + 1)
}

// callers returns the logical frames above its caller, dropping skip of them.
// Inlined calls are expanded by runtime.CallersFrames so skip counts
// source-level frames.
func callers(skip int) []Frame {
	pcs := make([]uintptr, maxTraceDepth+skip+1)
	n := runtime.Callers(2, pcs)
	iter := runtime.CallersFrames(pcs[:n])

	var frames []Frame
	for i := 0; ; i++ {
		f, more := iter.Next()
		if i >= skip && f.Function != "" {
			frames = append(frames, Frame{Function: f.Function, File: f.File, Line: f.Line})
			if len(frames) >= maxTraceDepth {
				break
			}
		}
		if !more {
			break
		}
	}
	return frames
}

func framesFromBugsnag(stack []bugerrors.StackFrame) []Frame {
	frames := make([]Frame, 0, len(stack))
	for _, sf := range stack {
		name := sf.Name
		if sf.Package != "" {
			name = sf.Package + "." + sf.Name
		}
		frames = append(frames, Frame{Function: name, File: sf.File, Line: sf.LineNumber})
		if len(frames) >= maxTraceDepth {
			break
		}
	}
	return frames
}

// TraceCollector produces the stack for a record. The source path is chosen
// once at construction, not per capture.
type TraceCollector struct {
	src      TraceSource
	enhanced bool
}

// NewTraceCollector selects the enhanced path of src when available and the
// standard path otherwise.
func NewTraceCollector(src TraceSource) *TraceCollector {
	if src == nil {
		src = &RuntimeTraceSource{}
	}
	return &TraceCollector{src: src, enhanced: src.Enhanced()}
}

// Capture returns the stack of its caller's caller: the frame that invoked
// Capture (the capturing hook) is always dropped.
func (c *TraceCollector) Capture() []Frame {
	// Drop Capture itself and the hook that called it.
	if c.enhanced {
		return c.src.CaptureEnhanced(2)
	}
	return c.src.CaptureStandard(2)
}
