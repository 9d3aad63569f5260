// fault.go converts Go errors and panic values into Faults.

package errtrap

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	bugerrors "github.com/bugsnag/bugsnag-go/errors"
)

// stackError attaches the stack of its creation site to an error.
type stackError struct {
	err    error
	frames []Frame
}

func (e *stackError) Error() string   { return e.err.Error() }
func (e *stackError) Unwrap() error   { return e.err }
func (e *stackError) Frames() []Frame { return e.frames }

// WithStack annotates err with the stack of the caller so that Handle can
// report where the error was created rather than where it was handled.
// Returns nil if err is nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stackError{err: err, frames: callers(1)}
}

type framer interface {
	Frames() []Frame
}

// bugsnagFramer matches errors created with bugsnag-go/errors.
type bugsnagFramer interface {
	StackFrames() []bugerrors.StackFrame
}

type coder interface {
	Code() int
}

// FaultFromError describes err as a Fault. The type name is taken from the
// outermost error that is not a stack annotation; the code from the first
// error in the chain implementing Code() int; the trace from the first
// error carrying one.
func FaultFromError(err error) Fault {
	if err == nil {
		return Fault{TypeName: "nil", Message: "<nil>"}
	}

	f := Fault{
		TypeName: typeName(unwrapAnnotations(err)),
		Message:  err.Error(),
	}

	var c coder
	if errors.As(err, &c) {
		f.Code = c.Code()
	}

	var fr framer
	var bf bugsnagFramer
	switch {
	case errors.As(err, &fr):
		f.Trace = fr.Frames()
	case errors.As(err, &bf):
		f.Trace = framesFromBugsnag(bf.StackFrames())
	}

	if len(f.Trace) > 0 {
		f.File, f.Line = f.Trace[0].File, f.Trace[0].Line
	}
	return f
}

// unwrapAnnotations strips stack-only wrappers so the reported type is the
// one the caller created.
func unwrapAnnotations(err error) error {
	for {
		switch e := err.(type) {
		case *stackError:
			err = e.err
		case *bugerrors.Error:
			if e.Err == nil {
				return err
			}
			err = e.Err
		default:
			return err
		}
	}
}

// typeName returns the unqualified type name of v, dereferencing pointers.
func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}

// formatRecovered formats a recovered panic value as a string.
func formatRecovered(recovered any) string {
	if recovered == nil {
		return "<nil>"
	}
	if err, ok := recovered.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", recovered)
}

// panicSite returns the frames starting at the function that panicked,
// given a stack captured while the panic is unwinding.
func panicSite(frames []Frame) []Frame {
	for i, f := range frames {
		if f.Function != "runtime.gopanic" {
			continue
		}
		for j := i + 1; j < len(frames); j++ {
			if !strings.HasPrefix(frames[j].Function, "runtime.") {
				return frames[j:]
			}
		}
		return nil
	}
	return nil
}
