// recover.go turns recovered panics into Faults.
// Use Recover in goroutines started while serving a request.

package errtrap

import "context"

// FaultFromPanic describes a recovered panic value as a Fault. It must be
// called from the deferred function that recovered, while the panicking
// frames are still on the stack: when the value carries no stack of its own,
// the trace starts at the function that panicked.
func FaultFromPanic(recovered any) Fault {
	var f Fault
	if err, ok := recovered.(error); ok {
		f = FaultFromError(err)
	} else {
		f = Fault{TypeName: typeName(recovered), Message: formatRecovered(recovered)}
	}

	if len(f.Trace) == 0 {
		f.Trace = panicSite(callers(1))
		if len(f.Trace) > 0 {
			f.File, f.Line = f.Trace[0].File, f.Trace[0].Line
		}
	}
	return f
}

// Recover captures a panic in a goroutine serving the request in ctx and
// stores it in the request's last-error slot, where the host's end-of-request
// hook reports it. Recover does NOT re-panic and returns the recovered value.
// A host's Unwind is not a failure: it was already recorded, so Recover
// returns nil and leaves the slot alone.
//
// The request handler must wait for the goroutine before returning:
//
//	go func() {
//	    defer wg.Done()
//	    defer errtrap.Recover(ctx)
//	    // code that might panic
//	}()
func Recover(ctx context.Context) any {
	r := recover()
	if r == nil {
		return nil
	}
	if _, ok := r.(Unwind); ok {
		return nil
	}

	f := FaultFromPanic(r)
	SetLastError(ctx, LastError{
		Message: "Uncaught " + f.TypeName + ": " + f.Message,
		Type:    SeverityError,
		File:    f.File,
		Line:    f.Line,
	})
	return r
}
