package errtrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	bugerrors "github.com/bugsnag/bugsnag-go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaultFromError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType string
		wantMsg  string
		wantCode int
	}{
		{name: "pointer type", err: &RangeFault{Index: 2}, wantType: "RangeFault", wantMsg: "index out of range"},
		{name: "errors.New", err: errors.New("boom"), wantType: "errorString", wantMsg: "boom"},
		{name: "wrapped", err: fmt.Errorf("ctx: %w", &RangeFault{}), wantType: "wrapError", wantMsg: "ctx: index out of range"},
		{name: "coder", err: quotaError{}, wantType: "quotaError", wantMsg: "quota exceeded", wantCode: 429},
		{name: "wrapped coder", err: fmt.Errorf("api: %w", quotaError{}), wantType: "wrapError", wantMsg: "api: quota exceeded", wantCode: 429},
		{name: "nil", err: nil, wantType: "nil", wantMsg: "<nil>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := FaultFromError(tt.err)
			assert.Equal(t, tt.wantType, f.TypeName)
			assert.Equal(t, tt.wantMsg, f.Message)
			assert.Equal(t, tt.wantCode, f.Code)
		})
	}
}

func TestFaultFromError_WithStack(t *testing.T) {
	f := FaultFromError(failDeep())

	assert.Equal(t, "RangeFault", f.TypeName)
	require.NotEmpty(t, f.Trace)
	assert.True(t, strings.HasSuffix(f.Trace[0].Function, ".failDeep"))
	assert.Equal(t, f.Trace[0].File, f.File)
	assert.Equal(t, f.Trace[0].Line, f.Line)
}

func TestFaultFromError_Bugsnag(t *testing.T) {
	err := bugerrors.New(&RangeFault{Index: 4}, 0)
	f := FaultFromError(err)

	assert.Equal(t, "RangeFault", f.TypeName)
	assert.Equal(t, "index out of range", f.Message)
	require.NotEmpty(t, f.Trace)
	assert.True(t, strings.HasSuffix(f.File, "fault_test.go"), f.File)
}

func TestWithStack_Nil(t *testing.T) {
	assert.Nil(t, WithStack(nil))
}

func TestWithStack_Unwrap(t *testing.T) {
	var rf *RangeFault
	assert.True(t, errors.As(failDeep(), &rf))
	assert.Equal(t, 1, rf.Index)
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "string", typeName("x"))
	assert.Equal(t, "int", typeName(3))
	assert.Equal(t, "RangeFault", typeName(&RangeFault{}))
	assert.Equal(t, "nil", typeName(nil))
	assert.Equal(t, "[]int", typeName([]int{1}))
}

func TestPanicSite(t *testing.T) {
	frames := []Frame{
		{Function: "github.com/x/errtrap.FaultFromPanic"},
		{Function: "main.handler.func1"},
		{Function: "runtime.gopanic"},
		{Function: "runtime.panicIndex"},
		{Function: "main.lookup"},
		{Function: "main.handler"},
	}
	site := panicSite(frames)
	require.Len(t, site, 2)
	assert.Equal(t, "main.lookup", site[0].Function)

	assert.Nil(t, panicSite([]Frame{{Function: "main.main"}}))
}

//go:noinline
func explode() {
	panic("shelf empty")
}

func recoverFault() (f Fault) {
	defer func() {
		f = FaultFromPanic(recover())
	}()
	explode()
	return
}

func TestFaultFromPanic_String(t *testing.T) {
	f := recoverFault()

	assert.Equal(t, "string", f.TypeName)
	assert.Equal(t, "shelf empty", f.Message)
	require.NotEmpty(t, f.Trace)
	assert.True(t, strings.HasSuffix(f.Trace[0].Function, ".explode"), f.Trace[0].Function)
	assert.True(t, strings.HasSuffix(f.File, "fault_test.go"))
}

func TestFaultFromPanic_Error(t *testing.T) {
	var f Fault
	func() {
		defer func() {
			f = FaultFromPanic(recover())
		}()
		panic(&RangeFault{Index: 9})
	}()

	assert.Equal(t, "RangeFault", f.TypeName)
	assert.Equal(t, "index out of range", f.Message)
}

func TestRecover_StoresLastError(t *testing.T) {
	ctx := WithRequest(context.Background(), testEnv())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer Recover(ctx)
		explode()
	}()
	wg.Wait()

	last, ok := LastErrorFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "Uncaught string: shelf empty", last.Message)
	assert.Equal(t, SeverityError, last.Type)
	assert.True(t, strings.HasSuffix(last.File, "fault_test.go"))
}

func TestRecover_NoPanic(t *testing.T) {
	ctx := WithRequest(context.Background(), testEnv())
	func() {
		defer Recover(ctx)
	}()
	_, ok := LastErrorFromContext(ctx)
	assert.False(t, ok)
}

func TestRecover_IgnoresUnwind(t *testing.T) {
	ctx := WithRequest(context.Background(), testEnv())
	SetLastError(ctx, LastError{Message: "out of memory", Type: SeverityError})

	func() {
		defer Recover(ctx)
		panic(Unwind{})
	}()

	last, ok := LastErrorFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "out of memory", last.Message)
}
