package errtrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(sink Sink) *Handler {
	return New(WithBuilder(newTestBuilder(sink)))
}

func TestHandler_Initialize(t *testing.T) {
	host := &fakeHost{level: SeverityAll &^ SeverityNotice}
	h := newTestHandler(&mockSink{})

	h.Initialize(host, true)

	assert.True(t, host.displayOff)
	assert.NotNil(t, host.fault)
	assert.NotNil(t, host.signal)
	assert.NotNil(t, host.exit)
	assert.Equal(t, SeverityAll&^SeverityNotice, host.mask)
	assert.Equal(t, SeverityAll&^SeverityNotice, h.Config().ReportingLevel())
	assert.True(t, h.Config().LoggingEnabled())
	assert.False(t, h.Config().Verbose(context.Background()))
}

func TestHandler_Install(t *testing.T) {
	host := &fakeHost{level: SeverityAll}
	h := newTestHandler(&mockSink{})

	h.Install(host, false)
	assert.Equal(t, 1, host.registrations)
	assert.False(t, h.Config().LoggingEnabled())
}

func TestHandler_SignalHook(t *testing.T) {
	host := &fakeHost{level: SeverityAll}
	sink := &mockSink{}
	h := newTestHandler(sink)
	h.Initialize(host, true)

	out := host.raiseSignal(context.Background(), Signal{
		Severity: SeverityWarning,
		Message:  "Division by zero",
		File:     "/app/calc.x",
		Line:     42,
	})
	require.True(t, out.Terminate)
	assert.Equal(t, 500, out.Status)

	rec := out.Record
	assert.Equal(t, "Warning", rec.Category)
	assert.Equal(t, 2, rec.Code)
	assert.Equal(t, "/app/calc.x", rec.File)
	assert.Equal(t, 42, rec.Line)
	assert.False(t, rec.WasExplicitlyHandled)

	require.NotEmpty(t, rec.StackTrace)
	assert.Contains(t, rec.StackTrace[0].Function, "raiseSignal")
	for _, f := range rec.StackTrace {
		assert.NotContains(t, f.Function, "runtimeSignalHook")
	}

	records := sink.getRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "Warning: Division by zero in /app/calc.x:42 [abcde]", records[0].LogLine())
}

func TestHandler_SignalHook_UnknownCode(t *testing.T) {
	host := &fakeHost{level: SeverityAll}
	h := newTestHandler(&mockSink{})
	h.Initialize(host, false)

	out := host.signal(context.Background(), Signal{Severity: SeverityWarning | SeverityNotice})
	require.True(t, out.Terminate)
	assert.Equal(t, UnknownCategory, out.Record.Category)
}

func TestHandler_SignalOutsideMaskNeverReachesHook(t *testing.T) {
	host := &fakeHost{level: SeverityAll &^ SeverityDeprecated}
	sink := &mockSink{}
	h := newTestHandler(sink)
	h.Initialize(host, true)

	out := host.raiseSignal(context.Background(), Signal{Severity: SeverityDeprecated, Message: "old"})
	assert.False(t, out.Terminate)
	assert.Empty(t, sink.getRecords())
}

func TestHandler_UncaughtFaultHook(t *testing.T) {
	host := &fakeHost{level: SeverityAll}
	sink := &mockSink{}
	h := newTestHandler(sink)
	h.Initialize(host, true)

	f := FaultFromError(&RangeFault{Index: 7})
	f.File, f.Line = "/app/list.x", 12

	out := host.fault(context.Background(), f)
	require.True(t, out.Terminate)
	assert.Equal(t, "Uncaught RangeFault: index out of range", out.Record.Message)
	assert.Equal(t, UnknownCategory, out.Record.Category)
	assert.Equal(t, 0, out.Record.Code)
	assert.Equal(t, "/app/list.x", out.Record.File)
	assert.Equal(t, 12, out.Record.Line)
	assert.Len(t, sink.getRecords(), 1)
}

func TestHandler_ExitHook_NormalCompletion(t *testing.T) {
	host := &fakeHost{level: SeverityAll}
	sink := &mockSink{}
	h := newTestHandler(sink)
	h.Initialize(host, true)

	out := host.exit(context.Background())
	assert.False(t, out.Terminate)
	assert.Nil(t, out.Body)
	assert.Empty(t, sink.getRecords())
}

func TestHandler_ExitHook_ReportsLastError(t *testing.T) {
	host := &fakeHost{level: SeverityAll}
	host.last = &LastError{Message: "Out of memory", Type: SeverityError, File: "/app/big.x", Line: 9}
	sink := &mockSink{}
	h := newTestHandler(sink)
	h.Initialize(host, true)

	out := host.exit(context.Background())
	require.True(t, out.Terminate)
	assert.Equal(t, "Fatal Error", out.Record.Category)
	assert.Equal(t, 1, out.Record.Code)
	assert.Equal(t, "Out of memory", out.Record.Message)
	assert.Equal(t, "/app/big.x", out.Record.File)
	assert.Equal(t, 9, out.Record.Line)

	records := sink.getRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "Fatal Error: Out of memory in /app/big.x:9 [abcde]", records[0].LogLine())
}

func TestHandler_Handle(t *testing.T) {
	sink := &mockSink{}
	h := newTestHandler(sink)
	h.Initialize(&fakeHost{level: SeverityAll}, true)

	out := h.Handle(context.Background(), &RangeFault{Index: 3})
	require.True(t, out.Terminate)

	rec := out.Record
	assert.Equal(t, "Caught RangeFault", rec.Category)
	assert.Equal(t, "index out of range", rec.Message)
	assert.True(t, rec.WasExplicitlyHandled)

	require.NotEmpty(t, rec.StackTrace)
	assert.True(t, strings.HasSuffix(rec.StackTrace[0].Function, ".TestHandler_Handle"), rec.StackTrace[0].Function)
	assert.True(t, strings.HasSuffix(rec.File, "handler_test.go"))
	assert.Equal(t, rec.StackTrace[0].Line, rec.Line)
}

//go:noinline
func failDeep() error {
	return WithStack(&RangeFault{Index: 1})
}

func TestHandler_Handle_UsesErrorStack(t *testing.T) {
	h := newTestHandler(&mockSink{})

	out := h.Handle(context.Background(), fmt.Errorf("loading cart: %w", failDeep()))
	require.True(t, out.Terminate)

	rec := out.Record
	assert.Equal(t, "Caught wrapError", rec.Category)
	assert.Equal(t, "loading cart: index out of range", rec.Message)
	require.NotEmpty(t, rec.StackTrace)
	assert.True(t, strings.HasSuffix(rec.StackTrace[0].Function, ".failDeep"), rec.StackTrace[0].Function)
}

func TestHandler_Handle_WithStackKeepsType(t *testing.T) {
	h := newTestHandler(&mockSink{})

	out := h.Handle(context.Background(), failDeep())
	assert.Equal(t, "Caught RangeFault", out.Record.Category)
}

type quotaError struct{}

func (quotaError) Error() string { return "quota exceeded" }
func (quotaError) Code() int     { return 429 }

func TestHandler_Handle_Code(t *testing.T) {
	h := newTestHandler(&mockSink{})

	out := h.Handle(context.Background(), quotaError{})
	assert.Equal(t, "Caught quotaError", out.Record.Category)
	assert.Equal(t, 429, out.Record.Code)
}

func TestHandler_Handle_Nil(t *testing.T) {
	sink := &mockSink{}
	h := newTestHandler(sink)

	out := h.Handle(context.Background(), nil)
	assert.False(t, out.Terminate)
	assert.Empty(t, sink.getRecords())
}

func TestHandler_DeveloperMode(t *testing.T) {
	h := newTestHandler(&mockSink{})
	err := errors.New("Division by zero")

	anon := h.Handle(context.Background(), err)
	assert.NotContains(t, string(anon.Body), "Division by zero")
	assert.Contains(t, string(anon.Body), "abcde")

	h.SetDeveloperMode(true)
	verbose := h.Handle(context.Background(), err)
	assert.Contains(t, string(verbose.Body), "Division by zero")
	assert.Contains(t, string(verbose.Body), "Caught errorString")
}

func TestHandler_RequestDeveloperModeOverrides(t *testing.T) {
	h := newTestHandler(&mockSink{})
	h.SetDeveloperMode(true)
	err := errors.New("Division by zero")

	ctx := WithRequest(context.Background(), testEnv())
	require.True(t, SetRequestDeveloperMode(ctx, false))
	out := h.Handle(ctx, err)
	assert.NotContains(t, string(out.Body), "Division by zero")

	other := WithRequest(context.Background(), testEnv())
	out = h.Handle(other, err)
	assert.Contains(t, string(out.Body), "Division by zero")
}

func TestHandler_Uninstall(t *testing.T) {
	host := &fakeHost{level: SeverityAll}
	h := newTestHandler(&mockSink{})
	h.Initialize(host, true)

	h.Uninstall()
	assert.Nil(t, host.fault)
	assert.Nil(t, host.signal)
	assert.Nil(t, host.exit)
	assert.Equal(t, Severity(0), host.mask)

	// Idempotent.
	h.Uninstall()
}

func TestHandler_ReinitializeMovesHooks(t *testing.T) {
	first := &fakeHost{level: SeverityAll}
	second := &fakeHost{level: SeverityWarning}
	h := newTestHandler(&mockSink{})

	h.Initialize(first, true)
	h.Initialize(second, false)

	assert.Nil(t, first.fault)
	assert.Nil(t, first.signal)
	assert.Nil(t, first.exit)
	assert.NotNil(t, second.fault)
	assert.Equal(t, SeverityWarning, h.Config().ReportingLevel())
	assert.False(t, h.Config().LoggingEnabled())
}

func TestHandler_ReinitializeSameHost(t *testing.T) {
	host := &fakeHost{level: SeverityAll}
	h := newTestHandler(&mockSink{})

	h.Initialize(host, true)
	h.Initialize(host, true)
	assert.Equal(t, 2, host.registrations)
	assert.NotNil(t, host.fault)
}

func TestHandler_RequestTimeStamped(t *testing.T) {
	h := newTestHandler(&mockSink{})
	start := requestTime.Add(-5 * time.Minute)

	ctx := WithRequest(context.Background(), StaticEnvironment{Time: start, URI: "/slow"})
	out := h.Handle(ctx, errors.New("timeout"))
	assert.True(t, out.Record.CapturedAt.Equal(start))
	assert.Equal(t, "/slow", out.Record.RequestURI)
}
