package errtrap

import (
	"context"
	"errors"
	"sync"
	"time"
)

// requestTime avoids digits that tests assert are absent from pages.
var requestTime = time.Date(2025, 1, 26, 10, 15, 30, 0, time.UTC)

func testEnv() StaticEnvironment {
	return StaticEnvironment{
		Time:   requestTime,
		URI:    "/index",
		Host:   "example.org",
		Script: "/srv/app",
	}
}

// mockSink is a test sink that records writes and can fail.
type mockSink struct {
	mu       sync.Mutex
	records  []ErrorRecord
	writeErr error
}

func (s *mockSink) Write(ctx context.Context, rec ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *mockSink) Flush(ctx context.Context) error { return nil }
func (s *mockSink) Close() error                    { return nil }

func (s *mockSink) getRecords() []ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]ErrorRecord, len(s.records))
	copy(result, s.records)
	return result
}

// fakeHost records what a Handler registers on it.
type fakeHost struct {
	mu            sync.Mutex
	level         Severity
	displayOff    bool
	fault         FaultHook
	signal        SignalHook
	mask          Severity
	exit          ExitHook
	last          *LastError
	registrations int
}

func (h *fakeHost) DisableDefaultDisplay() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.displayOff = true
}

func (h *fakeHost) ReportingLevel() Severity { return h.level }

func (h *fakeHost) OnUncaughtFault(hook FaultHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fault = hook
	h.registrations++
}

func (h *fakeHost) OnRuntimeSignal(hook SignalHook, mask Severity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signal = hook
	h.mask = mask
}

func (h *fakeHost) OnProcessExit(hook ExitHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exit = hook
}

func (h *fakeHost) LastError(ctx context.Context) (LastError, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return LastError{}, false
	}
	return *h.last, true
}

// raiseSignal delivers s the way a host does: only within the mask.
//
//go:noinline
func (h *fakeHost) raiseSignal(ctx context.Context, s Signal) Outcome {
	h.mu.Lock()
	hook, mask := h.signal, h.mask
	h.mu.Unlock()
	if hook == nil || mask&s.Severity == 0 {
		return Continue()
	}
	return hook(ctx, s)
}

// RangeFault is an application error type used across tests.
type RangeFault struct {
	Index int
}

func (e *RangeFault) Error() string { return "index out of range" }

var errSinkDown = errors.New("sink down")
