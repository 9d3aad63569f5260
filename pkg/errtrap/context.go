// context.go carries request-scoped state through context.Context so that
// one request's developer mode never leaks into a concurrent request's report.

package errtrap

import (
	"context"
	"sync"
	"sync/atomic"
)

// Context key types (unexported to avoid collisions)
type requestKey struct{}

// developer mode states held by a request scope
const (
	modeUnset int32 = iota
	modeAnonymous
	modeDeveloper
)

type requestScope struct {
	env  Environment
	mode atomic.Int32

	mu   sync.Mutex
	last *LastError
}

// WithRequest returns a context carrying a fresh request scope with env as
// its environment. Host bindings call this once per request.
func WithRequest(ctx context.Context, env Environment) context.Context {
	return context.WithValue(ctx, requestKey{}, &requestScope{env: env})
}

// EnvironmentFromContext returns the request environment attached by
// WithRequest. Returns nil and false if not set.
func EnvironmentFromContext(ctx context.Context) (Environment, bool) {
	scope := scopeFrom(ctx)
	if scope == nil || scope.env == nil {
		return nil, false
	}
	return scope.env, true
}

// SetRequestDeveloperMode sets the verbosity for the request carried by ctx,
// overriding the handler-wide setting for that request only. Returns false
// if ctx carries no request scope.
func SetRequestDeveloperMode(ctx context.Context, isDeveloper bool) bool {
	scope := scopeFrom(ctx)
	if scope == nil {
		return false
	}
	if isDeveloper {
		scope.mode.Store(modeDeveloper)
	} else {
		scope.mode.Store(modeAnonymous)
	}
	return true
}

// requestDeveloperMode returns the request-level verbosity, if one was set.
func requestDeveloperMode(ctx context.Context) (bool, bool) {
	scope := scopeFrom(ctx)
	if scope == nil {
		return false, false
	}
	switch scope.mode.Load() {
	case modeDeveloper:
		return true, true
	case modeAnonymous:
		return false, true
	default:
		return false, false
	}
}

// SetLastError stores le in the last-error slot of the request carried by
// ctx, replacing any previous value. Returns false if ctx carries no
// request scope.
func SetLastError(ctx context.Context, le LastError) bool {
	scope := scopeFrom(ctx)
	if scope == nil {
		return false
	}
	scope.mu.Lock()
	defer scope.mu.Unlock()
	scope.last = &le
	return true
}

// LastErrorFromContext returns the last-error slot of the request carried by
// ctx. Returns false if the slot is empty or ctx carries no request scope.
func LastErrorFromContext(ctx context.Context) (LastError, bool) {
	scope := scopeFrom(ctx)
	if scope == nil {
		return LastError{}, false
	}
	scope.mu.Lock()
	defer scope.mu.Unlock()
	if scope.last == nil {
		return LastError{}, false
	}
	return *scope.last, true
}

func scopeFrom(ctx context.Context) *requestScope {
	if ctx == nil {
		return nil
	}
	scope, _ := ctx.Value(requestKey{}).(*requestScope)
	return scope
}
