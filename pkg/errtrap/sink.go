// sink.go defines the Sink interface for log destinations.

package errtrap

import "context"

// Sink receives one call per captured failure when logging is enabled.
// Implementations must be safe for concurrent use.
type Sink interface {
	// Write appends the record. Most sinks write rec.LogLine().
	Write(ctx context.Context, rec ErrorRecord) error

	// Flush ensures any buffered records are persisted.
	// For synchronous sinks, this may be a no-op.
	Flush(ctx context.Context) error

	// Close releases resources held by the sink.
	// After Close is called, Write and Flush should return errors.
	Close() error
}

// noopSinkInternal is an internal noop sink to avoid import cycles.
type noopSinkInternal struct{}

func (s *noopSinkInternal) Write(ctx context.Context, rec ErrorRecord) error {
	return nil
}

func (s *noopSinkInternal) Flush(ctx context.Context) error {
	return nil
}

func (s *noopSinkInternal) Close() error {
	return nil
}
