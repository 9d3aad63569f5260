// Package noop provides a sink that discards records. It still counts them,
// so a program running with every log destination off can tell how many
// failures went unlogged.
package noop

import (
	"context"
	"sync/atomic"

	"github.com/strongdm/errtrap/pkg/errtrap"
)

// Sink discards records.
type Sink struct {
	discarded atomic.Uint64
	last      atomic.Value // string
}

var _ errtrap.Sink = (*Sink)(nil)

// NewNoopSink creates a discarding sink.
func NewNoopSink() *Sink {
	return &Sink{}
}

func (s *Sink) Write(ctx context.Context, rec errtrap.ErrorRecord) error {
	s.discarded.Add(1)
	s.last.Store(rec.CorrelationID)
	return nil
}

// Discarded is the number of records written so far.
func (s *Sink) Discarded() uint64 {
	return s.discarded.Load()
}

// LastCorrelationID is the correlation id of the most recent record, empty
// before the first write.
func (s *Sink) LastCorrelationID() string {
	id, _ := s.last.Load().(string)
	return id
}

func (s *Sink) Flush(ctx context.Context) error { return nil }
func (s *Sink) Close() error                    { return nil }
