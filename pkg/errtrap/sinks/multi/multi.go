// Package multi fans each record out to several sinks, e.g. stderr for the
// operator and cxdb for later grouping. Every sink sees every record; a
// failing sink never keeps the others from logging.
package multi

import (
	"context"
	"errors"
	"fmt"

	"github.com/strongdm/errtrap/pkg/errtrap"
)

// Named labels a sink in the errors the multi sink returns.
type Named struct {
	Name string
	Sink errtrap.Sink
}

type multiSink struct {
	sinks []Named
}

// NewMultiSink creates a sink writing to sinks in order. Nil sinks are
// skipped. Sinks are labelled by position; use NewNamedMultiSink for names.
func NewMultiSink(sinks ...errtrap.Sink) errtrap.Sink {
	named := make([]Named, 0, len(sinks))
	for i, s := range sinks {
		named = append(named, Named{Name: fmt.Sprintf("sink %d", i), Sink: s})
	}
	return NewNamedMultiSink(named...)
}

// NewNamedMultiSink is NewMultiSink with caller-chosen labels.
func NewNamedMultiSink(sinks ...Named) errtrap.Sink {
	s := &multiSink{}
	for _, n := range sinks {
		if n.Sink != nil {
			s.sinks = append(s.sinks, n)
		}
	}
	return s
}

// Write hands rec to every sink. The returned error joins one error per
// failed sink, each naming the sink and the record's correlation id so the
// lost log line can be found from the report page.
func (s *multiSink) Write(ctx context.Context, rec errtrap.ErrorRecord) error {
	var errs []error
	for _, n := range s.sinks {
		if err := n.Sink.Write(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: record %s: %w", n.Name, rec.CorrelationID, err))
		}
	}
	return errors.Join(errs...)
}

// Flush flushes every sink. Sinks not yet reached when ctx ends are skipped.
func (s *multiSink) Flush(ctx context.Context) error {
	var errs []error
	for _, n := range s.sinks {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: flush skipped: %w", n.Name, err))
			continue
		}
		if err := n.Sink.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: flush: %w", n.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink, even after failures.
func (s *multiSink) Close() error {
	var errs []error
	for _, n := range s.sinks {
		if err := n.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: close: %w", n.Name, err))
		}
	}
	return errors.Join(errs...)
}
