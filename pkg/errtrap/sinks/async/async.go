// Package async provides a sink wrapper with a bounded queue, so a slow log
// destination never delays the report page. Records are written in the
// background; the oldest queued record is dropped when the queue is full.
package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strongdm/errtrap/pkg/errtrap"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("async sink is closed")

// AsyncSinkOption configures the async sink.
type AsyncSinkOption func(*asyncSinkConfig)

type asyncSinkConfig struct {
	queueSize    int
	pollInterval time.Duration
	onDropped    func(count int)
	onError      func(rec errtrap.ErrorRecord, err error)
}

// WithQueueSize sets the maximum number of queued records (default: 1000).
func WithQueueSize(size int) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithFlushInterval sets how often Flush checks for an empty queue (default: 10ms).
func WithFlushInterval(d time.Duration) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithOnDropped sets a callback invoked when records are dropped due to queue overflow.
func WithOnDropped(fn func(count int)) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		c.onDropped = fn
	}
}

// WithOnError sets a callback invoked when the inner sink rejects a record.
func WithOnError(fn func(rec errtrap.ErrorRecord, err error)) AsyncSinkOption {
	return func(c *asyncSinkConfig) {
		c.onError = fn
	}
}

type asyncSink struct {
	inner        errtrap.Sink
	queue        chan errtrap.ErrorRecord
	done         chan struct{}
	pollInterval time.Duration
	onDropped    func(count int)
	onError      func(rec errtrap.ErrorRecord, err error)

	// pending counts records enqueued but not yet handed to inner.
	pending atomic.Int64

	closeOnce sync.Once
	closeMu   sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
}

// NewAsyncSink wraps a sink with a bounded queue for async writes.
func NewAsyncSink(inner errtrap.Sink, opts ...AsyncSinkOption) errtrap.Sink {
	cfg := &asyncSinkConfig{
		queueSize:    1000,
		pollInterval: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &asyncSink{
		inner:        inner,
		queue:        make(chan errtrap.ErrorRecord, cfg.queueSize),
		done:         make(chan struct{}),
		pollInterval: cfg.pollInterval,
		onDropped:    cfg.onDropped,
		onError:      cfg.onError,
	}

	s.wg.Add(1)
	go s.processLoop()

	return s
}

// processLoop drains the queue and writes to the inner sink.
func (s *asyncSink) processLoop() {
	defer s.wg.Done()
	for {
		select {
		case rec := <-s.queue:
			s.write(rec)
		case <-s.done:
			// Drain remaining records
			for {
				select {
				case rec := <-s.queue:
					s.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (s *asyncSink) write(rec errtrap.ErrorRecord) {
	defer s.pending.Add(-1)
	if err := s.inner.Write(context.Background(), rec); err != nil && s.onError != nil {
		s.onError(rec, err)
	}
}

// Write enqueues a record for async processing. Returns immediately.
// If the queue is full, drops the oldest record.
func (s *asyncSink) Write(ctx context.Context, rec errtrap.ErrorRecord) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	s.pending.Add(1)
	select {
	case s.queue <- rec:
	default:
		s.dropOldestAndEnqueue(rec)
	}
	return nil
}

// dropOldestAndEnqueue drops the oldest record and enqueues the new one.
func (s *asyncSink) dropOldestAndEnqueue(rec errtrap.ErrorRecord) {
	select {
	case <-s.queue:
		s.dropped()
	default:
		// Queue was emptied by processor, try again
	}

	select {
	case s.queue <- rec:
	default:
		// Still full, just drop the new record
		s.dropped()
	}
}

func (s *asyncSink) dropped() {
	s.pending.Add(-1)
	if s.onDropped != nil {
		s.onDropped(1)
	}
}

// Flush blocks until all queued records reached the inner sink, then
// flushes it.
func (s *asyncSink) Flush(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for s.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return s.inner.Flush(ctx)
}

// Close stops the processor after draining the queue and closes the inner sink.
func (s *asyncSink) Close() error {
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closed = true
		s.closeMu.Unlock()

		close(s.done)
		s.wg.Wait()
	})

	return s.inner.Close()
}
