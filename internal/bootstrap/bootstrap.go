// Package bootstrap turns a loaded configuration into a ready errtrap Handler
// and its sink chain. The example programs share it.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"

	"github.com/strongdm/errtrap/internal/config"
	"github.com/strongdm/errtrap/pkg/errtrap"
	"github.com/strongdm/errtrap/pkg/errtrap/sinks/async"
	"github.com/strongdm/errtrap/pkg/errtrap/sinks/cxdb"
	"github.com/strongdm/errtrap/pkg/errtrap/sinks/multi"
	"github.com/strongdm/errtrap/pkg/errtrap/sinks/noop"
	"github.com/strongdm/errtrap/pkg/errtrap/sinks/slogsink"
	"github.com/strongdm/errtrap/pkg/errtrap/sinks/stderr"
)

// CXDBDialer opens a cxdb connection. The returned close function releases it.
type CXDBDialer func(ctx context.Context, addr, clientTag string) (cxdb.CXDBClient, func() error, error)

// DialCXDB connects with the cxdb Go client.
func DialCXDB(ctx context.Context, addr, clientTag string) (cxdb.CXDBClient, func() error, error) {
	client, err := cxdbclient.Dial(addr, cxdbclient.WithClientTag(clientTag))
	if err != nil {
		return nil, nil, fmt.Errorf("dial cxdb %s: %w", addr, err)
	}
	return client, client.Close, nil
}

// closerSink closes an external resource after the wrapped sink.
type closerSink struct {
	errtrap.Sink
	closeFn func() error
}

func (s *closerSink) Close() error {
	err := s.Sink.Close()
	if cerr := s.closeFn(); err == nil {
		err = cerr
	}
	return err
}

// Sinks builds the sink chain described by cfg.Sinks. A nil dial uses
// DialCXDB.
func Sinks(ctx context.Context, cfg *config.Config, logger *slog.Logger, dial CXDBDialer) (errtrap.Sink, error) {
	var sinks []multi.Named
	var closers []func() error

	if cfg.Sinks.Stderr {
		var opts []stderr.StderrSinkOption
		if cfg.Sinks.Verbose {
			opts = append(opts, stderr.WithVerbose())
		}
		sinks = append(sinks, multi.Named{Name: "stderr", Sink: stderr.NewStderrSink(opts...)})
	}
	if cfg.Sinks.Slog {
		sinks = append(sinks, multi.Named{Name: "slog", Sink: slogsink.New(logger)})
	}
	if cfg.Sinks.CXDB.Enabled {
		if dial == nil {
			dial = DialCXDB
		}
		client, closeFn, err := dial(ctx, cfg.Sinks.CXDB.Addr, cfg.Sinks.CXDB.ClientTag)
		if err != nil {
			return nil, err
		}
		closers = append(closers, closeFn)
		sinks = append(sinks, multi.Named{Name: "cxdb", Sink: cxdb.NewCXDBSink(client,
			cxdb.WithClientTag(cfg.Sinks.CXDB.ClientTag),
			cxdb.WithOrphanLabels(cfg.Sinks.CXDB.Labels),
		)})
	}

	var sink errtrap.Sink
	switch len(sinks) {
	case 0:
		return noop.NewNoopSink(), nil
	case 1:
		sink = sinks[0].Sink
	default:
		sink = multi.NewNamedMultiSink(sinks...)
	}

	if cfg.Sinks.Async {
		sink = async.NewAsyncSink(sink,
			async.WithQueueSize(cfg.Sinks.QueueSize),
			async.WithOnDropped(func(n int) {
				logger.Warn("errtrap: log records dropped", "count", n)
			}),
			async.WithOnError(func(rec errtrap.ErrorRecord, err error) {
				logger.Warn("errtrap: sink write failed", "correlation_id", rec.CorrelationID, "error", err)
			}),
		)
	}

	for _, closeFn := range closers {
		sink = &closerSink{Sink: sink, closeFn: closeFn}
	}
	return sink, nil
}

// Handler builds a Handler configured by cfg that logs to sink. The caller
// still has to Initialize it on a host.
func Handler(cfg *config.Config, logger *slog.Logger, sink errtrap.Sink) (*errtrap.Handler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}

	opts := []errtrap.BuilderOption{
		errtrap.WithSink(sink),
		errtrap.WithRenderer(errtrap.NewHTMLRenderer(cfg.Title)),
		errtrap.WithTimezone(loc),
		errtrap.WithLogger(logger),
	}
	if cfg.Scrub.Enabled {
		opts = append(opts, errtrap.WithScrubbing(cfg.ScrubberConfig()))
	}

	h := errtrap.New(
		errtrap.WithBuilder(errtrap.NewBuilder(opts...)),
		errtrap.WithTraceSource(&errtrap.RuntimeTraceSource{DisableEnhanced: !cfg.Trace.Enhanced}),
	)
	h.SetDeveloperMode(cfg.DeveloperMode)
	return h, nil
}
