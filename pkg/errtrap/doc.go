// Package errtrap intercepts failures of a request-serving program and
// replaces them with a rendered report page.
//
// Three failure channels are captured: uncaught faults (panics), runtime
// signals (errors, warnings and notices raised through the host) and fatal
// failures that only show up in the host's last-error slot at the end of a
// request. Each captured failure becomes one ErrorRecord, is optionally
// written to a Sink as a single line, and is rendered either as a detailed
// developer page or as an anonymous page quoting only a correlation id.
//
// # Core Components
//
//   - Handler: installs the three hooks on a Host and owns their Config
//   - Builder: assembles ErrorRecords, writes them to the Sink and renders them
//   - Classify: maps severity codes to category names
//   - TraceCollector: captures the call stack for each record
//   - Renderer: produces the two report pages
//   - Sink: log destination (stderr, slog, cxdb, async, multi, noop)
//
// # Quick Start
//
// For net/http servers:
//
//	host := httphost.New()
//	handler := errtrap.New(errtrap.WithBuilder(errtrap.NewBuilder(
//	    errtrap.WithSink(stderr.NewStderrSink()),
//	)))
//	handler.Initialize(host, true)
//	http.ListenAndServe(":8080", host.Middleware(mux))
//
// Inside a request, once the caller is known to be a developer:
//
//	errtrap.SetRequestDeveloperMode(r.Context(), true)
//
// # Design Principles
//
//   - Every capture is terminal: hooks return an Outcome and the host binding
//     ends the request with it; the core never exits the process
//   - Anonymous by default: details are only shown when developer mode is set
//   - Sink failures are logged and never prevent the report
package errtrap
