// Package server provides the asynchronous HTTP server of the workbench.
//
// The server owns the listening socket, a fixed-size worker pool, the
// scheduled command runner and the URI registry. Each request is matched
// against the registry by longest prefix and its handler is invoked exactly
// once on a pool worker. Blocking handlers fill in the buffered response and
// return; async handlers receive the connection and complete it later, for
// example after a round trip to a back-end session.
//
// # Lifecycle
//
//	srv := server.New("workbench", cfg.Server,
//	    server.WithMetrics(collector),
//	    server.WithTracer(tracer),
//	)
//	if err := srv.Init(cfg.Server.Address, cfg.Server.Port); err != nil {
//	    // *BindError; errors.Is(err, server.ErrAddressInUse)
//	}
//	srv.AddHandler("/rpc", rpcHandler)
//	srv.AddBlockingHandler("/progress", progressHandler)
//	srv.SetBlockingDefaultHandler(fileHandler)
//	srv.AddScheduledCommand(pruner)
//
//	if err := srv.Run(cfg.Server.ThreadPoolSize); err != nil {
//	    // not initialized or already running
//	}
//	err := <-srv.Errors() // fatal serve loop failure
//
// Run seals the registry. Adding handlers afterwards fails with
// uri.ErrRegistrySealed. Scheduled commands may still be added.
//
// # Connection completion
//
// The goroutine serving a request waits until the connection is complete.
// Three things can complete it:
//   - the handler calls Connection.WriteResponse
//   - the async timeout elapses, and the server aborts with 504
//   - the client disconnects, and the connection is abandoned
//
// A handler that panics is recovered on the worker and the connection is
// aborted with 500. Whatever happens first wins; later completions are
// ignored.
//
// # Resource errors
//
// With SetAbortOnResourceError(true), an accept failure caused by resource
// exhaustion (EMFILE, ENFILE, ENOBUFS, ENOMEM) terminates the process
// through the configured abort function instead of letting net/http retry.
package server
