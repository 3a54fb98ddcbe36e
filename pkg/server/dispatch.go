package server

import (
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/workbench/pkg/telemetry/logging"
	"mercator-hq/workbench/pkg/telemetry/tracing"
	"mercator-hq/workbench/pkg/uri"
)

// dispatch matches the request, invokes its handler on a worker and waits
// for the connection to complete.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	route, err := s.registry.Match(r.URL.Path)
	if errors.Is(err, uri.ErrNoRoute) {
		http.NotFound(w, r)
		s.metrics.RecordRequest("none", "none", http.StatusNotFound, time.Since(start))
		return
	}

	ctx := tracing.Extract(r.Context(), r.Header)
	ctx, span := s.tracer.Start(ctx, "workbench.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
			attribute.String("workbench.route", route.Name()),
			attribute.String("workbench.class", route.Class.String()),
		),
	)
	defer span.End()

	if traceID := tracing.TraceID(ctx); traceID != "" {
		ctx = logging.WithTraceID(ctx, traceID)
	}
	ctx = logging.WithRoute(ctx, route.Name())

	conn := uri.NewConnection(w, r.WithContext(ctx))

	s.metrics.RequestStarted()
	defer s.metrics.RequestFinished()

	pool := s.pool.Load()
	if pool == nil {
		conn.Abort(http.StatusServiceUnavailable, "Service Unavailable")
	} else if err := pool.submit(ctx, s.invoke(route, conn)); err != nil {
		if errors.Is(err, ErrPoolStopped) {
			conn.Abort(http.StatusServiceUnavailable, "Service Unavailable")
		} else {
			conn.Abandon()
		}
	}

	s.await(route, conn)

	tracing.SetStatus(span, conn.Status())
	s.metrics.RecordRequest(route.Name(), route.Class.String(), conn.Status(), time.Since(start))
}

// invoke returns the pool job running route's handler against conn. A
// panicking handler aborts the connection with 500.
func (s *Server) invoke(route uri.Route, conn *uri.Connection) func() {
	return func() {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			s.logger.ErrorContext(conn.Context(), "panic in handler",
				"route", route.Name(),
				"path", conn.Request().URL.Path,
				"error", rec,
				"stack", string(debug.Stack()),
			)
			conn.Abort(http.StatusInternalServerError, "Internal Server Error")
		}()

		route.Invoke(conn)
	}
}

// await blocks until conn is complete, the async timeout elapses or the
// client goes away.
func (s *Server) await(route uri.Route, conn *uri.Connection) {
	var timeout <-chan time.Time
	if s.config.AsyncTimeout > 0 {
		timer := time.NewTimer(s.config.AsyncTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-conn.Done():
	case <-timeout:
		if conn.Abort(http.StatusGatewayTimeout, "Gateway Timeout") {
			s.metrics.RecordAsyncTimeout(route.Name())
			s.logger.WarnContext(conn.Context(), "handler did not complete in time",
				"route", route.Name(),
				"path", conn.Request().URL.Path,
				"timeout", s.config.AsyncTimeout.String(),
			)
		}
	case <-conn.Context().Done():
		if conn.Abandon() {
			s.logger.DebugContext(conn.Context(), "client went away before response",
				"route", route.Name(),
				"path", conn.Request().URL.Path,
			)
		}
	}
}
