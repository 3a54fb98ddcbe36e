// Package middleware provides the net/http middleware applied in front of
// the URI registry dispatch.
//
// The chain, outermost first:
//
//	RecoveryMiddleware  -> LoggingMiddleware -> RequestIDMiddleware -> dispatch
//
// RecoveryMiddleware converts a panic that escapes dispatch into a generic
// 500 response. Handler panics inside the worker pool are handled by the
// server itself and never reach this layer; the middleware guards the
// dispatch code path.
//
// LoggingMiddleware logs one line per request with method, path, status
// and latency. 4xx responses are logged at warn level and 5xx at error
// level.
//
// RequestIDMiddleware reuses a client supplied X-Request-ID header or
// generates a UUID, stores it in the request context through the logging
// package, and echoes it on the response.
package middleware
