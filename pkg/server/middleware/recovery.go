package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/workbench/pkg/telemetry/logging"
)

// RecoveryMiddleware recovers from panics in the wrapped handler and
// returns a generic 500 response. The panic and stack trace are logged but
// never sent to the client. http.ErrAbortHandler is re-panicked so net/http
// can abort the connection silently.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			slog.ErrorContext(r.Context(), "panic in request dispatch",
				"error", rec,
				"request_id", logging.GetRequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}
