package proxy

import (
	"context"
	"errors"
	"net/http"
	"syscall"

	"mercator-hq/workbench/pkg/jsonrpc"
	"mercator-hq/workbench/pkg/session"
	"mercator-hq/workbench/pkg/uri"
)

var (
	// ErrNotInitialized is returned when the proxy is used before Initialize.
	ErrNotInitialized = errors.New("session proxy not initialized")

	// ErrSessionUnavailable wraps failures to start or reach a session.
	ErrSessionUnavailable = errors.New("session unavailable")
)

// failure is how a forwarding error is rendered.
type failure struct {
	status  int
	rpcCode int
	message string
	outcome string
}

func classify(err error) failure {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, session.ErrLaunchTimeout):
		return failure{http.StatusGatewayTimeout, jsonrpc.Timeout, "session timed out", "timeout"}
	case errors.Is(err, ErrSessionUnavailable),
		errors.Is(err, session.ErrShutdown),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ENOENT):
		return failure{http.StatusServiceUnavailable, jsonrpc.Unavailable, "session unavailable", "unavailable"}
	case errors.Is(err, session.ErrAnonymous):
		return failure{http.StatusUnauthorized, jsonrpc.Unauthorized, "unauthorized", "anonymous"}
	case errors.Is(err, session.ErrInvalidUser):
		return failure{http.StatusForbidden, jsonrpc.Forbidden, "forbidden", "rejected"}
	default:
		return failure{http.StatusBadGateway, jsonrpc.InternalError, "bad gateway", "error"}
	}
}

func (f failure) write(resp *uri.Response, kind Kind) {
	if kind.usesJSONRPC() {
		resp.SetJSON(f.status, jsonrpc.ErrorBody(f.rpcCode, f.message))
		return
	}
	resp.SetError(f.status, http.StatusText(f.status))
}
