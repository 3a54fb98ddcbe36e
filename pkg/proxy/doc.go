// Package proxy forwards authenticated requests to the requesting user's
// back-end session.
//
// Each handler returns at once and completes the connection from its own
// goroutine, so a slow or long-polling back end never holds a worker. The
// back-end response is copied into the connection unchanged. Failures are
// mapped onto the connection as follows:
//
//	anonymous request, launch mode           401
//	user name cannot name a session          403
//	session could not be started or dialed   503
//	back end did not answer in time          504
//	any other transport failure              502
//
// RPC and events requests carry the failure as a JSON-RPC error body.
//
// Every forwarded request carries the user name and a shared secret
// generated at startup; sessions reject requests without it.
package proxy
