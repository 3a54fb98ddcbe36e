// Package handlers implements the routes the front end serves itself
// rather than proxying to a session: static files and the application
// shell, client log ingestion, the progress page, the unsupported-browser
// page, and the explicit not-found for /templates.
//
// Every handler here is a uri.BlockingHandler. Security is applied by the
// caller when the route is registered.
package handlers
