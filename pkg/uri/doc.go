// Package uri maps request paths to handlers.
//
// A Registry holds routes keyed by URI prefix. Match returns the route with
// the longest registered prefix of the request path, falling back to the
// default route. Once the server starts the registry is sealed and becomes
// read-only.
//
// Handlers come in two variants. A BlockingHandler fills in a Response and
// returns; the server writes the response for it. An AsyncHandler receives
// the Connection itself and must call Connection.WriteResponse exactly once,
// possibly after returning and from another goroutine. BlockingAdapter turns
// the first kind into the second.
package uri
