/*
Package auth resolves and enforces session identity for URI handlers.

A Guard wraps handlers so that every request is checked before the inner
handler runs. The user-id secure cookie is decoded into an Identity, the
identity is checked against an Authorizer, and the result is bound to the
request context where the inner handler can read it with IdentityFrom.

# Failure kinds

Two failure kinds are kept apart:

  - ErrUnauthenticated: the cookie is missing, invalid or expired
  - ErrUnauthorized: the identity is valid but not permitted

Each wrapper flavor renders them differently:

	flavor    unauthenticated                      unauthorized
	http      GET/HEAD: 302 to sign-in, else 401   403
	jsonrpc   401 + JSON-RPC error -32001          403 + JSON-RPC error -32002
	upload    401 text                             403 text

With optional authentication a missing or invalid cookie is not an error;
the inner handler runs with an empty Identity.

# Composition

Handlers that need the identity implement Handler. Handlers that know
nothing about authentication are composed with IgnoreIdentity around a
uri.BlockingAdapter:

	docs := guard.SecureAsyncHTTPHandler(
	    auth.IgnoreIdentity(uri.Adapt(fileHandler)), true)

A panic in the inner handler is recovered, logged and rendered as a 500
response, and the connection is still completed exactly once.

# Providers

Exactly one authentication provider may be registered. The provider
supplies the sign-in URL used for redirects; the bootstrap installs the
built-in local provider only when nothing else registered first.
*/
package auth
