// Package session locates and launches the per-user back-end processes that
// the front end proxies to.
//
// In static mode every user is served by one configured back end. In launch
// mode the Manager starts the session command once per user, in its own
// process group, listening on <socket_dir>/<user>.sock, and waits until the
// socket accepts connections. Concurrent requests for a user that has no
// session yet share a single launch.
//
// Children are reaped when the signal coordinator reports SIGCHLD; a reaped
// child's session is forgotten so the next request launches a fresh one.
package session
