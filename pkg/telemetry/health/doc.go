// Package health provides liveness and readiness probes for the workbench
// server.
//
// Components register named checks on a Checker; the health add-in mounts
// the two handlers at the configured paths. Readiness reports "starting"
// until the bootstrap sequence marks the server ready, then "ready" or
// "degraded" depending on the registered checks.
package health
