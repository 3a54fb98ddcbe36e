// Package signals runs the process signal loop.
//
// A Coordinator moves through three states:
//
//	Unarmed --Arm--> Waiting --INT/QUIT/TERM--> Terminating
//
// Arm subscribes SIGCHLD, SIGINT, SIGQUIT and SIGTERM on the runtime's
// signal channel, so no other goroutine sees them. Wait then loops: SIGCHLD
// runs the child-exit hook and keeps waiting; a termination signal runs
// the cleanup hook exactly once, unsubscribes, restores the default
// disposition and raises the same signal again so the process ends with
// the status a supervisor expects. If the process survives the re-raise,
// Wait returns a *TerminatedError carrying the 128+signo exit code.
package signals
