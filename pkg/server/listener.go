package server

import (
	"net"
	"sync/atomic"
)

// guardedListener calls abort when Accept fails for lack of resources and
// the policy is enabled.
type guardedListener struct {
	net.Listener
	enabled *atomic.Bool
	abort   func(error)
}

func (l *guardedListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil && l.enabled.Load() && isResourceError(err) {
		l.abort(err)
	}
	return conn, err
}
