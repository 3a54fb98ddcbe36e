package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/jpillora/backoff"
)

const maxDialAttempts = 8

// unixDialer returns a DialContext that connects to the session socket at
// path, retrying while the session is still coming up.
func unixDialer(path string) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, _, _ string) (net.Conn, error) {
		b := &backoff.Backoff{Min: 10 * time.Millisecond, Max: 500 * time.Millisecond, Factor: 2, Jitter: true}
		var d net.Dialer
		for {
			conn, err := d.DialContext(ctx, "unix", path)
			if err == nil {
				return conn, nil
			}
			if !retryableDial(err) || b.Attempt() >= maxDialAttempts-1 {
				return nil, fmt.Errorf("%w: dial %s: %w", ErrSessionUnavailable, path, err)
			}

			timer := time.NewTimer(b.Duration())
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
}

func retryableDial(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.EAGAIN)
}
