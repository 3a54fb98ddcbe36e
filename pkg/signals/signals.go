package signals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrAlreadyArmed is returned by a second Arm.
	ErrAlreadyArmed = errors.New("signal coordinator already armed")

	// ErrNotArmed is returned by Wait before Arm.
	ErrNotArmed = errors.New("signal coordinator not armed")
)

// Watched is the signal set the coordinator subscribes.
var Watched = []os.Signal{unix.SIGCHLD, unix.SIGINT, unix.SIGQUIT, unix.SIGTERM}

// State is the coordinator state.
type State int

const (
	Unarmed State = iota
	Waiting
	Terminating
)

func (s State) String() string {
	switch s {
	case Unarmed:
		return "unarmed"
	case Waiting:
		return "waiting"
	case Terminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// OS is the process signal interface.
type OS interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
	Reset(sig ...os.Signal)
	Raise(sig syscall.Signal) error
}

type systemOS struct{}

func (systemOS) Notify(c chan<- os.Signal, sig ...os.Signal) { signal.Notify(c, sig...) }
func (systemOS) Stop(c chan<- os.Signal)                     { signal.Stop(c) }
func (systemOS) Reset(sig ...os.Signal)                      { signal.Reset(sig...) }

func (systemOS) Raise(sig syscall.Signal) error {
	if err := setDefault(sig); err != nil {
		return fmt.Errorf("restore default action for %s: %w", unix.SignalName(sig), err)
	}
	return unix.Kill(unix.Getpid(), sig)
}

// TerminatedError is returned by Wait when the process is still running
// after a termination signal was re-raised.
type TerminatedError struct {
	Signal syscall.Signal
	Err    error
}

func (e *TerminatedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("terminated by %s: re-raise failed: %v", unix.SignalName(e.Signal), e.Err)
	}
	return fmt.Sprintf("terminated by %s", unix.SignalName(e.Signal))
}

func (e *TerminatedError) Unwrap() error { return e.Err }

// ExitCode is the shell convention for death by signal.
func (e *TerminatedError) ExitCode() int {
	return 128 + int(e.Signal)
}

// Hooks are called from the Wait goroutine.
type Hooks struct {
	// OnChildExit runs for every SIGCHLD.
	OnChildExit func()

	// Cleanup runs once before a termination signal is re-raised.
	Cleanup func(sig os.Signal)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithOS replaces the process signal interface.
func WithOS(o OS) Option {
	return func(c *Coordinator) {
		c.os = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithRaiseGrace sets how long Wait waits for the re-raised signal to end
// the process before returning. Default: 1s.
func WithRaiseGrace(d time.Duration) Option {
	return func(c *Coordinator) {
		c.raiseGrace = d
	}
}

// Coordinator owns the signal loop.
type Coordinator struct {
	hooks      Hooks
	os         OS
	logger     *slog.Logger
	raiseGrace time.Duration

	mu    sync.Mutex
	state State
	ch    chan os.Signal

	cleanupOnce sync.Once
}

// New returns an unarmed coordinator.
func New(hooks Hooks, opts ...Option) *Coordinator {
	c := &Coordinator{
		hooks:      hooks,
		os:         systemOS{},
		logger:     slog.Default().With("component", "signals"),
		raiseGrace: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Arm subscribes the watched signals.
func (c *Coordinator) Arm() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Unarmed {
		return ErrAlreadyArmed
	}
	// Buffered so a burst of SIGCHLD during cleanup is not lost.
	c.ch = make(chan os.Signal, 16)
	c.os.Notify(c.ch, Watched...)
	c.state = Waiting
	return nil
}

// Wait runs the signal loop. It returns ctx.Err() when ctx ends, or a
// *TerminatedError after a termination signal the process survived.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	state, ch := c.state, c.ch
	c.mu.Unlock()
	if state != Waiting {
		return ErrNotArmed
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case sig := <-ch:
			switch sig {
			case unix.SIGCHLD:
				c.childExited()
			case unix.SIGINT, unix.SIGQUIT, unix.SIGTERM:
				return c.terminate(sig.(syscall.Signal))
			default:
				c.logger.Warn("unexpected signal", "signal", sig.String())
			}
		}
	}
}

func (c *Coordinator) childExited() {
	if c.hooks.OnChildExit == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("panic in child exit hook", "error", rec, "stack", string(debug.Stack()))
		}
	}()
	c.hooks.OnChildExit()
}

func (c *Coordinator) terminate(sig syscall.Signal) error {
	c.mu.Lock()
	c.state = Terminating
	c.mu.Unlock()

	c.logger.Info("termination signal received", "signal", unix.SignalName(sig))
	c.cleanupOnce.Do(func() {
		if c.hooks.Cleanup == nil {
			return
		}
		defer func() {
			if rec := recover(); rec != nil {
				c.logger.Error("panic in cleanup", "error", rec, "stack", string(debug.Stack()))
			}
		}()
		c.hooks.Cleanup(sig)
	})

	c.os.Stop(c.ch)
	c.os.Reset(sig)
	if err := c.os.Raise(sig); err != nil {
		return &TerminatedError{Signal: sig, Err: err}
	}

	time.Sleep(c.raiseGrace)
	return &TerminatedError{Signal: sig}
}
