package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrDuplicateCommand is returned when a command name is added twice.
	ErrDuplicateCommand = errors.New("scheduled command already exists")

	// ErrInvalidInterval is returned for commands with an interval below one
	// second, the resolution of the underlying scheduler.
	ErrInvalidInterval = errors.New("scheduled command interval must be at least 1s")

	// ErrStopped is returned when adding a command to a stopped scheduler.
	ErrStopped = errors.New("scheduler is stopped")
)

// Command is a unit of periodic work.
type Command interface {
	// Name identifies the command in logs and metrics.
	Name() string

	// Interval is the delay between consecutive runs.
	Interval() time.Duration

	// Execute performs one run. The context is cancelled when the
	// scheduler stops.
	Execute(ctx context.Context) error
}

// PeriodicCommand is a Command backed by a function.
type PeriodicCommand struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
}

// NewPeriodicCommand returns a command running fn every interval.
func NewPeriodicCommand(name string, interval time.Duration, fn func(ctx context.Context) error) *PeriodicCommand {
	return &PeriodicCommand{name: name, interval: interval, fn: fn}
}

// Name implements Command.
func (c *PeriodicCommand) Name() string { return c.name }

// Interval implements Command.
func (c *PeriodicCommand) Interval() time.Duration { return c.interval }

// Execute implements Command.
func (c *PeriodicCommand) Execute(ctx context.Context) error { return c.fn(ctx) }

// Recorder receives the outcome of every command run.
type Recorder interface {
	RecordScheduledCommand(name string, err error, duration time.Duration)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for command failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		s.recorder = r
	}
}

// Scheduler runs Commands on their intervals.
type Scheduler struct {
	cron     *cron.Cron
	logger   *slog.Logger
	recorder Recorder

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]cron.EntryID
	running bool
	stopped bool
}

// New creates a stopped scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:  slog.Default().With("component", "scheduler"),
		entries: make(map[string]cron.EntryID),
	}
	for _, opt := range opts {
		opt(s)
	}

	cl := cronLogger{logger: s.logger}
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cl),
		cron.SkipIfStillRunning(cl),
	))
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Add schedules cmd. Commands added before Start begin running when the
// scheduler starts.
func (s *Scheduler) Add(cmd Command) error {
	if cmd.Interval() < time.Second {
		return fmt.Errorf("%w: %s has interval %s", ErrInvalidInterval, cmd.Name(), cmd.Interval())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if _, exists := s.entries[cmd.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, cmd.Name())
	}

	id := s.cron.Schedule(cron.Every(cmd.Interval()), cron.FuncJob(func() {
		s.run(cmd)
	}))
	s.entries[cmd.Name()] = id

	s.logger.Debug("scheduled command added",
		"command", cmd.Name(),
		"interval", cmd.Interval().String(),
	)
	return nil
}

func (s *Scheduler) run(cmd Command) {
	start := time.Now()
	err := cmd.Execute(s.ctx)
	duration := time.Since(start)

	if s.recorder != nil {
		s.recorder.RecordScheduledCommand(cmd.Name(), err, duration)
	}
	if err != nil {
		s.logger.Error("scheduled command failed",
			"command", cmd.Name(),
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return
	}
	s.logger.Debug("scheduled command completed",
		"command", cmd.Name(),
		"duration_ms", duration.Milliseconds(),
	)
}

// Start begins running scheduled commands. It is a no-op if the scheduler
// is already running or has been stopped.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.stopped {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started", "commands", len(s.entries))
}

// Stop cancels running commands and waits for them to return. A stopped
// scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	s.cancel()
	if wasRunning {
		<-s.cron.Stop().Done()
		s.logger.Info("scheduler stopped")
	}
}

// IsRunning reports whether the scheduler has been started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled run of the named command. It reports
// false for unknown commands and before Start.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}

	next := s.cron.Entry(id).Next
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

// Commands returns the names of scheduled commands, sorted.
func (s *Scheduler) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
