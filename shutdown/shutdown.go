package shutdown

import (
	"context"
	"time"

	rerrors "github.com/vinayprograms/taskrunner/errors"
	"github.com/vinayprograms/taskrunner/logging"
)

var (
	// ErrTimeout is returned when phases remain after the deadline.
	ErrTimeout = rerrors.New(rerrors.ErrCodeTimeout, "shutdown: deadline reached before all phases ran")

	// ErrHandlerFailed is returned when at least one handler failed.
	ErrHandlerFailed = rerrors.Internal("shutdown: handler failed")
)

// Worker shutdown phases. Lower phases run first.
const (
	PhaseListener  = 10
	PhaseHeartbeat = 20
	PhaseTelemetry = 90
)

// Handler is implemented by components that need graceful shutdown.
type Handler interface {
	// OnShutdown is called when shutdown is initiated.
	// The context is cancelled when the timeout is reached.
	OnShutdown(ctx context.Context) error
}

// HandlerFunc is a convenience type for simple shutdown functions.
type HandlerFunc func(ctx context.Context) error

// OnShutdown implements Handler.
func (f HandlerFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// HandlerResult records one handler run.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result is the outcome of a completed shutdown.
type Result struct {
	TotalDuration time.Duration
	Results       []HandlerResult
	Err           error
}

// FailedHandlers returns the names of handlers that failed.
func (r *Result) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures the shutdown coordinator.
type Config struct {
	// DefaultTimeout bounds a signal-triggered shutdown.
	// Default: 30 seconds
	DefaultTimeout time.Duration

	// DefaultPhase is assigned to handlers registered without a phase.
	// Default: 100
	DefaultPhase int

	// StopOnError aborts later phases after a handler fails.
	StopOnError bool

	// Logger receives one line per completed handler. Optional.
	Logger *logging.Logger
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 30 * time.Second,
		DefaultPhase:   100,
	}
}

type registration struct {
	name    string
	handler Handler
	phase   int
}
