package affinity

import (
	"context"
	"math/rand"
	"time"

	rerrors "github.com/vinayprograms/taskrunner/errors"
	"github.com/vinayprograms/taskrunner/logging"
)

// Default acquisition delay distribution.
const (
	DefaultAcquireMean   = 2 * time.Second
	DefaultAcquireStdDev = 250 * time.Millisecond
	DefaultAcquireMin    = 200 * time.Millisecond
)

// Acquirer models the cost of loading a label's backing state into a runner.
type Acquirer struct {
	Mean   time.Duration
	StdDev time.Duration
	Min    time.Duration

	logger *logging.Logger
	normal func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

// AcquirerOption configures an Acquirer.
type AcquirerOption func(*Acquirer)

// WithAcquireLogger sets the logger used for miss warnings.
func WithAcquireLogger(l *logging.Logger) AcquirerOption {
	return func(a *Acquirer) { a.logger = l }
}

// WithNormal replaces the standard normal sampler.
func WithNormal(fn func() float64) AcquirerOption {
	return func(a *Acquirer) { a.normal = fn }
}

// WithSleep replaces the context-aware sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) AcquirerOption {
	return func(a *Acquirer) { a.sleep = fn }
}

// NewAcquirer creates an Acquirer sampling delays from Normal(mean, stddev)
// clamped below at floor.
func NewAcquirer(mean, stddev, floor time.Duration, opts ...AcquirerOption) *Acquirer {
	a := &Acquirer{
		Mean:   mean,
		StdDev: stddev,
		Min:    floor,
		logger: logging.Nop(),
		normal: rand.NormFloat64,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithComponent("affinity")
	return a
}

// DefaultAcquirer returns an Acquirer with the default distribution.
func DefaultAcquirer(opts ...AcquirerOption) *Acquirer {
	return NewAcquirer(DefaultAcquireMean, DefaultAcquireStdDev, DefaultAcquireMin, opts...)
}

// Delay samples one acquisition delay.
func (a *Acquirer) Delay() time.Duration {
	d := a.Mean + time.Duration(a.normal()*float64(a.StdDev))
	if d < a.Min {
		d = a.Min
	}
	return d
}

// Acquire makes label available to the calling handler. It returns true when
// nothing had to be loaded: label is empty or already held. A held label's
// recency is not refreshed. On a miss it logs a warning, waits one sampled
// delay, adds label to the cache and returns false.
func (a *Acquirer) Acquire(ctx context.Context, c *Cache, label, taskID, runnerID string) (bool, error) {
	if label == "" || c.Has(label) {
		return true, nil
	}

	a.logger.LabelMiss(label, taskID, runnerID)
	if err := a.sleep(ctx, a.Delay()); err != nil {
		return false, rerrors.Wrap(err, "affinity: acquire "+label, rerrors.WithTaskID(taskID))
	}
	if err := c.Add(ctx, label); err != nil {
		return false, err
	}
	return false, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
