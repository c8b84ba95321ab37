package runner

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/vinayprograms/taskrunner/affinity"
	"github.com/vinayprograms/taskrunner/bus"
	"github.com/vinayprograms/taskrunner/config"
	rerrors "github.com/vinayprograms/taskrunner/errors"
	"github.com/vinayprograms/taskrunner/heartbeat"
	"github.com/vinayprograms/taskrunner/logging"
	"github.com/vinayprograms/taskrunner/registry"
	"github.com/vinayprograms/taskrunner/results"
	"github.com/vinayprograms/taskrunner/store"
	"github.com/vinayprograms/taskrunner/tasks"
	"github.com/vinayprograms/taskrunner/telemetry"
)

// State is a runner's lifecycle position.
type State int32

const (
	StateUnregistered State = iota
	StateAvailable
	StateListening
	StateDispatching
	StateDeregistered
)

var stateNames = map[State]string{
	StateUnregistered: "unregistered",
	StateAvailable:    "available",
	StateListening:    "listening",
	StateDispatching:  "dispatching",
	StateDeregistered: "deregistered",
}

// String returns the state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Runner consumes tasks for one worker identity.
type Runner struct {
	id        string
	store     store.Store
	registry  *registry.Registry
	cache     *affinity.Cache
	handlers  *tasks.Registry
	publisher *results.Publisher
	acquirer  *affinity.Acquirer
	heartbeat *heartbeat.BusSender
	tracer    *telemetry.Tracer
	logger    *logging.Logger

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

// Option configures a Runner.
type Option func(*options)

type options struct {
	id       string
	logger   *logging.Logger
	tracer   *telemetry.Tracer
	acquirer *affinity.Acquirer
}

// WithID fixes the runner identity instead of generating one.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer sets the tracer. Defaults to the global tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithAcquirer replaces the acquirer built from the settings.
func WithAcquirer(a *affinity.Acquirer) Option {
	return func(o *options) { o.acquirer = a }
}

// New creates a runner with a fresh identity. The runner is not registered
// until Open.
func New(cfg config.Settings, st store.Store, mb bus.MessageBus, opts ...Option) (*Runner, error) {
	o := options{
		id:     uuid.NewString(),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = telemetry.GetTracer()
	}
	if o.acquirer == nil {
		mean, stddev, floor := cfg.AcquireDelays()
		o.acquirer = affinity.NewAcquirer(mean, stddev, floor, affinity.WithAcquireLogger(o.logger))
	}

	cache, err := affinity.New(o.id, st, cfg.MaxLabels, affinity.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	r := &Runner{
		id:        o.id,
		store:     st,
		registry:  registry.New(st),
		cache:     cache,
		handlers:  tasks.NewRegistry(),
		publisher: results.NewPublisher(mb, st, cfg.ResultTTLDuration()),
		acquirer:  o.acquirer,
		tracer:    o.tracer,
		logger:    o.logger.WithComponent("runner").With(logging.Fields{"runner_id": o.id}),
	}

	if every := cfg.HeartbeatEvery(); every > 0 {
		r.heartbeat, err = heartbeat.NewBusSender(heartbeat.SenderConfig{
			Bus:      mb,
			RunnerID: o.id,
			Interval: every,
			Labels:   cache.Labels,
			Logger:   o.logger,
		})
		if err != nil {
			return nil, rerrors.Wrap(err, "runner: heartbeat")
		}
	}
	return r, nil
}

// ID returns the runner identity.
func (r *Runner) ID() string { return r.id }

// Cache returns the runner's affinity cache.
func (r *Runner) Cache() *affinity.Cache { return r.cache }

// Handlers returns the registered task types.
func (r *Runner) Handlers() []string { return r.handlers.Names() }

// State returns the current lifecycle state.
func (r *Runner) State() State { return State(r.state.Load()) }

func (r *Runner) setState(s State) { r.state.Store(int32(s)) }

// Open marks the runner available and registers it.
func (r *Runner) Open(ctx context.Context) error {
	if err := r.setAvailable(ctx, true); err != nil {
		return err
	}
	if err := r.registry.Register(ctx, r.id); err != nil {
		return err
	}
	if r.heartbeat != nil {
		if err := r.heartbeat.Start(context.WithoutCancel(ctx)); err != nil {
			return rerrors.Wrap(err, "runner: start heartbeat")
		}
	}
	r.setState(StateAvailable)
	r.logger.RunnerRegistered(r.id)
	return nil
}

// Close marks the runner unavailable, deregisters it, removes every held
// label and closes the store. Each step runs even if an earlier one fails.
// Later calls return the first call's result.
func (r *Runner) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		var hbErr error
		if r.heartbeat != nil {
			// ErrNotStarted: Open failed or never ran.
			if err := r.heartbeat.Stop(); err != nil && err != heartbeat.ErrNotStarted {
				hbErr = rerrors.Wrap(err, "runner: stop heartbeat")
			}
		}
		r.closeErr = rerrors.Join(
			hbErr,
			r.setAvailable(ctx, false),
			r.registry.Deregister(ctx, r.id),
			r.cache.ClearAll(ctx),
			r.store.Close(),
		)
		r.setState(StateDeregistered)
		r.logger.RunnerDeregistered(r.id)
	})
	return r.closeErr
}

// Run opens the runner, calls fn, and closes the runner on every exit path,
// including a panic in fn. fn's error is logged and returned after Close.
func (r *Runner) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		cerr := r.Close(context.WithoutCancel(ctx))
		if err != nil {
			r.logger.Error("runner_exited", logging.Fields{"error": err.Error()})
		}
		err = rerrors.Join(err, cerr)
	}()

	if err := r.Open(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

func (r *Runner) setAvailable(ctx context.Context, available bool) error {
	if err := r.registry.SetAvailable(ctx, r.id, available); err != nil {
		return err
	}
	if r.heartbeat != nil {
		r.heartbeat.SetStatus(registry.StatusFor(available))
	}
	return nil
}

// Acquire makes task's label available, simulating its load cost on a miss.
// It reports whether the label was already satisfied.
func (r *Runner) Acquire(ctx context.Context, task *tasks.Task) (bool, error) {
	if !task.HasLabel() {
		return true, nil
	}
	ctx, span := r.tracer.StartAcquire(ctx, task.Label)
	hit, err := r.acquirer.Acquire(ctx, r.cache, task.Label, task.TaskID, r.id)
	r.tracer.EndAcquire(span, hit, err)
	return hit, err
}
