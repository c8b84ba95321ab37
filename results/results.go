package results

import (
	"context"
	"time"

	"github.com/vinayprograms/taskrunner/bus"
	rerrors "github.com/vinayprograms/taskrunner/errors"
	"github.com/vinayprograms/taskrunner/store"
)

// ValidateTaskID checks if a task ID is valid.
func ValidateTaskID(taskID string) error {
	if taskID == "" {
		return rerrors.InvalidInput("results: task id is empty")
	}
	return nil
}

// Publisher broadcasts and retains task outputs.
type Publisher struct {
	bus   bus.MessageBus
	store store.Store
	ttl   time.Duration
}

// NewPublisher creates a publisher. A zero ttl retains results forever.
func NewPublisher(mb bus.MessageBus, st store.Store, ttl time.Duration) *Publisher {
	return &Publisher{bus: mb, store: st, ttl: ttl}
}

// TTL returns how long retained results live.
func (p *Publisher) TTL() time.Duration {
	return p.ttl
}

// Publish retains output for taskID and broadcasts it once.
func (p *Publisher) Publish(ctx context.Context, taskID, output string) error {
	if err := ValidateTaskID(taskID); err != nil {
		return err
	}

	if err := p.store.Set(ctx, store.ResultKey(taskID), output, p.ttl); err != nil {
		return rerrors.Wrap(err, "results: retain", rerrors.WithTaskID(taskID))
	}
	if err := p.bus.Publish(ctx, store.ResultChannel(taskID), []byte(output)); err != nil {
		return rerrors.WrapWithCode(err, rerrors.ErrCodeUnavailable, "results: publish",
			rerrors.WithTaskID(taskID))
	}
	return nil
}

// Waiter blocks until a task's output is available.
type Waiter struct {
	bus   bus.MessageBus
	store store.Store
}

// NewWaiter creates a waiter.
func NewWaiter(mb bus.MessageBus, st store.Store) *Waiter {
	return &Waiter{bus: mb, store: st}
}

// Wait returns the output of taskID, from the retained value if it has
// already been published, otherwise from the result channel. It blocks until
// the output arrives or ctx ends.
func (w *Waiter) Wait(ctx context.Context, taskID string) (string, error) {
	if err := ValidateTaskID(taskID); err != nil {
		return "", err
	}

	sub, err := w.bus.Subscribe(ctx, store.ResultChannel(taskID))
	if err != nil {
		return "", rerrors.WrapWithCode(err, rerrors.ErrCodeUnavailable, "results: subscribe",
			rerrors.WithTaskID(taskID))
	}
	defer sub.Unsubscribe()

	out, err := w.store.Get(ctx, store.ResultKey(taskID))
	switch {
	case err == nil:
		return out, nil
	case !rerrors.Is(err, rerrors.ErrCodeNotFound):
		return "", rerrors.Wrap(err, "results: read retained", rerrors.WithTaskID(taskID))
	}

	msg, err := bus.Next(ctx, sub)
	if err != nil {
		return "", rerrors.Wrap(err, "results: wait", rerrors.WithTaskID(taskID))
	}
	return string(msg.Data), nil
}
