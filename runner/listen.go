package runner

import (
	"context"
	"sync"

	rerrors "github.com/vinayprograms/taskrunner/errors"
	"github.com/vinayprograms/taskrunner/logging"
	"github.com/vinayprograms/taskrunner/store"
	"github.com/vinayprograms/taskrunner/tasks"
)

// Outcome is the result of dispatching one task. Err is set for an unknown
// task type or a handler failure.
type Outcome struct {
	TaskID string
	Result string
	Err    error
}

// Failed reports whether the task did not complete successfully.
func (o Outcome) Failed() bool { return o.Err != nil }

// Listener is a running listening loop.
type Listener struct {
	outcomes chan Outcome
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// Outcomes yields one Outcome per dispatched task. The channel is closed
// when the loop ends.
func (l *Listener) Outcomes() <-chan Outcome { return l.outcomes }

// Done is closed when the loop has ended.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Err blocks until the loop ends and returns the fatal error that ended it,
// or nil if it ended because its context was cancelled.
func (l *Listener) Err() error {
	<-l.done
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Listen starts the listening loop. The loop pops the private queue ahead of
// the shared queue and dispatches one task at a time. In-flight handlers run
// with a context that is not cancelled by ctx.
func (r *Runner) Listen(ctx context.Context) *Listener {
	l := &Listener{
		outcomes: make(chan Outcome),
		done:     make(chan struct{}),
	}
	go func() {
		err := r.listen(ctx, l.outcomes)
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		close(l.outcomes)
		close(l.done)
	}()
	return l
}

func (r *Runner) listen(ctx context.Context, out chan<- Outcome) error {
	private := store.QueueKey(r.id)
	shared := store.SharedQueueKey()

	for ctx.Err() == nil {
		r.setState(StateListening)
		queue, raw, err := r.store.BLPop(ctx, private, shared)
		if err != nil {
			if ctx.Err() != nil || rerrors.KindOf(err) == rerrors.KindCanceled {
				return nil
			}
			r.logger.Error("listen_failed", logging.Fields{"error": err.Error()})
			return err
		}

		task, err := tasks.Decode([]byte(raw))
		if err != nil {
			r.logger.Warn("task_decode_failed", logging.Fields{
				"queue": queue,
				"error": err.Error(),
			})
			continue
		}
		r.logger.TaskReceived(task.TaskID, task.TaskType, queue)

		r.setState(StateDispatching)
		result, err := r.Dispatch(withQueue(context.WithoutCancel(ctx), queue), task)
		if err != nil {
			if !rerrors.KindOf(err).Recoverable() {
				r.logger.Error("listen_failed", logging.Fields{
					"task_id": task.TaskID,
					"error":   err.Error(),
				})
				return err
			}
			r.logger.TaskFailed(task.TaskID, err)
		}

		select {
		case out <- Outcome{TaskID: task.TaskID, Result: result, Err: err}:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}
