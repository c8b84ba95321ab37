package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/vinayprograms/taskrunner/affinity"
	rerrors "github.com/vinayprograms/taskrunner/errors"
	"github.com/vinayprograms/taskrunner/tasks"
	"github.com/vinayprograms/taskrunner/telemetry"
)

type queueKey struct{}

func withQueue(ctx context.Context, queue string) context.Context {
	return context.WithValue(ctx, queueKey{}, queue)
}

func queueFrom(ctx context.Context) string {
	q, _ := ctx.Value(queueKey{}).(string)
	return q
}

// Register installs h for taskType, wrapped with availability toggling,
// timing, tracing and result publishing.
func (r *Runner) Register(taskType string, h tasks.Handler) error {
	if h == nil {
		return r.handlers.Register(taskType, nil)
	}
	return r.handlers.Register(taskType, r.wrap(h))
}

// RegisterFunc installs fn under the snake_case form of its function name
// and returns that name.
func (r *Runner) RegisterFunc(fn tasks.HandlerFunc) (string, error) {
	name, err := tasks.FuncName(fn)
	if err != nil {
		return "", err
	}
	return name, r.Register(name, fn)
}

// Dispatch runs the handler registered for task.TaskType. An unknown type
// returns an UNKNOWN_TASK error without touching availability.
func (r *Runner) Dispatch(ctx context.Context, task *tasks.Task) (string, error) {
	h, err := r.handlers.Lookup(task.TaskType)
	if err != nil {
		return "", err
	}
	return h.Handle(ctx, r.cache, task)
}

func (r *Runner) wrap(h tasks.Handler) tasks.Handler {
	return tasks.HandlerFunc(func(ctx context.Context, cache *affinity.Cache, task *tasks.Task) (string, error) {
		out, err := r.execute(ctx, h, cache, task)
		if err != nil {
			return "", err
		}
		if task.ReturnResult {
			if err := r.publisher.Publish(ctx, task.TaskID, out); err != nil {
				return "", err
			}
		}
		return out, nil
	})
}

// execute runs h with the runner marked unavailable. Availability is
// restored on every path before it returns.
func (r *Runner) execute(ctx context.Context, h tasks.Handler, cache *affinity.Cache, task *tasks.Task) (out string, err error) {
	if err := r.setAvailable(ctx, false); err != nil {
		return "", err
	}
	defer func() {
		if rerr := r.setAvailable(ctx, true); rerr != nil && err == nil {
			out, err = "", rerr
		} else if rerr != nil {
			err = rerrors.Join(rerr, err)
		}
	}()

	ctx, span := r.tracer.StartTask(ctx, telemetry.TaskSpanOptions{
		TaskID:   task.TaskID,
		TaskType: task.TaskType,
		Label:    task.Label,
		RunnerID: r.id,
		Queue:    queueFrom(ctx),
	})
	start := time.Now()
	out, herr := invoke(ctx, h, cache, task)
	elapsed := time.Since(start)

	if herr != nil {
		err = rerrors.TaskFailed(task.TaskID, herr.Error(),
			rerrors.WithRunnerID(r.id),
			rerrors.WithMetadata("task_type", task.TaskType))
	}
	r.tracer.EndTask(span, elapsed, err)
	r.logger.TaskComplete(task.TaskID, task.TaskType, elapsed, err)
	if err != nil {
		return "", err
	}
	return out, nil
}

func invoke(ctx context.Context, h tasks.Handler, cache *affinity.Cache, task *tasks.Task) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h.Handle(ctx, cache, task)
}
