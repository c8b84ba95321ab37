package main

import (
	"context"
	"fmt"
	"time"

	"github.com/vinayprograms/taskrunner/affinity"
	"github.com/vinayprograms/taskrunner/runner"
	"github.com/vinayprograms/taskrunner/tasks"
)

// sampleWork is how long the sample handlers pretend to work.
var sampleWork = 2 * time.Second

type samples struct {
	runner *runner.Runner
	work   time.Duration
}

func registerSamples(r *runner.Runner, work time.Duration) error {
	s := &samples{runner: r, work: work}
	for _, fn := range []tasks.HandlerFunc{s.sampleTask1, s.labeledTask} {
		if _, err := r.RegisterFunc(fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *samples) sampleTask1(ctx context.Context, _ *affinity.Cache, task *tasks.Task) (string, error) {
	if err := sleep(ctx, s.work); err != nil {
		return "", err
	}
	return fmt.Sprintf("Task %s completed by sample_task_1", task.TaskID), nil
}

// labeledTask loads the task's label before working on it.
func (s *samples) labeledTask(ctx context.Context, _ *affinity.Cache, task *tasks.Task) (string, error) {
	hit, err := s.runner.Acquire(ctx, task)
	if err != nil {
		return "", err
	}
	if err := sleep(ctx, s.work); err != nil {
		return "", err
	}
	return fmt.Sprintf("Task %s completed by labeled_task (label %q, hit=%t)", task.TaskID, task.Label, hit), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
