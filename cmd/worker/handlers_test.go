package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/taskrunner/affinity"
	"github.com/vinayprograms/taskrunner/bus"
	"github.com/vinayprograms/taskrunner/config"
	rerrors "github.com/vinayprograms/taskrunner/errors"
	"github.com/vinayprograms/taskrunner/registry"
	"github.com/vinayprograms/taskrunner/results"
	"github.com/vinayprograms/taskrunner/runner"
	"github.com/vinayprograms/taskrunner/store"
	"github.com/vinayprograms/taskrunner/tasks"
)

func newSampleRunner(t *testing.T, st store.Store) *runner.Runner {
	t.Helper()
	cfg := config.Default()
	cfg.HeartbeatInterval = 0
	acq := affinity.DefaultAcquirer(affinity.WithSleep(func(context.Context, time.Duration) error { return nil }))
	r, err := runner.New(cfg, st, bus.NewMemoryBus(bus.DefaultConfig()),
		runner.WithID("w-1"), runner.WithAcquirer(acq))
	if err != nil {
		t.Fatalf("runner.New: %v", err)
	}
	if err := registerSamples(r, 0); err != nil {
		t.Fatalf("registerSamples: %v", err)
	}
	return r
}

func TestRegisterSamples(t *testing.T) {
	r := newSampleRunner(t, store.NewMemory())
	got := strings.Join(r.Handlers(), ",")
	if got != "labeled_task,sample_task_1" {
		t.Errorf("Handlers = %s", got)
	}
}

func TestSampleTask1(t *testing.T) {
	r := newSampleRunner(t, store.NewMemory())
	out, err := r.Dispatch(context.Background(), &tasks.Task{TaskID: "t1", TaskType: "sample_task_1", Parameters: "{}"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out != "Task t1 completed by sample_task_1" {
		t.Errorf("out = %q", out)
	}
}

func TestLabeledTask(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	r := newSampleRunner(t, st)

	task := &tasks.Task{TaskID: "t1", TaskType: "labeled_task", Label: "L1", Parameters: "{}"}
	out, err := r.Dispatch(ctx, task)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !strings.Contains(out, "hit=false") {
		t.Errorf("first out = %q, want miss", out)
	}
	out, _ = r.Dispatch(ctx, task)
	if !strings.Contains(out, "hit=true") {
		t.Errorf("second out = %q, want hit", out)
	}

	holders, err := registry.New(st).WithLabel(ctx, "L1")
	if err != nil || len(holders) != 1 || holders[0] != "w-1" {
		t.Errorf("holders = %v, %v", holders, err)
	}
}

func TestPrintStatus(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	reg := registry.New(st)
	_ = reg.Register(ctx, "a")
	_ = reg.Register(ctx, "b")
	_ = reg.SetAvailable(ctx, "b", true)
	_ = st.SAdd(ctx, store.LabelKey("L1"), "a")
	_ = st.SAdd(ctx, store.LabelKey("L1"), "b")

	var buf bytes.Buffer
	if err := printStatus(ctx, &buf, reg, "L1"); err != nil {
		t.Fatalf("printStatus: %v", err)
	}
	want := "running:   a b\navailable: b\nholding L1: a b\ncandidates: b\n"
	if buf.String() != want {
		t.Errorf("output =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"config", "log-level"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("missing flag --%s", name)
		}
	}
	var subs []string
	for _, c := range cmd.Commands() {
		subs = append(subs, c.Name())
	}
	if got := strings.Join(subs, ","); got != "monitor,status,wait" {
		t.Errorf("subcommands = %s", got)
	}
}

func TestPrintResult(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	mb := bus.NewMemoryBus(bus.DefaultConfig())
	defer mb.Close()
	st := store.NewMemory()

	if err := results.NewPublisher(mb, st, time.Minute).Publish(ctx, "t-9", "done"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	var buf bytes.Buffer
	if err := printResult(ctx, &buf, results.NewWaiter(mb, st), "t-9"); err != nil {
		t.Fatalf("printResult: %v", err)
	}
	if buf.String() != "done\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestPrintResult_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	mb := bus.NewMemoryBus(bus.DefaultConfig())
	defer mb.Close()

	var buf bytes.Buffer
	err := printResult(ctx, &buf, results.NewWaiter(mb, store.NewMemory()), "t-missing")
	if !rerrors.Is(err, rerrors.ErrCodeTimeout) {
		t.Fatalf("err = %v, want TIMEOUT", err)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}
}
