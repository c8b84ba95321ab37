package tasks

import (
	"context"
	"reflect"
	"testing"

	"github.com/vinayprograms/taskrunner/affinity"
	rerrors "github.com/vinayprograms/taskrunner/errors"
)

func sampleTask1(_ context.Context, _ *affinity.Cache, t *Task) (string, error) {
	return "done " + t.TaskID, nil
}

func labeledTask(_ context.Context, _ *affinity.Cache, _ *Task) (string, error) {
	return "labeled", nil
}

func TestRegistry_RegisterLookup(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("sample_task_1", HandlerFunc(sampleTask1)); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	h, err := reg.Lookup("sample_task_1")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	out, err := h.Handle(context.Background(), nil, &Task{TaskID: "t-1"})
	if err != nil || out != "done t-1" {
		t.Errorf("Handle = %q, %v", out, err)
	}
}

func TestRegistry_LastWriteWins(t *testing.T) {
	reg := NewRegistry()
	reg.Register("x", HandlerFunc(sampleTask1))
	reg.Register("x", HandlerFunc(labeledTask))

	h, _ := reg.Lookup("x")
	out, _ := h.Handle(context.Background(), nil, &Task{})
	if out != "labeled" {
		t.Errorf("Handle = %q, want the later handler", out)
	}
	if got := reg.Names(); !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("Names = %v", got)
	}
}

func TestRegistry_Unknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Lookup("nope")
	if !rerrors.Is(err, rerrors.ErrCodeUnknownTask) {
		t.Fatalf("Lookup error = %v, want UNKNOWN_TASK", err)
	}
	if rerrors.KindOf(err) != rerrors.KindUnknownTask {
		t.Errorf("KindOf = %v", rerrors.KindOf(err))
	}
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("", HandlerFunc(sampleTask1)); err == nil {
		t.Error("expected error for empty task type")
	}
	if err := reg.Register("x", nil); err == nil {
		t.Error("expected error for nil handler")
	}
}

func TestRegistry_RegisterFunc(t *testing.T) {
	reg := NewRegistry()

	name, err := reg.RegisterFunc(sampleTask1)
	if err != nil {
		t.Fatalf("RegisterFunc error: %v", err)
	}
	if name != "sample_task_1" {
		t.Errorf("name = %q, want sample_task_1", name)
	}
	reg.RegisterFunc(labeledTask)

	want := []string{"labeled_task", "sample_task_1"}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
}

func TestFuncName_Anonymous(t *testing.T) {
	fn := func(context.Context, *affinity.Cache, *Task) (string, error) { return "", nil }
	if _, err := FuncName(fn); !rerrors.Is(err, rerrors.ErrCodeInvalidInput) {
		t.Errorf("FuncName(closure) error = %v, want INVALID_INPUT", err)
	}
	if _, err := FuncName(42); err == nil {
		t.Error("expected error for non-function")
	}
}

func TestSnakeCase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"sampleTask1", "sample_task_1"},
		{"labeledTask", "labeled_task"},
		{"already_snake", "already_snake"},
		{"Run", "run"},
		{"task2Fast", "task_2_fast"},
	}
	for _, tt := range tests {
		if got := snakeCase(tt.in); got != tt.want {
			t.Errorf("snakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
