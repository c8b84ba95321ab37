package registry

import (
	"context"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"

	rerrors "github.com/vinayprograms/taskrunner/errors"
	"github.com/vinayprograms/taskrunner/store"
)

func TestStatusFor(t *testing.T) {
	if got := StatusFor(true); got != StatusIdle {
		t.Errorf("StatusFor(true) = %q, want %q", got, StatusIdle)
	}
	if got := StatusFor(false); got != StatusBusy {
		t.Errorf("StatusFor(false) = %q, want %q", got, StatusBusy)
	}
}

func TestRegistry_RegisterDeregister(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	defer st.Close()
	reg := New(st)

	if err := reg.Register(ctx, "r-1"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	ok, err := reg.IsRegistered(ctx, "r-1")
	if err != nil || !ok {
		t.Fatalf("IsRegistered = %v, %v; want true", ok, err)
	}

	if err := reg.Deregister(ctx, "r-1"); err != nil {
		t.Fatalf("Deregister error: %v", err)
	}
	ok, _ = reg.IsRegistered(ctx, "r-1")
	if ok {
		t.Error("runner still registered after Deregister")
	}

	// Unknown id is a no-op
	if err := reg.Deregister(ctx, "r-unknown"); err != nil {
		t.Errorf("Deregister unknown error: %v", err)
	}
}

func TestRegistry_InvalidID(t *testing.T) {
	ctx := context.Background()
	reg := New(store.NewMemory())

	if err := reg.Register(ctx, ""); !rerrors.Is(err, rerrors.ErrCodeInvalidInput) {
		t.Errorf("Register(\"\") = %v, want INVALID_INPUT", err)
	}
	if err := reg.SetAvailable(ctx, "", true); !rerrors.Is(err, rerrors.ErrCodeInvalidInput) {
		t.Errorf("SetAvailable(\"\") = %v, want INVALID_INPUT", err)
	}
	if _, err := reg.WithLabel(ctx, ""); !rerrors.Is(err, rerrors.ErrCodeInvalidInput) {
		t.Errorf("WithLabel(\"\") = %v, want INVALID_INPUT", err)
	}
}

func TestRegistry_Availability(t *testing.T) {
	ctx := context.Background()
	reg := New(store.NewMemory())

	reg.SetAvailable(ctx, "r-1", true)
	reg.SetAvailable(ctx, "r-2", true)
	reg.SetAvailable(ctx, "r-2", false)

	got, err := reg.Available(ctx)
	if err != nil {
		t.Fatalf("Available error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"r-1"}) {
		t.Errorf("Available = %v, want [r-1]", got)
	}

	ok, _ := reg.IsAvailable(ctx, "r-2")
	if ok {
		t.Error("r-2 should not be available")
	}
}

func TestRegistry_Running(t *testing.T) {
	ctx := context.Background()
	reg := New(store.NewMemory())

	for _, id := range []string{"r-3", "r-1", "r-2"} {
		reg.Register(ctx, id)
	}

	got, err := reg.Running(ctx)
	if err != nil {
		t.Fatalf("Running error: %v", err)
	}
	want := []string{"r-1", "r-2", "r-3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Running = %v, want %v", got, want)
	}
}

func TestRegistry_Candidates(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	st := store.NewRedis(store.RedisConfig{Addr: mr.Addr()})
	defer st.Close()
	reg := New(st)

	// r-1 and r-2 hold the label, only r-2 is idle
	st.SAdd(ctx, store.LabelKey("part-7"), "r-1")
	st.SAdd(ctx, store.LabelKey("part-7"), "r-2")
	reg.SetAvailable(ctx, "r-2", true)
	reg.SetAvailable(ctx, "r-3", true)

	holders, err := reg.WithLabel(ctx, "part-7")
	if err != nil {
		t.Fatalf("WithLabel error: %v", err)
	}
	if !reflect.DeepEqual(holders, []string{"r-1", "r-2"}) {
		t.Errorf("WithLabel = %v, want [r-1 r-2]", holders)
	}

	got, err := reg.Candidates(ctx, "part-7")
	if err != nil {
		t.Fatalf("Candidates error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"r-2"}) {
		t.Errorf("Candidates = %v, want [r-2]", got)
	}

	none, err := reg.Candidates(ctx, "part-unknown")
	if err != nil {
		t.Fatalf("Candidates error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Candidates for unheld label = %v, want empty", none)
	}
}

func TestRegistry_StoreClosed(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	reg := New(st)
	st.Close()

	err := reg.SetAvailable(ctx, "r-1", true)
	if !rerrors.Is(err, rerrors.ErrCodeUnavailable) {
		t.Fatalf("SetAvailable on closed store = %v, want UNAVAILABLE", err)
	}
	if rerrors.KindOf(err) != rerrors.KindFatal {
		t.Errorf("KindOf = %v, want fatal", rerrors.KindOf(err))
	}
}
