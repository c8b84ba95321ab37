package affinity

import (
	"context"
	"reflect"
	"testing"
	"time"

	rerrors "github.com/vinayprograms/taskrunner/errors"
	"github.com/vinayprograms/taskrunner/store"
)

// sleepRecorder records requested delays without sleeping.
type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func TestAcquirer_Delay(t *testing.T) {
	tests := []struct {
		name   string
		normal float64
		want   time.Duration
	}{
		{"mean", 0, 2 * time.Second},
		{"one sigma", 1, 2250 * time.Millisecond},
		{"clamped", -100, 200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.normal
			a := DefaultAcquirer(WithNormal(func() float64 { return n }))
			if got := a.Delay(); got != tt.want {
				t.Errorf("Delay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAcquirer_DelayNeverBelowMin(t *testing.T) {
	a := DefaultAcquirer()
	for i := 0; i < 1000; i++ {
		if d := a.Delay(); d < DefaultAcquireMin {
			t.Fatalf("Delay = %v below minimum", d)
		}
	}
}

func TestAcquire_NoLabel(t *testing.T) {
	rec := &sleepRecorder{}
	a := DefaultAcquirer(WithSleep(rec.sleep))
	c := newCache(t, store.NewMemory(), 2)

	hit, err := a.Acquire(context.Background(), c, "", "t-1", "r-1")
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if !hit {
		t.Error("label-less task should be satisfied")
	}
	if c.Len() != 0 || len(rec.delays) != 0 {
		t.Errorf("side effects: len=%d delays=%v", c.Len(), rec.delays)
	}
}

func TestAcquire_Held(t *testing.T) {
	ctx := context.Background()
	rec := &sleepRecorder{}
	a := DefaultAcquirer(WithSleep(rec.sleep))
	c := newCache(t, store.NewMemory(), 2)
	c.Add(ctx, "a")
	c.Add(ctx, "b")

	hit, err := a.Acquire(ctx, c, "a", "t-1", "r-1")
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if !hit {
		t.Error("held label should be a hit")
	}
	if len(rec.delays) != 0 {
		t.Errorf("hit slept: %v", rec.delays)
	}
	// No recency refresh: a is still least recently used
	if got := c.Labels(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Labels = %v, want [a b]", got)
	}
}

func TestAcquire_Miss(t *testing.T) {
	ctx := context.Background()
	rec := &sleepRecorder{}
	a := DefaultAcquirer(WithSleep(rec.sleep))
	st := store.NewMemory()
	c := newCache(t, st, 2)

	hit, err := a.Acquire(ctx, c, "a", "t-1", "r-1")
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if hit {
		t.Error("unheld label should be a miss")
	}
	if len(rec.delays) != 1 || rec.delays[0] < DefaultAcquireMin {
		t.Errorf("delays = %v, want one delay >= %v", rec.delays, DefaultAcquireMin)
	}
	if !c.Has("a") {
		t.Error("label not held after miss")
	}
	ok, _ := st.SIsMember(ctx, store.LabelKey("a"), c.RunnerID())
	if !ok {
		t.Error("label not registered after miss")
	}
}

func TestAcquire_MissBlocks(t *testing.T) {
	a := NewAcquirer(0, 0, 20*time.Millisecond)
	c := newCache(t, store.NewMemory(), 1)

	start := time.Now()
	hit, err := a.Acquire(context.Background(), c, "a", "t-1", "r-1")
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if hit {
		t.Error("expected miss")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 20ms", elapsed)
	}
}

func TestAcquire_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAcquirer(time.Hour, 0, time.Hour)
	c := newCache(t, store.NewMemory(), 1)

	_, err := a.Acquire(ctx, c, "a", "t-1", "r-1")
	if rerrors.KindOf(err) != rerrors.KindCanceled {
		t.Fatalf("err = %v, want canceled", err)
	}
	if c.Has("a") {
		t.Error("label added after canceled acquisition")
	}
}
