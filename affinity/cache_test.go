package affinity

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	rerrors "github.com/vinayprograms/taskrunner/errors"
	"github.com/vinayprograms/taskrunner/store"
)

// recordingStore logs set mutations in call order.
type recordingStore struct {
	store.Store
	mu  sync.Mutex
	ops []string
}

func (r *recordingStore) SAdd(ctx context.Context, key, member string) error {
	r.mu.Lock()
	r.ops = append(r.ops, "sadd "+key)
	r.mu.Unlock()
	return r.Store.SAdd(ctx, key, member)
}

func (r *recordingStore) SRem(ctx context.Context, key, member string) error {
	r.mu.Lock()
	r.ops = append(r.ops, "srem "+key)
	r.mu.Unlock()
	return r.Store.SRem(ctx, key, member)
}

// fakeClock advances one second per call.
func fakeClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newCache(t *testing.T, st store.Store, capacity int) *Cache {
	t.Helper()
	c, err := New("r-1", st, capacity, WithClock(fakeClock()))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return c
}

func mustAdd(t *testing.T, c *Cache, labels ...string) {
	t.Helper()
	for _, l := range labels {
		if err := c.Add(context.Background(), l); err != nil {
			t.Fatalf("Add(%s) error: %v", l, err)
		}
	}
}

// assertMirrored checks that local membership matches store membership for labels.
func assertMirrored(t *testing.T, c *Cache, st store.Store, labels []string) {
	t.Helper()
	ctx := context.Background()
	for _, l := range labels {
		inStore, err := st.SIsMember(ctx, store.LabelKey(l), c.RunnerID())
		if err != nil {
			t.Fatalf("SIsMember error: %v", err)
		}
		if inStore != c.Has(l) {
			t.Errorf("label %s: held=%v registered=%v", l, c.Has(l), inStore)
		}
	}
}

func TestNew_Invalid(t *testing.T) {
	st := store.NewMemory()
	if _, err := New("r-1", st, 0); !rerrors.Is(err, rerrors.ErrCodeInvalidInput) {
		t.Errorf("max 0: err = %v, want INVALID_INPUT", err)
	}
	if _, err := New("", st, 2); !rerrors.Is(err, rerrors.ErrCodeInvalidInput) {
		t.Errorf("empty runner: err = %v, want INVALID_INPUT", err)
	}
}

func TestCache_CapacityAndMirroring(t *testing.T) {
	mr := miniredis.RunT(t)
	backends := map[string]store.Store{
		"memory": store.NewMemory(),
		"redis":  store.NewRedis(store.RedisConfig{Addr: mr.Addr()}),
	}

	seq := []string{"a", "b", "a", "c", "d", "b", "b", "e", "a", "c", "f", "a"}
	for name, st := range backends {
		t.Run(name, func(t *testing.T) {
			defer st.Close()
			c := newCache(t, st, 3)
			for _, l := range seq {
				if err := c.Add(context.Background(), l); err != nil {
					t.Fatalf("Add(%s) error: %v", l, err)
				}
				if c.Len() > c.Capacity() {
					t.Fatalf("Len = %d exceeds capacity %d", c.Len(), c.Capacity())
				}
				assertMirrored(t, c, st, seq)
			}
		})
	}
}

func TestCache_SequenceLeavesNewestTwo(t *testing.T) {
	st := store.NewMemory()
	c := newCache(t, st, 2)

	for i := 0; i < 6; i++ {
		if err := c.Add(context.Background(), fmt.Sprintf("L%d", i)); err != nil {
			t.Fatalf("Add error: %v", err)
		}
	}

	if got := c.Labels(); !reflect.DeepEqual(got, []string{"L4", "L5"}) {
		t.Errorf("Labels = %v, want [L4 L5]", got)
	}
	assertMirrored(t, c, st, []string{"L0", "L1", "L2", "L3", "L4", "L5"})
}

func TestCache_RefreshMovesToMRU(t *testing.T) {
	ctx := context.Background()
	st := &recordingStore{Store: store.NewMemory()}
	c := newCache(t, st, 2)

	mustAdd(t, c, "a", "b")
	st.ops = nil

	if err := c.Add(ctx, "a"); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if got := c.Labels(); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("Labels = %v, want [b a]", got)
	}
	if len(st.ops) != 0 {
		t.Errorf("refresh touched store: %v", st.ops)
	}

	// b is now the eviction victim
	mustAdd(t, c, "c")
	if c.Has("b") || !c.Has("a") || !c.Has("c") {
		t.Errorf("Labels = %v, want [a c]", c.Labels())
	}
}

func TestCache_EvictionOrder(t *testing.T) {
	st := &recordingStore{Store: store.NewMemory()}
	c := newCache(t, st, 1)

	mustAdd(t, c, "old")
	st.ops = nil
	mustAdd(t, c, "new")

	want := []string{"srem " + store.LabelKey("old"), "sadd " + store.LabelKey("new")}
	if !reflect.DeepEqual(st.ops, want) {
		t.Errorf("ops = %v, want %v", st.ops, want)
	}
}

func TestCache_TiedTimestampsFollowRefreshOrder(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st := store.NewMemory()
	c, err := New("r-1", st, 2, WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	mustAdd(t, c, "a", "b", "a", "c")

	if got := c.Labels(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("Labels = %v, want [a c]", got)
	}
	assertMirrored(t, c, st, []string{"a", "b", "c"})
	if held, _ := st.SIsMember(context.Background(), store.LabelKey("b"), "r-1"); held {
		t.Error("evicted label b still registered")
	}
}

func TestCache_Remove(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	c := newCache(t, st, 2)

	// Unheld label is a no-op
	_, found, err := c.Remove(ctx, "missing")
	if err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if found {
		t.Error("Remove of unheld label reported found")
	}

	mustAdd(t, c, "a", "b")

	loadedAt, found, err := c.Remove(ctx, "a")
	if err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if !found {
		t.Fatal("Remove of held label reported not found")
	}
	if loadedAt.IsZero() {
		t.Error("expected load timestamp")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	assertMirrored(t, c, st, []string{"a", "b"})
}

func TestCache_ClearAll(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	c := newCache(t, st, 3)

	// Empty cache is a no-op
	if err := c.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll on empty cache error: %v", err)
	}

	mustAdd(t, c, "a", "b", "c")
	if err := c.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll error: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
	for _, l := range []string{"a", "b", "c"} {
		members, _ := st.SMembers(ctx, store.LabelKey(l))
		if len(members) != 0 {
			t.Errorf("label %s still has members %v", l, members)
		}
	}
}

func TestCache_StoreFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	c := newCache(t, st, 2)
	st.Close()

	err := c.Add(ctx, "a")
	if !rerrors.Is(err, rerrors.ErrCodeUnavailable) {
		t.Fatalf("Add on closed store = %v, want UNAVAILABLE", err)
	}
	if c.Has("a") {
		t.Error("label held locally after failed registration")
	}
}

func TestCache_EmptyLabel(t *testing.T) {
	c := newCache(t, store.NewMemory(), 2)
	if err := c.Add(context.Background(), ""); !rerrors.Is(err, rerrors.ErrCodeInvalidInput) {
		t.Errorf("Add(\"\") = %v, want INVALID_INPUT", err)
	}
}
