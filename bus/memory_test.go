package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	rerrors "github.com/vinayprograms/taskrunner/errors"
)

func TestValidateSubject(t *testing.T) {
	tests := []struct {
		subject string
		wantErr bool
	}{
		{"task-runners:results:abc", false},
		{"task-runners:heartbeat:r1", false},
		{"", true},
		{"has space", true},
		{"tab\there", true},
	}

	for _, tt := range tests {
		err := ValidateSubject(tt.subject)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSubject(%q) = %v, wantErr %v", tt.subject, err, tt.wantErr)
		}
	}
}

func TestMemoryBus_Delivery(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	a1, _ := b.Subscribe(ctx, "task-runners:results:t1")
	a2, _ := b.Subscribe(ctx, "task-runners:results:t1")
	other, _ := b.Subscribe(ctx, "task-runners:results:t2")

	if err := b.Publish(ctx, "task-runners:results:t1", []byte("out")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for i, sub := range []Subscription{a1, a2} {
		msg, err := Next(ctx, sub)
		if err != nil {
			t.Fatalf("sub%d Next: %v", i, err)
		}
		if msg.Subject != "task-runners:results:t1" || string(msg.Data) != "out" {
			t.Errorf("sub%d got %s %q", i, msg.Subject, msg.Data)
		}
	}

	select {
	case msg := <-other.Messages():
		t.Errorf("unexpected message on %q", msg.Subject)
	default:
	}
}

func TestMemoryBus_PublishWithoutSubscribers(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()
	if err := b.Publish(context.Background(), "nobody", []byte("lost")); err != nil {
		t.Errorf("Publish = %v, want nil", err)
	}
}

func TestMemoryBus_Errors(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus(DefaultConfig())

	if err := b.Publish(ctx, "", nil); !errors.Is(err, ErrInvalidSubject) {
		t.Errorf("Publish empty subject = %v", err)
	}
	if _, err := b.Subscribe(ctx, ""); !errors.Is(err, ErrInvalidSubject) {
		t.Errorf("Subscribe empty subject = %v", err)
	}

	b.Close()
	if err := b.Publish(ctx, "x", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v", err)
	}
	if _, err := b.Subscribe(ctx, "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close = %v", err)
	}
	if !rerrors.Is(ErrClosed, rerrors.ErrCodeUnavailable) {
		t.Error("ErrClosed should be UNAVAILABLE")
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()

	sub, _ := b.Subscribe(ctx, "s")
	if n := b.Subscribers("s"); n != 1 {
		t.Fatalf("Subscribers = %d, want 1", n)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("second Unsubscribe: %v", err)
	}
	if n := b.Subscribers("s"); n != 0 {
		t.Errorf("Subscribers after Unsubscribe = %d", n)
	}
	if _, err := Next(ctx, sub); !errors.Is(err, ErrClosed) {
		t.Errorf("Next after Unsubscribe = %v, want ErrClosed", err)
	}
	if err := b.Publish(ctx, "s", []byte("late")); err != nil {
		t.Errorf("Publish after Unsubscribe = %v", err)
	}
}

func TestMemoryBus_CloseEndsSubscriptions(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	sub, _ := b.Subscribe(context.Background(), "s")
	b.Close()
	b.Close()

	select {
	case _, ok := <-sub.Messages():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("Unsubscribe after Close = %v", err)
	}
}

func TestMemoryBus_DropsWhenFull(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus(Config{BufferSize: 1})
	defer b.Close()

	sub, _ := b.Subscribe(ctx, "s")
	b.Publish(ctx, "s", []byte("1"))
	b.Publish(ctx, "s", []byte("2"))
	b.Publish(ctx, "s", []byte("3"))

	if msg := <-sub.Messages(); string(msg.Data) != "1" {
		t.Errorf("data = %q, want 1", msg.Data)
	}
	if got := sub.Dropped(); got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}
}

func TestNext_ContextDone(t *testing.T) {
	b := NewMemoryBus(DefaultConfig())
	defer b.Close()
	sub, _ := b.Subscribe(context.Background(), "s")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := Next(ctx, sub); !rerrors.Is(err, rerrors.ErrCodeTimeout) {
		t.Errorf("Next = %v, want TIMEOUT", err)
	}
}

func BenchmarkMemoryBus_Publish(b *testing.B) {
	ctx := context.Background()
	mb := NewMemoryBus(Config{BufferSize: b.N + 1})
	defer mb.Close()

	sub, _ := mb.Subscribe(ctx, "bench")
	data := []byte("payload")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mb.Publish(ctx, "bench", data)
	}
	b.StopTimer()
	sub.Unsubscribe()
}
