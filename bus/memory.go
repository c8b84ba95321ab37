package bus

import (
	"context"
	"sync"
)

// MemoryBus is an in-process MessageBus for tests and single-process runs.
type MemoryBus struct {
	config Config

	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus(cfg Config) *MemoryBus {
	return &MemoryBus{
		config: cfg.withDefaults(),
		subs:   make(map[string]map[*subscription]struct{}),
	}
}

// Publish hands data to every subscriber of subject.
func (b *MemoryBus) Publish(_ context.Context, subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for sub := range b.subs[subject] {
		sub.deliver(data)
	}
	return nil
}

// Subscribe registers a subscriber. It is active as soon as it returns.
func (b *MemoryBus) Subscribe(_ context.Context, subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	var sub *subscription
	sub = newSubscription(subject, b.config.BufferSize, func() error {
		b.remove(subject, sub)
		return nil
	})
	if b.subs[subject] == nil {
		b.subs[subject] = make(map[*subscription]struct{})
	}
	b.subs[subject][sub] = struct{}{}
	return sub, nil
}

// Subscribers reports the number of active subscriptions on subject.
func (b *MemoryBus) Subscribers(subject string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[subject])
}

func (b *MemoryBus) remove(subject string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[subject], sub)
	if len(b.subs[subject]) == 0 {
		delete(b.subs, subject)
	}
}

// Close ends every subscription. Later calls are no-ops.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, set := range b.subs {
		for sub := range set {
			sub.close()
		}
	}
	b.subs = nil
	return nil
}
