package store

import (
	"context"
	"sync"
	"time"

	rerrors "github.com/vinayprograms/taskrunner/errors"
)

var _ Store = (*Memory)(nil)

// Memory is an in-memory implementation of Store.
// Suitable for testing and single-process deployments.
type Memory struct {
	mu     sync.Mutex
	sets   map[string]map[string]struct{}
	lists  map[string][]string
	values map[string]memoryValue

	// pushed is closed and replaced on every RPush to wake blocked pops.
	pushed chan struct{}
	done   chan struct{}
	closed bool
}

type memoryValue struct {
	value     string
	expiresAt time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sets:   make(map[string]map[string]struct{}),
		lists:  make(map[string][]string),
		values: make(map[string]memoryValue),
		pushed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func errClosed(op string) error {
	return rerrors.Unavailable("store: " + op + ": store closed")
}

// SAdd adds member to the set at key.
func (m *Memory) SAdd(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed("sadd")
	}
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

// SRem removes member from the set at key.
func (m *Memory) SRem(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed("srem")
	}
	if set, ok := m.sets[key]; ok {
		delete(set, member)
		if len(set) == 0 {
			delete(m.sets, key)
		}
	}
	return nil
}

// SIsMember reports whether member is in the set at key.
func (m *Memory) SIsMember(_ context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, errClosed("sismember")
	}
	_, ok := m.sets[key][member]
	return ok, nil
}

// SMembers returns all members of the set at key.
func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errClosed("smembers")
	}
	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

// BLPop pops from the first non-empty list among keys, waiting for a push
// when all are empty.
func (m *Memory) BLPop(ctx context.Context, keys ...string) (string, string, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return "", "", errClosed("blpop")
		}
		for _, key := range keys {
			if list := m.lists[key]; len(list) > 0 {
				value := list[0]
				if len(list) == 1 {
					delete(m.lists, key)
				} else {
					m.lists[key] = list[1:]
				}
				m.mu.Unlock()
				return key, value, nil
			}
		}
		wake := m.pushed
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", "", rerrors.Wrap(ctx.Err(), "store: blpop")
		case <-m.done:
			return "", "", errClosed("blpop")
		case <-wake:
		}
	}
}

// RPush appends values to the list at key.
func (m *Memory) RPush(_ context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed("rpush")
	}
	m.lists[key] = append(m.lists[key], values...)
	close(m.pushed)
	m.pushed = make(chan struct{})
	return nil
}

// Set stores value at key with an optional ttl.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed("set")
	}
	v := memoryValue{value: value}
	if ttl > 0 {
		v.expiresAt = time.Now().Add(ttl)
	}
	m.values[key] = v
	return nil
}

// Get returns the value at key.
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", errClosed("get")
	}
	v, ok := m.values[key]
	if ok && !v.expiresAt.IsZero() && time.Now().After(v.expiresAt) {
		delete(m.values, key)
		ok = false
	}
	if !ok {
		return "", rerrors.NotFound("store: get: key not found")
	}
	return v.value, nil
}

// Len returns the length of the list at key.
func (m *Memory) Len(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lists[key])
}

// Ping reports whether the store is open.
func (m *Memory) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed("ping")
	}
	return nil
}

// Close fails all blocked and future calls.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	return nil
}
