// Package bus provides the publish/subscribe side of the coordination
// service: result notifications and runner heartbeats are broadcast here.
//
// Publishing is fire-and-forget. A message published while nobody is
// subscribed is lost. Subscribe returns only once the subscription is active,
// so a subscriber that checks retained state after subscribing cannot miss a
// message published in between.
//
// Implementations:
//
//   - RedisBus: Redis PUBLISH/SUBSCRIBE, wire compatible with the dispatcher
//   - NATSBus: NATS core subjects
//   - MemoryBus: in-process channels for tests
package bus

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	rerrors "github.com/vinayprograms/taskrunner/errors"
)

// Sentinel errors. Compare with errors.Is.
var (
	ErrClosed         = rerrors.Unavailable("bus: closed")
	ErrInvalidSubject = rerrors.InvalidInput("bus: invalid subject")
)

// Message is one payload received on a subject.
type Message struct {
	Subject string
	Data    []byte
}

// MessageBus publishes to and subscribes on named subjects.
type MessageBus interface {
	// Publish delivers data to the current subscribers of subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe returns once the subscription is active on the server.
	Subscribe(ctx context.Context, subject string) (Subscription, error)

	Close() error
}

// Subscription is an active subscription on one subject.
type Subscription interface {
	// Messages is closed when the subscription ends.
	Messages() <-chan *Message

	// Unsubscribe ends the subscription. It is safe to call more than once.
	Unsubscribe() error

	// Dropped counts messages discarded because the buffer was full.
	Dropped() uint64
}

// Config holds settings shared by every implementation.
type Config struct {
	// BufferSize of each subscription channel. Default: 256
	BufferSize int
}

// DefaultConfig returns the default bus settings.
func DefaultConfig() Config {
	return Config{BufferSize: 256}
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultConfig().BufferSize
	}
	return c
}

// ValidateSubject rejects empty subjects and subjects containing whitespace.
func ValidateSubject(subject string) error {
	if subject == "" || strings.ContainsAny(subject, " \t\r\n") {
		return ErrInvalidSubject
	}
	return nil
}

// Next waits for the next message on sub. It returns ErrClosed if the
// subscription ends first.
func Next(ctx context.Context, sub Subscription) (*Message, error) {
	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			return nil, ErrClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, rerrors.Wrap(ctx.Err(), "bus: wait for message")
	}
}

// subscription is the buffered channel behind every implementation.
// Delivery never blocks the publisher; a full buffer drops the message.
type subscription struct {
	subject string
	ch      chan *Message
	stop    func() error

	mu       sync.Mutex
	closed   bool
	stopOnce sync.Once
	stopErr  error
	dropped  atomic.Uint64
}

func newSubscription(subject string, size int, stop func() error) *subscription {
	return &subscription{
		subject: subject,
		ch:      make(chan *Message, size),
		stop:    stop,
	}
}

func (s *subscription) deliver(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- &Message{Subject: s.subject, Data: data}:
	default:
		s.dropped.Add(1)
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *subscription) Messages() <-chan *Message { return s.ch }

func (s *subscription) Dropped() uint64 { return s.dropped.Load() }

func (s *subscription) Unsubscribe() error {
	s.stopOnce.Do(func() {
		if s.stop != nil {
			s.stopErr = s.stop()
		}
	})
	s.close()
	return s.stopErr
}
