// Package store defines the shared coordination store the runner fleet
// synchronizes through: idempotent set membership, a blocking multi-queue
// pop, and expiring key/value entries.
//
// Two implementations are provided:
//
//   - Redis: the production backend, built on go-redis
//   - Memory: an in-process backend for tests and single-process runs
//
// Publish/subscribe lives in the bus package; bus.RedisBus shares the Redis
// client returned by (*Redis).Client.
//
// Every error returned by a Store is a structured runner error. Connection
// failures carry ErrCodeUnavailable, context cancellation ErrCodeCanceled and
// missing keys ErrCodeNotFound.
package store

import (
	"context"
	"time"
)

// Store is the set of atomic primitives the runner performs against the
// shared coordination service. Implementations must be safe for concurrent use.
type Store interface {
	// SAdd adds member to the set at key. Adding an existing member is a no-op.
	SAdd(ctx context.Context, key, member string) error

	// SRem removes member from the set at key. Removing a missing member is a no-op.
	SRem(ctx context.Context, key, member string) error

	// SIsMember reports whether member is in the set at key.
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// SMembers returns all members of the set at key.
	SMembers(ctx context.Context, key string) ([]string, error)

	// BLPop pops the head of the first non-empty list among keys, in order.
	// It blocks without timeout until an element is available, ctx ends,
	// or the connection fails. It returns the key popped from and the value.
	BLPop(ctx context.Context, keys ...string) (key, value string, err error)

	// RPush appends values to the list at key.
	RPush(ctx context.Context, key string, values ...string) error

	// Set stores value at key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value at key, or an ErrCodeNotFound error.
	Get(ctx context.Context, key string) (string, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection. Blocked calls fail with ErrCodeUnavailable.
	Close() error
}
