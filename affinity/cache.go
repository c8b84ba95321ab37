// Package affinity implements the per-runner label cache and the label
// acquisition protocol.
//
// A Cache holds at most Capacity labels in recency order. Every label held
// locally has the runner's identity in task-runners:labels:<label>:workers,
// and every label not held does not. On eviction the old label is
// deregistered before the new one is inserted and registered, so a
// dispatcher can briefly see neither label held by this runner.
package affinity

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	rerrors "github.com/vinayprograms/taskrunner/errors"
	"github.com/vinayprograms/taskrunner/logging"
	"github.com/vinayprograms/taskrunner/store"
)

// Cache is a bounded LRU of labels mirrored into the shared store.
type Cache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, time.Time]
	capacity int
	runnerID string
	store    store.Store
	logger   *logging.Logger
	now      func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the cache's logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithClock replaces time.Now for load timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache for runnerID holding at most maxLabels labels.
func New(runnerID string, st store.Store, maxLabels int, opts ...Option) (*Cache, error) {
	if runnerID == "" {
		return nil, rerrors.InvalidInput("affinity: runner id is empty")
	}
	if maxLabels <= 0 {
		return nil, rerrors.Newf(rerrors.ErrCodeInvalidInput, "affinity: max labels must be positive, got %d", maxLabels)
	}
	// Eviction is driven by Add so the store can be updated in order;
	// the LRU never evicts on its own.
	lru, err := simplelru.NewLRU[string, time.Time](maxLabels, nil)
	if err != nil {
		return nil, rerrors.Wrap(err, "affinity: create lru")
	}

	c := &Cache{
		lru:      lru,
		capacity: maxLabels,
		runnerID: runnerID,
		store:    st,
		logger:   logging.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("affinity").With(logging.Fields{"runner_id": runnerID})
	return c, nil
}

// Add marks label as most recently used, loading it if it is not held.
// A full cache first evicts its least recently used label.
func (c *Cache) Add(ctx context.Context, label string) error {
	if label == "" {
		return rerrors.InvalidInput("affinity: label is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lru.Contains(label) {
		c.lru.Add(label, c.now())
		c.logger.LabelRefreshed(label)
		return nil
	}

	if c.lru.Len() >= c.capacity {
		old, loadedAt, ok := c.lru.RemoveOldest()
		if ok {
			if err := c.store.SRem(ctx, store.LabelKey(old), c.runnerID); err != nil {
				return rerrors.Wrap(err, "affinity: deregister evicted label",
					rerrors.WithRunnerID(c.runnerID), rerrors.WithMetadata("label", old))
			}
			c.logger.LabelEvicted(old, loadedAt)
		}
	}

	c.lru.Add(label, c.now())
	if err := c.store.SAdd(ctx, store.LabelKey(label), c.runnerID); err != nil {
		c.lru.Remove(label)
		return rerrors.Wrap(err, "affinity: register label",
			rerrors.WithRunnerID(c.runnerID), rerrors.WithMetadata("label", label))
	}
	c.logger.LabelAdded(label)
	return nil
}

// Remove deregisters label and drops it from the cache. It returns the time
// the label was loaded or last refreshed, and false if it was not held.
// Removing an unheld label still clears any stale store membership.
func (c *Cache) Remove(ctx context.Context, label string) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remove(ctx, label)
}

func (c *Cache) remove(ctx context.Context, label string) (time.Time, bool, error) {
	if err := c.store.SRem(ctx, store.LabelKey(label), c.runnerID); err != nil {
		return time.Time{}, false, rerrors.Wrap(err, "affinity: deregister label",
			rerrors.WithRunnerID(c.runnerID), rerrors.WithMetadata("label", label))
	}
	loadedAt, ok := c.lru.Peek(label)
	if !ok {
		return time.Time{}, false, nil
	}
	c.lru.Remove(label)
	return loadedAt, true, nil
}

// Has reports whether label is held. It does not touch recency or the store.
func (c *Cache) Has(label string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(label)
}

// ClearAll removes every held label, least recently used first.
func (c *Cache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, label := range c.lru.Keys() {
		if _, _, err := c.remove(ctx, label); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of held labels.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Labels returns the held labels from least to most recently used.
func (c *Cache) Labels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Capacity returns the maximum number of held labels.
func (c *Cache) Capacity() int {
	return c.capacity
}

// RunnerID returns the identity registered under each held label.
func (c *Cache) RunnerID() string {
	return c.runnerID
}
