package registry

import (
	"context"
	"sort"

	rerrors "github.com/vinayprograms/taskrunner/errors"
	"github.com/vinayprograms/taskrunner/store"
)

// Status represents a runner's advertised state.
type Status string

const (
	StatusIdle Status = "idle"
	StatusBusy Status = "busy"
)

// StatusFor maps an availability flag to a Status.
func StatusFor(available bool) Status {
	if available {
		return StatusIdle
	}
	return StatusBusy
}

// Registry reads and writes runner membership in the shared store.
type Registry struct {
	store store.Store
}

// New creates a registry over st.
func New(st store.Store) *Registry {
	return &Registry{store: st}
}

// ValidateID checks that a runner identity is usable as a set member.
func ValidateID(id string) error {
	if id == "" {
		return rerrors.InvalidInput("runner id is empty")
	}
	return nil
}

// Register adds id to the registered runners set.
func (r *Registry) Register(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := r.store.SAdd(ctx, store.RunningKey, id); err != nil {
		return rerrors.Wrap(err, "register runner", rerrors.WithRunnerID(id))
	}
	return nil
}

// Deregister removes id from the registered runners set. It is a no-op for
// an unknown id.
func (r *Registry) Deregister(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := r.store.SRem(ctx, store.RunningKey, id); err != nil {
		return rerrors.Wrap(err, "deregister runner", rerrors.WithRunnerID(id))
	}
	return nil
}

// SetAvailable adds id to, or removes it from, the available runners set.
func (r *Registry) SetAvailable(ctx context.Context, id string, available bool) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	var err error
	if available {
		err = r.store.SAdd(ctx, store.AvailableKey, id)
	} else {
		err = r.store.SRem(ctx, store.AvailableKey, id)
	}
	if err != nil {
		return rerrors.Wrap(err, "set availability", rerrors.WithRunnerID(id))
	}
	return nil
}

// IsAvailable reports whether id is in the available runners set.
func (r *Registry) IsAvailable(ctx context.Context, id string) (bool, error) {
	ok, err := r.store.SIsMember(ctx, store.AvailableKey, id)
	if err != nil {
		return false, rerrors.Wrap(err, "check availability", rerrors.WithRunnerID(id))
	}
	return ok, nil
}

// IsRegistered reports whether id is in the registered runners set.
func (r *Registry) IsRegistered(ctx context.Context, id string) (bool, error) {
	ok, err := r.store.SIsMember(ctx, store.RunningKey, id)
	if err != nil {
		return false, rerrors.Wrap(err, "check registration", rerrors.WithRunnerID(id))
	}
	return ok, nil
}

// Running returns the registered runner IDs, sorted.
func (r *Registry) Running(ctx context.Context) ([]string, error) {
	return r.members(ctx, store.RunningKey)
}

// Available returns the available runner IDs, sorted.
func (r *Registry) Available(ctx context.Context) ([]string, error) {
	return r.members(ctx, store.AvailableKey)
}

// WithLabel returns the IDs of runners holding label, sorted.
func (r *Registry) WithLabel(ctx context.Context, label string) ([]string, error) {
	if label == "" {
		return nil, rerrors.InvalidInput("label is empty")
	}
	return r.members(ctx, store.LabelKey(label))
}

// Candidates returns the runners that hold label and are currently
// available, sorted. A dispatcher pushes to one of their private queues,
// or to the shared queue when the result is empty.
func (r *Registry) Candidates(ctx context.Context, label string) ([]string, error) {
	holders, err := r.WithLabel(ctx, label)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, id := range holders {
		ok, err := r.IsAvailable(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *Registry) members(ctx context.Context, key string) ([]string, error) {
	ids, err := r.store.SMembers(ctx, key)
	if err != nil {
		return nil, rerrors.Wrapf(err, "list %s", key)
	}
	sort.Strings(ids)
	return ids, nil
}
