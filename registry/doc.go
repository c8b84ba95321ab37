// Package registry tracks which runners exist and which are accepting work.
//
// # Overview
//
// A runner's presence is membership of its identity in two shared sets:
//
//   - task-runners:running: registered runners
//   - task-runners:available: runners idle and able to accept dispatch
//
// Labels a runner holds are mirrored by the affinity package into
// task-runners:labels:<label>:workers. The read helpers here (Running,
// Available, WithLabel, Candidates) are what an affinity-aware dispatcher
// queries to pick a private queue.
//
// # Basic Usage
//
//	reg := registry.New(st)
//	reg.Register(ctx, runnerID)
//	reg.SetAvailable(ctx, runnerID, true)
//
//	// dispatcher side
//	ids, _ := reg.Candidates(ctx, "partition-7")
//	if len(ids) > 0 {
//	    st.RPush(ctx, store.QueueKey(ids[0]), payload)
//	}
//
// Every operation is a single idempotent set primitive. No multi-step
// transaction is performed across runners.
package registry
