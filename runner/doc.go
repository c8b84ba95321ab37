// Package runner implements the worker's task runner: identity, lifecycle,
// handler wrapping and the queue listening loop.
//
// # Lifecycle
//
//	Unregistered ──Open──> Available ──Listen──> Listening ⇄ Dispatching
//	                                                 │
//	                              Close (always, via Run) ──> Deregistered
//
// Open marks the runner available and registers it. Close marks it
// unavailable, deregisters it, drains the affinity cache and releases the
// store. Run brackets a function between the two and reports that
// function's error only after Close has completed.
//
// # Listening
//
// Listen pops from the runner's private queue first and the shared queue
// second, blocking without timeout. One task is dispatched to completion
// before the next pop. Each dispatched task yields an Outcome:
//
//	l := r.Listen(ctx)
//	for o := range l.Outcomes() {
//	    if o.Err != nil {
//	        continue // unknown task type or handler failure
//	    }
//	    fmt.Println(o.TaskID, o.Result)
//	}
//	if err := l.Err(); err != nil {
//	    // store connection lost; the runner no longer consumes work
//	}
//
// Payloads that fail to decode are logged and skipped without an Outcome.
// Cancelling ctx stops the loop after the in-flight task, if any, finishes.
package runner
