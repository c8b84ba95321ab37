// Package results delivers task outputs to whoever submitted the task.
//
// A runner publishes a handler's output once, as the raw message payload, on
// task-runners:results:<task-id>. Pub/sub is fire-and-forget, so the output
// is also retained under task-runners:results:<task-id>:value for the
// configured result TTL.
//
// Publisher writes the retained value before broadcasting. Waiter subscribes
// before reading the retained value. Together these guarantee a waiter that
// starts before the TTL expires observes the result:
//
//	pub := results.NewPublisher(b, st, 30*time.Minute)
//	pub.Publish(ctx, "t-1", "42")
//
//	w := results.NewWaiter(b, st)
//	out, err := w.Wait(ctx, "t-1")
package results
