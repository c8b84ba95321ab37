// Package shutdown sequences a worker process's graceful stop.
//
// On SIGTERM or SIGINT the coordinator runs registered handlers phase by
// phase, lowest first. Handlers in the same phase run concurrently. The
// worker uses three phases:
//
//	PhaseListener   stop consuming queues; the in-flight task finishes,
//	                then the runner deregisters and drains its labels
//	PhaseHeartbeat  stop advertising liveness
//	PhaseTelemetry  flush and close the span exporter
//
// Usage:
//
//	coord := shutdown.NewCoordinator(shutdown.Config{DefaultTimeout: 30 * time.Second, Logger: log})
//	coord.RegisterFuncWithPhase("listener", stopListener, shutdown.PhaseListener)
//	coord.HandleSignals()
//	<-coord.Done()
//
// There is no mid-task cancellation: a handler for PhaseListener should wait
// for the running task to complete, bounded by the shutdown context.
package shutdown
