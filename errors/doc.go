// Package errors provides the structured error taxonomy used by the task
// runner. Every error carries a code, a category, and optional task and
// runner identifiers so log lines and failure outcomes can be correlated
// across the fleet.
//
// # Error Codes
//
//   - UNKNOWN_TASK: no handler registered for the task type
//   - TASK_FAILED: the handler returned an error or panicked
//   - INVALID_INPUT: the task payload could not be decoded
//   - UNAVAILABLE: the coordination store could not be reached
//   - INTERNAL: anything else
//
// # Kinds
//
// The listening loop does not inspect codes directly. It asks for the Kind:
//
//	switch errors.KindOf(err) {
//	case errors.KindUnknownTask, errors.KindTaskFailed:
//	    // log, yield a failure outcome, keep listening
//	case errors.KindDecode:
//	    // log, skip the item
//	default:
//	    // fatal: stop listening
//	}
package errors
