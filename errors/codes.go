package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: lost store connection, store restarting.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: malformed task payload, unknown task type, handler failure.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates unexpected errors, bugs, or system failures.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for the runner's failure scenarios.
const (
	// Transient errors
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // Operation timed out
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Coordination store unreachable

	// Permanent errors
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"     // Key or entry does not exist
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT" // Malformed or invalid input
	ErrCodeCanceled     ErrorCode = "CANCELED"      // Operation was canceled

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL" // Unexpected internal error
	ErrCodePanic    ErrorCode = "PANIC"    // Recovered from panic

	// Runner-specific errors
	ErrCodeUnknownTask ErrorCode = "UNKNOWN_TASK" // No handler for task type
	ErrCodeTaskFailed  ErrorCode = "TASK_FAILED"  // Handler returned an error
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeUnavailable:
		return CategoryTransient

	case ErrCodeNotFound, ErrCodeInvalidInput, ErrCodeCanceled,
		ErrCodeUnknownTask, ErrCodeTaskFailed:
		return CategoryPermanent

	default:
		return CategoryInternal
	}
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:      "operation timed out",
	ErrCodeUnavailable:  "coordination store unavailable",
	ErrCodeNotFound:     "not found",
	ErrCodeInvalidInput: "invalid input provided",
	ErrCodeCanceled:     "operation canceled",
	ErrCodeInternal:     "internal error",
	ErrCodePanic:        "recovered from panic",
	ErrCodeUnknownTask:  "unknown task type",
	ErrCodeTaskFailed:   "task execution failed",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}

// Kind is the dispatch-level classification the listening loop branches on.
type Kind int

const (
	// KindFatal ends the listening loop: connection loss or anything unclassified.
	KindFatal Kind = iota

	// KindUnknownTask means no handler is registered for the task type.
	KindUnknownTask

	// KindTaskFailed means the handler ran and reported a failure.
	KindTaskFailed

	// KindDecode means the raw payload could not be turned into a task.
	KindDecode

	// KindCanceled means the caller stopped the operation.
	KindCanceled
)

var kindNames = map[Kind]string{
	KindFatal:       "fatal",
	KindUnknownTask: "unknown_task",
	KindTaskFailed:  "task_failed",
	KindDecode:      "decode",
	KindCanceled:    "canceled",
}

// String returns the kind name.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "fatal"
}

// Recoverable reports whether the loop yields a failure marker and keeps listening.
func (k Kind) Recoverable() bool {
	return k == KindUnknownTask || k == KindTaskFailed
}
