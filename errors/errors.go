package errors

import (
	"fmt"
	"time"
)

// Error is the runner's structured error. It carries a code, the category
// derived from it, the runner and task it concerns, and optional metadata.
type Error struct {
	code      ErrorCode
	category  ErrorCategory
	message   string
	cause     error
	metadata  map[string]string
	timestamp time.Time
	runnerID  string
	taskID    string
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Code() ErrorCode { return e.code }
func (e *Error) Category() ErrorCategory { return e.category }
func (e *Error) Retryable() bool { return e.category.IsRetryable() }
func (e *Error) Message() string { return e.message }
func (e *Error) Timestamp() time.Time { return e.timestamp }
func (e *Error) RunnerID() string { return e.runnerID }
func (e *Error) TaskID() string { return e.taskID }
func (e *Error) Kind() Kind { return KindOf(e) }
func (e *Error) Metadata() map[string]string { return copyMeta(e.metadata) }

// Fields flattens the error for structured logging: code, category, the
// runner and task identifiers when set, and every metadata entry.
func (e *Error) Fields() map[string]interface{} {
	f := map[string]interface{}{
		"code":     string(e.code),
		"category": string(e.category),
	}
	if e.runnerID != "" {
		f["runner_id"] = e.runnerID
	}
	if e.taskID != "" {
		f["task_id"] = e.taskID
	}
	for k, v := range e.metadata {
		if _, taken := f[k]; !taken {
			f[k] = v
		}
	}
	return f
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Option configures an Error.
type Option func(*Error)

// WithCategory overrides the category implied by the code.
func WithCategory(cat ErrorCategory) Option {
	return func(e *Error) { e.category = cat }
}

// WithMetadata attaches key=value.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

func WithRunnerID(id string) Option {
	return func(e *Error) { e.runnerID = id }
}

func WithTaskID(id string) Option {
	return func(e *Error) { e.taskID = id }
}

func WithCause(cause error) Option {
	return func(e *Error) { e.cause = cause }
}

// New creates an Error with code's default category.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates an Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func InvalidInput(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidInput, message, opts...)
}

func NotFound(message string, opts ...Option) *Error {
	return New(ErrCodeNotFound, message, opts...)
}

// Unavailable reports a lost or refused connection to the coordination store
// or message bus.
func Unavailable(message string, opts ...Option) *Error {
	return New(ErrCodeUnavailable, message, opts...)
}

func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}

// UnknownTask reports a task type with no registered handler.
func UnknownTask(taskType string, opts ...Option) *Error {
	opts = append([]Option{WithMetadata("task_type", taskType)}, opts...)
	return New(ErrCodeUnknownTask, fmt.Sprintf("unknown task type %q", taskType), opts...)
}

// TaskFailed reports a handler failure. reason is the handler's own
// description of what went wrong.
func TaskFailed(taskID, reason string, opts ...Option) *Error {
	opts = append([]Option{WithTaskID(taskID)}, opts...)
	return New(ErrCodeTaskFailed, fmt.Sprintf("task %s failed: %s", taskID, reason), opts...)
}
