package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap adds message to err. A runner Error in the chain keeps its code,
// category, identifiers and metadata; context errors become TIMEOUT or
// CANCELED; anything else becomes INTERNAL. Wrap(nil, ...) returns nil.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	if inner, ok := As(err); ok {
		e := &Error{
			code:      inner.code,
			category:  inner.category,
			message:   message,
			cause:     err,
			metadata:  copyMeta(inner.metadata),
			timestamp: inner.timestamp,
			runnerID:  inner.runnerID,
			taskID:    inner.taskID,
		}
		for _, opt := range opts {
			opt(e)
		}
		return e
	}

	code := ErrCodeInternal
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		code = ErrCodeCanceled
	}
	return New(code, message, append(opts, WithCause(err))...)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps err under code regardless of what err carries.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	return New(code, message, append(opts, WithCause(err))...)
}

// As returns the outermost runner Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether the outermost runner Error in the chain has code.
func Is(err error, code ErrorCode) bool {
	return Code(err) == code
}

// Code returns the outermost runner Error's code, or "" for other errors.
func Code(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ""
}

// IsRetryable reports whether err is a transient runner Error.
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable()
}

// KindOf classifies an error for the listening loop.
// Context cancellation is KindCanceled even when it is not wrapped.
func KindOf(err error) Kind {
	if err == nil {
		return KindFatal
	}
	switch Code(err) {
	case ErrCodeUnknownTask:
		return KindUnknownTask
	case ErrCodeTaskFailed:
		return KindTaskFailed
	case ErrCodeInvalidInput:
		return KindDecode
	case ErrCodeCanceled:
		return KindCanceled
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	return KindFatal
}

// Join combines errs, dropping nils. It returns nil if every err is nil.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
