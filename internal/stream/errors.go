package stream

import (
	"errors"
	"fmt"
)

// StreamError represents a failure raised by a stream or its pipeline.
//
// Pipeline failures (validation, unknown keys, handler panics) are delivered
// through the error channel of Subscribe. Call-time contract violations
// (duplicate field subject, subscribing after completion, malformed
// predicates) are returned directly to the caller.
type StreamError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Stream is the name of the stream that raised the error.
	Stream string

	// Action and Stage locate pipeline errors. Empty for call-time errors.
	Action Action
	Stage  Stage

	// Key is set for keyed-stream errors.
	Key string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes stream errors.
type ErrorCode string

const (
	// ErrCodeStageValidation indicates a handler aborted an event.
	ErrCodeStageValidation ErrorCode = "STAGE_VALIDATION"

	// ErrCodeUnknownKey indicates a "set" introduced a key on a stream
	// configured with WithNoNewKeys.
	ErrCodeUnknownKey ErrorCode = "UNKNOWN_KEY"

	// ErrCodeDuplicateFieldSubject indicates a second field subject for a key.
	ErrCodeDuplicateFieldSubject ErrorCode = "DUPLICATE_FIELD_SUBJECT"

	// ErrCodeSubscribeAfterComplete indicates Subscribe on a completed stream.
	ErrCodeSubscribeAfterComplete ErrorCode = "SUBSCRIBE_AFTER_COMPLETE"

	// ErrCodeStreamComplete indicates a mutation on a completed stream.
	ErrCodeStreamComplete ErrorCode = "STREAM_COMPLETE"

	// ErrCodeMalformedPredicate indicates MatchEvent got an argument it
	// cannot interpret.
	ErrCodeMalformedPredicate ErrorCode = "MALFORMED_PREDICATE"

	// ErrCodeHandlerPanic indicates a stage handler panicked.
	ErrCodeHandlerPanic ErrorCode = "HANDLER_PANIC"

	// ErrCodeUnknownAction indicates Do was called with an unregistered name.
	ErrCodeUnknownAction ErrorCode = "UNKNOWN_ACTION"

	// ErrCodeBadActionArgs indicates Do arguments did not fit the action.
	ErrCodeBadActionArgs ErrorCode = "BAD_ACTION_ARGS"
)

// Error implements the error interface.
func (e *StreamError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Stream != "" {
		msg += fmt.Sprintf(" (stream=%s", e.Stream)
		if e.Action != "" {
			msg += fmt.Sprintf(", action=%s", e.Action)
		}
		if e.Stage != "" {
			msg += fmt.Sprintf(", stage=%s", e.Stage)
		}
		if e.Key != "" {
			msg += fmt.Sprintf(", key=%s", e.Key)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *StreamError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsStageValidationError returns true if a handler aborted the event.
func IsStageValidationError(err error) bool {
	return hasCode(err, ErrCodeStageValidation)
}

// IsUnknownKeyError returns true if a RESTRICT guard rejected a new key.
func IsUnknownKeyError(err error) bool {
	return hasCode(err, ErrCodeUnknownKey)
}

// IsDuplicateFieldSubjectError returns true for a second field subject on one key.
func IsDuplicateFieldSubjectError(err error) bool {
	return hasCode(err, ErrCodeDuplicateFieldSubject)
}

// IsSubscribeAfterCompleteError returns true for Subscribe on a completed stream.
func IsSubscribeAfterCompleteError(err error) bool {
	return hasCode(err, ErrCodeSubscribeAfterComplete)
}

// IsStreamCompleteError returns true for a mutation on a completed stream.
func IsStreamCompleteError(err error) bool {
	return hasCode(err, ErrCodeStreamComplete)
}

// IsMalformedPredicateError returns true if MatchEvent rejected an argument.
func IsMalformedPredicateError(err error) bool {
	return hasCode(err, ErrCodeMalformedPredicate)
}

// IsHandlerPanicError returns true if a stage handler panicked.
func IsHandlerPanicError(err error) bool {
	return hasCode(err, ErrCodeHandlerPanic)
}

// stageError wraps a handler-raised error with pipeline context.
// Errors that already carry a StreamError code keep it.
func stageError(stream string, ev eventInfo, err error) *StreamError {
	var se *StreamError
	if errors.As(err, &se) {
		out := *se
		if out.Stream == "" {
			out.Stream = stream
		}
		if out.Action == "" {
			out.Action = ev.action()
		}
		if out.Stage == "" {
			out.Stage = ev.stageName()
		}
		return &out
	}
	return &StreamError{
		Code:    ErrCodeStageValidation,
		Message: "event rejected",
		Stream:  stream,
		Action:  ev.action(),
		Stage:   ev.stageName(),
		Err:     err,
	}
}

// eventInfo is the part of an event needed to locate an error.
type eventInfo interface {
	action() Action
	stageName() Stage
}

func newCompleteError(stream string) *StreamError {
	return &StreamError{
		Code:    ErrCodeStreamComplete,
		Message: "stream is complete",
		Stream:  stream,
	}
}
