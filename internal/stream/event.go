package stream

import (
	"context"
	"slices"
)

// Target is the owning stream of an event, seen from a handler or predicate.
// Events hold it without owning it.
type Target interface {
	Name() string
}

type eventState int

const (
	eventActive eventState = iota
	// eventStopped: a handler called Complete before the walk ended.
	eventStopped
	// eventFailed: a handler called Error (or panicked).
	eventFailed
	// eventDone: the walk reached the end of its stage list.
	eventDone
)

// DeferredFunc produces an event value asynchronously.
type DeferredFunc[V any] func(ctx context.Context) (V, error)

// Event is one in-flight change to a stream.
//
// An Event is created by Send and mutated in place as it walks its stage
// list. It is not safe for concurrent use while in flight; handlers run on
// the goroutine draining the stream and may call Next, Error, Complete and
// Defer. Once Done is closed the event is immutable.
//
// INVARIANTS:
//   - The stage only moves forward through the stage list captured at Send.
//   - A stopped event ignores further Next/Error/Complete/Defer calls.
//   - A failed event never commits.
type Event[V any] struct {
	id     string
	seq    int64
	act    Action
	value  V
	stages []Stage
	cursor int
	stage  Maybe[Stage]
	passed []Stage
	target Target

	state     eventState
	err       error
	committed bool
	fromField bool
	deferred  DeferredFunc[V]
	done      chan struct{}
}

func newEvent[V any](id string, seq int64, act Action, value V, stages []Stage, target Target) *Event[V] {
	return &Event[V]{
		id:     id,
		seq:    seq,
		act:    act,
		value:  value,
		stages: stages,
		passed: make([]Stage, 0, len(stages)),
		target: target,
		done:   make(chan struct{}),
	}
}

// ID returns the event identifier.
func (e *Event[V]) ID() string { return e.id }

// Seq returns the logical clock value stamped at creation.
func (e *Event[V]) Seq() int64 { return e.seq }

// Action returns the action code.
func (e *Event[V]) Action() Action { return e.act }

// Value returns the current candidate value.
func (e *Event[V]) Value() V { return e.value }

// Stage returns the stage the event is in, or "" before the first stage.
func (e *Event[V]) Stage() Stage { return e.stage.OrElse("") }

// Stages returns the full stage list for this event.
func (e *Event[V]) Stages() []Stage { return slices.Clone(e.stages) }

// CompletedStages returns the stages the event has fully passed, in order.
func (e *Event[V]) CompletedStages() []Stage { return slices.Clone(e.passed) }

// Target returns the stream that owns the event.
func (e *Event[V]) Target() Target { return e.target }

// Err returns the error that stopped the event, if any.
func (e *Event[V]) Err() error { return e.err }

// IsStopped reports whether the event reached a terminal state.
func (e *Event[V]) IsStopped() bool { return e.state != eventActive }

// IsErrored reports whether the event was aborted with an error.
func (e *Event[V]) IsErrored() bool { return e.state == eventFailed }

// Committed reports whether the event's value became the stream value.
func (e *Event[V]) Committed() bool { return e.committed }

// FromFieldSubject reports whether a field subject produced this event.
func (e *Event[V]) FromFieldSubject() bool { return e.fromField }

// Done returns a channel closed when the event reaches a terminal state.
func (e *Event[V]) Done() <-chan struct{} { return e.done }

// Wait blocks until the event is terminal or ctx is cancelled.
// Returns the event error, or ctx.Err() on cancellation.
func (e *Event[V]) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return e.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next replaces the in-flight value. Remaining handlers at the current stage
// still run and see the new value.
func (e *Event[V]) Next(value V) {
	if e.IsStopped() {
		return
	}
	e.value = value
}

// Error aborts the event. No further stages run and the stream value is left
// unchanged; err is delivered to the stream's error channel.
func (e *Event[V]) Error(err error) {
	if e.IsStopped() {
		return
	}
	e.state = eventFailed
	e.err = err
}

// Complete stops the event without error. Stages after the current one do
// not run; if the event has not reached COMMIT its value is not committed.
func (e *Event[V]) Complete() {
	if e.IsStopped() {
		return
	}
	e.state = eventStopped
}

// Defer replaces the in-flight value with the result of fn. The walk pauses
// after the current stage and resumes once fn returns; other events may be
// processed in between. An error from fn aborts the event.
func (e *Event[V]) Defer(fn DeferredFunc[V]) {
	if e.IsStopped() || fn == nil {
		return
	}
	e.deferred = fn
}

func (e *Event[V]) action() Action { return e.act }

func (e *Event[V]) stageName() Stage { return e.Stage() }

// atEnd reports whether every stage has been entered and left.
func (e *Event[V]) atEnd() bool { return e.cursor >= len(e.stages) }

// enter moves the event into the stage at the cursor.
func (e *Event[V]) enter() Stage {
	s := e.stages[e.cursor]
	e.stage = Some(s)
	return s
}

// leave records the current stage as passed and advances the cursor.
func (e *Event[V]) leave() {
	if s, ok := e.stage.Get(); ok {
		e.passed = append(e.passed, s)
	}
	e.cursor++
}

// takeDeferred returns and clears a pending deferred producer.
func (e *Event[V]) takeDeferred() DeferredFunc[V] {
	fn := e.deferred
	e.deferred = nil
	return fn
}

// settle marks a still-active event done and releases waiters.
func (e *Event[V]) settle() {
	if e.state == eventActive {
		e.state = eventDone
	}
	select {
	case <-e.done:
	default:
		close(e.done)
	}
}
