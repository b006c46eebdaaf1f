package stream

import (
	"fmt"
	"log/slog"
)

// Criterion tests one field of an event.
//
// The zero Criterion is absent and matches anything. Is builds a literal
// (equality) test; Where builds a computed test.
type Criterion[T any] struct {
	literal Maybe[T]
	test    func(T) bool
}

// Is returns a Criterion matching values equal to v.
func Is[T any](v T) Criterion[T] {
	return Criterion[T]{literal: Some(v)}
}

// Where returns a Criterion matching values for which fn returns true.
func Where[T any](fn func(T) bool) Criterion[T] {
	return Criterion[T]{test: fn}
}

// IsSet reports whether the criterion constrains its field.
func (c Criterion[T]) IsSet() bool {
	return c.literal.IsPresent() || c.test != nil
}

func (c Criterion[T]) matches(v T, equal func(a, b T) bool) bool {
	if c.test != nil {
		return c.test(v)
	}
	if want, ok := c.literal.Get(); ok {
		return equal(want, v)
	}
	return true
}

// Filter is the field-map form of a predicate.
type Filter[V any] struct {
	Action Criterion[Action]
	Stage  Criterion[Stage]
	Value  Criterion[V]
	Target Criterion[Target]
}

// Predicate is an immutable, reusable test over an event's action, stage,
// value and target. It never matches an event that is already stopped.
type Predicate[V any] struct {
	filter Filter[V]
}

// NewPredicate builds a predicate from a field map.
//
// A filter with no constraints matches every event forever; this is almost
// always a configuration mistake and is logged as a warning.
func NewPredicate[V any](f Filter[V]) *Predicate[V] {
	if !f.Action.IsSet() && !f.Stage.IsSet() && !f.Value.IsSet() && !f.Target.IsSet() {
		slog.Warn("event predicate has no constraints and will match every event")
	}
	return &Predicate[V]{filter: f}
}

// MatchEvent builds a predicate from positional arguments.
//
// Each argument is independently:
//   - nil: matches anything
//   - a literal (Action/string, Stage/string, V, Target): equality match
//   - a function of the field (func(Action) bool, func(Stage) bool,
//     func(V) bool, func(Target) bool): computed match
//
// Any other argument type is a malformed predicate and returns an error.
func MatchEvent[V any](action, stage, value, target any) (*Predicate[V], error) {
	var f Filter[V]

	switch a := action.(type) {
	case nil:
	case Action:
		f.Action = Is(a)
	case string:
		f.Action = Is(Action(a))
	case func(Action) bool:
		f.Action = Where(a)
	default:
		return nil, malformedPredicate("action", action)
	}

	switch s := stage.(type) {
	case nil:
	case Stage:
		f.Stage = Is(s)
	case string:
		f.Stage = Is(Stage(s))
	case func(Stage) bool:
		f.Stage = Where(s)
	default:
		return nil, malformedPredicate("stage", stage)
	}

	switch v := value.(type) {
	case nil:
	case func(V) bool:
		f.Value = Where(v)
	case V:
		f.Value = Is(v)
	default:
		return nil, malformedPredicate("value", value)
	}

	switch t := target.(type) {
	case nil:
	case func(Target) bool:
		f.Target = Where(t)
	case Target:
		f.Target = Is(t)
	default:
		return nil, malformedPredicate("target", target)
	}

	return NewPredicate(f), nil
}

// MustMatchEvent is like MatchEvent but panics on a malformed argument.
// Intended for package-level predicate tables.
func MustMatchEvent[V any](action, stage, value, target any) *Predicate[V] {
	p, err := MatchEvent[V](action, stage, value, target)
	if err != nil {
		panic(err)
	}
	return p
}

func malformedPredicate(field string, arg any) *StreamError {
	return &StreamError{
		Code:    ErrCodeMalformedPredicate,
		Message: fmt.Sprintf("cannot match %s against argument of type %T", field, arg),
	}
}

// Match reports whether ev satisfies every constrained field.
func (p *Predicate[V]) Match(ev *Event[V]) bool {
	if ev == nil || ev.IsStopped() {
		return false
	}
	f := p.filter
	return f.Action.matches(ev.Action(), equalComparable[Action]) &&
		f.Stage.matches(ev.Stage(), equalComparable[Stage]) &&
		f.Value.matches(ev.Value(), DeepEqual[V]) &&
		f.Target.matches(ev.Target(), equalComparable[Target])
}

func equalComparable[T comparable](a, b T) bool {
	return a == b
}
