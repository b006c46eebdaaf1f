package stream

import "reflect"

// View is a read-only stream derived from another observable.
// It completes when its source completes.
type View[U any] struct {
	subject *Subject[U]
	source  *Subscription
}

// Map derives a view whose value is fn applied to every emission of src.
func Map[V, U any](src Observable[V], fn func(V) U, opts ...Option[U]) (*View[U], error) {
	return MapDistinct(src, fn, nil, opts...)
}

// MapDistinct is Map that suppresses emissions equal (per equal) to the
// previous one. A nil equal emits every value.
func MapDistinct[V, U any](src Observable[V], fn func(V) U, equal func(a, b U) bool, opts ...Option[U]) (*View[U], error) {
	var zero U
	v := &View[U]{subject: newSubject(zero, newConfig(opts))}

	var last U
	first := true
	sub, err := src.Subscribe(Observer[V]{
		Next: func(value V) {
			u := fn(value)
			if !first && equal != nil && equal(last, u) {
				return
			}
			first = false
			last = u
			_ = v.subject.Next(u)
		},
		Complete: func() {
			v.subject.Complete()
		},
	})
	if err != nil {
		return nil, err
	}
	v.source = sub
	return v, nil
}

// Value returns the latest derived value.
func (v *View[U]) Value() U {
	return v.subject.Value()
}

// Name returns the view name.
func (v *View[U]) Name() string {
	return v.subject.Name()
}

// Subscribe registers o and delivers the current derived value.
func (v *View[U]) Subscribe(o Observer[U]) (*Subscription, error) {
	return v.subject.Subscribe(o)
}

// SubscribeFunc is Subscribe with three callbacks.
func (v *View[U]) SubscribeFunc(next func(U), onError func(error), onComplete func()) (*Subscription, error) {
	return v.subject.SubscribeFunc(next, onError, onComplete)
}

// Close detaches the view from its source and completes it.
func (v *View[U]) Close() {
	v.source.Unsubscribe()
	v.subject.Complete()
}

// IsComplete reports whether the view has completed.
func (v *View[U]) IsComplete() bool {
	return v.subject.IsComplete()
}

// DeepEqual is the default structural comparator.
func DeepEqual[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}
