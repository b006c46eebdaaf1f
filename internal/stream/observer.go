package stream

import "sync/atomic"

// Observer receives the value, error and completion channels of a stream.
// Any callback may be nil.
type Observer[V any] struct {
	Next     func(V)
	Error    func(error)
	Complete func()
}

// Observable is anything that can be subscribed to and read.
type Observable[V any] interface {
	Value() V
	Subscribe(o Observer[V]) (*Subscription, error)
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	closed atomic.Bool
	cancel func()
}

// Unsubscribe stops delivery to the observer. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
}

// Closed reports whether Unsubscribe was called or the source completed.
func (s *Subscription) Closed() bool {
	return s.closed.Load()
}

type observerEntry[V any] struct {
	observer Observer[V]
	sub      *Subscription
}

func (o *observerEntry[V]) next(v V) {
	if o.observer.Next != nil && !o.sub.Closed() {
		o.observer.Next(v)
	}
}

func (o *observerEntry[V]) error(err error) {
	if o.observer.Error != nil && !o.sub.Closed() {
		o.observer.Error(err)
	}
}

func (o *observerEntry[V]) complete() {
	if o.sub.closed.CompareAndSwap(false, true) && o.observer.Complete != nil {
		o.observer.Complete()
	}
}
