package stream

import (
	"log/slog"
	"sync"
)

// Subject is the base value container.
//
// It holds the current value, broadcasts replacements to subscribers, keeps
// an error channel separate from the value channel, and gates broadcasts on
// open transactions. Subject.Next commits directly; Stream layers the staged
// pipeline on top.
//
// Thread-safety model:
//   - Value, Subscribe, Next, Complete, Trans: safe from any goroutine
//   - All commits and broadcasts run on the goroutine draining the queue,
//     one job at a time, so subscribers never observe interleaved updates
type Subject[V any] struct {
	name   string
	debug  bool
	logger *slog.Logger
	tokens TokenGenerator

	queue *jobQueue

	mu        sync.Mutex
	value     V
	published V
	observers []*observerEntry[V]
	trans     map[string]*Transaction
	dirty     bool
	completed bool
	draining  bool
}

// NewSubject creates a base container holding initial.
func NewSubject[V any](initial V, opts ...Option[V]) *Subject[V] {
	return newSubject(initial, newConfig(opts))
}

func newSubject[V any](initial V, cfg *config[V]) *Subject[V] {
	return &Subject[V]{
		name:      cfg.name,
		debug:     cfg.debug,
		logger:    cfg.logger,
		tokens:    cfg.tokens,
		queue:     newJobQueue(),
		value:     initial,
		published: initial,
		trans:     make(map[string]*Transaction),
	}
}

// Name returns the stream name.
func (s *Subject[V]) Name() string {
	return s.name
}

// Value returns the live value, including commits made while a transaction
// is suppressing notification.
func (s *Subject[V]) Value() V {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// IsComplete reports whether Complete has been called.
func (s *Subject[V]) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Next replaces the value without running a pipeline.
func (s *Subject[V]) Next(value V) error {
	if s.IsComplete() {
		return newCompleteError(s.name)
	}
	s.run(func() { s.commit(func(V) V { return value }) })
	return nil
}

// Subscribe registers o and immediately delivers the last published value.
// Subscribing to a completed stream returns an error.
func (s *Subject[V]) Subscribe(o Observer[V]) (*Subscription, error) {
	s.mu.Lock()
	if s.completed {
		s.mu.Unlock()
		return nil, &StreamError{
			Code:    ErrCodeSubscribeAfterComplete,
			Message: "cannot subscribe to a completed stream",
			Stream:  s.name,
		}
	}
	entry := &observerEntry[V]{observer: o, sub: &Subscription{}}
	entry.sub.cancel = func() { s.removeObserver(entry) }
	s.observers = append(s.observers, entry)
	current := s.published
	s.mu.Unlock()

	entry.next(current)
	return entry.sub, nil
}

// SubscribeFunc is Subscribe with three callbacks. Any may be nil.
func (s *Subject[V]) SubscribeFunc(next func(V), onError func(error), onComplete func()) (*Subscription, error) {
	return s.Subscribe(Observer[V]{Next: next, Error: onError, Complete: onComplete})
}

// Complete freezes the value, completes every subscriber and rejects further
// mutations and subscriptions. Idempotent.
func (s *Subject[V]) Complete() {
	s.run(func() {
		s.mu.Lock()
		if s.completed {
			s.mu.Unlock()
			return
		}
		s.completed = true
		observers := s.observers
		s.observers = nil
		pending := make([]*Transaction, 0, len(s.trans))
		for _, t := range s.trans {
			pending = append(pending, t)
		}
		clear(s.trans)
		s.mu.Unlock()

		for _, t := range pending {
			t.stopTimer()
		}
		for _, o := range observers {
			o.complete()
		}
		s.queue.Close()
		if s.debug {
			s.logger.Debug("stream completed")
		}
	})
}

func (s *Subject[V]) removeObserver(entry *observerEntry[V]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.observers {
		if o == entry {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

// run queues j and drains the queue unless another call is already draining.
// Jobs queued by a job (re-entrant calls) run after it returns.
// Returns false if the queue is closed because the stream completed.
func (s *Subject[V]) run(j job) bool {
	if !s.queue.Enqueue(j) {
		return false
	}

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return true
	}
	s.draining = true
	s.mu.Unlock()

	s.drain()
	return true
}

func (s *Subject[V]) drain() {
	defer func() {
		// A panicking subscriber must not leave the stream wedged.
		if r := recover(); r != nil {
			s.mu.Lock()
			s.draining = false
			s.mu.Unlock()
			panic(r)
		}
	}()

	for {
		s.mu.Lock()
		j, ok := s.queue.TryDequeue()
		if !ok {
			s.draining = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		j()
	}
}

// commit replaces the value with update(current) and broadcasts it unless a
// transaction is open. Must run on the draining goroutine.
func (s *Subject[V]) commit(update func(current V) V) V {
	s.mu.Lock()
	if s.completed {
		v := s.value
		s.mu.Unlock()
		return v
	}
	next := update(s.value)
	s.value = next
	if len(s.trans) > 0 {
		s.dirty = true
		s.mu.Unlock()
		if s.debug {
			s.logger.Debug("commit suppressed by open transactions")
		}
		return next
	}
	s.published = next
	observers := append([]*observerEntry[V](nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		o.next(next)
	}
	return next
}

// emitError delivers err on the error channel. The value channel stays open.
func (s *Subject[V]) emitError(err error) {
	s.mu.Lock()
	observers := append([]*observerEntry[V](nil), s.observers...)
	s.mu.Unlock()

	if s.debug {
		s.logger.Debug("routing error to error channel", "error", err)
	}
	for _, o := range observers {
		o.error(err)
	}
}
