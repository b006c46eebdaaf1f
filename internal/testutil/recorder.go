package testutil

import (
	"slices"
	"sync"
)

// Recorder collects the value, error and completion callbacks of a
// subscription. Its methods match the callback shapes of stream.Observer.
//
// Thread-safety: all methods are safe for concurrent use, so timer-driven
// emissions can be asserted with require.Eventually.
type Recorder[V any] struct {
	mu        sync.Mutex
	values    []V
	errs      []error
	completed int
}

// NewRecorder creates an empty recorder.
func NewRecorder[V any]() *Recorder[V] {
	return &Recorder[V]{}
}

// Next records a value.
func (r *Recorder[V]) Next(v V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

// Error records an error.
func (r *Recorder[V]) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

// Complete records a completion.
func (r *Recorder[V]) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
}

// Values returns a copy of the recorded values.
func (r *Recorder[V]) Values() []V {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.values)
}

// Last returns the most recent value and whether any was recorded.
func (r *Recorder[V]) Last() (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		var zero V
		return zero, false
	}
	return r.values[len(r.values)-1], true
}

// Count returns the number of recorded values.
func (r *Recorder[V]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Errors returns a copy of the recorded errors.
func (r *Recorder[V]) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.errs)
}

// Completed returns how many times Complete was called.
func (r *Recorder[V]) Completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}
