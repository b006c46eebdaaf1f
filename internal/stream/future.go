package stream

import (
	"context"
	"sync"
)

// future is the result of a deferred event value.
type future[V any] struct {
	result V
	err    error
	once   sync.Once
	done   chan struct{}
}

// await waits for the deferred function to return.
func (f *future[V]) await() (V, error) {
	<-f.done
	return f.result, f.err
}

// startFuture runs fn on its own goroutine.
func startFuture[V any](ctx context.Context, fn DeferredFunc[V]) *future[V] {
	f := &future[V]{done: make(chan struct{})}

	go func() {
		defer close(f.done)

		// Early exit when the context is already cancelled.
		select {
		case <-ctx.Done():
			f.err = ctx.Err()
			return
		default:
		}

		res, err := fn(ctx)
		f.once.Do(func() {
			f.result = res
			f.err = err
		})
	}()

	return f
}
