package stream

import "sync"

// job is one unit of work run by the goroutine draining a subject's queue.
type job func()

// jobQueue is a thread-safe FIFO queue of jobs.
//
// The queue is unbounded so handlers can re-enter Send arbitrarily often
// without blocking; re-entrant work is appended instead of run in place.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []job
	closed bool
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		jobs: make([]job, 0, 8),
	}
}

// Enqueue adds a job to the back of the queue.
// Returns false if the queue is closed.
func (q *jobQueue) Enqueue(j job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, j)
	return true
}

// TryDequeue removes and returns the front job without blocking.
// Returns (nil, false) if the queue is empty.
func (q *jobQueue) TryDequeue() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}

	j := q.jobs[0]

	// Nil out the slot so the closure (and the event it captures) can be
	// collected before the backing array is reallocated.
	q.jobs[0] = nil

	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return j, true
}

// Len returns the current queue length.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close rejects further jobs. Jobs already queued still drain.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
