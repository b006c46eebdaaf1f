package stream

import (
	"sync"
	"time"
)

// Transaction is an open token suppressing subscriber notification on its
// stream. Close it with Complete; closing twice is a no-op.
type Transaction struct {
	id    string
	close func(id string)

	once  sync.Once
	mu    sync.Mutex
	timer *time.Timer
}

// ID returns the token identifier.
func (t *Transaction) ID() string {
	return t.id
}

// Complete closes the token. When the last open token on a stream closes,
// subscribers receive the latest committed value once.
func (t *Transaction) Complete() {
	t.once.Do(func() {
		t.stopTimer()
		t.close(t.id)
	})
}

func (t *Transaction) stopTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Trans opens a transaction that must be closed explicitly.
func (s *Subject[V]) Trans() *Transaction {
	return s.TransTimeout(-1)
}

// TransTimeout opens a transaction. A non-negative timeout auto-completes the
// token after the delay; a negative timeout never auto-completes.
//
// Open transactions compose: notification resumes only when all are closed,
// in any order. Opening a transaction on a completed stream returns a token
// that is already closed.
func (s *Subject[V]) TransTimeout(timeout time.Duration) *Transaction {
	t := &Transaction{
		id:    s.tokens.Generate(),
		close: s.closeTransaction,
	}

	s.mu.Lock()
	if s.completed {
		s.mu.Unlock()
		t.once.Do(func() {})
		return t
	}
	s.trans[t.id] = t
	open := len(s.trans)
	s.mu.Unlock()

	if timeout >= 0 {
		t.mu.Lock()
		t.timer = time.AfterFunc(timeout, t.Complete)
		t.mu.Unlock()
	}

	if s.debug {
		s.logger.Debug("transaction opened", "transaction", t.id, "open", open, "timeout", timeout)
	}
	return t
}

// OpenTransactions returns the number of open transaction tokens.
func (s *Subject[V]) OpenTransactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trans)
}

// closeTransaction removes a token and, if it was the last one, flushes the
// latest committed value to subscribers once.
func (s *Subject[V]) closeTransaction(id string) {
	s.run(func() {
		s.mu.Lock()
		if _, ok := s.trans[id]; !ok {
			s.mu.Unlock()
			return
		}
		delete(s.trans, id)
		open := len(s.trans)
		if open > 0 || !s.dirty {
			s.mu.Unlock()
			if s.debug {
				s.logger.Debug("transaction closed", "transaction", id, "open", open)
			}
			return
		}
		s.dirty = false
		s.published = s.value
		value := s.value
		observers := append([]*observerEntry[V](nil), s.observers...)
		s.mu.Unlock()

		if s.debug {
			s.logger.Debug("transaction closed, flushing", "transaction", id)
		}
		for _, o := range observers {
			o.next(value)
		}
	})
}
