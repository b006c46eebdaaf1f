package stream

import (
	"context"
	"fmt"
	"sync"
)

// Handler runs at a stage for every event its predicate matches.
type Handler[V any] func(ev *Event[V], s *Stream[V])

// CommitFunc computes the committed value from the current value and the
// event's final value. The default replaces current with value.
type CommitFunc[V any] func(current, value V) V

type registration[V any] struct {
	pred    *Predicate[V]
	handler Handler[V]
}

type actionDef[V any] struct {
	stages []Stage
	commit CommitFunc[V]
}

// Stream is a Subject whose changes run through a staged pipeline.
//
// INVARIANTS:
//   - The value is replaced only by the commit step of an event that was not
//     stopped before COMMIT.
//   - Handlers at a stage run in registration order.
//   - Events on one stream are walked one at a time in Send order; a Send
//     from inside a handler is queued behind the current event.
type Stream[V any] struct {
	*Subject[V]

	clock *Clock

	hmu      sync.RWMutex
	actions  map[Action]actionDef[V]
	handlers []*registration[V]
}

// New creates a staged stream holding initial.
func New[V any](initial V, opts ...Option[V]) *Stream[V] {
	return newStream(initial, newConfig(opts))
}

func newStream[V any](initial V, cfg *config[V]) *Stream[V] {
	s := &Stream[V]{
		Subject: newSubject(initial, cfg),
		clock:   cfg.clock,
		actions: make(map[Action]actionDef[V]),
	}
	s.actions[ActionNext] = actionDef[V]{stages: ReplaceStages()}

	if cfg.filter != nil {
		filter := cfg.filter
		s.OnStage("", StageFilter, func(ev *Event[V], st *Stream[V]) {
			v, err := filter(ev.Value(), st.Value())
			if err != nil {
				ev.Error(err)
				return
			}
			ev.Next(v)
		})
	}
	if cfg.finalize != nil {
		s.OnStage("", StagePrecommit, cfg.finalize)
	}
	return s
}

// AddAction registers a caller-defined action code with its stage list.
// A nil commit replaces the value. The stage list is copied.
func (s *Stream[V]) AddAction(action Action, stages []Stage, commit CommitFunc[V]) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.actions[action] = actionDef[V]{
		stages: append([]Stage(nil), stages...),
		commit: commit,
	}
}

// StagesFor returns the stage list used for action.
func (s *Stream[V]) StagesFor(action Action) []Stage {
	return append([]Stage(nil), s.lookup(action).stages...)
}

func (s *Stream[V]) lookup(action Action) actionDef[V] {
	s.hmu.RLock()
	defer s.hmu.RUnlock()
	if def, ok := s.actions[action]; ok {
		return def
	}
	return actionDef[V]{stages: ReplaceStages()}
}

// On registers handler for every event pred matches. Returns a func that
// removes the registration.
func (s *Stream[V]) On(pred *Predicate[V], handler Handler[V]) func() {
	if pred == nil {
		pred = NewPredicate(Filter[V]{})
	}
	reg := &registration[V]{pred: pred, handler: handler}

	s.hmu.Lock()
	s.handlers = append(s.handlers, reg)
	s.hmu.Unlock()

	return func() {
		s.hmu.Lock()
		defer s.hmu.Unlock()
		for i, r := range s.handlers {
			if r == reg {
				s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
				return
			}
		}
	}
}

// OnStage registers handler for events of action at stage. An empty action
// matches every action.
func (s *Stream[V]) OnStage(action Action, stage Stage, handler Handler[V]) func() {
	f := Filter[V]{Stage: Is(stage)}
	if action != "" {
		f.Action = Is(action)
	}
	return s.On(NewPredicate(f), handler)
}

// Next sends value through the "next" pipeline.
func (s *Stream[V]) Next(value V) *Event[V] {
	return s.Send(ActionNext, value)
}

// Send creates an event for action and walks it through the action's stage
// list (ReplaceStages if the action is unregistered).
//
// Pipeline errors never surface here; they go to the error channel and are
// recorded on the returned event. Send on a completed stream returns an event
// already failed with a STREAM_COMPLETE error.
func (s *Stream[V]) Send(action Action, value V) *Event[V] {
	return s.send(action, value, false)
}

func (s *Stream[V]) send(action Action, value V, fromField bool) *Event[V] {
	def := s.lookup(action)
	ev := newEvent(s.tokens.Generate(), s.clock.Next(), action, value, def.stages, s)
	ev.fromField = fromField

	if s.IsComplete() || !s.run(func() { s.start(ev, def.commit) }) {
		ev.Error(newCompleteError(s.name))
		ev.settle()
	}
	return ev
}

// start walks a freshly queued event. The stream may have completed while
// the event waited in the queue.
func (s *Stream[V]) start(ev *Event[V], commit CommitFunc[V]) {
	if s.IsComplete() {
		ev.Error(newCompleteError(s.name))
		ev.settle()
		return
	}
	s.walk(ev, commit)
}

// walk advances ev from its cursor to the end of its stage list.
func (s *Stream[V]) walk(ev *Event[V], commit CommitFunc[V]) {
	for !ev.atEnd() {
		stage := ev.enter()
		if s.debug {
			s.logger.Debug("event entered stage", "event", ev.id, "seq", ev.seq, "action", ev.act, "stage", stage)
		}

		s.dispatch(ev)

		if ev.IsStopped() {
			s.finish(ev)
			return
		}
		if fn := ev.takeDeferred(); fn != nil {
			s.await(ev, fn, commit)
			return
		}
		s.leave(ev, commit)
	}

	if !ev.committed {
		s.commitEvent(ev, commit)
	}
	s.finish(ev)
}

// leave closes the current stage. COMMIT applies the event value.
func (s *Stream[V]) leave(ev *Event[V], commit CommitFunc[V]) {
	stage := ev.Stage()
	ev.leave()
	if stage == StageCommit && !ev.committed {
		s.commitEvent(ev, commit)
	}
}

func (s *Stream[V]) commitEvent(ev *Event[V], commit CommitFunc[V]) {
	value := ev.value
	s.commit(func(current V) V {
		if commit == nil {
			return value
		}
		return commit(current, value)
	})
	ev.committed = true
	if s.debug {
		s.logger.Debug("event committed", "event", ev.id, "seq", ev.seq, "action", ev.act)
	}
}

// await pauses the walk until fn settles, then resumes it on the stream's
// queue so it interleaves with other events in order.
func (s *Stream[V]) await(ev *Event[V], fn DeferredFunc[V], commit CommitFunc[V]) {
	f := startFuture(context.Background(), fn)
	go func() {
		value, err := f.await()
		resumed := s.run(func() {
			if s.IsComplete() {
				ev.Error(newCompleteError(s.name))
				ev.settle()
				return
			}
			if err != nil {
				ev.Error(err)
				s.finish(ev)
				return
			}
			ev.Next(value)
			s.leave(ev, commit)
			s.walk(ev, commit)
		})
		if !resumed {
			ev.Error(newCompleteError(s.name))
			ev.settle()
		}
	}()
}

// finish settles a terminal event, routing its error if it failed.
func (s *Stream[V]) finish(ev *Event[V]) {
	if ev.IsErrored() {
		err := stageError(s.name, ev, ev.err)
		ev.err = err
		s.emitError(err)
	}
	ev.settle()
}

// dispatch runs every matching handler for the event's current stage.
// A panicking handler aborts the event as if it had called Error.
func (s *Stream[V]) dispatch(ev *Event[V]) {
	s.hmu.RLock()
	regs := append([]*registration[V](nil), s.handlers...)
	s.hmu.RUnlock()

	for _, reg := range regs {
		if ev.IsStopped() {
			return
		}
		if !reg.pred.Match(ev) {
			continue
		}
		s.invoke(reg.handler, ev)
	}
}

func (s *Stream[V]) invoke(h Handler[V], ev *Event[V]) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			s.logger.Error("stage handler panicked",
				"event", ev.id,
				"action", ev.act,
				"stage", ev.Stage(),
				"panic", r,
			)
			ev.Error(&StreamError{
				Code:    ErrCodeHandlerPanic,
				Message: "stage handler panicked",
				Err:     err,
			})
		}
	}()
	h(ev, s)
}
