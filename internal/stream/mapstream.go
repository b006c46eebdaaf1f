package stream

import (
	"fmt"
	"maps"
	"sync"
)

// MapStream is a keyed stream over map[K]V.
//
// "set" merges a partial map, "next" replaces with merge-on-missing-keys and
// "delete" removes keys. Every mutation runs through its own stage list:
//
//	set:    INITIAL -> RESTRICT -> FILTER -> VALIDATE -> PRECOMMIT -> COMMIT -> COMPLETE
//	next:   INITIAL -> FILTER -> VALIDATE -> PRE_MERGE -> MERGE -> PRECOMMIT -> COMMIT -> COMPLETE
//	delete: INITIAL -> FILTER -> VALIDATE -> PRECOMMIT -> COMMIT -> COMPLETE
//
// The map held by the stream is never mutated in place; every commit stores a
// fresh copy. Maps returned by Value must be treated as read-only.
type MapStream[K comparable, V any] struct {
	*Stream[map[K]V]

	fmu    sync.Mutex
	fields map[K]*fieldLink

	named *ActionTable
}

type fieldLink struct {
	sub *Subscription
}

// NewMap creates a keyed stream holding a copy of initial.
func NewMap[K comparable, V any](initial map[K]V, opts ...Option[map[K]V]) *MapStream[K, V] {
	cfg := newConfig(opts)
	value := maps.Clone(initial)
	if value == nil {
		value = make(map[K]V)
	}

	m := &MapStream[K, V]{
		Stream: newStream(value, cfg),
		fields: make(map[K]*fieldLink),
		named:  NewActionTable(),
	}

	m.AddAction(ActionSet, SetStages(), mergeMaps[K, V])
	m.AddAction(ActionNext, MergeStages(), nil)
	m.AddAction(ActionDelete, DeleteStages(), removeKeys[K, V])

	m.OnStage(ActionNext, StageMerge, func(ev *Event[map[K]V], st *Stream[map[K]V]) {
		ev.Next(mergeMaps(st.Value(), ev.Value()))
	})
	if cfg.noNewKeys {
		m.OnStage(ActionSet, StageRestrict, m.restrictKeys)
	}
	m.OnStage(ActionDelete, StageComplete, func(ev *Event[map[K]V], _ *Stream[map[K]V]) {
		if !ev.Committed() {
			return
		}
		for key := range ev.Value() {
			m.unlinkField(key)
		}
	})
	m.On(NewPredicate(Filter[map[K]V]{
		Action: Where(func(a Action) bool { return a == ActionSet || a == ActionNext }),
		Stage:  Is(StageComplete),
	}), func(ev *Event[map[K]V], st *Stream[map[K]V]) {
		if ev.Committed() {
			m.addSetters(st.Value())
		}
	})

	m.addSetters(value)
	return m
}

// Get returns the value at key and whether it is present.
func (m *MapStream[K, V]) Get(key K) (V, bool) {
	v, ok := m.Value()[key]
	return v, ok
}

// Has reports whether key is present.
func (m *MapStream[K, V]) Has(key K) bool {
	_, ok := m.Value()[key]
	return ok
}

// Len returns the number of keys.
func (m *MapStream[K, V]) Len() int {
	return len(m.Value())
}

// Set merges {key: value} through the "set" pipeline.
func (m *MapStream[K, V]) Set(key K, value V) *Event[map[K]V] {
	return m.Send(ActionSet, map[K]V{key: value})
}

// SetMany merges values through the "set" pipeline.
func (m *MapStream[K, V]) SetMany(values map[K]V) *Event[map[K]V] {
	return m.Send(ActionSet, maps.Clone(values))
}

// Delete removes keys through the "delete" pipeline. The event value holds
// the removed keys mapped to their current values. Field subjects attached to
// removed keys are detached on commit.
func (m *MapStream[K, V]) Delete(keys ...K) *Event[map[K]V] {
	current := m.Value()
	payload := make(map[K]V, len(keys))
	for _, k := range keys {
		payload[k] = current[k]
	}
	return m.Send(ActionDelete, payload)
}

// OnField registers handler for changes to any of keys. It fires for "set"
// events at stage (default PRECOMMIT) and for "next" events at PRE_MERGE,
// whenever the payload carries one of keys with a value different from the
// current one. Returns a func removing both registrations.
func (m *MapStream[K, V]) OnField(handler Handler[map[K]V], keys []K, stage ...Stage) func() {
	at := StagePrecommit
	if len(stage) > 0 {
		at = stage[0]
	}

	changes := Where(func(payload map[K]V) bool {
		current := m.Value()
		for _, k := range keys {
			next, ok := payload[k]
			if !ok {
				continue
			}
			prev, had := current[k]
			if !had || !DeepEqual(prev, next) {
				return true
			}
		}
		return false
	})

	offSet := m.On(NewPredicate(Filter[map[K]V]{
		Action: Is(ActionSet),
		Stage:  Is(at),
		Value:  changes,
	}), handler)
	offNext := m.On(NewPredicate(Filter[map[K]V]{
		Action: Is(ActionNext),
		Stage:  Is(StagePreMerge),
		Value:  changes,
	}), handler)

	return func() {
		offSet()
		offNext()
	}
}

// AddFieldSubject folds every emission of src into key as a "set" event
// flagged FromFieldSubject. A key takes at most one field subject.
//
// The link ends when key is deleted, when this stream completes, or when src
// completes; src itself is never completed by the parent.
func (m *MapStream[K, V]) AddFieldSubject(key K, src Observable[V]) error {
	link := &fieldLink{}

	m.fmu.Lock()
	if _, exists := m.fields[key]; exists {
		m.fmu.Unlock()
		return &StreamError{
			Code:    ErrCodeDuplicateFieldSubject,
			Message: "key already has a field subject",
			Stream:  m.name,
			Key:     fmt.Sprint(key),
		}
	}
	m.fields[key] = link
	m.fmu.Unlock()

	sub, err := src.Subscribe(Observer[V]{
		Next: func(v V) {
			m.send(ActionSet, map[K]V{key: v}, true)
		},
		Complete: func() {
			m.unlinkField(key)
		},
	})
	if err != nil {
		m.fmu.Lock()
		if m.fields[key] == link {
			delete(m.fields, key)
		}
		m.fmu.Unlock()
		return err
	}

	m.fmu.Lock()
	if m.fields[key] == link {
		link.sub = sub
		m.fmu.Unlock()
		return nil
	}
	m.fmu.Unlock()

	// Unlinked while subscribing (key deleted or src completed).
	sub.Unsubscribe()
	return nil
}

// HasFieldSubject reports whether key has a field subject attached.
func (m *MapStream[K, V]) HasFieldSubject(key K) bool {
	m.fmu.Lock()
	defer m.fmu.Unlock()
	_, ok := m.fields[key]
	return ok
}

func (m *MapStream[K, V]) unlinkField(key K) {
	m.fmu.Lock()
	link, ok := m.fields[key]
	if ok {
		delete(m.fields, key)
	}
	m.fmu.Unlock()

	if ok && link.sub != nil {
		link.sub.Unsubscribe()
	}
}

// Watch derives a view of keys that emits only when that projection changes
// structurally.
func (m *MapStream[K, V]) Watch(keys ...K) (*View[map[K]V], error) {
	return m.WatchFunc(DeepEqual[map[K]V], keys...)
}

// WatchFunc is Watch with a caller-supplied comparator.
func (m *MapStream[K, V]) WatchFunc(equal func(a, b map[K]V) bool, keys ...K) (*View[map[K]V], error) {
	return MapDistinct[map[K]V, map[K]V](m, func(value map[K]V) map[K]V {
		out := make(map[K]V, len(keys))
		for _, k := range keys {
			if v, ok := value[k]; ok {
				out[k] = v
			}
		}
		return out
	}, equal, WithName[map[K]V](m.name+".watch"))
}

// Complete detaches every field subject and completes the stream.
func (m *MapStream[K, V]) Complete() {
	m.fmu.Lock()
	keys := make([]K, 0, len(m.fields))
	for k := range m.fields {
		keys = append(keys, k)
	}
	m.fmu.Unlock()

	for _, k := range keys {
		m.unlinkField(k)
	}
	m.Stream.Complete()
}

// Actions returns the stream's action table.
func (m *MapStream[K, V]) Actions() *ActionTable {
	return m.named
}

// Do dispatches a named action, e.g. Do("setCount", 3).
// Pipeline errors still go to the error channel; Do only returns errors for
// unknown names and arguments that do not fit.
func (m *MapStream[K, V]) Do(name string, args ...any) error {
	return m.named.Do(name, args...)
}

// DefineAction registers a named action.
func (m *MapStream[K, V]) DefineAction(name string, fn ActionFunc) {
	m.named.Add(name, fn)
}

// addSetters registers "set<Key>" for every key that lacks one.
func (m *MapStream[K, V]) addSetters(value map[K]V) {
	for key := range value {
		name := SetterName(fmt.Sprint(key))
		m.named.addIfMissing(name, func(args ...any) error {
			if len(args) != 1 {
				return badArgs(name, "want 1 argument, got %d", len(args))
			}
			v, ok := args[0].(V)
			if !ok {
				return badArgs(name, "cannot use %T as value", args[0])
			}
			m.Set(key, v)
			return nil
		})
	}
}

// restrictKeys rejects "set" events that introduce keys absent from the
// current value.
func (m *MapStream[K, V]) restrictKeys(ev *Event[map[K]V], st *Stream[map[K]V]) {
	current := st.Value()
	for k := range ev.Value() {
		if _, ok := current[k]; !ok {
			ev.Error(&StreamError{
				Code:    ErrCodeUnknownKey,
				Message: "key is not present and new keys are not allowed",
				Key:     fmt.Sprint(k),
			})
			return
		}
	}
}

func mergeMaps[K comparable, V any](current, patch map[K]V) map[K]V {
	out := make(map[K]V, len(current)+len(patch))
	maps.Copy(out, current)
	maps.Copy(out, patch)
	return out
}

func removeKeys[K comparable, V any](current, removed map[K]V) map[K]V {
	out := maps.Clone(current)
	if out == nil {
		out = make(map[K]V)
	}
	for k := range removed {
		delete(out, k)
	}
	return out
}
