package stream

import (
	"fmt"
	"slices"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// ActionFunc is a named convenience action.
type ActionFunc func(args ...any) error

// ActionTable maps action names to functions.
//
// Keyed streams fill it eagerly with a "set<Key>" entry per key, so
// dispatching by name is an ordinary map lookup.
type ActionTable struct {
	mu      sync.RWMutex
	entries map[string]ActionFunc
}

// NewActionTable creates an empty table.
func NewActionTable() *ActionTable {
	return &ActionTable{entries: make(map[string]ActionFunc)}
}

// SetterName returns the action name for setting key: "set" + key with its
// first letter upper-cased ("count" -> "setCount"). Keys are NFC-normalized
// first so composed and decomposed spellings share one setter.
func SetterName(key string) string {
	// Casers are stateful; one per call.
	return "set" + cases.Title(language.Und, cases.NoLower).String(norm.NFC.String(key))
}

// Add registers fn under name, replacing any existing entry.
func (t *ActionTable) Add(name string, fn ActionFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[name] = fn
}

// addIfMissing registers fn unless name is taken. Reports whether it added.
func (t *ActionTable) addIfMissing(name string, fn ActionFunc) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[name]; ok {
		return false
	}
	t.entries[name] = fn
	return true
}

// Has reports whether name is registered.
func (t *ActionTable) Has(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[name]
	return ok
}

// Names returns the registered names in sorted order.
func (t *ActionTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Do calls the action registered under name.
func (t *ActionTable) Do(name string, args ...any) error {
	t.mu.RLock()
	fn, ok := t.entries[name]
	t.mu.RUnlock()
	if !ok {
		return &StreamError{
			Code:    ErrCodeUnknownAction,
			Message: fmt.Sprintf("no action named %q", name),
		}
	}
	return fn(args...)
}

// badArgs builds the error for Do arguments that do not fit an action.
func badArgs(name string, format string, a ...any) *StreamError {
	return &StreamError{
		Code:    ErrCodeBadActionArgs,
		Message: fmt.Sprintf("action %q: %s", name, fmt.Sprintf(format, a...)),
	}
}
