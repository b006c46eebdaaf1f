package stream

// Maybe is an explicit optional value.
// The zero Maybe is absent.
type Maybe[T any] struct {
	value T
	ok    bool
}

// Some returns a present Maybe holding v.
func Some[T any](v T) Maybe[T] {
	return Maybe[T]{value: v, ok: true}
}

// None returns an absent Maybe.
func None[T any]() Maybe[T] {
	return Maybe[T]{}
}

// Get returns the held value and whether it is present.
func (m Maybe[T]) Get() (T, bool) {
	return m.value, m.ok
}

// IsPresent reports whether a value is held.
func (m Maybe[T]) IsPresent() bool {
	return m.ok
}

// OrElse returns the held value, or fallback when absent.
func (m Maybe[T]) OrElse(fallback T) T {
	if m.ok {
		return m.value
	}
	return fallback
}
