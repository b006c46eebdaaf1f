package stream

import "log/slog"

// FilterFunc inspects a candidate value at the FILTER stage. It returns the
// (possibly rewritten) value to continue with, or an error to veto the event.
type FilterFunc[V any] func(candidate, current V) (V, error)

// Option configures a stream at construction.
type Option[V any] func(*config[V])

type config[V any] struct {
	name      string
	debug     bool
	logger    *slog.Logger
	filter    FilterFunc[V]
	finalize  Handler[V]
	noNewKeys bool
	tokens    TokenGenerator
	clock     *Clock
}

func newConfig[V any](opts []Option[V]) *config[V] {
	c := &config[V]{
		name:   "stream",
		tokens: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.clock == nil {
		c.clock = NewClock()
	}
	c.logger = c.logger.With("stream", c.name)
	return c
}

// WithName names the stream in errors and log output.
func WithName[V any](name string) Option[V] {
	return func(c *config[V]) {
		c.name = name
	}
}

// WithDebug logs stage entry, commits, transactions and error routing at
// debug level.
func WithDebug[V any](debug bool) Option[V] {
	return func(c *config[V]) {
		c.debug = debug
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger[V any](logger *slog.Logger) Option[V] {
	return func(c *config[V]) {
		c.logger = logger
	}
}

// WithFilter installs a FILTER-stage handler for every action.
func WithFilter[V any](fn FilterFunc[V]) Option[V] {
	return func(c *config[V]) {
		c.filter = fn
	}
}

// WithFinalize installs a PRECOMMIT-stage observer for every action.
func WithFinalize[V any](h Handler[V]) Option[V] {
	return func(c *config[V]) {
		c.finalize = h
	}
}

// WithNoNewKeys makes a keyed stream reject "set" events that introduce keys
// absent from the current value. Ignored by non-keyed streams.
func WithNoNewKeys[V any](enabled bool) Option[V] {
	return func(c *config[V]) {
		c.noNewKeys = enabled
	}
}

// WithTokenGenerator sets the generator for event and transaction IDs.
// Default: UUIDv7Generator.
func WithTokenGenerator[V any](gen TokenGenerator) Option[V] {
	return func(c *config[V]) {
		c.tokens = gen
	}
}

// WithClock sets the logical clock stamping event sequence numbers.
// Streams sharing a clock get a single global event order.
func WithClock[V any](clock *Clock) Option[V] {
	return func(c *config[V]) {
		c.clock = clock
	}
}
