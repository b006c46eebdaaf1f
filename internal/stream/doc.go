// Package stream implements the looking-glass reactive value container.
//
// A Stream holds one value and changes it only through events. Every call to
// Send creates an Event that walks the stage list configured for its action:
//
//	INITIAL -> FILTER -> VALIDATE -> PRECOMMIT -> COMMIT -> COMPLETE
//
// Handlers registered with On run synchronously at each stage, in
// registration order, for every event their Predicate matches. A handler may
// rewrite the in-flight value (Event.Next), abort the event (Event.Error), or
// stop it early (Event.Complete). An aborted event never commits; its error is
// delivered to the error callbacks of subscribers and the value channel stays
// open.
//
// DISPATCH MODEL:
//
// Each Subject owns a FIFO job queue. The goroutine that finds the queue idle
// drains it; a Send issued while the queue is being drained (for example from
// inside a handler or a subscriber) is queued behind the current event instead
// of nesting into it. Stack depth is therefore bounded no matter how handlers
// chain, and events on one stream are processed strictly in order.
//
// Suspension points are exactly:
//   - a handler deferring the event value with Event.Defer
//   - a transaction timeout
//
// KEYED STREAMS:
//
// MapStream and ObjectStream hold map values. "set" merges a partial map,
// "next" replaces with merge-on-missing-keys, "delete" removes keys. Field
// subjects fold another observable into one key, and Watch derives a view that
// emits only when a projection of keys changes.
//
// TRANSACTIONS:
//
// Trans opens a token that suppresses subscriber notification. Value always
// reads the live value; subscribers see one notification with the latest
// committed value once every open token has closed.
package stream
