// Package harness runs YAML scenarios against a record stream.
//
// A scenario describes an initial record, optional field guards and a list
// of steps. The harness executes the steps against a fresh ObjectStream and
// records every event, emission, error and transaction into an ordered trace,
// then evaluates assertions against the trace and the final value.
//
// # Scenario Format
//
//	name: counter
//	description: "Counter increments and rejects bad input"
//	initial: { count: 0 }
//	no_new_keys: true
//	guards:
//	  - field: count
//	    kind: int
//	steps:
//	  - op: set
//	    values: { count: 1 }
//	  - op: trans
//	    token: batch
//	  - op: do
//	    action: setCount
//	    args: [2]
//	  - op: close
//	    token: batch
//	  - op: set
//	    values: { count: "three" }
//	    expect: { committed: false, error: STAGE_VALIDATION }
//	assertions:
//	  - type: final_value
//	    expect: { count: 2 }
//	  - type: emission_count
//	    count: 3
//
// # Step Ops
//
//   - set: merge values through the "set" pipeline
//   - next: replace with values, merging missing keys from the current record
//   - delete: remove keys
//   - trans / close: open and close a labelled transaction
//   - do: call a named action such as setCount
//
// # Assertion Types
//
//   - final_value: subset match on the final record, plus absent keys
//   - last_emission: subset match on the last value subscribers received
//   - emission_count: number of values subscribers received
//   - error_count: number of errors on the error channel
//   - error_code: an error code that appeared on the error channel
//   - trace_order: ops appear in the trace in the given order
//
// # Deterministic Testing
//
// Event and transaction IDs come from a sequential generator ("tok-1",
// "tok-2", ...) and sequence numbers from a fresh logical clock, so a
// scenario's trace is byte-identical across runs and can be compared
// against a golden file with RunWithGolden.
package harness
