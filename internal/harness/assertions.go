package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/lookingglass/internal/stream"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEntry // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, entry := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", entry.Step, describeEntry(entry))
		}
	}
	return buf.String()
}

func describeEntry(e TraceEntry) string {
	switch e.Kind {
	case KindEvent:
		return fmt.Sprintf("%s %v committed=%v %s", e.Op, e.Value, e.Committed, e.Code)
	case KindEmit:
		return fmt.Sprintf("emit %v", e.Value)
	case KindError:
		return fmt.Sprintf("error %s", e.Code)
	case KindDo:
		return fmt.Sprintf("do %s %s", e.Action, e.Code)
	default:
		return fmt.Sprintf("%s %s", e.Kind, e.Token)
	}
}

// assertFinalValue checks expected fields against the final record
// (subset match) and that absent keys are missing.
func assertFinalValue(result *Result, a Assertion) error {
	if err := matchFields(AssertFinalValue, result.Final, a.Expect); err != nil {
		return err
	}
	for _, key := range a.Absent {
		if v, ok := result.Final[key]; ok {
			return &AssertionError{
				Type:     AssertFinalValue,
				Expected: fmt.Sprintf("field %q to be absent", key),
				Actual:   fmt.Sprintf("field %q = %v", key, v),
			}
		}
	}
	return nil
}

// assertLastEmission checks expected fields against the last value
// subscribers received.
func assertLastEmission(result *Result, a Assertion) error {
	if len(result.Emissions) == 0 {
		return &AssertionError{
			Type:     AssertLastEmission,
			Expected: fmt.Sprintf("an emission matching %v", a.Expect),
			Actual:   "no emissions",
		}
	}
	return matchFields(AssertLastEmission, result.Emissions[len(result.Emissions)-1], a.Expect)
}

func assertEmissionCount(result *Result, a Assertion) error {
	if len(result.Emissions) != a.Count {
		return &AssertionError{
			Type:     AssertEmissionCount,
			Expected: fmt.Sprintf("%d emissions", a.Count),
			Actual:   fmt.Sprintf("%d emissions", len(result.Emissions)),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertErrorCount(result *Result, a Assertion) error {
	if len(result.Codes) != a.Count {
		return &AssertionError{
			Type:     AssertErrorCount,
			Expected: fmt.Sprintf("%d errors", a.Count),
			Actual:   fmt.Sprintf("%d errors %v", len(result.Codes), result.Codes),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertErrorCode(result *Result, a Assertion) error {
	if !slices.Contains(result.Codes, a.Code) {
		return &AssertionError{
			Type:     AssertErrorCode,
			Expected: fmt.Sprintf("error %s on the error channel", a.Code),
			Actual:   fmt.Sprintf("errors %v", result.Codes),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertTraceOrder checks that ops appear in the trace in the given order.
// Ops don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(result *Result, a Assertion) error {
	next := 0
	for _, entry := range result.Trace {
		if next == len(a.Ops) {
			break
		}
		if stepLabel(entry) == a.Ops[next] {
			next++
		}
	}
	if next < len(a.Ops) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("ops in order: %v", a.Ops),
			Actual:   fmt.Sprintf("matched %v, missing %s", a.Ops[:next], a.Ops[next]),
			Trace:    result.Trace,
		}
	}
	return nil
}

// stepLabel names the op behind a trace entry. Emissions and errors have
// no label.
func stepLabel(e TraceEntry) string {
	switch e.Kind {
	case KindEvent:
		return e.Op
	case KindTrans, KindClose, KindDo:
		return e.Kind
	default:
		return ""
	}
}

// matchFields checks that actual contains every expected field.
// Extra keys in actual are ignored.
func matchFields(kind string, actual, expected map[string]any) error {
	for _, key := range sortedKeys(expected) {
		want := expected[key]
		got, ok := actual[key]
		if !ok {
			return &AssertionError{
				Type:     kind,
				Expected: fmt.Sprintf("field %q = %v", key, want),
				Actual:   fmt.Sprintf("field %q not present in %v", key, actual),
			}
		}
		if !valuesEqual(got, want) {
			return &AssertionError{
				Type:     kind,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, want, want),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, got, got),
			}
		}
	}
	return nil
}

// valuesEqual compares two record values. Integers compare by value
// regardless of width so values built in Go match values parsed from YAML.
func valuesEqual(actual, expected any) bool {
	if a, ok := asInt64(actual); ok {
		if e, ok := asInt64(expected); ok {
			return a == e
		}
	}
	return stream.DeepEqual(actual, expected)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertFinalValue:
			err = assertFinalValue(result, a)
		case AssertLastEmission:
			err = assertLastEmission(result, a)
		case AssertEmissionCount:
			err = assertEmissionCount(result, a)
		case AssertErrorCount:
			err = assertErrorCount(result, a)
		case AssertErrorCode:
			err = assertErrorCode(result, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
