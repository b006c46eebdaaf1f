package harness

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestRun_SetNextDelete(t *testing.T) {
	scenario := &Scenario{
		Name:        "crud",
		Description: "set, next and delete",
		Initial:     map[string]any{"a": 1, "b": 2},
		Steps: []Step{
			{Op: OpSet, Values: map[string]any{"c": 3}},
			{Op: OpNext, Values: map[string]any{"a": 10}},
			{Op: OpDelete, Keys: []string{"b"}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalValue, Expect: map[string]any{"a": 10, "c": 3}, Absent: []string{"b"}},
			{Type: AssertEmissionCount, Count: 4},
			{Type: AssertErrorCount, Count: 0},
			{Type: AssertTraceOrder, Ops: []string{OpSet, OpNext, OpDelete}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, map[string]any{"a": 10, "c": 3}, result.Final)

	var events []TraceEntry
	for _, e := range result.Trace {
		if e.Kind == KindEvent {
			events = append(events, e)
		}
	}
	require.Len(t, events, 3)
	assert.Equal(t, "tok-1", events[0].ID)
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, int64(3), events[2].Seq)
	assert.Equal(t, map[string]any{"a": 10, "b": 2, "c": 3}, events[1].Value, "next events carry the merged record")
	assert.Contains(t, events[1].Stages, "merge")
	assert.Equal(t, map[string]any{"b": 2}, events[2].Value, "delete events carry the removed values")
}

func TestRun_TestdataScenariosPass(t *testing.T) {
	for _, name := range []string{"counter_batch", "profile_guards"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_GuardRejectsWrongKind(t *testing.T) {
	scenario := &Scenario{
		Name:        "guarded",
		Description: "guard on count",
		Initial:     map[string]any{"count": 0},
		Guards:      []Guard{{Field: "count", Kind: KindInt}},
		Steps: []Step{
			{Op: OpSet, Values: map[string]any{"count": "many"}, Expect: &StepExpect{Committed: boolPtr(false), Error: "STAGE_VALIDATION"}},
			{Op: OpNext, Values: map[string]any{"count": true}, Expect: &StepExpect{Committed: boolPtr(false), Error: "STAGE_VALIDATION"}},
			{Op: OpSet, Values: map[string]any{"other": "x"}, Expect: &StepExpect{Committed: boolPtr(true)}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalValue, Expect: map[string]any{"count": 0, "other": "x"}},
			{Type: AssertErrorCount, Count: 2},
			{Type: AssertErrorCode, Code: "STAGE_VALIDATION"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{"STAGE_VALIDATION", "STAGE_VALIDATION"}, result.Codes)
}

func TestRun_StepExpectationMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "expectations that do not hold",
		Initial:     map[string]any{"a": 1},
		NoNewKeys:   true,
		Steps: []Step{
			{Op: OpSet, Values: map[string]any{"b": 1}, Expect: &StepExpect{Committed: boolPtr(true)}},
			{Op: OpDo, Action: "setA", Args: []any{2}, Expect: &StepExpect{Error: "UNKNOWN_ACTION"}},
		},
		Assertions: []Assertion{
			{Type: AssertErrorCount, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "steps[0] set: committed = false, want true")
	assert.Contains(t, result.Errors[1], `steps[0] set: error = "UNKNOWN_KEY", want ""`)
	assert.Contains(t, result.Errors[2], `steps[1] do: error = "", want "UNKNOWN_ACTION"`)
}

func TestRun_DoActions(t *testing.T) {
	scenario := &Scenario{
		Name:        "actions",
		Description: "setters and bad calls",
		Initial:     map[string]any{"status": "draft"},
		Steps: []Step{
			{Op: OpDo, Action: "setStatus", Args: []any{"live"}},
			{Op: OpDo, Action: "setStatus", Expect: &StepExpect{Error: "BAD_ACTION_ARGS"}},
			{Op: OpDo, Action: "publish", Expect: &StepExpect{Error: "UNKNOWN_ACTION"}},
		},
		Assertions: []Assertion{
			{Type: AssertFinalValue, Expect: map[string]any{"status": "live"}},
			{Type: AssertLastEmission, Expect: map[string]any{"status": "live"}},
			{Type: AssertErrorCount, Count: 0},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_NestedTransactions(t *testing.T) {
	scenario := &Scenario{
		Name:        "nested",
		Description: "two transactions closed out of order",
		Initial:     map[string]any{"n": 0},
		Steps: []Step{
			{Op: OpTrans, Token: "outer"},
			{Op: OpTrans, Token: "inner"},
			{Op: OpSet, Values: map[string]any{"n": 1}},
			{Op: OpSet, Values: map[string]any{"n": 2}},
			{Op: OpClose, Token: "outer"},
			{Op: OpClose, Token: "inner"},
		},
		Assertions: []Assertion{
			{Type: AssertEmissionCount, Count: 2},
			{Type: AssertLastEmission, Expect: map[string]any{"n": 2}},
			{Type: AssertTraceOrder, Ops: []string{KindTrans, KindTrans, OpSet, OpSet, KindClose, KindClose}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, KindClose, last.Kind)
	assert.Equal(t, "inner", last.Token)
	assert.Equal(t, "tok-2", last.ID)

	flush := result.Trace[len(result.Trace)-2]
	assert.Equal(t, KindEmit, flush.Kind)
	assert.Equal(t, 6, flush.Step)
}

func TestRun_IsDeterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "profile_guards.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_RejectsInvalidScenario(t *testing.T) {
	_, err := Run(nil)
	require.Error(t, err)

	_, err = Run(&Scenario{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "description is required")
}

func TestHarness_DebugLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := New(WithLogger(logger), WithDebug(true))

	scenario, err := ParseScenario([]byte(validScenario))
	require.NoError(t, err)

	result, err := h.Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass)

	out := buf.String()
	assert.Contains(t, out, "stream=basic")
	assert.Contains(t, out, "event committed")
	assert.Contains(t, out, "scenario step completed")
}
