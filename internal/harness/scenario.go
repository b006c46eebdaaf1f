package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario drives one record stream through a list of steps and asserts on
// the resulting trace, emissions and final value.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Initial is the record the stream starts with.
	Initial map[string]any `yaml:"initial"`

	// NoNewKeys rejects "set" steps that introduce keys absent from the
	// current record.
	NoNewKeys bool `yaml:"no_new_keys,omitempty"`

	// Guards validate field kinds at the VALIDATE stage of set and next.
	Guards []Guard `yaml:"guards,omitempty"`

	// Steps run in order against the stream.
	Steps []Step `yaml:"steps"`

	// Assertions validate the run once every step has executed.
	Assertions []Assertion `yaml:"assertions"`
}

// Guard rejects set/next payloads whose Field is not of Kind.
type Guard struct {
	Field string `yaml:"field"`
	Kind  string `yaml:"kind"`
}

// Guard kinds.
const (
	KindString = "string"
	KindInt    = "int"
	KindFloat  = "float"
	KindBool   = "bool"
	KindList   = "list"
	KindObject = "object"
)

var guardKinds = []string{KindString, KindInt, KindFloat, KindBool, KindList, KindObject}

// Step is one operation against the stream.
type Step struct {
	// Op is one of set, next, delete, trans, close, do.
	Op string `yaml:"op"`

	// Values is the payload for set and next.
	Values map[string]any `yaml:"values,omitempty"`

	// Keys lists the keys removed by delete.
	Keys []string `yaml:"keys,omitempty"`

	// Token labels the transaction opened by trans and closed by close.
	Token string `yaml:"token,omitempty"`

	// Action and Args name the action-table entry called by do.
	Action string `yaml:"action,omitempty"`
	Args   []any  `yaml:"args,omitempty"`

	// Expect checks the outcome of set, next, delete and do.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect is the expected outcome of a step.
type StepExpect struct {
	// Committed, if set, must equal whether the event committed.
	Committed *bool `yaml:"committed,omitempty"`

	// Error is the expected error code; empty means the step must succeed.
	Error string `yaml:"error,omitempty"`
}

// Step ops.
const (
	OpSet    = "set"
	OpNext   = "next"
	OpDelete = "delete"
	OpTrans  = "trans"
	OpClose  = "close"
	OpDo     = "do"
)

// Assertion validates the run.
type Assertion struct {
	// Type is one of final_value, emission_count, last_emission,
	// error_count, error_code, trace_order.
	Type string `yaml:"type"`

	// Expect holds expected fields (final_value, last_emission).
	// Subset match: only listed fields are compared.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent lists keys that must not be present (final_value).
	Absent []string `yaml:"absent,omitempty"`

	// Count is the expected number (emission_count, error_count).
	Count int `yaml:"count,omitempty"`

	// Code is an error code that must have been emitted (error_code).
	Code string `yaml:"code,omitempty"`

	// Ops is the expected order of event ops in the trace (trace_order).
	Ops []string `yaml:"ops,omitempty"`
}

// Assertion types.
const (
	AssertFinalValue    = "final_value"
	AssertEmissionCount = "emission_count"
	AssertLastEmission  = "last_emission"
	AssertErrorCount    = "error_count"
	AssertErrorCode     = "error_code"
	AssertTraceOrder    = "trace_order"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, g := range s.Guards {
		if g.Field == "" {
			return fmt.Errorf("guards[%d]: field is required", i)
		}
		if !slices.Contains(guardKinds, g.Kind) {
			return fmt.Errorf("guards[%d]: unknown kind %q (want one of %v)", i, g.Kind, guardKinds)
		}
	}

	open := map[string]bool{}
	for i, step := range s.Steps {
		if err := validateStep(i, step, open); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateStep validates a single step. open tracks transaction labels so
// close can only name a transaction opened earlier.
func validateStep(index int, step Step, open map[string]bool) error {
	switch step.Op {
	case OpSet, OpNext:
		if len(step.Values) == 0 {
			return fmt.Errorf("steps[%d]: values are required for %s", index, step.Op)
		}
	case OpDelete:
		if len(step.Keys) == 0 {
			return fmt.Errorf("steps[%d]: keys are required for delete", index)
		}
	case OpTrans:
		if step.Token == "" {
			return fmt.Errorf("steps[%d]: token is required for trans", index)
		}
		if open[step.Token] {
			return fmt.Errorf("steps[%d]: transaction %q is already open", index, step.Token)
		}
		open[step.Token] = true
	case OpClose:
		if !open[step.Token] {
			return fmt.Errorf("steps[%d]: close names unopened transaction %q", index, step.Token)
		}
		delete(open, step.Token)
	case OpDo:
		if step.Action == "" {
			return fmt.Errorf("steps[%d]: action is required for do", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}

	if step.Expect != nil && (step.Op == OpTrans || step.Op == OpClose) {
		return fmt.Errorf("steps[%d]: expect is not supported for %s", index, step.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertFinalValue:
		if len(a.Expect) == 0 && len(a.Absent) == 0 {
			return fmt.Errorf("assertions[%d]: expect or absent is required for final_value", index)
		}
	case AssertLastEmission:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for last_emission", index)
		}
	case AssertEmissionCount, AssertErrorCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertErrorCode:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error_code", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
