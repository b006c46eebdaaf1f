package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/lookingglass/internal/stream"
	"github.com/roach88/lookingglass/internal/testutil"
)

// Harness runs scenarios against a record stream.
//
// Each run gets a fresh stream, a fresh logical clock and a sequential token
// generator, so the same scenario always produces the same trace.
type Harness struct {
	logger *slog.Logger
	debug  bool
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger handed to the stream under test.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// WithDebug turns on the stream's debug logging.
func WithDebug(debug bool) Option {
	return func(h *Harness) {
		h.debug = debug
	}
}

// New creates a harness. Logs are discarded unless WithLogger is given.
func New(opts ...Option) *Harness {
	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(scenario)
}

// run holds the state of one scenario execution.
type run struct {
	obj    *stream.ObjectStream
	result *Result
	txs    map[string]*stream.Transaction
	step   int
}

// Run executes scenario and returns the result.
//
// Execution flow:
//  1. Create the record stream from Initial and install guards
//  2. Subscribe, recording emissions and errors into the trace
//  3. Execute steps in order, checking expect clauses
//  4. Evaluate assertions against the trace and final value
//
// Returns an error only if the scenario itself is invalid; failed
// expectations are reported in Result.Errors.
func (h *Harness) Run(scenario *Scenario) (*Result, error) {
	if scenario == nil {
		return nil, errors.New("scenario is nil")
	}
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	obj := stream.NewObject(scenario.Initial,
		stream.WithName[stream.Object](scenario.Name),
		stream.WithLogger[stream.Object](h.logger),
		stream.WithDebug[stream.Object](h.debug),
		stream.WithTokenGenerator[stream.Object](testutil.NewSequentialTokens("tok")),
		stream.WithClock[stream.Object](stream.NewClock()),
		stream.WithNoNewKeys[stream.Object](scenario.NoNewKeys),
	)
	defer obj.Complete()

	for _, g := range scenario.Guards {
		installGuard(obj, g)
	}

	r := &run{
		obj:    obj,
		result: NewResult(),
		txs:    make(map[string]*stream.Transaction),
	}
	if _, err := obj.SubscribeFunc(r.onNext, r.onError, nil); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	for i, step := range scenario.Steps {
		r.step = i + 1
		r.execute(step)
		h.logger.Debug("scenario step completed",
			"scenario", scenario.Name,
			"step", r.step,
			"op", step.Op,
		)
	}

	r.result.Final = obj.Value()

	for _, msg := range EvaluateAssertions(r.result, scenario.Assertions) {
		r.result.AddError(msg)
	}
	return r.result, nil
}

func (r *run) onNext(v stream.Object) {
	r.result.Emissions = append(r.result.Emissions, v)
	r.result.addTrace(TraceEntry{Step: r.step, Kind: KindEmit, Value: v})
}

func (r *run) onError(err error) {
	code := errorCode(err)
	r.result.Codes = append(r.result.Codes, code)
	r.result.addTrace(TraceEntry{Step: r.step, Kind: KindError, Code: code})
}

// execute runs one step. Every callback the step triggers happens before it
// returns because scenario streams have no deferred handlers.
func (r *run) execute(step Step) {
	var ev *stream.Event[stream.Object]

	switch step.Op {
	case OpSet:
		ev = r.obj.SetMany(step.Values)
	case OpNext:
		ev = r.obj.Next(step.Values)
	case OpDelete:
		ev = r.obj.Delete(step.Keys...)
	case OpTrans:
		tx := r.obj.Trans()
		r.txs[step.Token] = tx
		r.result.addTrace(TraceEntry{Step: r.step, Kind: KindTrans, Token: step.Token, ID: tx.ID()})
		return
	case OpClose:
		tx := r.txs[step.Token]
		delete(r.txs, step.Token)
		tx.Complete()
		r.result.addTrace(TraceEntry{Step: r.step, Kind: KindClose, Token: step.Token, ID: tx.ID()})
		return
	case OpDo:
		code := errorCode(r.obj.Do(step.Action, step.Args...))
		r.result.addTrace(TraceEntry{Step: r.step, Kind: KindDo, Action: step.Action, Code: code})
		r.check(step, false, code)
		return
	}

	code := errorCode(ev.Err())
	r.result.addTrace(TraceEntry{
		Step:      r.step,
		Kind:      KindEvent,
		Op:        step.Op,
		ID:        ev.ID(),
		Seq:       ev.Seq(),
		Value:     ev.Value(),
		Stages:    stageNames(ev.CompletedStages()),
		Committed: ev.Committed(),
		Code:      code,
	})
	r.check(step, ev.Committed(), code)
}

// check compares a step outcome with its expect clause.
func (r *run) check(step Step, committed bool, code string) {
	if step.Expect == nil {
		return
	}
	if want := step.Expect.Committed; want != nil && step.Op != OpDo && *want != committed {
		r.result.AddError(fmt.Sprintf("steps[%d] %s: committed = %v, want %v", r.step-1, step.Op, committed, *want))
	}
	if code != step.Expect.Error {
		r.result.AddError(fmt.Sprintf("steps[%d] %s: error = %q, want %q", r.step-1, step.Op, code, step.Expect.Error))
	}
}

// installGuard rejects set and next payloads whose guarded field has the
// wrong kind. Fields missing from the payload are not checked.
func installGuard(obj *stream.ObjectStream, g Guard) {
	obj.On(stream.NewPredicate(stream.Filter[stream.Object]{
		Action: stream.Where(func(a stream.Action) bool {
			return a == stream.ActionSet || a == stream.ActionNext
		}),
		Stage: stream.Is(stream.StageValidate),
	}), func(ev *stream.Event[stream.Object], _ *stream.Stream[stream.Object]) {
		v, ok := ev.Value()[g.Field]
		if !ok {
			return
		}
		if !hasKind(v, g.Kind) {
			ev.Error(fmt.Errorf("field %q: want %s, got %T", g.Field, g.Kind, v))
		}
	})
}

func hasKind(v any, kind string) bool {
	switch v.(type) {
	case string:
		return kind == KindString
	case int, int64:
		return kind == KindInt || kind == KindFloat
	case float64:
		return kind == KindFloat
	case bool:
		return kind == KindBool
	case []any:
		return kind == KindList
	case map[string]any:
		return kind == KindObject
	default:
		return false
	}
}

// errorCode returns the StreamError code of err, "ERROR" for other errors
// and "" for nil.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var se *stream.StreamError
	if errors.As(err, &se) {
		return string(se.Code)
	}
	return "ERROR"
}

func stageNames(stages []stream.Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return out
}
