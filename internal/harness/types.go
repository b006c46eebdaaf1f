package harness

// Trace entry kinds.
const (
	KindEvent = "event"
	KindEmit  = "emit"
	KindError = "error"
	KindTrans = "trans"
	KindClose = "close"
	KindDo    = "do"
)

// TraceEntry is one observable step of a scenario run, in the order it
// happened. Emissions and errors caused by a step are recorded before the
// step's own entry.
type TraceEntry struct {
	Step      int            `json:"step"`
	Kind      string         `json:"kind"`
	Op        string         `json:"op,omitempty"`
	Token     string         `json:"token,omitempty"`
	Action    string         `json:"action,omitempty"`
	ID        string         `json:"id,omitempty"`
	Seq       int64          `json:"seq,omitempty"`
	Value     map[string]any `json:"value,omitempty"`
	Stages    []string       `json:"stages,omitempty"`
	Committed bool           `json:"committed,omitempty"`
	Code      string         `json:"code,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists events, emissions, errors and transaction steps in order.
	Trace []TraceEntry `json:"trace"`

	// Errors contains failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`

	// Final is the record value after the last step.
	Final map[string]any `json:"final"`

	// Emissions lists every value delivered to subscribers, starting with
	// the value delivered on subscription.
	Emissions []map[string]any `json:"emissions"`

	// Codes lists the codes of errors delivered on the error channel.
	Codes []string `json:"codes,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEntry{},
		Errors:    []string{},
		Emissions: []map[string]any{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(e TraceEntry) {
	r.Trace = append(r.Trace, e)
}
