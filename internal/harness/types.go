package harness

// TraceEvent records one flow step and what it produced.
type TraceEvent struct {
	Seq     int               `json:"seq"`
	Action  string            `json:"action"`
	Args    map[string]any    `json:"args,omitempty"`
	Outcome string            `json:"outcome"`
	Result  map[string]string `json:"result,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists every failed expectation. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event, numbering it from 1.
func (r *Result) AddTrace(action string, args map[string]any, outcome string, result map[string]string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     len(r.Trace) + 1,
		Action:  action,
		Args:    args,
		Outcome: outcome,
		Result:  result,
	})
}

// Count returns how many trace events match action and outcome. An empty
// action matches every step.
func (r *Result) Count(action, outcome string) int {
	n := 0
	for _, ev := range r.Trace {
		if (action == "" || ev.Action == action) && ev.Outcome == outcome {
			n++
		}
	}
	return n
}
