package harness

// TraceEvent is the record of one executed step.
type TraceEvent struct {
	Step    int    `json:"step"`
	Op      string `json:"op"`
	Args    string `json:"args,omitempty"`
	Outcome string `json:"outcome"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Alignment is the id of the session's alignment at the end.
	Alignment string `json:"alignment"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Edges are the final session edges, sorted.
	Edges []string `json:"edges"`

	// Aligned are the final aligned source terms, sorted.
	Aligned []string `json:"aligned"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Edges:   []string{},
		Aligned: []string{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event for the next step.
func (r *Result) AddTrace(op, args, outcome string) TraceEvent {
	ev := TraceEvent{Step: len(r.Trace) + 1, Op: op, Args: args, Outcome: outcome}
	r.Trace = append(r.Trace, ev)
	return ev
}
