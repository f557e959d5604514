package harness

import "github.com/roach88/txiso/internal/experiment"

// Trace steps, in the order one trial performs them.
const (
	StepAllocate = "allocate"
	StepSeed     = "seed"
	StepRun      = "run"
	StepTransfer = "transfer"
	StepRead     = "read"
	StepVerify   = "verify"
)

// TraceEvent is one step of one trial.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Trial  int    `json:"trial"`
	Step   string `json:"step"`
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace lists the steps of every trial in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Summary is what the trials observed.
	Summary experiment.TrialSummary `json:"summary"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends one trace event.
func (r *Result) AddTrace(seq int64, trial int, step, detail string) {
	r.Trace = append(r.Trace, TraceEvent{Seq: seq, Trial: trial, Step: step, Detail: detail})
}
