package harness

import (
	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
)

// TraceStep is one applied mutation.
type TraceStep struct {
	Seq      int64             `json:"seq"`
	Mutation string            `json:"mutation"`
	Outcome  reconcile.Outcome `json:"outcome"`
	Error    string            `json:"error,omitempty"`
}

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists every mutation in the order it was applied.
	Trace []TraceStep `json:"trace"`

	// Errors contains one message per failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`

	// Final is the engine's projection after the last step.
	Final reconcile.View `json:"final"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceStep{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
