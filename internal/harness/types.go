package harness

import "github.com/roach88/captable/internal/model"

// TraceEvent records one flow step as applied by the session.
type TraceEvent struct {
	Seq        int64               `json:"seq"` // session revision; 0 when the step failed
	Op         string              `json:"op"`
	Args       map[string]any      `json:"args,omitempty"`
	Propagated []string            `json:"propagated,omitempty"`
	Codes      map[string][]string `json:"codes,omitempty"` // round index -> validation codes
	Degraded   bool                `json:"degraded,omitempty"`
	Failure    string              `json:"failure,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists the flow steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Document is the final document.
	Document model.Document `json:"-"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
