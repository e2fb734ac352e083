package harness

import (
	"github.com/roach88/docsync/internal/model"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every cycle expectation and assertion held.
	Pass bool `json:"pass"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Runs holds the run returned by each cycle, in order.
	Runs []model.CycleRun `json:"runs"`

	// Changelog is the full committed changelog after the last cycle.
	Changelog []model.ChangelogEntry `json:"changelog"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
