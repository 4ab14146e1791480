package watcher

import (
	"fmt"
)

// ETLResult is the outcome a work function reports for one tracked
// execution: a completion flag plus optional row-level metrics. Callers with
// richer result types embed it and hand the embedded value to the tracker.
type ETLResult struct {
	// CompletedSuccessfully is the flag forwarded on the end call.
	CompletedSuccessfully bool `json:"completed_successfully"`

	// Row-level metrics; nil means "not measured" and is omitted from the
	// end-call payload, distinct from an explicit zero.
	Inserts     *int64 `json:"inserts,omitempty"`
	Updates     *int64 `json:"updates,omitempty"`
	SoftDeletes *int64 `json:"soft_deletes,omitempty"`
	TotalRows   *int64 `json:"total_rows,omitempty"`

	// ExecutionMetadata is opaque caller-supplied metadata forwarded as-is.
	ExecutionMetadata map[string]any `json:"execution_metadata,omitempty"`
}

// Validate checks that all reported counters are non-negative.
func (r *ETLResult) Validate() error {
	counters := []struct {
		name  string
		value *int64
	}{
		{"inserts", r.Inserts},
		{"updates", r.Updates},
		{"soft_deletes", r.SoftDeletes},
		{"total_rows", r.TotalRows},
	}
	for _, c := range counters {
		if c.value != nil && *c.value < 0 {
			return &ResultError{Message: fmt.Sprintf("%s must be non-negative, got %d", c.name, *c.value)}
		}
	}
	return nil
}

// Int64 returns a pointer to v, for populating the optional counters inline.
func Int64(v int64) *int64 {
	return &v
}

// ExecutionContext carries the identifiers of a started execution into the
// work function. It is a value: the work function cannot mutate the
// tracker's view of the execution.
type ExecutionContext struct {
	// ExecutionID is the ID the tracking service assigned on the start call.
	ExecutionID int64

	// PipelineID is the pipeline being executed.
	PipelineID int64

	// Watermark is the position this run starts from; NextWatermark is the
	// position it will advance to. Both are opaque to this package.
	Watermark     string
	NextWatermark string
}

// ExecutionResult is the public outcome of one tracked execution.
type ExecutionResult struct {
	ExecutionID int64
	Results     *ETLResult
}

// ResultError reports that a work function produced an unusable result (nil,
// or carrying invalid metrics). It is distinct from API and network failures
// so callers can tell a broken work function from a broken service.
type ResultError struct {
	Message string
}

// Error implements the error interface.
func (e *ResultError) Error() string {
	return "invalid execution result: " + e.Message
}
