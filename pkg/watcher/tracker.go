package watcher

import (
	"context"

	"github.com/tombee/watcher-go/internal/log"
)

// Func is a tracked work function. It receives the execution context of the
// started execution and returns the outcome to report on the end call.
type Func func(ctx context.Context, ec ExecutionContext) (*ETLResult, error)

// Simple adapts a work function that has no use for the execution context.
// The two explicit variants replace signature inspection: callers state
// up front whether their function is context-aware.
func Simple(fn func(ctx context.Context) (*ETLResult, error)) Func {
	return func(ctx context.Context, _ ExecutionContext) (*ETLResult, error) {
		return fn(ctx)
	}
}

// TrackOptions configures one tracked execution.
type TrackOptions struct {
	// PipelineID is the synced pipeline the execution belongs to. Required.
	PipelineID int64

	// Active gates the whole protocol: when false, Track runs nothing and
	// calls nothing.
	Active bool

	// Watermark and NextWatermark are forwarded on the start call and
	// injected into the work function's ExecutionContext.
	Watermark     string
	NextWatermark string

	// ParentExecutionID links this execution under a parent, forming a tree.
	ParentExecutionID *int64
}

// Track runs fn as one tracked execution: a start call, the work function,
// and an end call reporting the outcome.
//
// The contract on failures:
//
//   - opts.Active false: fn is never invoked, no call is made, and Track
//     returns (nil, nil).
//   - fn returns an error: the end call reports completed_successfully=false
//     best-effort, and the original error is returned unchanged, never
//     wrapped and never masked by an end-call failure.
//   - fn returns a nil result with a nil error: the end call reports failure
//     the same way, then Track returns a *ResultError. A work function that
//     reports nothing has not completed its contract, and the service must
//     not be left with a dangling started execution.
//   - fn returns a valid result: the end call carries its flag and metrics,
//     and Track returns the ExecutionResult. An end-call failure here is
//     returned: the caller must know the outcome was not recorded.
func (w *Watcher) Track(ctx context.Context, opts TrackOptions, fn Func) (*ExecutionResult, error) {
	if !opts.Active {
		w.logger.Debug("pipeline inactive, skipping execution", log.PipelineIDKey, opts.PipelineID)
		return nil, nil
	}

	executionID, err := w.StartExecution(ctx, StartExecutionRequest{
		PipelineID:    opts.PipelineID,
		ParentID:      opts.ParentExecutionID,
		Watermark:     opts.Watermark,
		NextWatermark: opts.NextWatermark,
	})
	if err != nil {
		return nil, err
	}

	ec := ExecutionContext{
		ExecutionID:   executionID,
		PipelineID:    opts.PipelineID,
		Watermark:     opts.Watermark,
		NextWatermark: opts.NextWatermark,
	}

	result, fnErr := fn(ctx, ec)
	if fnErr != nil {
		w.endFailed(ctx, executionID)
		return nil, fnErr
	}

	if result == nil {
		w.endFailed(ctx, executionID)
		return nil, &ResultError{Message: "work function must return a non-nil ETLResult"}
	}
	if err := result.Validate(); err != nil {
		w.endFailed(ctx, executionID)
		return nil, err
	}

	if err := w.EndExecution(ctx, EndExecutionRequest{
		ExecutionID:           executionID,
		CompletedSuccessfully: result.CompletedSuccessfully,
		Inserts:               result.Inserts,
		Updates:               result.Updates,
		SoftDeletes:           result.SoftDeletes,
		TotalRows:             result.TotalRows,
		ExecutionMetadata:     result.ExecutionMetadata,
	}); err != nil {
		return nil, err
	}

	return &ExecutionResult{ExecutionID: executionID, Results: result}, nil
}

// TrackChild runs fn as a child execution linked under parentExecutionID.
func (w *Watcher) TrackChild(ctx context.Context, parentExecutionID int64, opts TrackOptions, fn Func) (*ExecutionResult, error) {
	opts.ParentExecutionID = &parentExecutionID
	return w.Track(ctx, opts, fn)
}

// endFailed reports a failed execution best-effort: its own failure is
// logged, never returned, so the caller always sees the original error.
func (w *Watcher) endFailed(ctx context.Context, executionID int64) {
	if err := w.EndExecution(ctx, EndExecutionRequest{
		ExecutionID:           executionID,
		CompletedSuccessfully: false,
	}); err != nil {
		w.logger.Warn("failed to report execution failure",
			log.ExecutionIDKey, executionID,
			"error", err.Error())
	}
}
