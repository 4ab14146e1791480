package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPipelineInactive is returned when an execution is requested for a
// pipeline the tracking service has marked inactive.
var ErrPipelineInactive = errors.New("pipeline is inactive")

// OrchestrationContext describes the workflow-runner invocation a pipeline
// execution happens inside. All fields are optional; whatever is present is
// forwarded to the tracking service as execution metadata.
type OrchestrationContext struct {
	// Orchestrator names the runner, e.g. "dagster" or "airflow".
	Orchestrator string

	RunID         string
	ExecutionDate string
	PartitionKey  string
	DAGID         string
	TaskID        string

	// Extra carries runner fields not covered above.
	Extra map[string]any
}

// Metadata flattens the context into the execution-metadata mapping sent on
// end calls. Empty fields are omitted.
func (o *OrchestrationContext) Metadata() map[string]any {
	md := make(map[string]any)
	if o.Orchestrator != "" {
		md["orchestrator"] = o.Orchestrator
	}
	if o.RunID != "" {
		md["run_id"] = o.RunID
	}
	if o.ExecutionDate != "" {
		md["execution_date"] = o.ExecutionDate
	}
	if o.PartitionKey != "" {
		md["partition_key"] = o.PartitionKey
	}
	if o.DAGID != "" {
		md["dag_id"] = o.DAGID
	}
	if o.TaskID != "" {
		md["task_id"] = o.TaskID
	}
	for k, v := range o.Extra {
		md[k] = v
	}
	return md
}

// dagsterContext is the shape a Dagster-style run context exposes.
type dagsterContext interface {
	RunID() string
	PartitionKey() string
}

// airflowContext is the shape an Airflow-style task context exposes.
type airflowContext interface {
	DagID() string
	TaskID() string
}

// DetectOrchestrationContext recognizes the runner context raw was produced
// by. It accepts Dagster-shaped values (RunID/PartitionKey methods),
// Airflow-shaped values (DagID/TaskID methods), and plain string-keyed maps;
// anything else yields nil, meaning "no orchestration metadata".
func DetectOrchestrationContext(raw any) *OrchestrationContext {
	switch v := raw.(type) {
	case nil:
		return nil
	case *OrchestrationContext:
		return v
	case OrchestrationContext:
		return &v
	case dagsterContext:
		return &OrchestrationContext{
			Orchestrator: "dagster",
			RunID:        v.RunID(),
			PartitionKey: v.PartitionKey(),
		}
	case airflowContext:
		return &OrchestrationContext{
			Orchestrator: "airflow",
			DAGID:        v.DagID(),
			TaskID:       v.TaskID(),
		}
	case map[string]any:
		return contextFromMap(v)
	default:
		return nil
	}
}

func contextFromMap(m map[string]any) *OrchestrationContext {
	oc := &OrchestrationContext{Extra: make(map[string]any)}
	str := func(key string) string {
		s, _ := m[key].(string)
		return s
	}
	for k, v := range m {
		switch k {
		case "orchestrator":
			oc.Orchestrator = str(k)
		case "run_id":
			oc.RunID = str(k)
		case "execution_date":
			oc.ExecutionDate = str(k)
		case "partition_key":
			oc.PartitionKey = str(k)
		case "dag_id":
			oc.DAGID = str(k)
		case "task_id":
			oc.TaskID = str(k)
		default:
			oc.Extra[k] = v
		}
	}
	if oc.Orchestrator == "" {
		if oc.DAGID != "" {
			oc.Orchestrator = "airflow"
		} else if oc.RunID != "" {
			oc.Orchestrator = "dagster"
		}
	}
	return oc
}

// OrchestratedETL binds a pipeline declaration to a Watcher for repeated
// runs under a workflow runner. The first execution syncs the declaration;
// the synced config is cached for the lifetime of the value. Safe for
// concurrent use.
type OrchestratedETL struct {
	watcher *Watcher
	config  *PipelineConfig

	mu     sync.Mutex
	synced *SyncedPipelineConfig
}

// NewOrchestratedETL binds config to w. The config is validated up front so
// a malformed declaration fails at build time, not on the first run.
func NewOrchestratedETL(w *Watcher, config *PipelineConfig) (*OrchestratedETL, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &OrchestratedETL{watcher: w, config: config}, nil
}

// syncedConfig returns the cached synced config, syncing on first use.
func (e *OrchestratedETL) syncedConfig(ctx context.Context) (*SyncedPipelineConfig, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.synced != nil {
		return e.synced, nil
	}
	synced, err := e.watcher.SyncPipelineConfig(ctx, e.config)
	if err != nil {
		return nil, err
	}
	e.synced = synced
	return synced, nil
}

// Execute runs fn as one tracked execution of the bound pipeline, merging
// the orchestration context (if any) into the result's execution metadata.
// An inactive pipeline returns (nil, nil) without invoking fn.
func (e *OrchestratedETL) Execute(ctx context.Context, orchestrationCtx any, fn Func) (*ExecutionResult, error) {
	synced, err := e.syncedConfig(ctx)
	if err != nil {
		return nil, err
	}

	wrapped := fn
	if oc := DetectOrchestrationContext(orchestrationCtx); oc != nil {
		wrapped = func(ctx context.Context, ec ExecutionContext) (*ETLResult, error) {
			result, err := fn(ctx, ec)
			if err != nil || result == nil {
				return result, err
			}
			merged := oc.Metadata()
			for k, v := range result.ExecutionMetadata {
				merged[k] = v
			}
			result.ExecutionMetadata = merged
			return result, nil
		}
	}

	return e.watcher.Track(ctx, TrackOptions{
		PipelineID:    synced.PipelineID,
		Active:        synced.Active,
		Watermark:     synced.Watermark,
		NextWatermark: synced.NextWatermark,
	}, wrapped)
}

// StartParentExecution opens an execution to hang child executions off:
// callers pass the returned ID to TrackChild and close it with
// EndParentExecution. Returns ErrPipelineInactive when the service has the
// pipeline switched off.
func (e *OrchestratedETL) StartParentExecution(ctx context.Context) (int64, error) {
	synced, err := e.syncedConfig(ctx)
	if err != nil {
		return 0, err
	}
	if !synced.Active {
		return 0, fmt.Errorf("%w: pipeline %d", ErrPipelineInactive, synced.PipelineID)
	}

	return e.watcher.StartExecution(ctx, StartExecutionRequest{
		PipelineID:    synced.PipelineID,
		Watermark:     synced.Watermark,
		NextWatermark: synced.NextWatermark,
	})
}

// EndParentExecution closes a parent execution opened with
// StartParentExecution.
func (e *OrchestratedETL) EndParentExecution(ctx context.Context, executionID int64, completedSuccessfully bool) error {
	return e.watcher.EndExecution(ctx, EndExecutionRequest{
		ExecutionID:           executionID,
		CompletedSuccessfully: completedSuccessfully,
	})
}
