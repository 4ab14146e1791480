// Package watcher is a client for a pipeline-tracking service. It syncs
// pipeline declarations, reports start/end execution events with row-level
// metrics, and wraps work functions in a tracked execution protocol.
//
// Authentication is resolved from the environment (GCP, Azure, AWS) or from
// an explicit token or service-account file; transient API failures are
// retried with backoff. See Track for the execution protocol.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tombee/watcher-go/internal/log"
	"github.com/tombee/watcher-go/pkg/auth"
	"github.com/tombee/watcher-go/pkg/transport"
)

const userAgent = "watcher-go"

// Watcher is a client for the tracking API. It is safe for concurrent use.
type Watcher struct {
	client *transport.Client
	logger *slog.Logger

	// now stamps start_date and end_date; overridable in tests.
	now func() time.Time
}

type options struct {
	authInput    string
	authProvider *auth.Provider
	httpClient   *http.Client
	retry        *transport.RetryConfig
	timeout      time.Duration
	logger       *slog.Logger
	limiter      transport.RateLimiter
}

// Option configures a Watcher.
type Option func(*options)

// WithAuth sets the auth input: a bearer token, a path to a service-account
// JSON file, or empty for auto-detection (the default).
func WithAuth(authInput string) Option {
	return func(o *options) { o.authInput = authInput }
}

// WithAuthProvider injects a pre-built auth provider, bypassing resolution.
func WithAuthProvider(p *auth.Provider) Option {
	return func(o *options) { o.authProvider = p }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRetryConfig overrides the retry policy for tracking calls.
func WithRetryConfig(cfg *transport.RetryConfig) Option {
	return func(o *options) { o.retry = cfg }
}

// WithTimeout bounds each tracking call attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRateLimiter paces tracking calls, for callers fanning out many child
// executions.
func WithRateLimiter(l transport.RateLimiter) Option {
	return func(o *options) { o.limiter = l }
}

// New builds a Watcher for the tracking API at baseURL. Auth resolution
// happens here, once: with no WithAuth input the environment is probed for
// GCP, Azure, and AWS in that order, falling back to unauthenticated calls.
func New(baseURL string, opts ...Option) (*Watcher, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.New(log.FromEnv())
	}

	provider := o.authProvider
	if provider == nil {
		var err error
		provider, err = auth.NewProvider(context.Background(), o.authInput, auth.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
	}

	client, err := transport.NewClient(&transport.Config{
		BaseURL:    baseURL,
		Auth:       provider,
		Timeout:    o.timeout,
		Retry:      o.retry,
		UserAgent:  userAgent,
		HTTPClient: o.httpClient,
		Limiter:    o.limiter,
		Logger:     o.logger,
	})
	if err != nil {
		return nil, err
	}

	return &Watcher{
		client: client,
		logger: o.logger,
		now:    time.Now,
	}, nil
}

// SyncPipelineConfig registers the pipeline declaration with the tracking
// service and returns the server's view of it. When the server marks the
// pipeline active and asks for lineage, the declared address lineage is
// pushed in a follow-up call; inactive pipelines skip the lineage push and
// carry no watermark.
func (w *Watcher) SyncPipelineConfig(ctx context.Context, config *PipelineConfig) (*SyncedPipelineConfig, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	payload := struct {
		Pipeline         Pipeline `json:"pipeline"`
		DefaultWatermark string   `json:"default_watermark,omitempty"`
		NextWatermark    string   `json:"next_watermark,omitempty"`
	}{
		Pipeline:         config.Pipeline,
		DefaultWatermark: config.DefaultWatermark,
		NextWatermark:    config.NextWatermark,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sync payload: %w", err)
	}

	resp, err := w.client.Call(ctx, http.MethodPost, "/sync_pipeline", body, nil)
	if err != nil {
		return nil, err
	}

	synced := &SyncedPipelineConfig{}
	if err := resp.Decode(synced); err != nil {
		return nil, err
	}
	synced.DefaultWatermark = config.DefaultWatermark
	synced.NextWatermark = config.NextWatermark

	w.logger.Info("pipeline synced",
		log.PipelineIDKey, synced.PipelineID,
		"pipeline_name", config.Pipeline.Name,
		"active", synced.Active)

	if synced.Active && synced.LoadLineage && config.AddressLineage != nil {
		if err := w.syncAddressLineage(ctx, synced.PipelineID, config.AddressLineage); err != nil {
			return nil, err
		}
	}
	return synced, nil
}

func (w *Watcher) syncAddressLineage(ctx context.Context, pipelineID int64, lineage *AddressLineage) error {
	payload := struct {
		PipelineID      int64     `json:"pipeline_id"`
		SourceAddresses []Address `json:"source_addresses"`
		TargetAddresses []Address `json:"target_addresses"`
	}{
		PipelineID:      pipelineID,
		SourceAddresses: lineage.SourceAddresses,
		TargetAddresses: lineage.TargetAddresses,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode lineage payload: %w", err)
	}

	if _, err := w.client.Call(ctx, http.MethodPost, "/sync_address_lineage", body, nil); err != nil {
		return err
	}

	w.logger.Info("address lineage synced",
		log.PipelineIDKey, pipelineID,
		"sources", len(lineage.SourceAddresses),
		"targets", len(lineage.TargetAddresses))
	return nil
}

// StartExecutionRequest is the payload for StartExecution.
type StartExecutionRequest struct {
	PipelineID int64 `json:"pipeline_id"`

	// ParentID links this execution under a parent, forming a tree.
	ParentID *int64 `json:"parent_id,omitempty"`

	Watermark     string `json:"watermark,omitempty"`
	NextWatermark string `json:"next_watermark,omitempty"`

	// StartDate is stamped by the client when empty.
	StartDate string `json:"start_date"`
}

// StartExecution records the start of an execution and returns the ID the
// service assigned. Most callers use Track instead, which pairs the start
// with its end call.
func (w *Watcher) StartExecution(ctx context.Context, req StartExecutionRequest) (int64, error) {
	if req.PipelineID <= 0 {
		return 0, fmt.Errorf("pipeline ID must be positive, got %d", req.PipelineID)
	}
	if req.StartDate == "" {
		req.StartDate = w.now().UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("failed to encode start payload: %w", err)
	}

	resp, err := w.client.Call(ctx, http.MethodPost, "/start_pipeline_execution", body, nil)
	if err != nil {
		return 0, err
	}

	var out struct {
		ID int64 `json:"id"`
	}
	if err := resp.Decode(&out); err != nil {
		return 0, err
	}
	if out.ID == 0 {
		return 0, fmt.Errorf("start call returned no execution ID")
	}

	w.logger.Info("execution started",
		log.ExecutionIDKey, out.ID,
		log.PipelineIDKey, req.PipelineID)
	return out.ID, nil
}

// EndExecutionRequest is the payload for EndExecution.
type EndExecutionRequest struct {
	ExecutionID           int64 `json:"id"`
	CompletedSuccessfully bool  `json:"completed_successfully"`

	// EndDate is stamped by the client when empty.
	EndDate string `json:"end_date"`

	Inserts           *int64         `json:"inserts,omitempty"`
	Updates           *int64         `json:"updates,omitempty"`
	SoftDeletes       *int64         `json:"soft_deletes,omitempty"`
	TotalRows         *int64         `json:"total_rows,omitempty"`
	ExecutionMetadata map[string]any `json:"execution_metadata,omitempty"`
}

// EndExecution records the end of an execution with its outcome and metrics.
func (w *Watcher) EndExecution(ctx context.Context, req EndExecutionRequest) error {
	if req.ExecutionID <= 0 {
		return fmt.Errorf("execution ID must be positive, got %d", req.ExecutionID)
	}
	if req.EndDate == "" {
		req.EndDate = w.now().UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode end payload: %w", err)
	}

	if _, err := w.client.Call(ctx, http.MethodPost, "/end_pipeline_execution", body, nil); err != nil {
		return err
	}

	w.logger.Info("execution ended",
		log.ExecutionIDKey, req.ExecutionID,
		"completed_successfully", req.CompletedSuccessfully)
	return nil
}
