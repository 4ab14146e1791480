package watcher

import (
	"fmt"
)

// DatePart is the unit for freshness and timeliness expectations.
type DatePart string

const (
	DatePartYear   DatePart = "year"
	DatePartMonth  DatePart = "month"
	DatePartWeek   DatePart = "week"
	DatePartDay    DatePart = "day"
	DatePartHour   DatePart = "hour"
	DatePartMinute DatePart = "minute"
)

// Valid reports whether the date part is one of the recognized units.
func (d DatePart) Valid() bool {
	switch d {
	case DatePartYear, DatePartMonth, DatePartWeek, DatePartDay, DatePartHour, DatePartMinute:
		return true
	}
	return false
}

// Pipeline describes a pipeline registered with the tracking service.
type Pipeline struct {
	// Name uniquely identifies the pipeline. Required.
	Name string `json:"name" yaml:"name"`

	// PipelineTypeName classifies the pipeline (e.g. "extraction", "load").
	// Required.
	PipelineTypeName string `json:"pipeline_type_name" yaml:"pipeline_type_name"`

	// DefaultWatermark seeds the watermark for a pipeline that has never run.
	DefaultWatermark string `json:"default_watermark,omitempty" yaml:"default_watermark,omitempty"`

	// NextWatermark is the position the current run will advance to.
	NextWatermark string `json:"next_watermark,omitempty" yaml:"next_watermark,omitempty"`

	// PipelineMetadata is opaque caller-supplied metadata forwarded as-is.
	PipelineMetadata map[string]any `json:"pipeline_metadata,omitempty" yaml:"pipeline_metadata,omitempty"`

	// FreshnessNumber and FreshnessDatePart express how recent the data is
	// expected to be, e.g. 2 + "day".
	FreshnessNumber   int      `json:"freshness_number,omitempty" yaml:"freshness_number,omitempty"`
	FreshnessDatePart DatePart `json:"freshness_datepart,omitempty" yaml:"freshness_datepart,omitempty"`

	// TimelinessNumber and TimelinessDatePart express how long a run is
	// expected to take.
	TimelinessNumber   int      `json:"timeliness_number,omitempty" yaml:"timeliness_number,omitempty"`
	TimelinessDatePart DatePart `json:"timeliness_datepart,omitempty" yaml:"timeliness_datepart,omitempty"`
}

// Validate checks required fields and unit consistency.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if p.PipelineTypeName == "" {
		return fmt.Errorf("pipeline type name is required for pipeline %q", p.Name)
	}
	if p.FreshnessDatePart != "" && !p.FreshnessDatePart.Valid() {
		return fmt.Errorf("invalid freshness datepart %q for pipeline %q", p.FreshnessDatePart, p.Name)
	}
	if p.TimelinessDatePart != "" && !p.TimelinessDatePart.Valid() {
		return fmt.Errorf("invalid timeliness datepart %q for pipeline %q", p.TimelinessDatePart, p.Name)
	}
	if p.FreshnessNumber < 0 {
		return fmt.Errorf("freshness number must be non-negative for pipeline %q", p.Name)
	}
	if p.TimelinessNumber < 0 {
		return fmt.Errorf("timeliness number must be non-negative for pipeline %q", p.Name)
	}
	return nil
}

// PipelineConfig is the caller-side declaration synced to the tracking
// service before executions run.
type PipelineConfig struct {
	Pipeline Pipeline `json:"pipeline" yaml:"pipeline"`

	// AddressLineage declares the source and target addresses this pipeline
	// moves data between; optional.
	AddressLineage *AddressLineage `json:"address_lineage,omitempty" yaml:"address_lineage,omitempty"`

	// DefaultWatermark and NextWatermark override the pipeline-level values
	// for this sync.
	DefaultWatermark string `json:"default_watermark,omitempty" yaml:"default_watermark,omitempty"`
	NextWatermark    string `json:"next_watermark,omitempty" yaml:"next_watermark,omitempty"`
}

// Validate checks the pipeline and, when present, the lineage.
func (c *PipelineConfig) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if c.AddressLineage != nil {
		if err := c.AddressLineage.Validate(); err != nil {
			return fmt.Errorf("pipeline %q: %w", c.Pipeline.Name, err)
		}
	}
	return nil
}

// SyncedPipelineConfig is the server's view of a pipeline after a sync call:
// the assigned ID, whether executions should run, whether lineage should be
// pushed, and the watermark the next run starts from.
type SyncedPipelineConfig struct {
	PipelineID int64 `json:"id"`

	// Active gates execution tracking; an inactive pipeline runs nothing.
	Active bool `json:"active"`

	// LoadLineage reports whether the service wants the address lineage
	// pushed on this sync.
	LoadLineage bool `json:"load_lineage"`

	// Watermark is the server-held position for the next run; empty for
	// inactive pipelines.
	Watermark string `json:"watermark,omitempty"`

	// DefaultWatermark and NextWatermark echo the synced declaration.
	DefaultWatermark string `json:"default_watermark,omitempty"`
	NextWatermark    string `json:"next_watermark,omitempty"`
}
