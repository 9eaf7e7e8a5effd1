// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// JobMetrics is what a job body reports back to the scheduler.
type JobMetrics struct {
	RecordsProcessed int                `json:"records_processed" yaml:"records_processed"`
	Extra            map[string]float64 `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// RefreshJobResult is one execution record of a scheduled job. Results are
// append-only: the scheduler keeps a bounded in-memory history and writes
// every result to the durable audit table.
type RefreshJobResult struct {
	JobName          string             `json:"job_name" yaml:"job_name"`
	StartedAt        time.Time          `json:"started_at" yaml:"started_at"`
	FinishedAt       time.Time          `json:"finished_at" yaml:"finished_at"`
	Success          bool               `json:"success" yaml:"success"`
	RecordsProcessed int                `json:"records_processed" yaml:"records_processed"`
	ErrorCount       int                `json:"error_count" yaml:"error_count"`
	DurationMS       int64              `json:"duration_ms" yaml:"duration_ms"`
	MemoryDeltaKB    int64              `json:"memory_delta_kb" yaml:"memory_delta_kb"`
	Errors           []string           `json:"errors,omitempty" yaml:"errors,omitempty"`
	Metrics          map[string]float64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// Duration returns the wall-clock runtime of the execution.
func (r RefreshJobResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
