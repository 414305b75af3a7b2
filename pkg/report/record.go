// Package report provides JSONL output for reap runs.
//
// Each run emits one termination record per (would-)terminated cluster
// and a final summary record with per-phase counts. Records are typed
// envelopes; each line is a self-contained JSON object.
package report

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
const (
	// TypeTermination identifies termination decision records.
	TypeTermination = "flowreaper.termination.v1"

	// TypeSummary identifies final run summary records.
	TypeSummary = "flowreaper.summary.v1"

	// TypeError identifies error records.
	TypeError = "flowreaper.error.v1"
)

// Record is the envelope for all JSONL output.
type Record struct {
	// Type identifies the record type (e.g., "flowreaper.summary.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created.
	TS time.Time `json:"ts"`

	// RunID is the correlation ID for this reap run.
	RunID string `json:"run_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// TerminationRecord is the data payload for one termination decision.
type TerminationRecord struct {
	// ClusterID and Name identify the terminated cluster.
	ClusterID string `json:"cluster_id"`
	Name      string `json:"name"`

	// Pending is true if the cluster still had steps stuck in PENDING.
	Pending bool `json:"pending"`

	// DryRun is true when the decision was recorded without terminating.
	DryRun bool `json:"dry_run,omitempty"`

	// TimeIdle is how long the cluster had been idle, in nanoseconds,
	// with a human-readable duplicate.
	TimeIdle      time.Duration `json:"time_idle_ns"`
	TimeIdleHuman string        `json:"time_idle"`

	// TimeToHourBoundary is the distance to the next billing boundary.
	// Omitted when the cluster never started.
	TimeToHourBoundary      *time.Duration `json:"time_to_hour_boundary_ns,omitempty"`
	TimeToHourBoundaryHuman string         `json:"time_to_hour_boundary,omitempty"`

	// PoolHash and PoolName are set for pooled clusters.
	PoolHash string `json:"pool_hash,omitempty"`
	PoolName string `json:"pool_name,omitempty"`
}

// SummaryRecord is the data payload for the final run summary.
type SummaryRecord struct {
	// Per-phase counts across every inspected cluster.
	Done           int `json:"done"`
	Bootstrapping  int `json:"bootstrapping"`
	NonInspectable int `json:"non_inspectable"`
	Running        int `json:"running"`
	IdlePending    int `json:"idle_pending"`
	IdleFree       int `json:"idle_free"`

	// Inspected is the total number of clusters examined.
	Inspected int `json:"inspected"`

	// Terminated is the number of clusters terminated (or that would have
	// been, in dry-run).
	Terminated int `json:"terminated"`

	DryRun bool `json:"dry_run,omitempty"`

	// Duration is the total run time.
	Duration      time.Duration `json:"duration_ns"`
	DurationHuman string        `json:"duration"`
}

// ErrorRecord is the data payload for per-cluster errors that did not
// abort the run.
type ErrorRecord struct {
	ClusterID string `json:"cluster_id,omitempty"`
	Message   string `json:"message"`
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = errors.New("writer is closed")

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "report: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
