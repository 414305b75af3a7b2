// Package fleet defines the snapshot model for a managed compute-cluster
// fleet and the collaborator interfaces used to read and mutate it.
//
// Snapshots are point-in-time reads of eventually-consistent provider
// metadata. A snapshot is immutable once fetched and owned by a single
// reap pass; nothing here is persisted.
package fleet

import (
	"context"
	"time"
)

// TimestampLayout is the fixed-width ISO-8601 UTC form used for every
// timestamp in a snapshot. Because all timestamps share this exact
// representation, lexicographic order on the raw strings equals
// chronological order, which pkg/idle relies on.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Timestamp is an optional ISO-8601 UTC instant. The empty string means
// the field was absent from the provider's response.
type Timestamp string

// Present reports whether the timestamp was set by the provider.
func (t Timestamp) Present() bool {
	return t != ""
}

// Time parses the timestamp. Calling Time on an absent timestamp is an
// error.
func (t Timestamp) Time() (time.Time, error) {
	return time.Parse(TimestampLayout, string(t))
}

// NewTimestamp renders an instant in the fixed snapshot form.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC().Format(TimestampLayout))
}

// StepState is the provider-reported lifecycle state of a step.
type StepState string

// Step states as reported by the provider. The set is open-ended; the
// classifier only gives special meaning to PENDING and CANCELLED.
const (
	StepStatePending     StepState = "PENDING"
	StepStateRunning     StepState = "RUNNING"
	StepStateCompleted   StepState = "COMPLETED"
	StepStateCancelled   StepState = "CANCELLED"
	StepStateFailed      StepState = "FAILED"
	StepStateInterrupted StepState = "INTERRUPTED"
)

// StepSnapshot is one unit of work submitted to a cluster, as seen at
// snapshot time. Owned by its parent ClusterSnapshot.
type StepSnapshot struct {
	ID      string
	Name    string
	State   StepState
	Created Timestamp
	Started Timestamp
	Ended   Timestamp

	// Args are the step's argument tokens, in submission order. Used to
	// detect whether the step is a streaming-style workload.
	Args []string
}

// BootstrapAction is one entry of a cluster's recorded bootstrap
// configuration. The full ordered set is the input to pool identity
// hashing.
type BootstrapAction struct {
	Name       string
	ScriptPath string
	Args       []string
}

// ClusterSnapshot is a point-in-time read of one cluster (job flow),
// including its nested steps and bootstrap configuration.
//
// Created is mandatory for well-formed provider data; Started, Ready and
// Ended are optional depending on how far the cluster has progressed.
type ClusterSnapshot struct {
	ID      string
	Name    string
	Created Timestamp
	Started Timestamp
	Ready   Timestamp
	Ended   Timestamp

	// Steps are in creation order.
	Steps []StepSnapshot

	BootstrapActions []BootstrapAction

	Tags map[string]string
}

// HasPendingSteps reports whether any step is in the PENDING state.
func (c *ClusterSnapshot) HasPendingSteps() bool {
	for _, s := range c.Steps {
		if s.State == StepStatePending {
			return true
		}
	}
	return false
}

// Describer lists every cluster known to the provider, including
// historical ones, with nested steps and bootstrap actions.
//
// Implementations must not filter server-side by cluster state: the
// reaper classifies clusters itself so it keeps working if the provider
// grows new states.
type Describer interface {
	DescribeClusters(ctx context.Context) ([]ClusterSnapshot, error)
}

// Terminator terminates a cluster by id. Fire-and-forget; callers only
// consume success or failure.
type Terminator interface {
	TerminateCluster(ctx context.Context, clusterID string) error
}
