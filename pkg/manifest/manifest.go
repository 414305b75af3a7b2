// Package manifest defines the reap-job manifest: a YAML or JSON file
// describing the provider connection, termination policy, and lock
// settings for one scheduled reap job.
package manifest

import (
	"fmt"
	"strings"
)

// Manifest is a fully parsed reap-job definition.
type Manifest struct {
	// Connection configures the provider clients.
	Connection Connection `yaml:"connection" json:"connection"`

	// ScratchURI is the s3://bucket/prefix location advisory lock markers
	// live under. Empty disables locking.
	ScratchURI string `yaml:"scratch_uri" json:"scratch_uri"`

	// Policy is the termination criteria.
	Policy PolicySpec `yaml:"policy" json:"policy"`

	// Lock tunes the advisory lock windows.
	Lock LockSpec `yaml:"lock" json:"lock"`

	// Output configures run reporting.
	Output OutputSpec `yaml:"output" json:"output"`

	// DryRun records decisions without terminating.
	DryRun bool `yaml:"dry_run" json:"dry_run"`
}

// Connection holds provider client settings.
type Connection struct {
	Region   string `yaml:"region" json:"region"`
	Profile  string `yaml:"profile" json:"profile"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
}

// PolicySpec mirrors policy.Policy in file form. Nil means unset.
type PolicySpec struct {
	MaxHoursIdle    *float64 `yaml:"max_hours_idle" json:"max_hours_idle"`
	MinsToEndOfHour *float64 `yaml:"mins_to_end_of_hour" json:"mins_to_end_of_hour"`
	PooledOnly      bool     `yaml:"pooled_only" json:"pooled_only"`
	UnpooledOnly    bool     `yaml:"unpooled_only" json:"unpooled_only"`
	PoolName        string   `yaml:"pool_name" json:"pool_name"`
}

// LockSpec tunes the advisory lock.
type LockSpec struct {
	// SyncWaitSeconds is the propagation wait before the read-back check.
	SyncWaitSeconds float64 `yaml:"sync_wait_seconds" json:"sync_wait_seconds"`

	// MaxMinutesLocked is how long an existing marker is honored before
	// being treated as stale.
	MaxMinutesLocked float64 `yaml:"max_minutes_locked" json:"max_minutes_locked"`
}

// OutputSpec configures reporting destinations.
type OutputSpec struct {
	// Destination receives JSONL records: a file path, or "-" for stdout.
	// Empty disables structured output.
	Destination string `yaml:"destination" json:"destination"`

	// RunLog is a local sqlite database path recording run history.
	// Empty disables the run log.
	RunLog string `yaml:"run_log" json:"run_log"`
}

// Defaults for optional manifest fields.
const (
	DefaultSyncWaitSeconds  = 5.0
	DefaultMaxMinutesLocked = 1.0
)

// ApplyDefaults fills zero-valued optional fields.
func (m *Manifest) ApplyDefaults() {
	if m.Lock.SyncWaitSeconds <= 0 {
		m.Lock.SyncWaitSeconds = DefaultSyncWaitSeconds
	}
	if m.Lock.MaxMinutesLocked <= 0 {
		m.Lock.MaxMinutesLocked = DefaultMaxMinutesLocked
	}
}

// Validate checks field values. Note that pooled_only and unpooled_only
// are deliberately allowed together: the combination yields an empty
// candidate set rather than a parse error.
func (m *Manifest) Validate() error {
	if m.Policy.MaxHoursIdle != nil && *m.Policy.MaxHoursIdle < 0 {
		return fmt.Errorf("policy.max_hours_idle must be non-negative")
	}
	if m.Policy.MinsToEndOfHour != nil && *m.Policy.MinsToEndOfHour < 0 {
		return fmt.Errorf("policy.mins_to_end_of_hour must be non-negative")
	}
	if m.Lock.SyncWaitSeconds < 0 {
		return fmt.Errorf("lock.sync_wait_seconds must be non-negative")
	}
	if m.Lock.MaxMinutesLocked < 0 {
		return fmt.Errorf("lock.max_minutes_locked must be non-negative")
	}
	if m.ScratchURI != "" && !strings.HasPrefix(m.ScratchURI, "s3://") {
		return fmt.Errorf("scratch_uri must be an s3:// URI")
	}
	return nil
}
