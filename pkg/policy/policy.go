// Package policy decides which idle-eligible clusters become termination
// candidates.
//
// A candidate survives only if it passes every configured criterion
// (logical AND, short-circuiting on the first failure). Filtering is
// stable: output order is input traversal order.
package policy

import (
	"time"

	"github.com/3leaps/flowreaper/pkg/fleet"
	"github.com/3leaps/flowreaper/pkg/idle"
)

// DefaultMaxHoursIdle applies only when neither MaxHoursIdle nor
// MinsToEndOfHour is configured, preserving the tool's legacy default of
// reaping anything idle for over an hour.
const DefaultMaxHoursIdle = 1.0

// Policy is the user-configured termination criteria. Nil pointer fields
// are unset criteria.
type Policy struct {
	// MaxHoursIdle excludes clusters idle for no longer than this many
	// hours.
	MaxHoursIdle *float64

	// MinsToEndOfHour excludes clusters unless they are within this many
	// minutes of a whole-hour anniversary of their start time. Never
	// applies to clusters with pending steps: pending work means the
	// cluster is about to be useful, however close the billing edge is.
	MinsToEndOfHour *float64

	// PooledOnly excludes unpooled clusters. UnpooledOnly excludes pooled
	// ones. Setting both is accepted and yields an empty candidate set;
	// that quirk is documented behavior, not a validation error.
	PooledOnly   bool
	UnpooledOnly bool

	// PoolName excludes clusters whose pool name differs. Empty means
	// unset.
	PoolName string
}

// Candidate pairs a snapshot with its idle assessment.
type Candidate struct {
	Snapshot   *fleet.ClusterSnapshot
	Pending    bool
	Assessment idle.Assessment
}

// effectiveMaxIdle resolves the idle threshold, applying the legacy
// default when both criteria are unset.
func (p Policy) effectiveMaxIdle() *float64 {
	if p.MaxHoursIdle == nil && p.MinsToEndOfHour == nil {
		def := DefaultMaxHoursIdle
		return &def
	}
	return p.MaxHoursIdle
}

// Filter returns the candidates permitted by the policy, preserving
// input order.
func (p Policy) Filter(in []Candidate) []Candidate {
	var out []Candidate
	for _, c := range in {
		if p.Permits(c) {
			out = append(out, c)
		}
	}
	return out
}

// Permits applies every configured criterion to a single candidate.
func (p Policy) Permits(c Candidate) bool {
	if maxIdle := p.effectiveMaxIdle(); maxIdle != nil {
		threshold := time.Duration(*maxIdle * float64(time.Hour))
		if c.Assessment.TimeIdle <= threshold {
			return false
		}
	}

	if p.MinsToEndOfHour != nil {
		if c.Pending {
			return false
		}
		// Undefined boundary (no start time) cannot satisfy a proximity
		// criterion.
		if !c.Assessment.HasHourBoundary {
			return false
		}
		window := time.Duration(*p.MinsToEndOfHour * float64(time.Minute))
		if c.Assessment.TimeToHourBoundary >= window {
			return false
		}
	}

	if p.PooledOnly && c.Assessment.Pool == nil {
		return false
	}

	if p.UnpooledOnly && c.Assessment.Pool != nil {
		return false
	}

	if p.PoolName != "" {
		if c.Assessment.Pool == nil || c.Assessment.Pool.Name != p.PoolName {
			return false
		}
	}

	return true
}
