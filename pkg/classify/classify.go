// Package classify maps cluster snapshots onto a closed set of lifecycle
// phases.
//
// Classification is total and mutually exclusive: every snapshot maps to
// exactly one phase. The priority order encodes a conservative bias toward
// not terminating when the evidence is ambiguous, since termination is
// destructive and irreversible.
package classify

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/3leaps/flowreaper/pkg/fleet"
)

// Phase is the derived lifecycle phase of a cluster. It is computed per
// reap pass and never stored.
type Phase int

const (
	// PhaseDone means the cluster has an end timestamp.
	PhaseDone Phase = iota

	// PhaseBootstrapping means the cluster has started but is not yet ready.
	PhaseBootstrapping

	// PhaseNonInspectable means the cluster has steps but none carry a
	// streaming-style signature, so idleness cannot be judged from step
	// metadata. Such clusters are left alone.
	PhaseNonInspectable

	// PhaseRunning means at least one step is currently active.
	PhaseRunning

	// PhaseIdlePending means the cluster is idle-eligible and has at least
	// one step stuck in PENDING.
	PhaseIdlePending

	// PhaseIdleFree means the cluster is idle-eligible with no pending work.
	PhaseIdleFree
)

func (p Phase) String() string {
	switch p {
	case PhaseDone:
		return "done"
	case PhaseBootstrapping:
		return "bootstrapping"
	case PhaseNonInspectable:
		return "non-inspectable"
	case PhaseRunning:
		return "running"
	case PhaseIdlePending:
		return "idle-pending"
	case PhaseIdleFree:
		return "idle-free"
	default:
		return "unknown"
	}
}

// IdleEligible reports whether the phase makes the cluster a potential
// termination candidate. Only idle phases ever reach the policy filter.
func (p Phase) IdleEligible() bool {
	return p == PhaseIdlePending || p == PhaseIdleFree
}

// mapperFlag is the literal argument token identifying a streaming step.
const mapperFlag = "-mapper"

// debugJarPattern matches the fetch artifact of the debug helper that
// accompanies streaming steps. Segment wildcards are enough here: bucket
// names and version segments never contain slashes.
const debugJarPattern = "s3n://*.elasticmapreduce/libs/state-pusher/*/fetch"

// Classify returns the single phase for a snapshot, evaluated in priority
// order with first match winning.
func Classify(c *fleet.ClusterSnapshot) Phase {
	switch {
	case c.Ended.Present():
		return PhaseDone
	case c.Started.Present() && !c.Ready.Present() && !c.Ended.Present():
		return PhaseBootstrapping
	case !isStreaming(c):
		return PhaseNonInspectable
	case anyStepActive(c):
		return PhaseRunning
	case c.HasPendingSteps():
		return PhaseIdlePending
	default:
		return PhaseIdleFree
	}
}

// isStreaming returns false if the cluster has steps but none of them
// look like streaming steps (for example, a cluster running Hive).
//
// A cluster with zero steps is always treated as streaming-style:
// absence of evidence is not evidence of a non-streaming workload.
func isStreaming(c *fleet.ClusterSnapshot) bool {
	if len(c.Steps) == 0 {
		return true
	}

	for _, step := range c.Steps {
		for _, arg := range step.Args {
			if arg == mapperFlag {
				return true
			}
			if ok, err := doublestar.Match(debugJarPattern, arg); err == nil && ok {
				return true
			}
		}
	}

	return false
}

// anyStepActive reports whether any step is currently running.
func anyStepActive(c *fleet.ClusterSnapshot) bool {
	for _, step := range c.Steps {
		if stepActive(step) {
			return true
		}
	}
	return false
}

// stepActive reports whether a step has started and not yet ended.
// Cancelled steps may retain a start time without an end time, so the
// state check comes first.
func stepActive(s fleet.StepSnapshot) bool {
	return s.State != fleet.StepStateCancelled &&
		s.Started.Present() &&
		!s.Ended.Present()
}
