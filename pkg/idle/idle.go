// Package idle derives activity measures from cluster snapshots: when a
// cluster last did anything, and how close it is to the next whole-hour
// billing boundary.
package idle

import (
	"errors"
	"fmt"
	"time"

	"github.com/3leaps/flowreaper/pkg/fleet"
	"github.com/3leaps/flowreaper/pkg/pool"
)

// Sentinel errors for time resolution.
var (
	// ErrMissingTimestamp indicates a snapshot carried no timestamp at all.
	// Creation time is mandatory for well-formed provider data, so this is
	// an invariant violation worth failing loudly over rather than guessing.
	ErrMissingTimestamp = errors.New("snapshot has no usable timestamp")

	// ErrNoStartTime indicates the hour boundary was requested for a
	// cluster that never started.
	ErrNoStartTime = errors.New("cluster has no start timestamp")
)

// Assessment bundles the activity measures for one idle-eligible cluster.
type Assessment struct {
	// TimeIdle is the duration since the cluster's last recorded activity.
	TimeIdle time.Duration

	// TimeToHourBoundary is the duration until the next exact-hour
	// anniversary of cluster start. Only meaningful when HasHourBoundary.
	TimeToHourBoundary time.Duration

	// HasHourBoundary is false for clusters with no start timestamp, for
	// which the boundary is undefined.
	HasHourBoundary bool

	// Pool is the cluster's pool identity, nil for unpooled clusters.
	Pool *pool.Identity
}

// LastActive returns the most recent instant anything happened to the
// cluster: cluster creation, start or ready time, or any step's creation,
// start or end time.
//
// Timestamps are compared lexicographically on their raw string form.
// That is valid only because every snapshot timestamp shares the same
// fixed-width UTC representation (fleet.TimestampLayout); it must be
// replaced with parsed-instant comparison if that ever stops holding.
func LastActive(c *fleet.ClusterSnapshot) (time.Time, error) {
	var last fleet.Timestamp

	consider := func(t fleet.Timestamp) {
		if t.Present() && t > last {
			last = t
		}
	}

	consider(c.Created)
	consider(c.Started)
	consider(c.Ready)
	for _, s := range c.Steps {
		consider(s.Created)
		consider(s.Started)
		consider(s.Ended)
	}

	if !last.Present() {
		return time.Time{}, fmt.Errorf("cluster %s: %w", c.ID, ErrMissingTimestamp)
	}

	t, err := last.Time()
	if err != nil {
		return time.Time{}, fmt.Errorf("cluster %s: parse %q: %w", c.ID, last, err)
	}
	return t, nil
}

// TimeToHourBoundary returns the duration from now until the next exact
// whole-hour anniversary of cluster start. At the boundary itself it
// returns a full hour, matching whole-hour billing: the new hour has just
// been paid for.
//
// Callers must not request the boundary for clusters with no start
// timestamp; doing so returns ErrNoStartTime.
func TimeToHourBoundary(c *fleet.ClusterSnapshot, now time.Time) (time.Duration, error) {
	if !c.Started.Present() {
		return 0, fmt.Errorf("cluster %s: %w", c.ID, ErrNoStartTime)
	}

	start, err := c.Started.Time()
	if err != nil {
		return 0, fmt.Errorf("cluster %s: parse %q: %w", c.ID, c.Started, err)
	}

	rem := now.Sub(start) % time.Hour
	if rem < 0 {
		rem += time.Hour
	}
	if rem == 0 {
		return time.Hour, nil
	}
	return time.Hour - rem, nil
}

// Assess computes the full assessment for an idle-eligible cluster.
func Assess(c *fleet.ClusterSnapshot, now time.Time) (Assessment, error) {
	last, err := LastActive(c)
	if err != nil {
		return Assessment{}, err
	}

	a := Assessment{
		TimeIdle: now.Sub(last),
		Pool:     pool.Identify(c),
	}

	if c.Started.Present() {
		boundary, err := TimeToHourBoundary(c, now)
		if err != nil {
			return Assessment{}, err
		}
		a.TimeToHourBoundary = boundary
		a.HasHourBoundary = true
	}

	return a, nil
}
