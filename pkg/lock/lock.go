// Package lock implements the advisory termination lock.
//
// The lock is a race-avoidance token, not a mutex: a marker object is
// written at a key derived from (cluster id, next step sequence number)
// so that a job submitter about to append a step to the same cluster can
// observe contention and back off. Acquisition is optimistic and bounded
// by a sync-wait window for eventual-consistency propagation; markers are
// never released and simply go stale after an expiry window.
package lock

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrNotAcquired indicates the marker is already held by someone else or
// was lost to a concurrent writer during the sync wait. Callers treat
// this as non-fatal by design: the lock reduces the race window, it does
// not guarantee exclusion.
var ErrNotAcquired = errors.New("advisory lock not acquired")

// Key identifies one advisory lock.
type Key struct {
	// ClusterID is the cluster the termination targets.
	ClusterID string

	// StepNum is the sequence number a racing submitter would use for its
	// next step: count of known steps plus one.
	StepNum int
}

// Object renders the marker object key under the given prefix.
func (k Key) Object(prefix string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("locks/%s/%s", k.ClusterID, strconv.Itoa(k.StepNum))
	}
	return fmt.Sprintf("%s/locks/%s/%s", prefix, k.ClusterID, strconv.Itoa(k.StepNum))
}

// Store attempts to create advisory markers.
type Store interface {
	// Acquire writes a marker for key owned by holder, succeeding only if
	// no fresh marker exists and the marker still carries holder after the
	// sync-wait window. Returns ErrNotAcquired (possibly wrapped) when the
	// marker is contended.
	Acquire(ctx context.Context, key Key, holder string) error
}

// Noop returns a Store whose Acquire always succeeds. Used when no
// scratch location is configured: terminations then proceed entirely
// unguarded, which the advisory model already tolerates.
func Noop() Store {
	return noopStore{}
}

type noopStore struct{}

func (noopStore) Acquire(context.Context, Key, string) error { return nil }

// ParseScratchURI splits an s3://bucket/prefix scratch URI into bucket
// and key prefix.
func ParseScratchURI(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid scratch URI %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid scratch URI %q: scheme must be s3", raw)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("invalid scratch URI %q: missing bucket", raw)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}
