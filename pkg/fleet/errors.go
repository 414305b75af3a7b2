package fleet

import (
	"errors"
	"fmt"
)

// Sentinel errors for fleet collaborator operations.
var (
	// ErrClusterNotFound indicates the cluster id is unknown to the provider.
	ErrClusterNotFound = errors.New("cluster not found")

	// ErrAlreadyTerminated indicates the cluster was terminated before the
	// call landed. Terminating an already-terminated cluster is a benign,
	// idempotent outcome: another reaper instance may have won the race.
	ErrAlreadyTerminated = errors.New("cluster already terminated")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrThrottled indicates the request was rate limited by the provider.
	ErrThrottled = errors.New("request throttled")

	// ErrProviderUnavailable indicates the provider service is unavailable.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// FleetError wraps provider-specific errors with call context.
type FleetError struct {
	// Op is the operation that failed (e.g., "DescribeClusters").
	Op string

	// ClusterID is the cluster involved, if applicable.
	ClusterID string

	// Err is the underlying error.
	Err error
}

func (e *FleetError) Error() string {
	if e.ClusterID != "" {
		return fmt.Sprintf("fleet %s: %s: %v", e.Op, e.ClusterID, e.Err)
	}
	return fmt.Sprintf("fleet %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *FleetError) Unwrap() error {
	return e.Err
}

// IsAlreadyTerminated returns true if the error indicates the cluster was
// already terminated.
func IsAlreadyTerminated(err error) bool {
	return errors.Is(err, ErrAlreadyTerminated)
}

// IsClusterNotFound returns true if the error indicates an unknown cluster id.
func IsClusterNotFound(err error) bool {
	return errors.Is(err, ErrClusterNotFound)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsThrottled returns true if the error indicates provider rate limiting.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}
