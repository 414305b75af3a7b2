package fleet

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFleetError_Unwrap(t *testing.T) {
	err := &FleetError{Op: "terminate", ClusterID: "j-1", Err: ErrAlreadyTerminated}

	require.ErrorIs(t, err, ErrAlreadyTerminated)
	require.Contains(t, err.Error(), "terminate")
	require.Contains(t, err.Error(), "j-1")
}

func TestIsHelpers(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		isATerm  bool
		isNF     bool
		isAccess bool
		isThrot  bool
	}{
		{name: "already terminated", err: ErrAlreadyTerminated, isATerm: true},
		{name: "not found", err: ErrClusterNotFound, isNF: true},
		{name: "access denied", err: ErrAccessDenied, isAccess: true},
		{name: "throttled", err: ErrThrottled, isThrot: true},
		{name: "wrapped", err: fmt.Errorf("call: %w", &FleetError{Op: "x", Err: ErrThrottled}), isThrot: true},
		{name: "unrelated", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.isATerm, IsAlreadyTerminated(tt.err))
			require.Equal(t, tt.isNF, IsClusterNotFound(tt.err))
			require.Equal(t, tt.isAccess, IsAccessDenied(tt.err))
			require.Equal(t, tt.isThrot, IsThrottled(tt.err))
		})
	}
}
