package fleet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimestamp_Present(t *testing.T) {
	require.False(t, Timestamp("").Present())
	require.True(t, Timestamp("2026-05-10T06:00:00Z").Present())
}

func TestTimestamp_RoundTrip(t *testing.T) {
	instant := time.Date(2026, 5, 10, 6, 0, 0, 0, time.UTC)

	ts := NewTimestamp(instant)
	require.Equal(t, Timestamp("2026-05-10T06:00:00Z"), ts)

	parsed, err := ts.Time()
	require.NoError(t, err)
	require.True(t, parsed.Equal(instant))
}

func TestNewTimestamp_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	instant := time.Date(2026, 5, 10, 8, 0, 0, 0, loc)

	require.Equal(t, Timestamp("2026-05-10T06:00:00Z"), NewTimestamp(instant))
}

func TestTimestamp_LexicographicOrderIsChronological(t *testing.T) {
	earlier := NewTimestamp(time.Date(2026, 5, 10, 6, 0, 0, 0, time.UTC))
	later := NewTimestamp(time.Date(2026, 5, 10, 18, 30, 0, 0, time.UTC))
	nextDay := NewTimestamp(time.Date(2026, 5, 11, 1, 0, 0, 0, time.UTC))

	require.Less(t, string(earlier), string(later))
	require.Less(t, string(later), string(nextDay))
}

func TestClusterSnapshot_HasPendingSteps(t *testing.T) {
	c := ClusterSnapshot{
		Steps: []StepSnapshot{
			{State: StepStateCompleted},
			{State: StepStateRunning},
		},
	}
	require.False(t, c.HasPendingSteps())

	c.Steps = append(c.Steps, StepSnapshot{State: StepStatePending})
	require.True(t, c.HasPendingSteps())

	empty := ClusterSnapshot{}
	require.False(t, empty.HasPendingSteps())
}
