package emr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsemr "github.com/aws/aws-sdk-go-v2/service/emr"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/flowreaper/pkg/fleet"
)

// fakeAPI serves canned responses for one cluster.
type fakeAPI struct {
	cluster   *types.Cluster
	stepPages [][]types.StepSummary
	actions   []types.Command

	listErr      error
	describeErr  error
	terminateErr error

	terminated []string
	stepCalls  int
}

func (f *fakeAPI) ListClusters(_ context.Context, in *awsemr.ListClustersInput, _ ...func(*awsemr.Options)) (*awsemr.ListClustersOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.cluster == nil {
		return &awsemr.ListClustersOutput{}, nil
	}
	return &awsemr.ListClustersOutput{
		Clusters: []types.ClusterSummary{{Id: f.cluster.Id, Name: f.cluster.Name}},
	}, nil
}

func (f *fakeAPI) DescribeCluster(_ context.Context, in *awsemr.DescribeClusterInput, _ ...func(*awsemr.Options)) (*awsemr.DescribeClusterOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return &awsemr.DescribeClusterOutput{Cluster: f.cluster}, nil
}

func (f *fakeAPI) ListSteps(_ context.Context, in *awsemr.ListStepsInput, _ ...func(*awsemr.Options)) (*awsemr.ListStepsOutput, error) {
	if f.stepCalls >= len(f.stepPages) {
		return &awsemr.ListStepsOutput{}, nil
	}
	page := f.stepPages[f.stepCalls]
	f.stepCalls++

	out := &awsemr.ListStepsOutput{Steps: page}
	if f.stepCalls < len(f.stepPages) {
		out.Marker = aws.String("next")
	}
	return out, nil
}

func (f *fakeAPI) ListBootstrapActions(_ context.Context, in *awsemr.ListBootstrapActionsInput, _ ...func(*awsemr.Options)) (*awsemr.ListBootstrapActionsOutput, error) {
	return &awsemr.ListBootstrapActionsOutput{BootstrapActions: f.actions}, nil
}

func (f *fakeAPI) TerminateJobFlows(_ context.Context, in *awsemr.TerminateJobFlowsInput, _ ...func(*awsemr.Options)) (*awsemr.TerminateJobFlowsOutput, error) {
	if f.terminateErr != nil {
		return nil, f.terminateErr
	}
	f.terminated = append(f.terminated, in.JobFlowIds...)
	return &awsemr.TerminateJobFlowsOutput{}, nil
}

func timePtr(t time.Time) *time.Time { return &t }

func TestDescribeClusters_SnapshotMapping(t *testing.T) {
	created := time.Date(2026, 5, 10, 6, 0, 0, 0, time.UTC)
	ready := created.Add(10 * time.Minute)

	api := &fakeAPI{
		cluster: &types.Cluster{
			Id:   aws.String("j-1"),
			Name: aws.String("etl-cluster"),
			Status: &types.ClusterStatus{
				State: types.ClusterStateWaiting,
				Timeline: &types.ClusterTimeline{
					CreationDateTime: timePtr(created),
					ReadyDateTime:    timePtr(ready),
				},
			},
			Tags: []types.Tag{
				{Key: aws.String("team"), Value: aws.String("data")},
			},
		},
		stepPages: [][]types.StepSummary{
			{
				{
					Id:   aws.String("s-2"),
					Name: aws.String("newest"),
					Status: &types.StepStatus{
						State: types.StepStatePending,
						Timeline: &types.StepTimeline{
							CreationDateTime: timePtr(created.Add(20 * time.Minute)),
						},
					},
					Config: &types.HadoopStepConfig{Args: []string{"-mapper", "wc"}},
				},
			},
			{
				{
					Id:   aws.String("s-1"),
					Name: aws.String("oldest"),
					Status: &types.StepStatus{
						State: types.StepStateCompleted,
						Timeline: &types.StepTimeline{
							CreationDateTime: timePtr(created.Add(11 * time.Minute)),
							StartDateTime:    timePtr(created.Add(12 * time.Minute)),
							EndDateTime:      timePtr(created.Add(15 * time.Minute)),
						},
					},
				},
			},
		},
		actions: []types.Command{
			{Name: aws.String("install"), ScriptPath: aws.String("s3://scripts/install.sh"), Args: []string{"--fast"}},
		},
	}

	c := &Client{api: api}
	snaps, err := c.DescribeClusters(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	snap := snaps[0]
	require.Equal(t, "j-1", snap.ID)
	require.Equal(t, "etl-cluster", snap.Name)
	require.Equal(t, fleet.Timestamp("2026-05-10T06:00:00Z"), snap.Created)
	require.Equal(t, fleet.Timestamp("2026-05-10T06:10:00Z"), snap.Ready)
	require.False(t, snap.Ended.Present())
	require.Equal(t, map[string]string{"team": "data"}, snap.Tags)

	// Past STARTING, start time falls back to creation time.
	require.Equal(t, snap.Created, snap.Started)

	// Steps come back newest-first from the API; snapshots are in
	// creation order.
	require.Len(t, snap.Steps, 2)
	require.Equal(t, "s-1", snap.Steps[0].ID)
	require.Equal(t, "s-2", snap.Steps[1].ID)
	require.Equal(t, fleet.StepStatePending, snap.Steps[1].State)
	require.Equal(t, []string{"-mapper", "wc"}, snap.Steps[1].Args)

	require.Len(t, snap.BootstrapActions, 1)
	require.Equal(t, "install", snap.BootstrapActions[0].Name)
	require.Equal(t, "s3://scripts/install.sh", snap.BootstrapActions[0].ScriptPath)
}

func TestDescribeClusters_StartingClusterHasNoStart(t *testing.T) {
	created := time.Date(2026, 5, 10, 6, 0, 0, 0, time.UTC)

	api := &fakeAPI{
		cluster: &types.Cluster{
			Id:   aws.String("j-1"),
			Name: aws.String("booting"),
			Status: &types.ClusterStatus{
				State: types.ClusterStateStarting,
				Timeline: &types.ClusterTimeline{
					CreationDateTime: timePtr(created),
				},
			},
		},
	}

	c := &Client{api: api}
	snaps, err := c.DescribeClusters(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.False(t, snaps[0].Started.Present())
}

func TestTerminateCluster(t *testing.T) {
	api := &fakeAPI{}
	c := &Client{api: api}

	err := c.TerminateCluster(context.Background(), "j-1")
	require.NoError(t, err)
	require.Equal(t, []string{"j-1"}, api.terminated)
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "already terminated",
			err:  &types.InvalidRequestException{Message: aws.String("Cluster id 'j-1' is terminated")},
			want: fleet.ErrAlreadyTerminated,
		},
		{
			name: "shut down",
			err:  &types.InvalidRequestException{Message: aws.String("job flow already shut down")},
			want: fleet.ErrAlreadyTerminated,
		},
		{
			name: "not found",
			err:  &types.InvalidRequestException{Message: aws.String("Cluster id 'j-x' is not valid")},
			want: fleet.ErrClusterNotFound,
		},
		{
			name: "access denied",
			err:  &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no"},
			want: fleet.ErrAccessDenied,
		},
		{
			name: "throttled",
			err:  &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"},
			want: fleet.ErrThrottled,
		},
		{
			name: "unavailable",
			err:  &smithy.GenericAPIError{Code: "ServiceUnavailable", Message: "down"},
			want: fleet.ErrProviderUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapError("TerminateCluster", "j-1", tt.err)
			require.ErrorIs(t, got, tt.want)

			var fe *fleet.FleetError
			require.ErrorAs(t, got, &fe)
			require.Equal(t, "j-1", fe.ClusterID)
		})
	}
}

func TestWrapError_UnknownErrorPreserved(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	got := wrapError("ListSteps", "j-1", cause)
	require.ErrorIs(t, got, cause)
}

func TestTerminateCluster_AlreadyTerminated(t *testing.T) {
	api := &fakeAPI{
		terminateErr: &types.InvalidRequestException{
			Message: aws.String("Cluster id 'j-1' is terminated"),
		},
	}
	c := &Client{api: api}

	err := c.TerminateCluster(context.Background(), "j-1")
	require.True(t, fleet.IsAlreadyTerminated(err))
}
