package emr

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"
	"github.com/aws/smithy-go"

	"github.com/3leaps/flowreaper/internal/awsconn"
	"github.com/3leaps/flowreaper/pkg/fleet"
)

// api is the slice of the EMR client the adapter uses.
type api interface {
	ListClusters(ctx context.Context, in *emr.ListClustersInput, optFns ...func(*emr.Options)) (*emr.ListClustersOutput, error)
	DescribeCluster(ctx context.Context, in *emr.DescribeClusterInput, optFns ...func(*emr.Options)) (*emr.DescribeClusterOutput, error)
	ListSteps(ctx context.Context, in *emr.ListStepsInput, optFns ...func(*emr.Options)) (*emr.ListStepsOutput, error)
	ListBootstrapActions(ctx context.Context, in *emr.ListBootstrapActionsInput, optFns ...func(*emr.Options)) (*emr.ListBootstrapActionsOutput, error)
	TerminateJobFlows(ctx context.Context, in *emr.TerminateJobFlowsInput, optFns ...func(*emr.Options)) (*emr.TerminateJobFlowsOutput, error)
}

// Client implements fleet.Describer and fleet.Terminator on Amazon EMR.
type Client struct {
	api api
}

var (
	_ fleet.Describer  = (*Client)(nil)
	_ fleet.Terminator = (*Client)(nil)
)

// New creates an EMR fleet client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := awsconn.Load(ctx, awsconn.Options{
		Region:          cfg.Region,
		Profile:         cfg.Profile,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
	if err != nil {
		return nil, &fleet.FleetError{Op: "New", Err: err}
	}

	var opts []func(*emr.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *emr.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Client{api: emr.NewFromConfig(awsCfg, opts...)}, nil
}

// DescribeClusters lists every cluster the provider knows about,
// including terminated ones, and hydrates each with its steps and
// bootstrap actions. No server-side state filter is applied: the reaper
// must keep working if the provider invents new states.
func (c *Client) DescribeClusters(ctx context.Context) ([]fleet.ClusterSnapshot, error) {
	var snapshots []fleet.ClusterSnapshot

	var marker *string
	for {
		page, err := c.api.ListClusters(ctx, &emr.ListClustersInput{Marker: marker})
		if err != nil {
			return nil, wrapError("DescribeClusters", "", err)
		}

		for _, summary := range page.Clusters {
			id := aws.ToString(summary.Id)
			snap, err := c.describeOne(ctx, id)
			if err != nil {
				return nil, err
			}
			snapshots = append(snapshots, snap)
		}

		if page.Marker == nil {
			break
		}
		marker = page.Marker
	}

	return snapshots, nil
}

// describeOne assembles the full snapshot for a single cluster.
func (c *Client) describeOne(ctx context.Context, id string) (fleet.ClusterSnapshot, error) {
	out, err := c.api.DescribeCluster(ctx, &emr.DescribeClusterInput{
		ClusterId: aws.String(id),
	})
	if err != nil {
		return fleet.ClusterSnapshot{}, wrapError("DescribeCluster", id, err)
	}

	snap := snapshotFromCluster(out.Cluster)

	steps, err := c.listSteps(ctx, id)
	if err != nil {
		return fleet.ClusterSnapshot{}, err
	}
	snap.Steps = steps

	actions, err := c.listBootstrapActions(ctx, id)
	if err != nil {
		return fleet.ClusterSnapshot{}, err
	}
	snap.BootstrapActions = actions

	return snap, nil
}

func (c *Client) listSteps(ctx context.Context, id string) ([]fleet.StepSnapshot, error) {
	var steps []fleet.StepSnapshot

	var marker *string
	for {
		page, err := c.api.ListSteps(ctx, &emr.ListStepsInput{
			ClusterId: aws.String(id),
			Marker:    marker,
		})
		if err != nil {
			return nil, wrapError("ListSteps", id, err)
		}
		for _, s := range page.Steps {
			steps = append(steps, stepFromSummary(s))
		}
		if page.Marker == nil {
			break
		}
		marker = page.Marker
	}

	// The API returns steps newest-first; snapshots carry creation order.
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}

	return steps, nil
}

func (c *Client) listBootstrapActions(ctx context.Context, id string) ([]fleet.BootstrapAction, error) {
	var actions []fleet.BootstrapAction

	var marker *string
	for {
		page, err := c.api.ListBootstrapActions(ctx, &emr.ListBootstrapActionsInput{
			ClusterId: aws.String(id),
			Marker:    marker,
		})
		if err != nil {
			return nil, wrapError("ListBootstrapActions", id, err)
		}
		for _, a := range page.BootstrapActions {
			actions = append(actions, fleet.BootstrapAction{
				Name:       aws.ToString(a.Name),
				ScriptPath: aws.ToString(a.ScriptPath),
				Args:       a.Args,
			})
		}
		if page.Marker == nil {
			break
		}
		marker = page.Marker
	}

	return actions, nil
}

// TerminateCluster implements fleet.Terminator.
func (c *Client) TerminateCluster(ctx context.Context, clusterID string) error {
	_, err := c.api.TerminateJobFlows(ctx, &emr.TerminateJobFlowsInput{
		JobFlowIds: []string{clusterID},
	})
	if err != nil {
		return wrapError("TerminateCluster", clusterID, err)
	}
	return nil
}

// snapshotFromCluster maps the provider cluster shape onto a snapshot.
func snapshotFromCluster(cl *types.Cluster) fleet.ClusterSnapshot {
	snap := fleet.ClusterSnapshot{
		ID:   aws.ToString(cl.Id),
		Name: aws.ToString(cl.Name),
	}

	if len(cl.Tags) > 0 {
		snap.Tags = make(map[string]string, len(cl.Tags))
		for _, tag := range cl.Tags {
			snap.Tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
		}
	}

	if cl.Status == nil {
		return snap
	}

	if tl := cl.Status.Timeline; tl != nil {
		snap.Created = ts(tl.CreationDateTime)
		snap.Ready = ts(tl.ReadyDateTime)
		snap.Ended = ts(tl.EndDateTime)
	}

	// The current API's timeline has no start instant. Once the cluster
	// has left STARTING, creation time is the closest available stand-in;
	// a cluster still in STARTING genuinely has not started.
	if cl.Status.State != types.ClusterStateStarting {
		snap.Started = snap.Created
	}

	return snap
}

func stepFromSummary(s types.StepSummary) fleet.StepSnapshot {
	step := fleet.StepSnapshot{
		ID:   aws.ToString(s.Id),
		Name: aws.ToString(s.Name),
	}

	if s.Status != nil {
		step.State = fleet.StepState(s.Status.State)
		if tl := s.Status.Timeline; tl != nil {
			step.Created = ts(tl.CreationDateTime)
			step.Started = ts(tl.StartDateTime)
			step.Ended = ts(tl.EndDateTime)
		}
	}

	if s.Config != nil {
		step.Args = s.Config.Args
	}

	return step
}

func ts(t *time.Time) fleet.Timestamp {
	if t == nil {
		return ""
	}
	return fleet.NewTimestamp(*t)
}

// wrapError converts EMR errors to fleet errors with sentinel mapping.
func wrapError(op, clusterID string, err error) error {
	wrapped := &fleet.FleetError{
		Op:        op,
		ClusterID: clusterID,
		Err:       err,
	}

	var invalidReq *types.InvalidRequestException
	if errors.As(err, &invalidReq) {
		msg := strings.ToLower(invalidReq.ErrorMessage())
		switch {
		case strings.Contains(msg, "terminated"), strings.Contains(msg, "shut down"):
			wrapped.Err = fleet.ErrAlreadyTerminated
		case strings.Contains(msg, "not valid"), strings.Contains(msg, "does not exist"):
			wrapped.Err = fleet.ErrClusterNotFound
		}
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "AccessDenied", "UnauthorizedOperation":
			wrapped.Err = fleet.ErrAccessDenied
		case "ThrottlingException", "Throttling", "RequestLimitExceeded":
			wrapped.Err = fleet.ErrThrottled
		case "InternalServerException", "InternalServerError", "ServiceUnavailable":
			wrapped.Err = fleet.ErrProviderUnavailable
		}
		return wrapped
	}

	return wrapped
}
