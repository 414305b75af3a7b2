// Package awsconn builds AWS SDK configurations shared by the EMR fleet
// client and the S3 lock store.
package awsconn

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

// DefaultRegion is the fallback region when nothing else resolves one.
const DefaultRegion = "us-east-1"

// regionProbeTimeout bounds the instance-metadata region lookup so runs
// off EC2 fail over quickly.
const regionProbeTimeout = 2 * time.Second

// Options configures AWS credential and region resolution.
//
// Authentication follows the SDK v2 default chain unless explicit
// credentials are given: environment variables, shared credentials file,
// shared config profile, then instance/task roles.
type Options struct {
	// Region is the AWS region. Empty lets the SDK resolve it from
	// environment or profile, then instance metadata, then DefaultRegion.
	Region string

	// Profile is the shared-config profile name. Empty uses the default
	// profile or environment credentials.
	Profile string

	// AccessKeyID and SecretAccessKey are explicit credentials. Both must
	// be set together; they take precedence over the default chain.
	AccessKeyID     string
	SecretAccessKey string
}

// Load builds an aws.Config from the options.
func Load(ctx context.Context, opts Options) (aws.Config, error) {
	var loadOpts []func(*config.LoadOptions) error

	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"",
		)
		loadOpts = append(loadOpts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	if awsCfg.Region == "" {
		awsCfg.Region = probeRegion(ctx, awsCfg)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = DefaultRegion
	}

	return awsCfg, nil
}

// probeRegion asks the EC2 instance metadata service for the local
// region. Reapers commonly run as cron jobs on an instance in the same
// region as the fleet, so this beats a hard-coded default. Best effort:
// any failure returns the empty string.
func probeRegion(ctx context.Context, cfg aws.Config) string {
	ctx, cancel := context.WithTimeout(ctx, regionProbeTimeout)
	defer cancel()

	out, err := imds.NewFromConfig(cfg).GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return ""
	}
	return out.Region
}
