package cmd

import (
	"context"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/flowreaper/internal/observability"
	"github.com/3leaps/flowreaper/pkg/fleet/emr"
	"github.com/3leaps/flowreaper/pkg/lock"
	"github.com/3leaps/flowreaper/pkg/manifest"
	"github.com/3leaps/flowreaper/pkg/policy"
	"github.com/3leaps/flowreaper/pkg/reap"
	"github.com/3leaps/flowreaper/pkg/report"
	"github.com/3leaps/flowreaper/pkg/runlog"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Inspect the fleet and terminate idle clusters",
	Long: `Inspect every cluster, classify it, and terminate the idle ones that
meet the policy criteria (by default, clusters idle for over an hour).

Suggested usage is a cron entry every half hour:

  */30 * * * * flowreaper reap -q

Examples:
  flowreaper reap --dry-run
  flowreaper reap --max-hours-idle 2
  flowreaper reap --mins-to-end-of-hour 5 --unpooled-only
  flowreaper reap --job reap.yaml --output results.jsonl`,
	Args: cobra.NoArgs,
	RunE: runReap,
}

var (
	reapJobPath         string
	reapMaxHoursIdle    float64
	reapMinsToEndOfHour float64
	reapPooledOnly      bool
	reapUnpooledOnly    bool
	reapPoolName        string
	reapDryRun          bool
	reapMaxMinsLocked   float64
	reapScratchURI      string
	reapRegion          string
	reapProfile         string
	reapEndpoint        string
	reapOutput          string
	reapJSON            bool
	reapRunLog          string
)

func init() {
	rootCmd.AddCommand(reapCmd)

	reapCmd.Flags().StringVarP(&reapJobPath, "job", "j", "", "Path to reap-job manifest (flags override it)")
	reapCmd.Flags().Float64Var(&reapMaxHoursIdle, "max-hours-idle", 0,
		"Max hours a cluster can go without bootstrapping, running a step, or having a new step created; fires even if steps are stuck pending")
	reapCmd.Flags().Float64Var(&reapMinsToEndOfHour, "mins-to-end-of-hour", 0,
		"Terminate clusters within this many minutes of a full hour since start AND with no pending steps")
	reapCmd.Flags().BoolVar(&reapPooledOnly, "pooled-only", false, "Only terminate pooled clusters")
	reapCmd.Flags().BoolVar(&reapUnpooledOnly, "unpooled-only", false, "Only terminate un-pooled clusters")
	reapCmd.Flags().StringVar(&reapPoolName, "pool-name", "", "Only terminate clusters in the given named pool")
	reapCmd.Flags().BoolVar(&reapDryRun, "dry-run", false, "Don't actually terminate; just print what would happen")
	reapCmd.Flags().Float64Var(&reapMaxMinsLocked, "max-minutes-locked", 0, "Max minutes an existing advisory lock is honored")
	reapCmd.Flags().StringVar(&reapScratchURI, "scratch-uri", "", "s3://bucket/prefix for advisory lock markers")
	reapCmd.Flags().StringVarP(&reapRegion, "region", "r", "", "AWS region")
	reapCmd.Flags().StringVarP(&reapProfile, "profile", "p", "", "AWS profile")
	reapCmd.Flags().StringVar(&reapEndpoint, "endpoint", "", "Custom provider endpoint")
	reapCmd.Flags().StringVarP(&reapOutput, "output", "o", "", "Write JSONL records to this file ('-' for stdout)")
	reapCmd.Flags().BoolVar(&reapJSON, "json", false, "Write JSONL records to stdout")
	reapCmd.Flags().StringVar(&reapRunLog, "runlog", "", "Record run history to this local database")
}

func runReap(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.CLILogger

	job, err := assembleJob(cmd)
	if err != nil {
		return err
	}

	pol := policy.Policy{
		MaxHoursIdle:    job.Policy.MaxHoursIdle,
		MinsToEndOfHour: job.Policy.MinsToEndOfHour,
		PooledOnly:      job.Policy.PooledOnly,
		UnpooledOnly:    job.Policy.UnpooledOnly,
		PoolName:        job.Policy.PoolName,
	}

	client, err := emr.New(ctx, emr.Config{
		Region:   job.Connection.Region,
		Profile:  job.Connection.Profile,
		Endpoint: job.Connection.Endpoint,
	})
	if err != nil {
		logger.Error("Failed to create fleet client", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to provider", err)
	}

	locks, err := buildLockStore(ctx, job, logger)
	if err != nil {
		return err
	}

	runID := uuid.NewString()

	writer, closeWriter, err := buildReportWriter(job, runID)
	if err != nil {
		return err
	}
	defer closeWriter()

	reaper := reap.New(client, client, locks, writer, os.Stdout, logger, reap.Config{
		DryRun:       job.DryRun,
		TerminateRPS: loadedConfig.Reap.TerminateRPS,
		RunID:        runID,
	})

	result, runErr := reaper.Run(ctx, pol)

	if job.Output.RunLog != "" && result != nil {
		if err := recordRun(ctx, job.Output.RunLog, result, job.DryRun); err != nil {
			logger.Warn("Failed to record run history", zap.Error(err))
		}
	}

	if runErr != nil {
		logger.Error("Reap run failed", zap.Error(runErr))
		return exitError(foundry.ExitExternalServiceUnavailable, "Reap run failed", runErr)
	}

	return nil
}

// assembleJob merges the manifest (if any), config-file defaults, and
// command-line flags into one job definition. Flags win.
func assembleJob(cmd *cobra.Command) (*manifest.Manifest, error) {
	var job *manifest.Manifest

	if reapJobPath != "" {
		m, err := manifest.Load(reapJobPath)
		if err != nil {
			observability.CLILogger.Error("Failed to load manifest",
				zap.String("path", reapJobPath),
				zap.Error(err))
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
		}
		job = m
	} else {
		job = &manifest.Manifest{}
		job.ApplyDefaults()
	}

	// Config-file defaults fill anything the manifest left empty.
	if job.Connection.Region == "" {
		job.Connection.Region = loadedConfig.AWS.Region
	}
	if job.Connection.Profile == "" {
		job.Connection.Profile = loadedConfig.AWS.Profile
	}
	if job.Connection.Endpoint == "" {
		job.Connection.Endpoint = loadedConfig.AWS.Endpoint
	}
	if job.ScratchURI == "" {
		job.ScratchURI = loadedConfig.Reap.ScratchURI
	}
	if job.Output.RunLog == "" {
		job.Output.RunLog = loadedConfig.Reap.RunLog
	}
	if loadedConfig.Reap.MaxMinutesLocked > 0 && !cmd.Flags().Changed("max-minutes-locked") {
		job.Lock.MaxMinutesLocked = loadedConfig.Reap.MaxMinutesLocked
	}
	if loadedConfig.Reap.SyncWait > 0 {
		job.Lock.SyncWaitSeconds = loadedConfig.Reap.SyncWait.Seconds()
	}

	applyFlagOverrides(cmd, job)

	if err := job.Validate(); err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid reap options", err)
	}

	return job, nil
}

func applyFlagOverrides(cmd *cobra.Command, job *manifest.Manifest) {
	flags := cmd.Flags()

	// Nullable thresholds: only a flag the user actually set becomes a
	// configured criterion, since unset and zero mean different things.
	if flags.Changed("max-hours-idle") {
		v := reapMaxHoursIdle
		job.Policy.MaxHoursIdle = &v
	}
	if flags.Changed("mins-to-end-of-hour") {
		v := reapMinsToEndOfHour
		job.Policy.MinsToEndOfHour = &v
	}
	if flags.Changed("pooled-only") {
		job.Policy.PooledOnly = reapPooledOnly
	}
	if flags.Changed("unpooled-only") {
		job.Policy.UnpooledOnly = reapUnpooledOnly
	}
	if flags.Changed("pool-name") {
		job.Policy.PoolName = reapPoolName
	}
	if flags.Changed("dry-run") {
		job.DryRun = reapDryRun
	}
	if flags.Changed("max-minutes-locked") {
		job.Lock.MaxMinutesLocked = reapMaxMinsLocked
	}
	if flags.Changed("scratch-uri") {
		job.ScratchURI = reapScratchURI
	}
	if flags.Changed("region") {
		job.Connection.Region = reapRegion
	}
	if flags.Changed("profile") {
		job.Connection.Profile = reapProfile
	}
	if flags.Changed("endpoint") {
		job.Connection.Endpoint = reapEndpoint
	}
	if flags.Changed("output") {
		job.Output.Destination = reapOutput
	}
	if reapJSON && job.Output.Destination == "" {
		job.Output.Destination = "-"
	}
	if flags.Changed("runlog") {
		job.Output.RunLog = reapRunLog
	}
}

// buildLockStore creates the advisory lock store. Without a scratch URI
// the lock is disabled and terminations proceed unguarded, which the
// advisory model tolerates; a warning makes the tradeoff visible.
func buildLockStore(ctx context.Context, job *manifest.Manifest, logger *zap.Logger) (lock.Store, error) {
	if job.DryRun || job.ScratchURI == "" {
		if !job.DryRun {
			logger.Warn("no scratch URI configured; advisory locking disabled")
		}
		return lock.Noop(), nil
	}

	store, err := lock.NewS3Store(ctx, lock.Config{
		ScratchURI: job.ScratchURI,
		Region:     job.Connection.Region,
		Profile:    job.Connection.Profile,
		Endpoint:   job.Connection.Endpoint,
		SyncWait:   time.Duration(job.Lock.SyncWaitSeconds * float64(time.Second)),
		MaxLocked:  time.Duration(job.Lock.MaxMinutesLocked * float64(time.Minute)),
	})
	if err != nil {
		logger.Error("Failed to create lock store", zap.Error(err))
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to lock store", err)
	}
	return store, nil
}

func buildReportWriter(job *manifest.Manifest, runID string) (report.Writer, func(), error) {
	dest := job.Output.Destination
	switch dest {
	case "":
		return report.Nop(), func() {}, nil
	case "-":
		w := report.NewJSONLWriter(os.Stdout, runID)
		return w, func() { _ = w.Close() }, nil
	default:
		f, err := os.Create(dest)
		if err != nil {
			return nil, nil, exitError(foundry.ExitFileReadError, "Failed to open output file", err)
		}
		w := report.NewJSONLWriter(f, runID)
		return w, func() {
			_ = w.Close()
			_ = f.Close()
		}, nil
	}
}

func recordRun(ctx context.Context, path string, result *reap.Result, dryRun bool) error {
	store, err := runlog.Open(ctx, runlog.Config{Path: path})
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return store.RecordRun(ctx, result, dryRun)
}
