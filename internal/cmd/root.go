// Package cmd implements the flowreaper command tree.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/3leaps/flowreaper/internal/config"
	"github.com/3leaps/flowreaper/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "flowreaper",
	Short: "Terminate idle compute clusters",
	Long: `flowreaper inspects every cluster known to the provider, classifies
each by lifecycle phase, and terminates the ones that have been idle
past a policy threshold or are coasting toward a billing-hour boundary
with no pending work.

It is designed to run from cron; overlapping runs coordinate through a
best-effort advisory lock and tolerate losing the race.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := observability.Init(rootLogLevel, rootQuiet, rootVerbose); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
		}

		cfg, err := config.Load(cmd.Context(), viper.GetViper(), rootConfigFile)
		if err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to load configuration", err)
		}
		loadedConfig = cfg
		return nil
	},
}

var (
	rootConfigFile string
	rootQuiet      bool
	rootVerbose    bool
	rootLogLevel   string

	// loadedConfig is populated by PersistentPreRunE before any RunE.
	loadedConfig *config.Config
)

var versionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// SetVersionInfo records build metadata injected via ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootConfigFile, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&rootQuiet, "quiet", "q", false, "Suppress log output; only print termination lines to stdout")
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Print debug messages")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level (debug|info|warn|error)")
}

// Execute runs the command tree and exits the process with the error's
// exit code on failure.
func Execute() {
	defer observability.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var coded *codedError
		if errors.As(err, &coded) {
			observability.Sync()
			os.Exit(coded.code)
		}
		observability.Sync()
		os.Exit(1)
	}
}

// codedError pairs an error with a foundry exit code so Execute can map
// failures onto meaningful process statuses.
type codedError struct {
	code int
	msg  string
	err  error
}

func (e *codedError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *codedError) Unwrap() error {
	return e.err
}

func exitError(code int, msg string, err error) error {
	return &codedError{code: code, msg: msg, err: err}
}
