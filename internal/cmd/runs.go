package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/flowreaper/pkg/runlog"
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "Show reap run history",
	Long: `Show past reap runs recorded in the local run log.

Without arguments the most recent runs are listed. With a run id the
individual termination decisions from that run are shown.

Examples:
  # List recent runs
  flowreaper runs

  # Show terminations from one run
  flowreaper runs 2f9c1b4e-...

  # List with JSON output
  flowreaper runs --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().Int("limit", 20, "Max runs to list")
	runsCmd.Flags().Bool("json", false, "Output as JSON")
	runsCmd.Flags().String("runlog", "", "Run-history database path (defaults to configured run log)")
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	path, _ := cmd.Flags().GetString("runlog")

	if path == "" {
		path = loadedConfig.Reap.RunLog
	}
	if path == "" {
		return exitError(foundry.ExitInvalidArgument,
			"No run log configured; pass --runlog or set reap.run_log", nil)
	}

	store, err := runlog.Open(ctx, runlog.Config{Path: path})
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open run log", err)
	}
	defer func() { _ = store.Close() }()

	if len(args) == 1 {
		return showTerminations(cmd, store, args[0], jsonOutput)
	}

	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if len(runs) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "No runs recorded")
		return nil
	}

	if jsonOutput {
		return printRunsJSON(runs)
	}
	return printRunsTable(runs)
}

func showTerminations(cmd *cobra.Command, store *runlog.Store, runID string, jsonOutput bool) error {
	terms, err := store.ListTerminations(cmd.Context(), runID)
	if err != nil {
		return fmt.Errorf("list terminations: %w", err)
	}

	if len(terms) == 0 {
		_, _ = fmt.Fprintf(os.Stderr, "No terminations recorded for run %s\n", runID)
		return nil
	}

	if jsonOutput {
		return printTerminationsJSON(terms)
	}
	return printTerminationsTable(terms)
}

func printRunsTable(runs []runlog.RunRecord) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "RUN\tSTARTED\tDURATION\tINSPECTED\tIDLE\tTERMINATED\tMODE")

	for _, r := range runs {
		mode := "live"
		if r.DryRun {
			mode = "dry-run"
		}
		idle := r.Stats.IdlePending + r.Stats.IdleFree

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			shortRunID(r.RunID),
			formatRelativeTime(r.StartedAt),
			r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond),
			r.Stats.Inspected(),
			idle,
			r.Stats.Terminated,
			mode,
		)
	}

	return nil
}

func printRunsJSON(runs []runlog.RunRecord) error {
	type jsonRun struct {
		RunID          string `json:"run_id"`
		StartedAt      string `json:"started_at"`
		CompletedAt    string `json:"completed_at"`
		DryRun         bool   `json:"dry_run"`
		Done           int    `json:"done"`
		Bootstrapping  int    `json:"bootstrapping"`
		NonInspectable int    `json:"non_inspectable"`
		Running        int    `json:"running"`
		IdlePending    int    `json:"idle_pending"`
		IdleFree       int    `json:"idle_free"`
		Terminated     int    `json:"terminated"`
	}

	out := make([]jsonRun, len(runs))
	for i, r := range runs {
		out[i] = jsonRun{
			RunID:          r.RunID,
			StartedAt:      r.StartedAt.Format(time.RFC3339),
			CompletedAt:    r.CompletedAt.Format(time.RFC3339),
			DryRun:         r.DryRun,
			Done:           r.Stats.Done,
			Bootstrapping:  r.Stats.Bootstrapping,
			NonInspectable: r.Stats.NonInspectable,
			Running:        r.Stats.Running,
			IdlePending:    r.Stats.IdlePending,
			IdleFree:       r.Stats.IdleFree,
			Terminated:     r.Stats.Terminated,
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printTerminationsTable(terms []runlog.TerminationRow) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "CLUSTER\tNAME\tIDLE\tPENDING\tPOOL\tMODE")

	for _, t := range terms {
		pool := "-"
		if t.PoolName != "" {
			pool = t.PoolName
		} else if t.PoolHash != "" {
			pool = shortHash(t.PoolHash)
		}

		mode := "live"
		if t.DryRun {
			mode = "dry-run"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
			t.ClusterID,
			t.Name,
			t.TimeIdle.Round(time.Second),
			t.Pending,
			pool,
			mode,
		)
	}

	return nil
}

func printTerminationsJSON(terms []runlog.TerminationRow) error {
	type jsonTerm struct {
		RunID              string   `json:"run_id"`
		ClusterID          string   `json:"cluster_id"`
		Name               string   `json:"name"`
		Pending            bool     `json:"pending"`
		DryRun             bool     `json:"dry_run"`
		TimeIdleSeconds    float64  `json:"time_idle_seconds"`
		TimeToHourBoundary *float64 `json:"time_to_hour_boundary_seconds,omitempty"`
		PoolHash           string   `json:"pool_hash,omitempty"`
		PoolName           string   `json:"pool_name,omitempty"`
	}

	out := make([]jsonTerm, len(terms))
	for i, t := range terms {
		out[i] = jsonTerm{
			RunID:           t.RunID,
			ClusterID:       t.ClusterID,
			Name:            t.Name,
			Pending:         t.Pending,
			DryRun:          t.DryRun,
			TimeIdleSeconds: t.TimeIdle.Seconds(),
			PoolHash:        t.PoolHash,
			PoolName:        t.PoolName,
		}
		if t.TimeToHourBoundary != nil {
			secs := t.TimeToHourBoundary.Seconds()
			out[i].TimeToHourBoundary = &secs
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// formatRelativeTime formats a time as relative to now.
func formatRelativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
