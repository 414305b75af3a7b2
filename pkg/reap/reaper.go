// Package reap orchestrates one reaper run: list the fleet, classify
// every cluster, filter idle candidates through policy, then terminate
// them one at a time behind the advisory lock.
//
// Execution is strictly sequential. Provider rate limits and the
// advisory-locking strategy both depend on serialized terminate calls;
// the real concurrency concern is external (overlapping cron runs and
// job submitters), which the lock and the idempotent treatment of
// already-terminated clusters address.
package reap

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/flowreaper/pkg/classify"
	"github.com/3leaps/flowreaper/pkg/fleet"
	"github.com/3leaps/flowreaper/pkg/idle"
	"github.com/3leaps/flowreaper/pkg/lock"
	"github.com/3leaps/flowreaper/pkg/policy"
	"github.com/3leaps/flowreaper/pkg/pool"
	"github.com/3leaps/flowreaper/pkg/report"
)

// Config configures reaper behavior.
type Config struct {
	// DryRun records decisions without locking or terminating.
	DryRun bool

	// TerminateRPS caps terminate calls per second. Zero means no cap.
	TerminateRPS float64

	// RunID is the correlation id for this run. Empty generates one.
	RunID string
}

// Stats counts clusters per phase for one run.
type Stats struct {
	Done           int
	Bootstrapping  int
	NonInspectable int
	Running        int
	IdlePending    int
	IdleFree       int
	Terminated     int
}

// Inspected is the total number of clusters examined.
func (s Stats) Inspected() int {
	return s.Done + s.Bootstrapping + s.NonInspectable + s.Running + s.IdlePending + s.IdleFree
}

// Termination records one (would-)terminated cluster.
type Termination struct {
	ClusterID string
	Name      string
	Pending   bool
	DryRun    bool

	TimeIdle           time.Duration
	TimeToHourBoundary time.Duration
	HasHourBoundary    bool

	Pool *pool.Identity
}

// Result is the outcome of one run. On a fatal terminate failure the
// result still carries everything completed before the failure; earlier
// terminations are not rolled back.
type Result struct {
	RunID       string
	Stats       Stats
	Terminated  []Termination
	StartedAt   time.Time
	CompletedAt time.Time
}

// Reaper runs the inspect-classify-filter-terminate cycle.
//
// Reaper is safe for single use only. Create a new one for each run.
type Reaper struct {
	describer  fleet.Describer
	terminator fleet.Terminator
	locks      lock.Store
	reporter   report.Writer
	out        io.Writer
	logger     *zap.Logger
	now        func() time.Time
	limiter    *rate.Limiter
	config     Config
	runID      string
}

// New creates a reaper.
//
// The logger is an explicit sink rather than a package global, so
// classification and filtering remain deterministic under test. out
// receives the human-readable lines the tool has always printed; pass
// io.Discard to suppress them.
func New(d fleet.Describer, t fleet.Terminator, locks lock.Store, w report.Writer, out io.Writer, logger *zap.Logger, cfg Config) *Reaper {
	var limiter *rate.Limiter
	if cfg.TerminateRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.TerminateRPS), 1)
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	return &Reaper{
		describer:  d,
		terminator: t,
		locks:      locks,
		reporter:   w,
		out:        out,
		logger:     logger,
		now:        time.Now,
		limiter:    limiter,
		config:     cfg,
		runID:      runID,
	}
}

// RunID returns the correlation id for this run.
func (r *Reaper) RunID() string {
	return r.runID
}

// Run executes one full reap cycle under the given policy.
func (r *Reaper) Run(ctx context.Context, p policy.Policy) (*Result, error) {
	started := r.now()
	result := &Result{RunID: r.runID, StartedAt: started}

	r.logger.Info("describing all clusters, including historical ones")
	clusters, err := r.describer.DescribeClusters(ctx)
	if err != nil {
		return result, fmt.Errorf("describe clusters: %w", err)
	}

	candidates := r.inspect(ctx, clusters, &result.Stats)
	selected := p.Filter(candidates)

	r.logSummary(result.Stats, len(selected))

	if err := r.terminate(ctx, selected, result); err != nil {
		result.CompletedAt = r.now()
		return result, err
	}

	result.CompletedAt = r.now()
	r.writeSummary(ctx, result)
	return result, nil
}

// inspect classifies every cluster, accumulates phase counts, and
// returns the idle-eligible candidates in traversal order. Per-cluster
// assessment errors are local: log, report, skip, continue.
func (r *Reaper) inspect(ctx context.Context, clusters []fleet.ClusterSnapshot, stats *Stats) []policy.Candidate {
	now := r.now()

	var candidates []policy.Candidate
	for i := range clusters {
		c := &clusters[i]
		phase := classify.Classify(c)

		switch phase {
		case classify.PhaseDone:
			stats.Done++
		case classify.PhaseBootstrapping:
			stats.Bootstrapping++
		case classify.PhaseNonInspectable:
			stats.NonInspectable++
		case classify.PhaseRunning:
			stats.Running++
		case classify.PhaseIdlePending, classify.PhaseIdleFree:
			assessment, err := idle.Assess(c, now)
			if err != nil {
				r.logger.Error("skipping cluster with unusable timestamps",
					zap.String("cluster_id", c.ID),
					zap.Error(err))
				_ = r.reporter.WriteError(ctx, &report.ErrorRecord{
					ClusterID: c.ID,
					Message:   err.Error(),
				})
				continue
			}

			pending := phase == classify.PhaseIdlePending
			if pending {
				stats.IdlePending++
			} else {
				stats.IdleFree++
			}

			r.logger.Debug("cluster is idle-eligible",
				zap.String("cluster_id", c.ID),
				zap.String("name", c.Name),
				zap.Bool("pending", pending),
				zap.Duration("time_idle", assessment.TimeIdle),
				zap.Bool("pooled", assessment.Pool != nil))

			candidates = append(candidates, policy.Candidate{
				Snapshot:   c,
				Pending:    pending,
				Assessment: assessment,
			})
		}
	}

	return candidates
}

// terminate runs the coordinator over the selected candidates, in
// sequence. Lock failures are logged and ignored; terminate failures
// other than already-terminated are fatal and abort the remaining
// sequence. No retries: the next scheduled run is the retry mechanism.
func (r *Reaper) terminate(ctx context.Context, selected []policy.Candidate, result *Result) error {
	for _, cand := range selected {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		term := Termination{
			ClusterID:          cand.Snapshot.ID,
			Name:               cand.Snapshot.Name,
			Pending:            cand.Pending,
			DryRun:             r.config.DryRun,
			TimeIdle:           cand.Assessment.TimeIdle,
			TimeToHourBoundary: cand.Assessment.TimeToHourBoundary,
			HasHourBoundary:    cand.Assessment.HasHourBoundary,
			Pool:               cand.Assessment.Pool,
		}

		if !r.config.DryRun {
			if err := r.acquireLock(ctx, cand); err != nil {
				return err
			}

			err := r.terminator.TerminateCluster(ctx, cand.Snapshot.ID)
			switch {
			case err == nil:
			case fleet.IsAlreadyTerminated(err):
				// Another reaper instance won the race. Benign.
				r.logger.Info("cluster already terminated",
					zap.String("cluster_id", cand.Snapshot.ID))
			default:
				return fmt.Errorf("terminate cluster %s: %w", cand.Snapshot.ID, err)
			}
		}

		result.Terminated = append(result.Terminated, term)
		result.Stats.Terminated++
		r.emitTermination(ctx, term)
	}

	return nil
}

// acquireLock takes the advisory lock for the slot a racing submitter
// would claim next. Failure to acquire is logged and termination
// proceeds anyway: the lock narrows the race window, it is not a mutex.
// Only context cancellation aborts here.
func (r *Reaper) acquireLock(ctx context.Context, cand policy.Candidate) error {
	key := lock.Key{
		ClusterID: cand.Snapshot.ID,
		StepNum:   len(cand.Snapshot.Steps) + 1,
	}
	holder := fmt.Sprintf("terminate-%s", r.runID)

	if err := r.locks.Acquire(ctx, key, holder); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("advisory lock not acquired; terminating anyway",
			zap.String("cluster_id", cand.Snapshot.ID),
			zap.Int("step_num", key.StepNum),
			zap.Error(err))
	}
	return nil
}

func (r *Reaper) emitTermination(ctx context.Context, term Termination) {
	state := "idle"
	if term.Pending {
		state = "pending"
	}

	boundary := "no hour boundary"
	if term.HasHourBoundary {
		boundary = fmt.Sprintf("%s to end of hour", term.TimeToHourBoundary.Truncate(time.Second))
	}

	verb := "Terminated"
	if term.DryRun {
		verb = "Would terminate"
	}

	fmt.Fprintf(r.out, "%s cluster %s (%s); was %s for %s, %s\n",
		verb, term.ClusterID, term.Name, state,
		term.TimeIdle.Truncate(time.Second), boundary)

	rec := &report.TerminationRecord{
		ClusterID:     term.ClusterID,
		Name:          term.Name,
		Pending:       term.Pending,
		DryRun:        term.DryRun,
		TimeIdle:      term.TimeIdle,
		TimeIdleHuman: term.TimeIdle.Truncate(time.Second).String(),
	}
	if term.HasHourBoundary {
		b := term.TimeToHourBoundary
		rec.TimeToHourBoundary = &b
		rec.TimeToHourBoundaryHuman = b.Truncate(time.Second).String()
	}
	if term.Pool != nil {
		rec.PoolHash = term.Pool.Hash
		rec.PoolName = term.Pool.Name
	}

	if err := r.reporter.WriteTermination(ctx, rec); err != nil {
		r.logger.Warn("failed to write termination record", zap.Error(err))
	}
}

func (r *Reaper) logSummary(stats Stats, selected int) {
	r.logger.Info("cluster statuses",
		zap.Int("running", stats.Running),
		zap.Int("bootstrapping", stats.Bootstrapping),
		zap.Int("pending", stats.IdlePending),
		zap.Int("idle", stats.IdleFree),
		zap.Int("non_inspectable", stats.NonInspectable),
		zap.Int("done", stats.Done),
		zap.Int("candidates", selected))
}

func (r *Reaper) writeSummary(ctx context.Context, result *Result) {
	duration := result.CompletedAt.Sub(result.StartedAt)
	err := r.reporter.WriteSummary(ctx, &report.SummaryRecord{
		Done:           result.Stats.Done,
		Bootstrapping:  result.Stats.Bootstrapping,
		NonInspectable: result.Stats.NonInspectable,
		Running:        result.Stats.Running,
		IdlePending:    result.Stats.IdlePending,
		IdleFree:       result.Stats.IdleFree,
		Inspected:      result.Stats.Inspected(),
		Terminated:     result.Stats.Terminated,
		DryRun:         r.config.DryRun,
		Duration:       duration,
		DurationHuman:  duration.Truncate(time.Millisecond).String(),
	})
	if err != nil {
		r.logger.Warn("failed to write summary record", zap.Error(err))
	}
}
