package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gardenwatch/internal/daily"
	"gardenwatch/internal/runstate"
	"gardenwatch/internal/types"
)

// BatchRunner is the part of daily.Runner the job drives.
type BatchRunner interface {
	Run(ctx context.Context) (daily.Summary, error)
	RunReminders(ctx context.Context) (daily.Summary, error)
}

// Lease is the part of runstate.Guard the job drives.
type Lease interface {
	NeedsRun(ctx context.Context) (bool, error)
	TryAcquire(ctx context.Context) (bool, error)
	MarkCompleted(ctx context.Context) error
	Release(ctx context.Context) error
	Status(ctx context.Context) (runstate.Status, error)
}

// Compile-time assertion that the guard satisfies Lease.
var _ Lease = (*runstate.Guard)(nil)

// ReplayFunc returns a runner whose notion of "now" is clock. It backs
// reference-time replays.
type ReplayFunc func(clock types.Clock) BatchRunner

// DailyJob couples the batch runner with the run-state lease. Every trigger
// goes through it.
type DailyJob struct {
	runner BatchRunner
	lease  Lease
	replay ReplayFunc
	clock  types.Clock
	logger *slog.Logger

	// inflight makes EnsureDailyRun single-flight within the process.
	inflight atomic.Bool

	mu sync.Mutex
	// doneDay is the local date (YYYY-MM-DD) on which this process last saw
	// the run completed; EnsureDailyRun skips the database on that day.
	doneDay string
}

// NewDailyJob creates a DailyJob.
func NewDailyJob(runner BatchRunner, lease Lease, clock types.Clock, logger *slog.Logger) *DailyJob {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &DailyJob{runner: runner, lease: lease, clock: clock, logger: logger}
}

// WithReplay enables RunAt.
func (j *DailyJob) WithReplay(fn ReplayFunc) *DailyJob {
	j.replay = fn
	return j
}

// RunAt replays task as of at. The lease is neither consulted nor updated:
// a replay must not mark the real day as done.
func (j *DailyJob) RunAt(ctx context.Context, task TaskType, at time.Time) (daily.Summary, error) {
	if j.replay == nil {
		return daily.Summary{}, types.NewAppError(types.ErrCodeInternalUnexpected, "reference-time replay is not configured", nil)
	}
	runner := j.replay(types.FixedClock{T: at})
	j.logger.InfoContext(ctx, "replaying task at reference time",
		"task", string(task),
		"reference_time", at.Format(time.RFC3339),
	)
	switch task {
	case TaskDailyProcess:
		return runner.Run(ctx)
	case TaskEveningReminders:
		return runner.RunReminders(ctx)
	default:
		return daily.Summary{}, types.NewAppError(types.ErrCodeValidationInvalidArgument,
			fmt.Sprintf("task %q does not support reference_time", task), nil)
	}
}

// RunIfNeeded runs the batch if today's run has not happened and nobody else
// holds the lease. On batch failure the lease is released, so a later trigger
// can retry the same day, and the error is returned.
func (j *DailyJob) RunIfNeeded(ctx context.Context) (Outcome, daily.Summary, error) {
	need, err := j.lease.NeedsRun(ctx)
	if err != nil {
		return "", daily.Summary{}, fmt.Errorf("check run state: %w", err)
	}
	if !need {
		j.markDone()
		return OutcomeSkippedNotNeeded, daily.Summary{}, nil
	}

	acquired, err := j.lease.TryAcquire(ctx)
	if err != nil {
		return "", daily.Summary{}, fmt.Errorf("acquire run lease: %w", err)
	}
	if !acquired {
		// Either another trigger holds the lease or it finished between our
		// two reads.
		if need, err := j.lease.NeedsRun(ctx); err == nil && !need {
			j.markDone()
			return OutcomeSkippedNotNeeded, daily.Summary{}, nil
		}
		j.logger.InfoContext(ctx, "daily run already in progress elsewhere")
		return OutcomeSkippedLocked, daily.Summary{}, nil
	}

	summary, err := j.runner.Run(ctx)
	if err != nil {
		// The caller's context may be what failed the run; release anyway.
		if relErr := j.lease.Release(context.WithoutCancel(ctx)); relErr != nil {
			j.logger.ErrorContext(ctx, "failed to release run lease after batch failure",
				"error", relErr,
			)
			err = errors.Join(err, relErr)
		}
		j.logger.ErrorContext(ctx, "daily run failed", "error", err)
		return "", summary, fmt.Errorf("daily run: %w", err)
	}

	if err := j.lease.MarkCompleted(context.WithoutCancel(ctx)); err != nil {
		return "", summary, fmt.Errorf("mark daily run completed: %w", err)
	}
	j.markDone()
	return OutcomeCompleted, summary, nil
}

// RunNow runs the batch unconditionally and then records completion. This is
// the CLI "process" path; it does not consult the lease.
func (j *DailyJob) RunNow(ctx context.Context) (daily.Summary, error) {
	summary, err := j.runner.Run(ctx)
	if err != nil {
		return summary, fmt.Errorf("daily run: %w", err)
	}
	if err := j.lease.MarkCompleted(ctx); err != nil {
		return summary, fmt.Errorf("mark daily run completed: %w", err)
	}
	j.markDone()
	return summary, nil
}

// RunReminders performs the evening reminder sweep. It is not leased: its
// rules are idempotent through the notification dedup windows.
func (j *DailyJob) RunReminders(ctx context.Context) (daily.Summary, error) {
	summary, err := j.runner.RunReminders(ctx)
	if err != nil {
		return summary, fmt.Errorf("evening reminders: %w", err)
	}
	return summary, nil
}

// EnsureDailyRun is the lazy fallback trigger used from request paths. It
// returns immediately when this process already saw today's run complete or
// another EnsureDailyRun is in flight.
func (j *DailyJob) EnsureDailyRun(ctx context.Context) (Outcome, error) {
	if j.seenDoneToday() {
		return OutcomeSkippedNotNeeded, nil
	}
	if !j.inflight.CompareAndSwap(false, true) {
		return OutcomeSkippedLocked, nil
	}
	defer j.inflight.Store(false)

	outcome, summary, err := j.RunIfNeeded(ctx)
	if err != nil {
		return outcome, err
	}
	if outcome == OutcomeCompleted {
		j.logger.InfoContext(ctx, "daily run completed by fallback trigger",
			"processed", summary.Processed,
			"notifications", summary.Notifications,
		)
	}
	return outcome, nil
}

// Status returns the lease state for diagnostics.
func (j *DailyJob) Status(ctx context.Context) (runstate.Status, error) {
	return j.lease.Status(ctx)
}

func (j *DailyJob) today() string {
	return j.clock.Now().Format("2006-01-02")
}

func (j *DailyJob) markDone() {
	j.mu.Lock()
	j.doneDay = j.today()
	j.mu.Unlock()
}

func (j *DailyJob) seenDoneToday() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.doneDay == j.today()
}
