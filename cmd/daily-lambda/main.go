// Package main is the Lambda entrypoint for EventBridge-triggered runs.
//
// EventBridge rules send a scheduler.TaskPayload naming the task. The daily
// run goes through the run-state lease, so an EventBridge retry or an
// overlapping server-side trigger cannot run the day twice. A payload with
// reference_time replays that instant without touching the lease.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"gardenwatch/internal/app"
	"gardenwatch/internal/daily"
	"gardenwatch/internal/scheduler"
)

// DailyJob is the part of scheduler.DailyJob the handler drives.
type DailyJob interface {
	RunIfNeeded(ctx context.Context) (scheduler.Outcome, daily.Summary, error)
	RunReminders(ctx context.Context) (daily.Summary, error)
	RunAt(ctx context.Context, task scheduler.TaskType, at time.Time) (daily.Summary, error)
}

// Cleaner is the part of scheduler.SnapshotCleaner the handler drives.
type Cleaner interface {
	Cleanup(ctx context.Context, olderThanMonths int, dryRun bool, archive io.Writer) (scheduler.CleanupResult, error)
}

// Handler routes one EventBridge event to its job.
type Handler struct {
	Job           DailyJob
	Cleaner       Cleaner
	CleanupMonths int
	Logger        *slog.Logger
}

// Handle executes payload.Task and returns a one-line result for the
// invocation log.
func (h *Handler) Handle(ctx context.Context, payload scheduler.TaskPayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in payload")
	}
	if !payload.Task.Valid() {
		return "", fmt.Errorf("unknown task type %q", payload.Task)
	}
	logger.InfoContext(ctx, "daily lambda invoked", "task", string(payload.Task))

	if payload.ReferenceTime != nil && payload.Task != scheduler.TaskCleanupSnapshots {
		s, err := h.Job.RunAt(ctx, payload.Task, *payload.ReferenceTime)
		if err != nil {
			return "", fmt.Errorf("task %s failed: %w", payload.Task, err)
		}
		return fmt.Sprintf("task %s replayed at %s: %d processed, %d notifications",
			payload.Task, payload.ReferenceTime.Format(time.RFC3339), s.Processed, s.Notifications), nil
	}

	switch payload.Task {
	case scheduler.TaskDailyProcess:
		outcome, s, err := h.Job.RunIfNeeded(ctx)
		if err != nil {
			return "", fmt.Errorf("task %s failed: %w", payload.Task, err)
		}
		if outcome != scheduler.OutcomeCompleted {
			return fmt.Sprintf("task %s %s", payload.Task, outcome), nil
		}
		return fmt.Sprintf("task %s complete: %d processed, %d notifications", payload.Task, s.Processed, s.Notifications), nil

	case scheduler.TaskEveningReminders:
		s, err := h.Job.RunReminders(ctx)
		if err != nil {
			return "", fmt.Errorf("task %s failed: %w", payload.Task, err)
		}
		return fmt.Sprintf("task %s complete: %d notifications", payload.Task, s.Notifications), nil

	default:
		months := payload.OlderThanMonths
		if months == 0 {
			months = h.CleanupMonths
		}
		res, err := h.Cleaner.Cleanup(ctx, months, false, nil)
		if err != nil {
			return "", fmt.Errorf("task %s failed: %w", payload.Task, err)
		}
		return fmt.Sprintf("task %s complete: %d snapshots deleted", payload.Task, res.Deleted), nil
	}
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("daily lambda initializing (cold start)", "version", cfg.Build.Version)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	h := &Handler{
		Job:           a.Job,
		Cleaner:       a.Cleaner,
		CleanupMonths: cfg.Scheduler.CleanupMonths,
		Logger:        logger,
	}
	lambda.Start(h.Handle)
}
