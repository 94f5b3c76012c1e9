package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronConfig configures CronScheduler.
type CronConfig struct {
	DailyCron   string
	EveningCron string
	Location    *time.Location
	// RunTimeout bounds one triggered job. Zero means no bound.
	RunTimeout time.Duration
}

// CronScheduler fires the daily run and the evening reminder sweep on
// five-field cron expressions evaluated in the garden's timezone.
type CronScheduler struct {
	cron   *cron.Cron
	job    *DailyJob
	cfg    CronConfig
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// ParseCron validates a standard five-field expression.
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// NewCronScheduler registers both entries. It fails on an invalid expression.
func NewCronScheduler(job *DailyJob, cfg CronConfig, logger *slog.Logger) (*CronScheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	c := cron.New(cron.WithLocation(cfg.Location))
	s := &CronScheduler{cron: c, job: job, cfg: cfg, logger: logger}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	daily, err := ParseCron(cfg.DailyCron)
	if err != nil {
		return nil, err
	}
	evening, err := ParseCron(cfg.EveningCron)
	if err != nil {
		return nil, err
	}
	c.Schedule(daily, cron.FuncJob(func() { s.fire(TaskDailyProcess) }))
	c.Schedule(evening, cron.FuncJob(func() { s.fire(TaskEveningReminders) }))
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *CronScheduler) Start() {
	s.cron.Start()
	s.logger.Info("cron scheduler started",
		"daily_cron", s.cfg.DailyCron,
		"evening_cron", s.cfg.EveningCron,
		"timezone", s.cfg.Location.String(),
	)
}

// Stop cancels in-flight jobs and waits for them to return, or for ctx.
func (s *CronScheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next firing time of each entry, for startup logs.
func (s *CronScheduler) Next() []time.Time {
	entries := s.cron.Entries()
	out := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Schedule.Next(time.Now().In(s.cfg.Location)))
	}
	return out
}

func (s *CronScheduler) fire(task TaskType) {
	ctx := s.ctx
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	switch task {
	case TaskDailyProcess:
		outcome, summary, err := s.job.RunIfNeeded(ctx)
		if err != nil {
			s.logger.Error("scheduled daily run failed", "error", err)
			return
		}
		s.logger.Info("scheduled daily run finished",
			"outcome", string(outcome),
			"processed", summary.Processed,
			"notifications", summary.Notifications,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	case TaskEveningReminders:
		summary, err := s.job.RunReminders(ctx)
		if err != nil {
			s.logger.Error("scheduled evening reminders failed", "error", err)
			return
		}
		s.logger.Info("scheduled evening reminders finished",
			"notifications", summary.Notifications,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
