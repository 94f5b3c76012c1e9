// Package daily implements the DailyBatchRunner: one sequential pass over all
// active plantations that evaluates alerts and appends the day's decision
// snapshot.
//
// Every write of a run is buffered and committed in a single flush at the
// end. Pushes are attempted only after that flush succeeds, so a user is never
// notified about a record that was rolled back. Weather lookups, rule
// failures and dispatch failures are soft: they are logged and counted but
// never abort the loop. Only listing plantations and the final flush can fail
// the run.
package daily

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"gardenwatch/internal/alerts"
	"gardenwatch/internal/lifecycle"
	"gardenwatch/internal/types"
	"gardenwatch/internal/watering"
)

// ErrMissingCoordinates is the forecast error recorded for plantations
// without a location.
const ErrMissingCoordinates = "missing coordinates"

// PlantationSource lists the plantations a run covers.
type PlantationSource interface {
	// ListActive returns plantations with status = 'active', hydrated with
	// their template, owner phone and recent snapshots (newest first).
	ListActive(ctx context.Context) ([]*types.Plantation, error)
}

// WeatherProvider is the weather collaborator. It never fails: a fetch error
// is reported through Forecast.Error.
type WeatherProvider interface {
	FetchDailyForecast(ctx context.Context, lat, lon float64) *types.Forecast
}

// NotificationReader is the read half of the notification store, used for
// dedup against committed rows.
type NotificationReader interface {
	HasRecentNotification(ctx context.Context, plantationID string, t types.NotificationType, since time.Time) (bool, error)
	HasUnreadNotification(ctx context.Context, plantationID string, t types.NotificationType) (bool, error)
}

// BatchWriter commits a run's snapshots and notifications atomically.
type BatchWriter interface {
	SaveBatch(ctx context.Context, snapshots []types.Snapshot, notifications []*types.Notification) error
}

// MetricsPublisher receives the run summary. Publishing is best-effort.
type MetricsPublisher interface {
	PublishBatchSummary(ctx context.Context, s Summary) error
}

// Summary reports what a run did.
type Summary struct {
	// Processed counts snapshots created.
	Processed        int           `json:"processed"`
	Notifications    int           `json:"notifications"`
	Total            int           `json:"total"`
	SnapshotsSkipped int           `json:"snapshots_skipped"`
	WeatherErrors    int           `json:"weather_errors"`
	RuleErrors       int           `json:"rule_errors"`
	Pushed           int           `json:"pushed"`
	Duration         time.Duration `json:"duration"`
}

// Config tunes the runner.
type Config struct {
	// ForecastDays is how many days of forecast a snapshot records.
	ForecastDays int
}

// Deps groups the runner's collaborators.
type Deps struct {
	Plantations   PlantationSource
	Weather       WeatherProvider
	Notifications NotificationReader
	Writer        BatchWriter
	Engine        *alerts.Engine
	Lifecycle     *lifecycle.Calculator
	Watering      *watering.Calculator
	Dispatcher    alerts.Dispatcher
	Metrics       MetricsPublisher
	Clock         types.Clock
	Logger        *slog.Logger
}

// Runner is the DailyBatchRunner.
type Runner struct {
	Deps
	forecastDays int
}

// NewRunner validates deps and returns a Runner. Dispatcher and Metrics are
// optional.
func NewRunner(deps Deps, cfg Config) (*Runner, error) {
	switch {
	case deps.Plantations == nil:
		return nil, fmt.Errorf("daily: plantation source is required")
	case deps.Weather == nil:
		return nil, fmt.Errorf("daily: weather provider is required")
	case deps.Notifications == nil:
		return nil, fmt.Errorf("daily: notification reader is required")
	case deps.Writer == nil:
		return nil, fmt.Errorf("daily: batch writer is required")
	case deps.Engine == nil || deps.Lifecycle == nil || deps.Watering == nil:
		return nil, fmt.Errorf("daily: engine and calculators are required")
	}
	if deps.Clock == nil {
		deps.Clock = types.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = 7
	}
	return &Runner{Deps: deps, forecastDays: cfg.ForecastDays}, nil
}

// WithClock returns a copy of the runner, and of its engine, that treats
// c.Now() as the current time.
func (r *Runner) WithClock(c types.Clock) *Runner {
	cp := *r
	cp.Clock = c
	cp.Engine = r.Engine.WithClock(c)
	return &cp
}

// Run performs one full daily pass.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	started := time.Now()
	now := r.Clock.Now()
	today := types.StartOfDay(now)
	var summary Summary

	plantations, err := r.Plantations.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active plantations: %w", err)
	}
	summary.Total = len(plantations)

	buf := newBuffer(r.Notifications)
	engine := r.Engine.WithStore(buf).WithDispatcher(nil)
	cache := make(map[coordKey]*types.Forecast)

	for _, p := range plantations {
		fc := r.forecastFor(ctx, p, cache)
		if fc.Error != "" {
			summary.WeatherErrors++
		}
		last := p.LastSnapshot()

		created, err := engine.Evaluate(ctx, p, fc, last)
		summary.Notifications += created
		if err != nil {
			summary.RuleErrors++
		}

		if reason := skipReason(p, last, today); reason != "" {
			summary.SnapshotsSkipped++
			r.Logger.DebugContext(ctx, "snapshot skipped",
				"plantation_id", p.ID,
				"reason", reason,
			)
			continue
		}

		buf.addSnapshot(r.buildSnapshot(p, fc, last, now))
		summary.Processed++
	}

	if buf.dirty() {
		if err := r.Writer.SaveBatch(ctx, buf.snapshots, buf.notifications); err != nil {
			return summary, fmt.Errorf("flush daily batch: %w", err)
		}
	}
	summary.Pushed = r.dispatchAll(ctx, plantations, buf.notifications)
	summary.Duration = time.Since(started)

	r.logSummary(ctx, "daily batch completed", summary)
	r.publish(ctx, summary)
	return summary, nil
}

// RunReminders performs the evening sweep: time-of-day watering reminders
// only, with no weather lookup and no snapshot.
func (r *Runner) RunReminders(ctx context.Context) (Summary, error) {
	started := time.Now()
	var summary Summary

	plantations, err := r.Plantations.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active plantations: %w", err)
	}
	summary.Total = len(plantations)

	buf := newBuffer(r.Notifications)
	engine := r.Engine.WithStore(buf).WithDispatcher(nil)
	for _, p := range plantations {
		created, err := engine.EvaluateReminders(ctx, p, nil, p.LastSnapshot())
		summary.Notifications += created
		if err != nil {
			summary.RuleErrors++
		}
	}

	if buf.dirty() {
		if err := r.Writer.SaveBatch(ctx, nil, buf.notifications); err != nil {
			return summary, fmt.Errorf("flush reminders: %w", err)
		}
	}
	summary.Pushed = r.dispatchAll(ctx, plantations, buf.notifications)
	summary.Duration = time.Since(started)

	r.logSummary(ctx, "evening reminders completed", summary)
	return summary, nil
}

// skipReason explains why no snapshot is computed today, or returns "".
func skipReason(p *types.Plantation, last *types.Snapshot, today time.Time) string {
	start := p.PlantingDay(today.Location())
	if p.PlantedAt != nil {
		start = p.PlantedAt.In(today.Location())
	}
	if types.DaysBetween(today, start) > 0 {
		return "before planned start"
	}
	if last != nil && types.SameDay(last.CreatedAt.In(today.Location()), today) {
		return "snapshot exists for today"
	}
	return ""
}

func (r *Runner) buildSnapshot(p *types.Plantation, fc *types.Forecast, last *types.Snapshot, now time.Time) types.Snapshot {
	lc := r.Lifecycle.Compute(p, p.Template, now)
	w := r.Watering.Compute(p, p.Template, fc, last, now)
	return types.Snapshot{
		ID:               "snp_" + uuid.New().String(),
		PlantationID:     p.ID,
		CreatedAt:        now,
		Progression:      lc.Progression,
		Stage:            lc.Stage,
		WateringDate:     w.Date,
		WateringQuantity: w.Quantity,
		Details: types.DecisionDetails{
			Lifecycle: lc.Details,
			Watering:  w.Details,
		},
		Weather: types.WeatherSnapshot{
			Daily: fc.Slice(r.forecastDays),
			Error: fc.Error,
		},
	}
}

// coordKey identifies a forecast cell. Coordinates are rounded to two
// decimals, about a kilometre, which is finer than the provider's grid.
type coordKey struct {
	lat, lon int64
}

func keyFor(lat, lon float64) coordKey {
	return coordKey{lat: int64(math.Round(lat * 100)), lon: int64(math.Round(lon * 100))}
}

func (r *Runner) forecastFor(ctx context.Context, p *types.Plantation, cache map[coordKey]*types.Forecast) *types.Forecast {
	if !p.HasCoordinates() {
		return &types.Forecast{Error: ErrMissingCoordinates}
	}
	key := keyFor(*p.Latitude, *p.Longitude)
	if fc, ok := cache[key]; ok {
		return fc
	}
	fc := r.Weather.FetchDailyForecast(ctx, *p.Latitude, *p.Longitude)
	if fc == nil {
		fc = &types.Forecast{Error: "weather provider returned no data"}
	}
	if fc.Error != "" {
		r.Logger.WarnContext(ctx, "weather lookup failed",
			"plantation_id", p.ID,
			"error", fc.Error,
		)
	}
	cache[key] = fc
	return fc
}

// dispatchAll pushes committed notifications and returns how many were
// delivered.
func (r *Runner) dispatchAll(ctx context.Context, plantations []*types.Plantation, notifications []*types.Notification) int {
	if r.Dispatcher == nil || len(notifications) == 0 {
		return 0
	}
	phones := make(map[string]string, len(plantations))
	for _, p := range plantations {
		phones[p.ID] = p.OwnerPhone
	}
	delivered := 0
	for _, n := range notifications {
		phone := ""
		if n.PlantationID != nil {
			phone = phones[*n.PlantationID]
		}
		if r.Dispatcher.Dispatch(ctx, phone, n) {
			delivered++
		}
	}
	return delivered
}

func (r *Runner) logSummary(ctx context.Context, msg string, s Summary) {
	r.Logger.InfoContext(ctx, msg,
		"processed", s.Processed,
		"notifications", s.Notifications,
		"total", s.Total,
		"snapshots_skipped", s.SnapshotsSkipped,
		"weather_errors", s.WeatherErrors,
		"rule_errors", s.RuleErrors,
		"pushed", s.Pushed,
		"duration_ms", s.Duration.Milliseconds(),
	)
}

func (r *Runner) publish(ctx context.Context, s Summary) {
	if r.Metrics == nil {
		return
	}
	if err := r.Metrics.PublishBatchSummary(ctx, s); err != nil {
		r.Logger.WarnContext(ctx, "failed to publish batch metrics", "error", err)
	}
}
