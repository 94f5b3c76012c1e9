// Package alerts implements the agronomic alert rule engine.
//
// The engine evaluates a fixed, ordered list of independent rules against one
// plantation and its forecast. Every rule follows the same pipeline:
//
//	guard -> dedup check -> construct -> persist -> best-effort dispatch
//
// Rules never see each other's output within one Evaluate call except through
// the shared NotificationStore, which is also the dedup source. Dispatch goes
// through an injected Dispatcher and can never fail a rule.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gardenwatch/internal/types"
	"gardenwatch/internal/watering"
)

// NotificationStore is the persistence and dedup contract the engine needs.
type NotificationStore interface {
	// HasRecentNotification reports whether a notification of type t exists for
	// the plantation with created_at >= since.
	//
	// SQL: SELECT EXISTS(SELECT 1 FROM notifications WHERE plantation_id = $1
	//      AND type = $2 AND created_at >= $3)
	HasRecentNotification(ctx context.Context, plantationID string, t types.NotificationType, since time.Time) (bool, error)

	// HasUnreadNotification reports whether an unread notification of type t
	// exists for the plantation.
	HasUnreadNotification(ctx context.Context, plantationID string, t types.NotificationType) (bool, error)

	// Create persists a new notification.
	Create(ctx context.Context, n *types.Notification) error
}

// Dispatcher pushes a persisted notification to the owner's device. It must
// never panic or block the caller indefinitely; false means "not delivered".
type Dispatcher interface {
	Dispatch(ctx context.Context, phone string, n *types.Notification) bool
}

// Config holds every threshold the rules apply.
type Config struct {
	FrostC       float64
	FrostUrgentC float64

	HeatC       float64
	HeatUrgentC float64

	HeatwaveDays       int
	HeatwaveWindowDays int

	RainPostponeMM float64

	DrainageSingleDayMM float64
	DrainageTwoDayMM    float64

	MissedWateringDays        int
	FertilizationIntervalDays int

	// Reminder windows are offsets from local midnight.
	MorningCutoff time.Duration
	EveningStart  time.Duration
	EveningEnd    time.Duration

	AdviceCooldown time.Duration
}

// DefaultConfig returns the documented thresholds.
func DefaultConfig() Config {
	return Config{
		FrostC:                    2,
		FrostUrgentC:              -2,
		HeatC:                     30,
		HeatUrgentC:               35,
		HeatwaveDays:              2,
		HeatwaveWindowDays:        3,
		RainPostponeMM:            5,
		DrainageSingleDayMM:       15,
		DrainageTwoDayMM:          25,
		MissedWateringDays:        2,
		FertilizationIntervalDays: 30,
		MorningCutoff:             12 * time.Hour,
		EveningStart:              15*time.Hour + 30*time.Minute,
		EveningEnd:                17*time.Hour + 30*time.Minute,
		AdviceCooldown:            12 * time.Hour,
	}
}

// Engine is the AlertRuleEngine.
type Engine struct {
	store      NotificationStore
	dispatcher Dispatcher
	clock      types.Clock
	cfg        Config
	rules      []rule
	logger     *slog.Logger
	newID      func() string
}

// NewEngine wires an Engine. dispatcher may be nil, in which case
// notifications are only persisted.
func NewEngine(store NotificationStore, dispatcher Dispatcher, clock types.Clock, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		clock:      clock,
		cfg:        cfg,
		rules:      defaultRules(),
		logger:     logger,
		newID:      func() string { return "ntf_" + uuid.New().String() },
	}
}

// WithStore returns a copy of the engine bound to a different store. The
// batch runner uses this to route writes through its buffer.
func (e *Engine) WithStore(store NotificationStore) *Engine {
	cp := *e
	cp.store = store
	return &cp
}

// WithDispatcher returns a copy of the engine using d for pushes. A nil d
// disables dispatch, leaving it to the caller.
func (e *Engine) WithDispatcher(d Dispatcher) *Engine {
	cp := *e
	cp.dispatcher = d
	return &cp
}

// WithClock returns a copy of the engine reading "now" from c. Used for
// backfills with an explicit reference time.
func (e *Engine) WithClock(c types.Clock) *Engine {
	cp := *e
	cp.clock = c
	return &cp
}

// Evaluate runs every rule for p and returns how many notifications were
// created. Failures of individual rules are logged, joined and returned, but
// never stop later rules from running.
func (e *Engine) Evaluate(ctx context.Context, p *types.Plantation, forecast *types.Forecast, last *types.Snapshot) (int, error) {
	return e.evaluate(ctx, p, forecast, last, e.rules)
}

// EvaluateReminders runs only the time-of-day watering reminders. It backs the
// evening sweep, which must not re-run the weather rules.
func (e *Engine) EvaluateReminders(ctx context.Context, p *types.Plantation, forecast *types.Forecast, last *types.Snapshot) (int, error) {
	var reminders []rule
	for _, r := range e.rules {
		if r.reminder {
			reminders = append(reminders, r)
		}
	}
	return e.evaluate(ctx, p, forecast, last, reminders)
}

func (e *Engine) evaluate(ctx context.Context, p *types.Plantation, forecast *types.Forecast, last *types.Snapshot, rules []rule) (int, error) {
	if last == nil {
		last = p.LastSnapshot()
	}
	ev := newEvaluation(p, forecast, last, e.clock.Now(), e.cfg)

	var (
		created int
		errs    []error
	)
	for _, r := range rules {
		c := r.check(ev)
		if c == nil {
			continue
		}
		ok, err := e.emit(ctx, ev, c)
		if err != nil {
			e.logger.WarnContext(ctx, "alert rule failed",
				"plantation_id", p.ID,
				"rule", r.name,
				"notification_type", string(c.typ),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("rule %s: %w", r.name, err))
			continue
		}
		if ok {
			created++
		}
	}
	return created, errors.Join(errs...)
}

// emit runs dedup, construction, persistence and dispatch for one candidate.
// It reports false without error when dedup suppressed the candidate.
func (e *Engine) emit(ctx context.Context, ev *evaluation, c *candidate) (bool, error) {
	var (
		exists bool
		err    error
	)
	if c.unreadDedup {
		exists, err = e.store.HasUnreadNotification(ctx, ev.p.ID, c.typ)
	} else {
		exists, err = e.store.HasRecentNotification(ctx, ev.p.ID, c.typ, ev.windowStart(c.windowDays))
	}
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	if exists {
		return false, nil
	}

	n, err := e.build(ev.p, c.typ, c.priority, c.title, c.message, ev.now)
	if err != nil {
		return false, err
	}
	if err := e.store.Create(ctx, n); err != nil {
		return false, fmt.Errorf("persist notification: %w", err)
	}

	e.dispatch(ctx, ev.p, n)
	return true, nil
}

func (e *Engine) build(p *types.Plantation, t types.NotificationType, prio types.Priority, title, msg string, now time.Time) (*types.Notification, error) {
	plantationID := p.ID
	return types.NewNotification(types.NotificationParams{
		ID:           e.newID(),
		Type:         t,
		Priority:     prio,
		Title:        title,
		Message:      msg,
		PlantationID: &plantationID,
		UserID:       p.UserID,
		CreatedAt:    now,
	})
}

func (e *Engine) dispatch(ctx context.Context, p *types.Plantation, n *types.Notification) {
	if e.dispatcher == nil {
		return
	}
	if !e.dispatcher.Dispatch(ctx, p.OwnerPhone, n) {
		e.logger.DebugContext(ctx, "notification persisted without push",
			"plantation_id", p.ID,
			"notification_id", n.ID,
		)
	}
}

// -----------------------------------------------------------------------------
// Evaluation context
// -----------------------------------------------------------------------------

// evaluation is the read-only view every rule receives.
type evaluation struct {
	p        *types.Plantation
	tpl      *types.Template
	forecast *types.Forecast
	last     *types.Snapshot
	now      time.Time
	today    time.Time
	outdoor  bool
	cfg      Config
}

func newEvaluation(p *types.Plantation, forecast *types.Forecast, last *types.Snapshot, now time.Time, cfg Config) *evaluation {
	return &evaluation{
		p:        p,
		tpl:      p.Template,
		forecast: forecast,
		last:     last,
		now:      now,
		today:    types.StartOfDay(now),
		outdoor:  watering.IsOutdoor(p, p.Template),
		cfg:      cfg,
	}
}

// windowStart converts an N-day dedup window into its lower bound: local
// midnight N-1 days before today.
func (ev *evaluation) windowStart(days int) time.Time {
	if days < 1 {
		days = 1
	}
	return types.AddDays(ev.today, -(days - 1))
}

// clock returns the wall-clock offset from local midnight.
func (ev *evaluation) clock() time.Duration {
	return time.Duration(ev.now.Hour())*time.Hour + time.Duration(ev.now.Minute())*time.Minute
}

// wateringDueToday reports whether the last recommendation is for today.
func (ev *evaluation) wateringDueToday() bool {
	return ev.last != nil && types.SameDay(ev.last.WateringDate.In(ev.today.Location()), ev.today)
}

// manualWateringSince reports evidence of a hand watering at or after cutoff,
// from the plantation's last-watered timestamp or a manual snapshot. Snapshots
// are newest first; the scan stops at the first one older than cutoff.
func (ev *evaluation) manualWateringSince(cutoff time.Time) bool {
	if ev.p.LastWateredAt != nil && !ev.p.LastWateredAt.Before(cutoff) {
		return true
	}
	for _, s := range ev.p.Snapshots {
		if s.CreatedAt.Before(cutoff) {
			break
		}
		if s.Details.Manual {
			return true
		}
	}
	return false
}
