// Package runstate implements the once-per-day lease around the daily batch.
//
// State lives in a single named RunState row whose payload holds last_run_at
// and an optional lock_at. The guard moves through Idle -> Locked -> Idle:
// TryAcquire takes the lease, MarkCompleted records the run and frees it, and
// Release frees it without recording a run so a later trigger can retry the
// same day. A lease older than the staleness window is treated as abandoned.
//
// Mutual exclusion is provided entirely by the Store, which must execute each
// Update as a serializable read-modify-write on the row (SELECT ... FOR UPDATE
// in Postgres).
package runstate

import (
	"context"
	"log/slog"
	"time"

	"gardenwatch/internal/types"
)

// DefaultStaleness is how long a lease is honored before another trigger may
// steal it.
const DefaultStaleness = 15 * time.Minute

// Store is the lease record's storage collaborator.
type Store interface {
	// Get returns the payload for name. A missing row yields a zero payload.
	Get(ctx context.Context, name string) (types.RunStatePayload, error)

	// Update loads the payload for name under an exclusive row lock, creating
	// the row if needed, and passes it to fn. The payload is written back and
	// the transaction committed only when fn returns true; otherwise the
	// transaction is rolled back. Concurrent Updates for the same name must
	// serialize.
	Update(ctx context.Context, name string, fn func(p *types.RunStatePayload) (bool, error)) error
}

// Config parameterizes a Guard.
type Config struct {
	Key       string
	Staleness time.Duration
}

// Status is a point-in-time view of the lease, used by diagnostics.
type Status struct {
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LockAt    *time.Time `json:"lock_at,omitempty"`
	LockHeld  bool       `json:"lock_held"`
	NeedsRun  bool       `json:"needs_run"`
}

// Guard is the RunStateGuard.
type Guard struct {
	store     Store
	clock     types.Clock
	key       string
	staleness time.Duration
	logger    *slog.Logger
}

// NewGuard creates a Guard. Empty Key defaults to "daily_process" and a
// non-positive Staleness to DefaultStaleness.
func NewGuard(store Store, clock types.Clock, cfg Config, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if cfg.Key == "" {
		cfg.Key = types.RunStateDailyProcess
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = DefaultStaleness
	}
	return &Guard{
		store:     store,
		clock:     clock,
		key:       cfg.Key,
		staleness: cfg.Staleness,
		logger:    logger,
	}
}

// Key returns the RunState name this guard protects.
func (g *Guard) Key() string { return g.key }

// NeedsRun reports whether no run has completed since the start of today.
func (g *Guard) NeedsRun(ctx context.Context) (bool, error) {
	p, err := g.store.Get(ctx, g.key)
	if err != nil {
		return false, err
	}
	return g.needsRun(p, g.clock.Now()), nil
}

// TryAcquire takes the lease if a run is still needed today and no fresh
// lease is held. Losing the race is a normal outcome and returns false with a
// nil error.
func (g *Guard) TryAcquire(ctx context.Context) (bool, error) {
	now := g.clock.Now()
	acquired := false
	err := g.store.Update(ctx, g.key, func(p *types.RunStatePayload) (bool, error) {
		if !g.needsRun(*p, now) {
			return false, nil
		}
		if p.LockAt != nil && !g.isExpiredAt(*p.LockAt, now) {
			return false, nil
		}
		if p.LockAt != nil {
			g.logger.WarnContext(ctx, "taking over stale run lock",
				"key", g.key,
				"lock_at", p.LockAt.Format(time.RFC3339),
			)
		}
		lockAt := now
		p.LockAt = &lockAt
		acquired = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// MarkCompleted records a finished run and clears the lease.
func (g *Guard) MarkCompleted(ctx context.Context) error {
	now := g.clock.Now()
	return g.store.Update(ctx, g.key, func(p *types.RunStatePayload) (bool, error) {
		lastRun := now
		p.LastRunAt = &lastRun
		p.LockAt = nil
		return true, nil
	})
}

// Release clears the lease without recording a run.
func (g *Guard) Release(ctx context.Context) error {
	return g.store.Update(ctx, g.key, func(p *types.RunStatePayload) (bool, error) {
		if p.LockAt == nil {
			return false, nil
		}
		p.LockAt = nil
		return true, nil
	})
}

// IsExpired reports whether a lease taken at lockAt is past the staleness
// window.
func (g *Guard) IsExpired(lockAt time.Time) bool {
	return g.isExpiredAt(lockAt, g.clock.Now())
}

// Status reads the current lease state.
func (g *Guard) Status(ctx context.Context) (Status, error) {
	p, err := g.store.Get(ctx, g.key)
	if err != nil {
		return Status{}, err
	}
	now := g.clock.Now()
	return Status{
		LastRunAt: p.LastRunAt,
		LockAt:    p.LockAt,
		LockHeld:  p.LockAt != nil && !g.isExpiredAt(*p.LockAt, now),
		NeedsRun:  g.needsRun(p, now),
	}, nil
}

func (g *Guard) needsRun(p types.RunStatePayload, now time.Time) bool {
	return p.LastRunAt == nil || p.LastRunAt.Before(types.StartOfDay(now))
}

func (g *Guard) isExpiredAt(lockAt, now time.Time) bool {
	return now.Sub(lockAt) >= g.staleness
}
