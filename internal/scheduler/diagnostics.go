package scheduler

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"gardenwatch/internal/runstate"
	"gardenwatch/internal/types"
)

// NotificationStats is the notification store surface diagnostics reads.
type NotificationStats interface {
	CountSince(ctx context.Context, since time.Time) (int, error)
	FindLastNotificationDate(ctx context.Context) (*time.Time, error)
}

// DispatchStatus reports on the push transport.
type DispatchStatus interface {
	Ready() bool
	Provider() string
}

// StatusReader reports on the daily lease.
type StatusReader interface {
	Status(ctx context.Context) (runstate.Status, error)
}

// Report is the diagnostics snapshot served by the CLI and GET /diagnostics.
type Report struct {
	GeneratedAt          time.Time  `json:"generated_at"`
	NotificationsLast24h int        `json:"notifications_last_24h"`
	NotificationsToday   int        `json:"notifications_today"`
	NotificationsLast7d  int        `json:"notifications_last_7d"`
	LastNotificationAt   *time.Time `json:"last_notification_at,omitempty"`
	LastRunAt            *time.Time `json:"last_run_at,omitempty"`
	LockHeld             bool       `json:"lock_held"`
	NeedsRun             bool       `json:"needs_run"`
	DispatchProvider     string     `json:"dispatch_provider"`
	DispatchReady        bool       `json:"dispatch_ready"`
}

// Diagnostics gathers a Report.
type Diagnostics struct {
	notifications NotificationStats
	lease         StatusReader
	dispatch      DispatchStatus
	clock         types.Clock
}

// NewDiagnostics creates a Diagnostics. dispatch may be nil.
func NewDiagnostics(notifications NotificationStats, lease StatusReader, dispatch DispatchStatus, clock types.Clock) *Diagnostics {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Diagnostics{notifications: notifications, lease: lease, dispatch: dispatch, clock: clock}
}

// Collect runs all reads concurrently. Any failed read fails the report.
func (d *Diagnostics) Collect(ctx context.Context) (*Report, error) {
	now := d.clock.Now()
	r := &Report{GeneratedAt: now, DispatchProvider: "none"}
	if d.dispatch != nil {
		r.DispatchProvider = d.dispatch.Provider()
		r.DispatchReady = d.dispatch.Ready()
	}

	g, gctx := errgroup.WithContext(ctx)
	count := func(since time.Time, dst *int) func() error {
		return func() error {
			n, err := d.notifications.CountSince(gctx, since)
			if err != nil {
				return fmt.Errorf("counting notifications since %s: %w", since.Format(time.RFC3339), err)
			}
			*dst = n
			return nil
		}
	}
	g.Go(count(now.Add(-24*time.Hour), &r.NotificationsLast24h))
	g.Go(count(types.StartOfDay(now), &r.NotificationsToday))
	g.Go(count(now.AddDate(0, 0, -7), &r.NotificationsLast7d))
	g.Go(func() error {
		last, err := d.notifications.FindLastNotificationDate(gctx)
		if err != nil {
			return fmt.Errorf("finding last notification: %w", err)
		}
		r.LastNotificationAt = last
		return nil
	})
	g.Go(func() error {
		st, err := d.lease.Status(gctx)
		if err != nil {
			return fmt.Errorf("reading run state: %w", err)
		}
		r.LastRunAt = st.LastRunAt
		r.LockHeld = st.LockHeld
		r.NeedsRun = st.NeedsRun
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return r, nil
}

// WriteText renders r for a terminal.
func (r *Report) WriteText(w io.Writer) error {
	fmtTime := func(t *time.Time) string {
		if t == nil {
			return "never"
		}
		return t.Format(time.RFC3339)
	}
	_, err := fmt.Fprintf(w,
		"Notifications (last 24h): %d\n"+
			"Notifications (today):    %d\n"+
			"Notifications (last 7d):  %d\n"+
			"Last notification:        %s\n"+
			"Last daily run:           %s\n"+
			"Lock held:                %t\n"+
			"Run needed:               %t\n"+
			"Dispatch provider:        %s (ready: %t)\n",
		r.NotificationsLast24h,
		r.NotificationsToday,
		r.NotificationsLast7d,
		fmtTime(r.LastNotificationAt),
		fmtTime(r.LastRunAt),
		r.LockHeld,
		r.NeedsRun,
		r.DispatchProvider, r.DispatchReady,
	)
	return err
}
