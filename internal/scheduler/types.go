// Package scheduler drives the daily batch: it decides when a run happens
// (cron, Lambda event, CLI, request fallback), guards it with the run-state
// lease, and hosts the maintenance jobs (snapshot cleanup, diagnostics).
package scheduler

import "time"

// TaskType identifies which job an EventBridge event asks for.
type TaskType string

const (
	TaskDailyProcess     TaskType = "daily_process"
	TaskEveningReminders TaskType = "evening_reminders"
	TaskCleanupSnapshots TaskType = "cleanup_snapshots"
)

// Valid reports whether t is a known task.
func (t TaskType) Valid() bool {
	switch t {
	case TaskDailyProcess, TaskEveningReminders, TaskCleanupSnapshots:
		return true
	}
	return false
}

// TaskPayload is the JSON payload EventBridge sends to the daily Lambda.
//
//	{
//	  "task": "daily_process",
//	  "reference_time": "2026-06-15T04:00:00Z"  // optional
//	}
type TaskPayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime replays a run as of that instant, bypassing the lease.
	// If nil, the run uses the real clock and the lease.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
	// OlderThanMonths applies to cleanup_snapshots; zero uses the configured
	// retention.
	OlderThanMonths int `json:"older_than_months,omitempty"`
}

// Outcome describes what a guarded trigger did.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeSkippedNotNeeded Outcome = "skipped_not_needed"
	OutcomeSkippedLocked    Outcome = "skipped_locked"
)
