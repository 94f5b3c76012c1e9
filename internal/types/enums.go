package types

import (
	"fmt"
	"strings"
)

// PlantationStatus represents the lifecycle state of a Plantation. Transitions
// happen outside the decision engine; the daily batch only reads active rows.
type PlantationStatus string

const (
	PlantationActive    PlantationStatus = "active"
	PlantationHarvested PlantationStatus = "harvested"
	PlantationArchived  PlantationStatus = "archived"
	PlantationPaused    PlantationStatus = "paused"
)

// Priority is the urgency tier of a Notification.
type Priority string

const (
	PriorityUrgent    Priority = "URGENT"
	PriorityImportant Priority = "IMPORTANT"
	PriorityInfo      Priority = "INFO"
)

// Valid reports whether p belongs to the fixed priority vocabulary.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityImportant, PriorityInfo:
		return true
	}
	return false
}

// ParsePriority converts a raw string (case-insensitive) into a Priority.
// Unknown values are a data-quality error.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", NewAppError(ErrCodeValidationInvalidPriority,
			fmt.Sprintf("priority %q is not one of URGENT, IMPORTANT, INFO", s), nil)
	}
	return p, nil
}

// NotificationType is the code identifying which rule or flow produced a
// Notification. Dedup queries are keyed on it.
type NotificationType string

const (
	NotifPlantingReminder2d NotificationType = "planting_reminder_2d"
	NotifPlantingReminder1d NotificationType = "planting_reminder_1d"
	NotifPlantingDueToday   NotificationType = "planting_due_today"
	NotifPlantingOverdue    NotificationType = "planting_overdue"
	NotifFrostAlert         NotificationType = "frost_alert"
	NotifHeatAlert          NotificationType = "heat_alert"
	NotifHeatwaveWarning    NotificationType = "heatwave_warning"
	NotifRainPostponement   NotificationType = "rain_postponement"
	NotifExcessRainDrainage NotificationType = "excess_rain_drainage"
	NotifMissedWatering     NotificationType = "missed_watering"
	NotifFertilization      NotificationType = "fertilization_reminder"
	NotifWateringMorning    NotificationType = "watering_reminder_morning"
	NotifWateringEvening    NotificationType = "watering_reminder_evening"
	NotifDecisionAdvice     NotificationType = "decision_advice"
)

var knownNotificationTypes = map[NotificationType]struct{}{
	NotifPlantingReminder2d: {},
	NotifPlantingReminder1d: {},
	NotifPlantingDueToday:   {},
	NotifPlantingOverdue:    {},
	NotifFrostAlert:         {},
	NotifHeatAlert:          {},
	NotifHeatwaveWarning:    {},
	NotifRainPostponement:   {},
	NotifExcessRainDrainage: {},
	NotifMissedWatering:     {},
	NotifFertilization:      {},
	NotifWateringMorning:    {},
	NotifWateringEvening:    {},
	NotifDecisionAdvice:     {},
}

// Valid reports whether t belongs to the notification type vocabulary.
func (t NotificationType) Valid() bool {
	_, ok := knownNotificationTypes[t]
	return ok
}

// StageSource distinguishes a plantation that has not been physically planted
// from one whose progression was computed normally.
type StageSource string

const (
	StageSourcePending StageSource = "pending_confirmation"
	StageSourceDefault StageSource = "default"
)
