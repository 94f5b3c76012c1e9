package types

import (
	"strings"
	"time"
)

// Template is the read-only species/care profile a Plantation is created from.
// The decision engine never mutates it.
type Template struct {
	ID                string   `json:"id" db:"id"`
	Name              string   `json:"name" db:"name"`
	Type              string   `json:"type" db:"type"`
	HarvestDays       int      `json:"expected_harvest_days" db:"expected_harvest_days"`
	WateringFrequency string   `json:"watering_frequency" db:"watering_frequency"`
	WateringQuantity  *float64 `json:"watering_quantity_ml,omitempty" db:"watering_quantity_ml"`
	SunExposure       string   `json:"sun_exposure" db:"sun_exposure"`
	LocationHint      string   `json:"location_hint" db:"location_hint"`
}

// Plantation is a user's tracked instance of a Template.
type Plantation struct {
	ID            string           `json:"id" db:"id"`
	UserID        string           `json:"user_id" db:"user_id"`
	TemplateID    string           `json:"template_id" db:"template_id"`
	PlantingDate  time.Time        `json:"planting_date" db:"planting_date"`
	// PlantedAt is nil until the user confirms the plant is in the ground.
	PlantedAt     *time.Time       `json:"planted_at,omitempty" db:"planted_at"`
	LastWateredAt *time.Time       `json:"last_watered_at,omitempty" db:"last_watered_at"`
	Status        PlantationStatus `json:"status" db:"status"`
	Location      string           `json:"location" db:"location"`
	Latitude      *float64         `json:"latitude,omitempty" db:"latitude"`
	Longitude     *float64         `json:"longitude,omitempty" db:"longitude"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`

	// Hydrated Fields (not in the plantations table)
	Template   *Template  `json:"template,omitempty" db:"-"`
	OwnerPhone string     `json:"-" db:"-"`
	Snapshots  []Snapshot `json:"snapshots,omitempty" db:"-"` // newest first
}

// Confirmed reports whether the plantation has been physically planted.
func (p *Plantation) Confirmed() bool {
	return p.PlantedAt != nil
}

// PlantingDay returns the planned planting date as midnight in loc. The
// column is a calendar DATE, so its year, month and day are kept as is.
func (p *Plantation) PlantingDay(loc *time.Location) time.Time {
	y, m, d := p.PlantingDate.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// HasCoordinates reports whether a weather lookup is possible.
func (p *Plantation) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// LastSnapshot returns the most recent snapshot, or nil if none exist.
func (p *Plantation) LastSnapshot() *Snapshot {
	if len(p.Snapshots) == 0 {
		return nil
	}
	return &p.Snapshots[0]
}

// WateringThresholds are the rain and temperature limits the watering
// calculator applied. They are recorded in every snapshot.
type WateringThresholds struct {
	AutoRainMM     float64 `json:"auto_rain_mm" envconfig:"WATERING_AUTO_RAIN_MM" default:"5"`
	ReduceRainMM   float64 `json:"reduce_rain_mm" envconfig:"WATERING_REDUCE_RAIN_MM" default:"2"`
	PostponeRainMM float64 `json:"postpone_rain_mm" envconfig:"WATERING_POSTPONE_RAIN_MM" default:"7"`
	HighTempC      float64 `json:"high_temp_c" envconfig:"WATERING_HIGH_TEMP_C" default:"32"`
	LowTempC       float64 `json:"low_temp_c" envconfig:"WATERING_LOW_TEMP_C" default:"10"`
}

// LifecycleDetails explains how progression and stage were derived.
type LifecycleDetails struct {
	StageSource StageSource `json:"stage_source"`
	ElapsedDays int         `json:"elapsed_days,omitempty"`
	HarvestDays int         `json:"harvest_days,omitempty"`
	Explanation string      `json:"explanation,omitempty"`
}

// WateringDetails records the watering calculator's rationale.
type WateringDetails struct {
	Notes                []string           `json:"notes"`
	FrequencyDays        int                `json:"frequency_days"`
	AutoWateredDueToRain bool               `json:"auto_watered_due_to_rain"`
	Thresholds           WateringThresholds `json:"thresholds"`
}

// DecisionDetails is the structured JSONB blob stored with each Snapshot.
type DecisionDetails struct {
	Lifecycle LifecycleDetails `json:"lifecycle"`
	Watering  WateringDetails  `json:"watering"`
	// Manual marks a snapshot written because the user watered by hand.
	Manual bool `json:"manual,omitempty"`
	// Retroactive marks a snapshot recorded after the fact (e.g. a planting
	// confirmed with a date in the past).
	Retroactive bool `json:"retroactive,omitempty"`
}

// WeatherSnapshot is the forecast slice a decision was based on.
type WeatherSnapshot struct {
	Daily []DailyForecast `json:"daily"`
	Error string          `json:"error,omitempty"`
}

// Snapshot is an immutable daily decision record for a Plantation.
type Snapshot struct {
	ID               string          `json:"id" db:"id"`
	PlantationID     string          `json:"plantation_id" db:"plantation_id"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	Progression      float64         `json:"progression" db:"progression"`
	Stage            string          `json:"stage" db:"stage"`
	WateringDate     time.Time       `json:"watering_date" db:"watering_date"`
	WateringQuantity float64         `json:"watering_quantity_ml" db:"watering_quantity_ml"`
	Details          DecisionDetails `json:"decision_details" db:"decision_details"`
	Weather          WeatherSnapshot `json:"weather" db:"weather"`
}

// Notification is an alert record shown to the user and optionally pushed.
type Notification struct {
	ID           string           `json:"id" db:"id"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	Type         NotificationType `json:"type" db:"type"`
	Priority     Priority         `json:"priority" db:"priority"`
	Title        string           `json:"title" db:"title"`
	Message      string           `json:"message" db:"message"`
	Read         bool             `json:"read" db:"is_read"`
	PlantationID *string          `json:"plantation_id,omitempty" db:"plantation_id"`
	UserID       string           `json:"user_id" db:"user_id"`
}

// NotificationParams groups the inputs of NewNotification.
type NotificationParams struct {
	ID           string
	Type         NotificationType
	Priority     Priority
	Title        string
	Message      string
	PlantationID *string
	UserID       string
	CreatedAt    time.Time
}

// NewNotification validates params and builds an unread Notification.
// An unknown priority or type, an empty title, or a missing owner reference is
// a data-quality error and fails construction.
func NewNotification(params NotificationParams) (*Notification, error) {
	if !params.Priority.Valid() {
		return nil, NewAppError(ErrCodeValidationInvalidPriority,
			"priority \""+string(params.Priority)+"\" is not one of URGENT, IMPORTANT, INFO", nil)
	}
	if !params.Type.Valid() {
		return nil, NewAppError(ErrCodeValidationInvalidType,
			"unknown notification type \""+string(params.Type)+"\"", nil)
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, NewAppError(ErrCodeValidationMissingField, "notification title is required", nil)
	}
	if params.PlantationID == nil && params.UserID == "" {
		return nil, NewAppError(ErrCodeValidationMissingField,
			"notification must reference a plantation or a user", nil)
	}
	if params.CreatedAt.IsZero() {
		return nil, NewAppError(ErrCodeValidationInvalidDate, "notification creation time is required", nil)
	}
	return &Notification{
		ID:           params.ID,
		CreatedAt:    params.CreatedAt,
		Type:         params.Type,
		Priority:     params.Priority,
		Title:        params.Title,
		Message:      params.Message,
		PlantationID: params.PlantationID,
		UserID:       params.UserID,
	}, nil
}

// RunStateDailyProcess is the RunState key used by the daily batch.
const RunStateDailyProcess = "daily_process"

// RunStatePayload is the JSON payload of a RunState row. Times are encoded as
// RFC 3339 (ISO-8601).
type RunStatePayload struct {
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LockAt    *time.Time `json:"lock_at,omitempty"`
}

// RunState is a named singleton record holding global job state.
type RunState struct {
	Name      string          `json:"name" db:"name"`
	Payload   RunStatePayload `json:"payload" db:"payload"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
