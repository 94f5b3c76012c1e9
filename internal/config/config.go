// Package config defines the configuration of the gardenwatch binaries.
// Configuration is loaded once at process start and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Every agronomic threshold has a documented default; any invalid value fails
// the load (fail fast).
package config

import (
	"time"

	"gardenwatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subset they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"gardenwatch"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Weather       WeatherConfig
	Dispatch      DispatchConfig
	Scheduler     SchedulerConfig
	Observability ObservabilityConfig
	Lifecycle     LifecycleConfig
	Watering      WateringConfig
	Alerts        AlertsConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings for cmd/server.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	// FallbackTrigger starts the daily run from request traffic when the
	// scheduled trigger did not fire.
	FallbackTrigger bool `envconfig:"FALLBACK_TRIGGER_ENABLED" default:"true"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	// Resolved from SSM or Env
	URL SecretString `envconfig:"DATABASE_URL" required:"true" validate:"required"`

	// Tuning Parameters
	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"5" validate:"min=1"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"0" validate:"min=0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
	// RecentSnapshots is how many snapshots per plantation the batch loads.
	RecentSnapshots int `envconfig:"DB_RECENT_SNAPSHOTS" default:"10" validate:"min=1"`
}

// AWSConfig holds regional configuration for SSM and CloudWatch.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"eu-west-3"`
	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// WeatherConfig configures the Open-Meteo client.
type WeatherConfig struct {
	BaseURL      string        `envconfig:"WEATHER_BASE_URL" default:"https://api.open-meteo.com" validate:"required,url"`
	Timeout      time.Duration `envconfig:"WEATHER_TIMEOUT" default:"10s"`
	ForecastDays int           `envconfig:"WEATHER_FORECAST_DAYS" default:"7" validate:"min=3,max=16"`
}

// DispatchConfig selects and configures the push transport.
type DispatchConfig struct {
	Provider    string        `envconfig:"DISPATCH_PROVIDER" default:"none" validate:"oneof=whatsapp fcm none"`
	SendTimeout time.Duration `envconfig:"DISPATCH_SEND_TIMEOUT" default:"15s"`

	WhatsAppGatewayURL string       `envconfig:"WHATSAPP_GATEWAY_URL" validate:"required_if=Provider whatsapp,omitempty,url"`
	WhatsAppToken      SecretString `envconfig:"WHATSAPP_TOKEN"`
	WhatsAppSenderID   string       `envconfig:"WHATSAPP_SENDER_ID"`

	FCMCredentialsFile   string       `envconfig:"FCM_CREDENTIALS_FILE"`
	FCMCredentialsBase64 SecretString `envconfig:"FCM_CREDENTIALS_BASE64"`
	FCMTopicPrefix       string       `envconfig:"FCM_TOPIC_PREFIX" default:"garden-"`
}

// SchedulerConfig controls when and how the daily run is triggered.
type SchedulerConfig struct {
	DailyCron     string        `envconfig:"DAILY_CRON" default:"0 6 * * *" validate:"required"`
	EveningCron   string        `envconfig:"EVENING_CRON" default:"30 15 * * *"`
	RunStateKey   string        `envconfig:"RUN_STATE_KEY" default:"daily_process" validate:"required"`
	LockStaleness time.Duration `envconfig:"LOCK_STALENESS" default:"15m" validate:"min=1m"`
	Timezone      string        `envconfig:"TIMEZONE" default:"Europe/Paris" validate:"required"`
	CleanupMonths int           `envconfig:"SNAPSHOT_RETENTION_MONTHS" default:"12" validate:"min=1"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"GardenWatch"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// LifecycleConfig holds the growth stage buckets.
type LifecycleConfig struct {
	StageThresholds    []float64 `envconfig:"LIFECYCLE_STAGE_THRESHOLDS" default:"10,40,70" validate:"len=3,dive,gt=0,lt=100"`
	DefaultHarvestDays int       `envconfig:"LIFECYCLE_DEFAULT_HARVEST_DAYS" default:"90" validate:"min=1"`
}

// WateringConfig holds the watering calculator thresholds and fallbacks.
type WateringConfig struct {
	Thresholds           types.WateringThresholds
	DefaultQuantityML    float64 `envconfig:"WATERING_DEFAULT_QUANTITY_ML" default:"500" validate:"gt=0"`
	DefaultFrequencyDays int     `envconfig:"WATERING_DEFAULT_FREQUENCY_DAYS" default:"3" validate:"min=1"`
}

// AlertsConfig holds the alert rule thresholds. Reminder windows are offsets
// from local midnight (e.g. "15h30m").
type AlertsConfig struct {
	FrostC                    float64       `envconfig:"ALERT_FROST_C" default:"2"`
	FrostUrgentC              float64       `envconfig:"ALERT_FROST_URGENT_C" default:"-2" validate:"ltefield=FrostC"`
	HeatC                     float64       `envconfig:"ALERT_HEAT_C" default:"30"`
	HeatUrgentC               float64       `envconfig:"ALERT_HEAT_URGENT_C" default:"35" validate:"gtefield=HeatC"`
	HeatwaveDays              int           `envconfig:"ALERT_HEATWAVE_DAYS" default:"2" validate:"min=1"`
	HeatwaveWindowDays        int           `envconfig:"ALERT_HEATWAVE_WINDOW_DAYS" default:"3" validate:"gtefield=HeatwaveDays"`
	RainPostponeMM            float64       `envconfig:"ALERT_RAIN_POSTPONE_MM" default:"5" validate:"gt=0"`
	DrainageSingleDayMM       float64       `envconfig:"ALERT_DRAINAGE_SINGLE_DAY_MM" default:"15" validate:"gt=0"`
	DrainageTwoDayMM          float64       `envconfig:"ALERT_DRAINAGE_TWO_DAY_MM" default:"25" validate:"gt=0"`
	MissedWateringDays        int           `envconfig:"ALERT_MISSED_WATERING_DAYS" default:"2" validate:"min=1"`
	FertilizationIntervalDays int           `envconfig:"ALERT_FERTILIZATION_INTERVAL_DAYS" default:"30" validate:"min=1"`
	MorningCutoff             time.Duration `envconfig:"ALERT_MORNING_CUTOFF" default:"12h" validate:"gt=0,lte=24h"`
	EveningStart              time.Duration `envconfig:"ALERT_EVENING_START" default:"15h30m" validate:"gte=0,lt=24h"`
	EveningEnd                time.Duration `envconfig:"ALERT_EVENING_END" default:"17h30m" validate:"gtfield=EveningStart,lte=24h"`
	AdviceCooldown            time.Duration `envconfig:"ALERT_ADVICE_COOLDOWN" default:"12h"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
