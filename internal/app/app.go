// Package app wires configuration, storage, transports and the decision
// engine into the objects every entry point shares.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"gardenwatch/internal/alerts"
	"gardenwatch/internal/config"
	"gardenwatch/internal/daily"
	"gardenwatch/internal/db"
	"gardenwatch/internal/external"
	"gardenwatch/internal/lifecycle"
	"gardenwatch/internal/notifications"
	"gardenwatch/internal/runstate"
	"gardenwatch/internal/scheduler"
	"gardenwatch/internal/telemetry"
	"gardenwatch/internal/types"
	"gardenwatch/internal/watering"
)

// App is the assembled service.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Pool   *pgxpool.Pool

	Weather     *external.OpenMeteoClient
	Dispatcher  *notifications.Dispatcher
	Runner      *daily.Runner
	Guard       *runstate.Guard
	Job         *scheduler.DailyJob
	Cleaner     *scheduler.SnapshotCleaner
	Diagnostics *scheduler.Diagnostics
}

// LoadConfig loads configuration, resolving *_SSM_PARAM variables through
// SSM outside local mode.
func LoadConfig() (*config.Config, error) {
	provider := config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))
	return config.LoadConfig(provider)
}

// NewLogger returns a JSON slog.Logger on stdout at the given level.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// New opens the database pool and builds every component.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:               cfg.Database.URL.Unmask(),
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	a, err := Build(ctx, cfg, logger, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

// Build assembles the components over an existing pool.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool db.Pool) (*App, error) {
	clock := types.ZonedClock{Location: cfg.Location()}

	plantations := db.NewPlantationRepository(pool, cfg.Database.RecentSnapshots)
	notifRepo := db.NewNotificationRepository(pool)
	snapshots := db.NewSnapshotRepository(pool)
	runStates := db.NewRunStateRepository(pool)
	writer := db.NewBatchWriter(pool)

	sender, err := buildSender(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	dispatcher := notifications.NewDispatcher(sender, notifications.Config{
		Provider:    cfg.Dispatch.Provider,
		SendTimeout: cfg.Dispatch.SendTimeout,
	}, logger)

	weather := external.NewOpenMeteoClient(external.OpenMeteoConfig{
		BaseURL:      cfg.Weather.BaseURL,
		ForecastDays: cfg.Weather.ForecastDays,
		Timeout:      cfg.Weather.Timeout,
		Logger:       logger,
	})

	lc, err := lifecycle.NewCalculator(cfg.LifecycleCalculatorConfig())
	if err != nil {
		return nil, fmt.Errorf("building lifecycle calculator: %w", err)
	}
	wc := watering.NewCalculator(cfg.WateringCalculatorConfig())
	engine := alerts.NewEngine(notifRepo, dispatcher, clock, cfg.AlertEngineConfig(), logger)

	runner, err := daily.NewRunner(daily.Deps{
		Plantations:   plantations,
		Weather:       weather,
		Notifications: notifRepo,
		Writer:        writer,
		Engine:        engine,
		Lifecycle:     lc,
		Watering:      wc,
		Dispatcher:    dispatcher,
		Metrics:       buildMetrics(ctx, cfg, logger),
		Clock:         clock,
		Logger:        logger,
	}, daily.Config{ForecastDays: cfg.Weather.ForecastDays})
	if err != nil {
		return nil, fmt.Errorf("building daily runner: %w", err)
	}

	guard := runstate.NewGuard(runStates, clock, cfg.GuardConfig(), logger)
	loc := cfg.Location()
	job := scheduler.NewDailyJob(runner, guard, clock, logger).
		WithReplay(func(c types.Clock) scheduler.BatchRunner {
			return runner.WithClock(types.FixedClock{T: c.Now().In(loc)})
		})

	return &App{
		Config:      cfg,
		Logger:      logger,
		Pool:        poolOf(pool),
		Weather:     weather,
		Dispatcher:  dispatcher,
		Runner:      runner,
		Guard:       guard,
		Job:         job,
		Cleaner:     scheduler.NewSnapshotCleaner(snapshots, clock, scheduler.DefaultCleanupBatchSize, logger),
		Diagnostics: scheduler.NewDiagnostics(notifRepo, guard, dispatcher, clock),
	}, nil
}

// Close releases the database pool.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// CronConfig derives the cron scheduler settings.
func (a *App) CronConfig() scheduler.CronConfig {
	return scheduler.CronConfig{
		DailyCron:   a.Config.Scheduler.DailyCron,
		EveningCron: a.Config.Scheduler.EveningCron,
		Location:    a.Config.Location(),
		RunTimeout:  a.Config.Scheduler.LockStaleness,
	}
}

func poolOf(p db.Pool) *pgxpool.Pool {
	pp, _ := p.(*pgxpool.Pool)
	return pp
}

// buildSender returns the configured push transport, or nil for "none".
func buildSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notifications.Sender, error) {
	d := cfg.Dispatch
	switch d.Provider {
	case external.ProviderWhatsApp:
		return external.NewWhatsAppClient(external.WhatsAppConfig{
			BaseURL:  d.WhatsAppGatewayURL,
			Token:    d.WhatsAppToken,
			SenderID: d.WhatsAppSenderID,
			Timeout:  d.SendTimeout,
			Logger:   logger,
		}), nil
	case external.ProviderFCM:
		s, err := external.NewFCMSender(ctx, external.FCMConfig{
			CredentialsFile:   d.FCMCredentialsFile,
			CredentialsBase64: d.FCMCredentialsBase64,
			TopicPrefix:       d.FCMTopicPrefix,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing FCM: %w", err)
		}
		return s, nil
	default:
		logger.Warn("no push transport configured, notifications are stored only")
		return nil, nil
	}
}

// buildMetrics returns a CloudWatch publisher when metrics are enabled. AWS
// setup failures degrade to the no-op publisher.
func buildMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) daily.MetricsPublisher {
	if !cfg.Observability.EnableMetrics {
		return telemetry.NopPublisher{}
	}

	loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	awsCfg, err := awsconfig.LoadDefaultConfig(loadCtx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Warn("failed to load AWS config, metrics disabled", "error", err)
		return telemetry.NopPublisher{}
	}
	client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	return telemetry.NewCloudWatchPublisher(client, cfg.Observability.MetricNamespace, cfg.Scheduler.RunStateKey, logger)
}
