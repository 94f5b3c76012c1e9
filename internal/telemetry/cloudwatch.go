// Package telemetry publishes batch metrics to CloudWatch.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"gardenwatch/internal/daily"
	"gardenwatch/internal/types"
)

// DefaultNamespace is the CloudWatch namespace used when none is configured.
const DefaultNamespace = "GardenWatch"

// Metric names.
const (
	MetricSnapshotsCreated     = "SnapshotsCreated"
	MetricNotificationsCreated = "NotificationsCreated"
	MetricPlantationsActive    = "PlantationsActive"
	MetricSnapshotsSkipped     = "SnapshotsSkipped"
	MetricWeatherErrors        = "WeatherErrors"
	MetricRuleErrors           = "RuleErrors"
	MetricNotificationsPushed  = "NotificationsPushed"
	MetricBatchDuration        = "BatchDuration"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertion that CloudWatchPublisher implements daily.MetricsPublisher.
var _ daily.MetricsPublisher = (*CloudWatchPublisher)(nil)

// CloudWatchPublisher emits one PutMetricData call per batch run. Every datum
// carries a Job dimension so the morning run and the evening sweep chart
// separately.
type CloudWatchPublisher struct {
	client    CloudWatchClient
	namespace string
	job       string
	logger    *slog.Logger
}

// NewCloudWatchPublisher creates a publisher for job (e.g. "daily_process").
func NewCloudWatchPublisher(client CloudWatchClient, namespace, job string, logger *slog.Logger) *CloudWatchPublisher {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if job == "" {
		job = types.RunStateDailyProcess
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchPublisher{client: client, namespace: namespace, job: job, logger: logger}
}

// WithJob returns a copy publishing under a different Job dimension.
func (p *CloudWatchPublisher) WithJob(job string) *CloudWatchPublisher {
	cp := *p
	cp.job = job
	return &cp
}

// PublishBatchSummary sends the run counters and duration.
func (p *CloudWatchPublisher) PublishBatchSummary(ctx context.Context, s daily.Summary) error {
	dims := []cwtypes.Dimension{{Name: aws.String("Job"), Value: aws.String(p.job)}}
	count := func(name string, v int) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(float64(v)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{
			count(MetricSnapshotsCreated, s.Processed),
			count(MetricNotificationsCreated, s.Notifications),
			count(MetricPlantationsActive, s.Total),
			count(MetricSnapshotsSkipped, s.SnapshotsSkipped),
			count(MetricWeatherErrors, s.WeatherErrors),
			count(MetricRuleErrors, s.RuleErrors),
			count(MetricNotificationsPushed, s.Pushed),
			{
				MetricName: aws.String(MetricBatchDuration),
				Value:      aws.Float64(float64(s.Duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
		},
	}

	if _, err := p.client.PutMetricData(ctx, input); err != nil {
		p.logger.WarnContext(ctx, "failed to publish batch metrics",
			"namespace", p.namespace,
			"job", p.job,
			"error", err,
		)
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

// NopPublisher discards metrics. Used when metrics are disabled.
type NopPublisher struct{}

// PublishBatchSummary implements daily.MetricsPublisher.
func (NopPublisher) PublishBatchSummary(context.Context, daily.Summary) error { return nil }
