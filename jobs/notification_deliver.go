package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/voyage-crm/voyage/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// NotificationDeliverer renders and stores a notification.
type NotificationDeliverer interface {
	Deliver(ctx context.Context, payload NotificationPayload) error
}

// NotificationDeliverJob handles TaskNotificationDeliver.
type NotificationDeliverJob struct {
	Deliverer NotificationDeliverer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewNotificationDeliverJob wires dependencies for the delivery handler.
func NewNotificationDeliverJob(deliverer NotificationDeliverer, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotificationDeliverJob {
	return &NotificationDeliverJob{Deliverer: deliverer, Logger: logger, Metrics: metrics}
}

// Handle stores one notification. Malformed payloads are not retried.
func (j *NotificationDeliverJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Deliverer == nil {
		return errors.New("notification deliver: handler not configured")
	}
	var payload NotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("notification deliver: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.UserID == 0 || payload.Key == "" {
		return fmt.Errorf("notification deliver: user and key required: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskNotificationDeliver)
	defer func() { err = tracker.End(err) }()

	if err = j.Deliverer.Deliver(ctx, payload); err != nil {
		j.logger().Warn("deliver notification",
			slog.Int64("user_id", payload.UserID),
			slog.String("key", payload.Key),
			slog.Any("error", err),
		)
		return err
	}
	tracker.Items(payload.Key, 1)
	return nil
}

func (j *NotificationDeliverJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskNotificationDeliver))
	}
	return slog.Default().With(slog.String("job", TaskNotificationDeliver))
}

func (j *NotificationDeliverJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
