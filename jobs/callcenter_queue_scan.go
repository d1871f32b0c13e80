package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/voyage-crm/voyage/internal/jobs"
)

// QueueScanResult summarises the follow-up calls waiting for an agent.
type QueueScanResult struct {
	PreDeparture int
	PostArrival  int
	Notified     int
}

// QueueScanner counts the call-center queues and alerts managers.
type QueueScanner interface {
	ScanQueues(ctx context.Context, now time.Time) (QueueScanResult, error)
}

// CallCenterQueueScanJob handles TaskCallCenterQueueScan.
type CallCenterQueueScanJob struct {
	Scanner QueueScanner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewCallCenterQueueScanJob wires dependencies for the scan handler.
func NewCallCenterQueueScanJob(scanner QueueScanner, logger *slog.Logger, metrics *jobmetrics.Metrics) *CallCenterQueueScanJob {
	return &CallCenterQueueScanJob{
		Scanner: scanner,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle runs the scan.
func (j *CallCenterQueueScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Scanner == nil {
		return errors.New("callcenter queue scan: handler not configured")
	}
	var payload QueueScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("callcenter queue scan: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}

	tracker := j.metrics().Track(TaskCallCenterQueueScan)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.Time("as_of", asOf))
	result, err := j.Scanner.ScanQueues(ctx, asOf)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}
	tracker.Items("pre_departure", result.PreDeparture)
	tracker.Items("post_arrival", result.PostArrival)
	logger.Info("call-center queues scanned",
		slog.Int("pre_departure", result.PreDeparture),
		slog.Int("post_arrival", result.PostArrival),
		slog.Int("notified", result.Notified),
	)
	return nil
}

func (j *CallCenterQueueScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCallCenterQueueScan))
	}
	return slog.Default().With(slog.String("job", TaskCallCenterQueueScan))
}

func (j *CallCenterQueueScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CallCenterQueueScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
