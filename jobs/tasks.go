package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries user facing notifications.
	QueueCritical = "critical"

	// TaskNotificationDeliver stores one notification for one recipient.
	TaskNotificationDeliver = "notification:deliver"
	// TaskCallCenterQueueScan counts waiting follow-up calls and alerts managers.
	TaskCallCenterQueueScan = "callcenter:queue-scan"
	// TaskIdempotencyCleanup prunes old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// NotificationPayload describes a notification to render and store for a
// single user. Params feed the message template; Amounts are decimal strings
// formatted for the recipient locale before rendering.
type NotificationPayload struct {
	UserID  int64             `json:"user_id"`
	Key     string            `json:"key"`
	Locale  string            `json:"locale,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
	Amounts map[string]string `json:"amounts,omitempty"`
	Data    map[string]any    `json:"data,omitempty"`
}

// NewNotificationDeliverTask constructs an Asynq task.
func NewNotificationDeliverTask(payload NotificationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationDeliver, data, asynq.Queue(QueueCritical), asynq.MaxRetry(5)), nil
}

// QueueScanPayload optionally pins the scan date; zero means now.
type QueueScanPayload struct {
	AsOf time.Time `json:"as_of,omitempty"`
}

// NewCallCenterQueueScanTask constructs the daily queue scan task.
func NewCallCenterQueueScanTask() (*asynq.Task, error) {
	data, err := json.Marshal(QueueScanPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCallCenterQueueScan, data), nil
}

// IdempotencyCleanupPayload sets how old a key must be before removal.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
