package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voyage-crm/voyage/internal/observability"
	"github.com/voyage-crm/voyage/jobs"
)

// Dispatcher fans a message out as one delivery task per recipient.
type Dispatcher struct {
	queue   jobs.Enqueuer
	locale  string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewDispatcher builds Dispatcher instance.
func NewDispatcher(queue jobs.Enqueuer, locale string, logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{queue: queue, locale: locale, logger: logger, metrics: metrics}
}

// Notify enqueues msg for every distinct non-zero recipient. Enqueue
// failures are collected so one bad recipient does not block the rest.
func (d *Dispatcher) Notify(ctx context.Context, recipients []int64, msg Message) error {
	if d == nil || d.queue == nil {
		return nil
	}
	var errs []error
	sent := 0
	for _, id := range Unique(recipients) {
		task, err := jobs.NewNotificationDeliverTask(jobs.NotificationPayload{
			UserID:  id,
			Key:     msg.Key,
			Locale:  d.locale,
			Params:  msg.Params,
			Amounts: msg.Amounts,
			Data:    msg.Data,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := d.queue.EnqueueContext(ctx, task); err != nil {
			errs = append(errs, fmt.Errorf("enqueue for user %d: %w", id, err))
			continue
		}
		sent++
	}
	d.metrics.Notification("enqueued", sent)
	if err := errors.Join(errs...); err != nil {
		d.logger.Warn("notification dispatch", slog.String("key", msg.Key), slog.Int("sent", sent), slog.Any("error", err))
		return err
	}
	return nil
}

// Unique drops zero ids and duplicates, keeping first-seen order.
func Unique(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
