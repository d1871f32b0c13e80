package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyage-crm/voyage/jobs"
)

type recordingClient struct {
	tasks []*asynq.Task
}

func (c *recordingClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (c *recordingClient) Close() error { return nil }

type stubInspector struct {
	infos map[string]*asynq.QueueInfo
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := s.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func (s stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, nil
}

func (s stubInspector) Close() error { return nil }

func TestTriggerQueueScan(t *testing.T) {
	client := &recordingClient{}
	c := &JobsCLI{client: client}

	info, err := c.Trigger(context.Background(), jobs.TaskCallCenterQueueScan)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskCallCenterQueueScan, info.Type)
	require.Len(t, client.tasks, 1)
}

func TestTriggerCleanupUsesDefaultRetention(t *testing.T) {
	client := &recordingClient{}
	c := &JobsCLI{client: client}

	_, err := c.Trigger(context.Background(), jobs.TaskIdempotencyCleanup)
	require.NoError(t, err)
	require.Len(t, client.tasks, 1)

	var payload jobs.IdempotencyCleanupPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	assert.Equal(t, 168, payload.RetentionHours)
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	c := &JobsCLI{client: &recordingClient{}}
	_, err := c.Trigger(context.Background(), "ledger:rebuild")
	require.Error(t, err)
}

func TestInspectQueuesToleratesMissingQueue(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{infos: map[string]*asynq.QueueInfo{
		jobs.QueueCritical: {Queue: jobs.QueueCritical, Pending: 3, Retry: 1},
	}}}

	stats, err := c.InspectQueues(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, QueueStats{Queue: jobs.QueueCritical, Pending: 3, Retry: 1}, stats[0])
	assert.Equal(t, QueueStats{Queue: jobs.QueueDefault}, stats[1])
}
