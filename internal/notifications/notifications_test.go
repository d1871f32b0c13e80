package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
	"github.com/voyage-crm/voyage/jobs"
)

type memoryRepo struct {
	items []Notification
}

func (m *memoryRepo) Insert(_ context.Context, n Notification) error {
	m.items = append(m.items, n)
	return nil
}

func (m *memoryRepo) List(_ context.Context, userID int64, unreadOnly bool, limit, offset int) ([]Notification, int, error) {
	var out []Notification
	for _, n := range m.items {
		if n.UserID != userID || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		out = append(out, n)
	}
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memoryRepo) CountUnread(_ context.Context, userID int64) (int, error) {
	n := 0
	for _, item := range m.items {
		if item.UserID == userID && item.ReadAt == nil {
			n++
		}
	}
	return n, nil
}

func (m *memoryRepo) MarkRead(_ context.Context, userID int64, id uuid.UUID) error {
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].UserID == userID {
			now := m.items[i].CreatedAt
			m.items[i].ReadAt = &now
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryRepo) MarkAllRead(_ context.Context, userID int64) (int64, error) {
	var n int64
	for i := range m.items {
		if m.items[i].UserID == userID && m.items[i].ReadAt == nil {
			now := m.items[i].CreatedAt
			m.items[i].ReadAt = &now
			n++
		}
	}
	return n, nil
}

type captureQueue struct {
	tasks []*asynq.Task
	fail  map[int64]bool
}

func (q *captureQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	var p jobs.NotificationPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return nil, err
	}
	if q.fail[p.UserID] {
		return nil, errors.New("redis unavailable")
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func TestTranslatorRendersLocales(t *testing.T) {
	tr, err := NewTranslator("en")
	require.NoError(t, err)

	title, body := tr.Render("", KeyLeadNoteAdded, map[string]string{"reference": "LD-250301-ABC123", "author": "Rina", "excerpt": "Visa ready"})
	assert.Equal(t, "New note on LD-250301-ABC123", title)
	assert.Equal(t, "Rina wrote: Visa ready", body)

	title, _ = tr.Render("id", KeyInvoicePaid, map[string]string{"number": "INV-9"})
	assert.Equal(t, "Invoice INV-9 lunas", title)

	title, body = tr.Render("en", "missing_key", nil)
	assert.Equal(t, "missing_key", title)
	assert.Empty(t, body)
}

func TestFormatAmountUsesLocaleSeparators(t *testing.T) {
	amount := decimal.RequireFromString("1250.5")
	assert.Equal(t, "1,250.50", FormatAmount("en", amount))
	assert.Equal(t, "1.250,50", FormatAmount("id", amount))
	assert.Equal(t, "1,250.50", FormatAmount("not a locale", amount))
}

func TestDispatcherFansOutToUniqueRecipients(t *testing.T) {
	queue := &captureQueue{}
	d := NewDispatcher(queue, "en", nil, nil)

	err := d.Notify(context.Background(), []int64{3, 0, 5, 3}, Message{Key: KeyLeadNoteAdded, Params: map[string]string{"reference": "LD-1"}})
	require.NoError(t, err)
	require.Len(t, queue.tasks, 2)

	var first jobs.NotificationPayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &first))
	assert.Equal(t, int64(3), first.UserID)
	assert.Equal(t, "en", first.Locale)
	assert.Equal(t, jobs.TaskNotificationDeliver, queue.tasks[0].Type())
}

func TestDispatcherContinuesAfterEnqueueFailure(t *testing.T) {
	queue := &captureQueue{fail: map[int64]bool{3: true}}
	d := NewDispatcher(queue, "en", nil, nil)

	err := d.Notify(context.Background(), []int64{3, 5}, Message{Key: KeyLeadAssigned})
	require.Error(t, err)
	assert.Len(t, queue.tasks, 1)
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	assert.NoError(t, d.Notify(context.Background(), []int64{1}, Message{Key: KeyLeadAssigned}))
}

func TestDeliverFormatsAmountsAndStores(t *testing.T) {
	repo := &memoryRepo{}
	tr, err := NewTranslator("en")
	require.NoError(t, err)
	svc := NewService(repo, tr, nil, nil)

	err = svc.Deliver(context.Background(), jobs.NotificationPayload{
		UserID:  9,
		Key:     KeyInvoicePaid,
		Params:  map[string]string{"number": "INV-1", "reference": "LD-1"},
		Amounts: map[string]string{"amount": "1000"},
	})
	require.NoError(t, err)
	require.Len(t, repo.items, 1)
	assert.Equal(t, "1,000.00 received in full for lead LD-1.", repo.items[0].Body)
	assert.Equal(t, KeyInvoicePaid, repo.items[0].Data["key"])
}

func TestInboxIsPerUser(t *testing.T) {
	repo := &memoryRepo{}
	tr, err := NewTranslator("en")
	require.NoError(t, err)
	svc := NewService(repo, tr, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.Deliver(ctx, jobs.NotificationPayload{UserID: 1, Key: KeyLeadAssigned}))
	require.NoError(t, svc.Deliver(ctx, jobs.NotificationPayload{UserID: 2, Key: KeyLeadAssigned}))

	alice := &users.User{ID: 1, Role: users.RoleSales, Active: true}
	bob := &users.User{ID: 2, Role: users.RoleSales, Active: true}

	list, total, err := svc.Inbox(ctx, alice, false, shared.Page{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)

	assert.ErrorIs(t, svc.MarkRead(ctx, bob, list[0].ID), ErrNotFound)
	require.NoError(t, svc.MarkRead(ctx, alice, list[0].ID))

	unread, err := svc.UnreadCount(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, unread)

	n, err := svc.MarkAllRead(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
