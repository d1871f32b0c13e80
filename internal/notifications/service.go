package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/voyage-crm/voyage/internal/observability"
	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
	"github.com/voyage-crm/voyage/jobs"
)

// Service renders and stores notifications and serves the inbox.
type Service struct {
	repo       Repository
	translator *Translator
	logger     *slog.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewService builds Service instance.
func NewService(repo Repository, translator *Translator, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, translator: translator, logger: logger, metrics: metrics, now: func() time.Time { return time.Now().UTC() }}
}

// Deliver renders payload for its recipient and stores it. It implements
// jobs.NotificationDeliverer.
func (s *Service) Deliver(ctx context.Context, payload jobs.NotificationPayload) error {
	params := make(map[string]string, len(payload.Params)+len(payload.Amounts))
	for k, v := range payload.Params {
		params[k] = v
	}
	for k, v := range payload.Amounts {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			params[k] = v
			continue
		}
		params[k] = FormatAmount(payload.Locale, amount)
	}
	title, body := s.translator.Render(payload.Locale, payload.Key, params)
	data := payload.Data
	if data == nil {
		data = map[string]any{}
	}
	data["key"] = payload.Key

	err := s.repo.Insert(ctx, Notification{
		ID:        uuid.New(),
		UserID:    payload.UserID,
		Title:     title,
		Body:      body,
		Data:      data,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.metrics.Notification("failed", 1)
		return err
	}
	s.metrics.Notification("delivered", 1)
	return nil
}

// Inbox lists the actor's notifications, newest first.
func (s *Service) Inbox(ctx context.Context, actor *users.User, unreadOnly bool, page shared.Page) ([]Notification, int, error) {
	if actor == nil {
		return nil, 0, ErrNotFound
	}
	return s.repo.List(ctx, actor.ID, unreadOnly, page.Limit(), page.Offset())
}

// UnreadCount returns how many notifications the actor has not read.
func (s *Service) UnreadCount(ctx context.Context, actor *users.User) (int, error) {
	if actor == nil {
		return 0, nil
	}
	return s.repo.CountUnread(ctx, actor.ID)
}

// MarkRead marks one of the actor's notifications read. Other users'
// notifications surface as not found.
func (s *Service) MarkRead(ctx context.Context, actor *users.User, id uuid.UUID) error {
	if actor == nil {
		return ErrNotFound
	}
	return s.repo.MarkRead(ctx, actor.ID, id)
}

// MarkAllRead marks every unread notification of the actor read.
func (s *Service) MarkAllRead(ctx context.Context, actor *users.User) (int64, error) {
	if actor == nil {
		return 0, nil
	}
	return s.repo.MarkAllRead(ctx, actor.ID)
}
