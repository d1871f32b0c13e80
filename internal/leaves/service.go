package leaves

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/voyage-crm/voyage/internal/notifications"
	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
)

// maxCalendarSpan bounds calendar queries.
const maxCalendarSpan = 400 * 24 * time.Hour

// Notifier delivers a message to a set of users.
type Notifier interface {
	Notify(ctx context.Context, recipients []int64, msg notifications.Message) error
}

// ManagerDirectory finds who should review a request.
type ManagerDirectory interface {
	ManagerOf(ctx context.Context, role users.Role, excludeID int64) (*users.User, error)
}

// Service handles leave requests and the office calendar.
type Service struct {
	repo     Repository
	managers ManagerDirectory
	auditor  shared.Auditor
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service instance. auditor and notifier may be nil.
func NewService(repo Repository, managers ManagerDirectory, auditor shared.Auditor, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if auditor == nil {
		auditor = shared.NopAuditor{}
	}
	return &Service{
		repo:     repo,
		managers: managers,
		auditor:  auditor,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Request files a pending leave for actor.
func (s *Service) Request(ctx context.Context, actor *users.User, req CreateLeaveRequest) (*LeaveView, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown leave type %q", ErrInvalid, req.Type)
	}
	start, end := truncateDay(req.StartDate), truncateDay(req.EndDate)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date before start date", ErrInvalid)
	}
	var created *Leave
	// leaves_no_overlap rejects a concurrent insert that passes this check.
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		existing, err := tx.Overlapping(ctx, actor.ID, start, end)
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		if len(existing) > 0 {
			return ErrOverlap
		}
		created, err = tx.Create(ctx, Leave{
			UserID:    actor.ID,
			Type:      req.Type,
			Status:    StatusPending,
			StartDate: start,
			EndDate:   end,
			Reason:    strings.TrimSpace(req.Reason),
		})
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, actor, "leave", "leave.request", created.ID, map[string]any{
			"type":  created.Type,
			"start": start.Format(time.DateOnly),
			"end":   end.Format(time.DateOnly),
		})
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, s.reviewers(ctx, actor), notifications.Message{
		Key: notifications.KeyLeaveRequested,
		Params: map[string]string{
			"employee": actor.Name,
			"type":     created.Type.Label(),
			"start":    created.StartDate.Format(time.DateOnly),
			"end":      created.EndDate.Format(time.DateOnly),
			"days":     strconv.Itoa(created.DurationInDays()),
		},
		Data: map[string]any{"leave_id": created.ID},
	})
	return buildView(actor, created), nil
}

// reviewers returns the manager of the requester's role and the HR manager.
func (s *Service) reviewers(ctx context.Context, requester *users.User) []int64 {
	if s.managers == nil {
		return nil
	}
	var ids []int64
	for _, role := range []users.Role{requester.Role, users.RoleHR} {
		m, err := s.managers.ManagerOf(ctx, role, requester.ID)
		if errors.Is(err, users.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn("resolve leave reviewer", slog.String("role", string(role)), slog.Any("error", err))
			continue
		}
		ids = append(ids, m.ID)
	}
	return notifications.Unique(ids)
}

// Approve grants a pending leave.
func (s *Service) Approve(ctx context.Context, actor *users.User, id int64) (*LeaveView, error) {
	return s.decide(ctx, actor, id, StatusApproved, nil)
}

// Reject refuses a pending leave. The reason is checked before anything is
// read or written.
func (s *Service) Reject(ctx context.Context, actor *users.User, id int64, reason string) (*LeaveView, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	return s.decide(ctx, actor, id, StatusRejected, &reason)
}

func (s *Service) decide(ctx context.Context, actor *users.User, id int64, status Status, reason *string) (*LeaveView, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	var decided *Leave
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		l, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if !CanDecide(actor, l) {
			if ScopeFor(actor).Matches(l) {
				return ErrForbidden
			}
			return ErrNotFound
		}
		if l.Status != StatusPending {
			return ErrNotPending
		}
		if err := tx.Decide(ctx, id, Decision{Status: status, ApprovedBy: actor.ID, ApprovedAt: s.now(), Reason: reason}); err != nil {
			return err
		}
		meta := map[string]any{"user_id": l.UserID}
		if reason != nil {
			meta["reason"] = *reason
		}
		if err := s.audit(ctx, tx, actor, "leave", "leave."+string(status), id, meta); err != nil {
			return err
		}
		decided, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("leave decided",
		slog.Int64("leave_id", id),
		slog.String("status", string(status)),
		slog.Int64("approver_id", actor.ID),
	)
	s.notify(ctx, []int64{decided.UserID}, notifications.Message{
		Key: notifications.KeyLeaveDecided,
		Params: map[string]string{
			"status":   strings.ToLower(status.Label()),
			"type":     strings.ToLower(decided.Type.Label()),
			"start":    decided.StartDate.Format(time.DateOnly),
			"end":      decided.EndDate.Format(time.DateOnly),
			"approver": actor.Name,
		},
		Data: map[string]any{"leave_id": decided.ID},
	})
	return buildView(actor, decided), nil
}

// Cancel withdraws the actor's own pending leave.
func (s *Service) Cancel(ctx context.Context, actor *users.User, id int64) (*LeaveView, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	var cancelled *Leave
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		l, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if l.UserID != actor.ID {
			if ScopeFor(actor).Matches(l) {
				return ErrForbidden
			}
			return ErrNotFound
		}
		if l.Status != StatusPending {
			return ErrNotPending
		}
		if err := tx.Cancel(ctx, id); err != nil {
			return err
		}
		if err := s.audit(ctx, tx, actor, "leave", "leave.cancel", id, nil); err != nil {
			return err
		}
		cancelled, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buildView(actor, cancelled), nil
}

// Get returns a leave visible to actor.
func (s *Service) Get(ctx context.Context, actor *users.User, id int64) (*LeaveView, error) {
	l, err := s.repo.GetVisible(ctx, id, ScopeFor(actor))
	if err != nil {
		return nil, err
	}
	return buildView(actor, l), nil
}

// List returns leaves visible to actor.
func (s *Service) List(ctx context.Context, actor *users.User, filter ListFilter) ([]LeaveView, int, error) {
	scope := ScopeFor(actor)
	if scope.None {
		return nil, 0, ErrForbidden
	}
	list, total, err := s.repo.List(ctx, filter, scope)
	if err != nil {
		return nil, 0, err
	}
	out := make([]LeaveView, 0, len(list))
	for i := range list {
		out = append(out, *buildView(actor, &list[i]))
	}
	return out, total, nil
}

// Calendar merges office closures and approved leaves overlapping the range.
func (s *Service) Calendar(ctx context.Context, actor *users.User, from, to time.Time) ([]CalendarEntry, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	from, to = truncateDay(from), truncateDay(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end before start", ErrInvalid)
	}
	if to.Sub(from) > maxCalendarSpan {
		return nil, fmt.Errorf("%w: range too long", ErrInvalid)
	}
	closures, err := s.repo.ListClosures(ctx, &from, &to)
	if err != nil {
		return nil, fmt.Errorf("load closures: %w", err)
	}
	approved, err := s.repo.ApprovedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load leaves: %w", err)
	}
	entries := make([]CalendarEntry, 0, len(closures)+len(approved))
	for _, c := range closures {
		entries = append(entries, CalendarEntry{
			Kind:      "closure",
			ID:        c.ID,
			Title:     c.Title,
			Type:      string(c.Type),
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
		})
	}
	for _, l := range approved {
		userID := l.UserID
		entries = append(entries, CalendarEntry{
			Kind:      "leave",
			ID:        l.ID,
			Title:     l.UserName + " (" + l.Type.Label() + ")",
			Type:      string(l.Type),
			StartDate: l.StartDate,
			EndDate:   l.EndDate,
			UserID:    &userID,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartDate.Before(entries[j].StartDate)
	})
	return entries, nil
}

// ListClosures returns closures overlapping the optional range.
func (s *Service) ListClosures(ctx context.Context, actor *users.User, from, to *time.Time) ([]OfficeClosure, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	return s.repo.ListClosures(ctx, from, to)
}

func (s *Service) CreateClosure(ctx context.Context, actor *users.User, req ClosureRequest) (*OfficeClosure, error) {
	if !CanManageClosures(actor) {
		return nil, ErrForbidden
	}
	c, err := closureFromRequest(req)
	if err != nil {
		return nil, err
	}
	c.CreatedBy = &actor.ID
	var created *OfficeClosure
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		var err error
		created, err = tx.CreateClosure(ctx, c)
		if err != nil {
			return err
		}
		return s.auditClosure(ctx, tx, actor, "office_closure.create", created.ID, c)
	})
	return created, err
}

func (s *Service) UpdateClosure(ctx context.Context, actor *users.User, id int64, req ClosureRequest) (*OfficeClosure, error) {
	if !CanManageClosures(actor) {
		return nil, ErrForbidden
	}
	c, err := closureFromRequest(req)
	if err != nil {
		return nil, err
	}
	c.ID = id
	var updated *OfficeClosure
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		var err error
		updated, err = tx.UpdateClosure(ctx, c)
		if err != nil {
			return err
		}
		return s.auditClosure(ctx, tx, actor, "office_closure.update", id, c)
	})
	return updated, err
}

func (s *Service) DeleteClosure(ctx context.Context, actor *users.User, id int64) error {
	if !CanManageClosures(actor) {
		return ErrForbidden
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.DeleteClosure(ctx, id); err != nil {
			return err
		}
		return s.audit(ctx, tx, actor, "office_closure", "office_closure.delete", id, nil)
	})
}

func closureFromRequest(req ClosureRequest) (OfficeClosure, error) {
	if !req.Type.Valid() {
		return OfficeClosure{}, fmt.Errorf("%w: unknown closure type %q", ErrInvalid, req.Type)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return OfficeClosure{}, fmt.Errorf("%w: title required", ErrInvalid)
	}
	start, end := truncateDay(req.StartDate), truncateDay(req.EndDate)
	if end.Before(start) {
		return OfficeClosure{}, fmt.Errorf("%w: end date before start date", ErrInvalid)
	}
	return OfficeClosure{
		Title:     title,
		Type:      req.Type,
		StartDate: start,
		EndDate:   end,
		Notes:     strings.TrimSpace(req.Notes),
	}, nil
}

func (s *Service) auditClosure(ctx context.Context, tx Repository, actor *users.User, action string, id int64, c OfficeClosure) error {
	return s.audit(ctx, tx, actor, "office_closure", action, id, map[string]any{
		"title": c.Title,
		"type":  c.Type,
		"start": c.StartDate.Format(time.DateOnly),
		"end":   c.EndDate.Format(time.DateOnly),
	})
}

func (s *Service) audit(ctx context.Context, tx Repository, actor *users.User, entity, action string, id int64, meta map[string]any) error {
	return s.auditor.Record(ctx, tx.Exec(), shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   entity,
		EntityID: id,
		Meta:     meta,
		At:       s.now(),
	})
}

func (s *Service) notify(ctx context.Context, recipients []int64, msg notifications.Message) {
	if s.notifier == nil || len(recipients) == 0 {
		return
	}
	if err := s.notifier.Notify(ctx, recipients, msg); err != nil {
		s.logger.Warn("notify", slog.String("key", msg.Key), slog.Any("error", err))
	}
}
