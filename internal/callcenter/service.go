package callcenter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/voyage-crm/voyage/internal/notifications"
	"github.com/voyage-crm/voyage/internal/users"
	"github.com/voyage-crm/voyage/jobs"
)

// Notifier delivers a message to a set of users.
type Notifier interface {
	Notify(ctx context.Context, recipients []int64, msg notifications.Message) error
}

// UserDirectory resolves staff for assignment checks and manager alerts.
type UserDirectory interface {
	Lookup(ctx context.Context, id int64) (*users.User, error)
	ManagerOf(ctx context.Context, role users.Role, excludeID int64) (*users.User, error)
}

// Service runs the courtesy-call workflow.
type Service struct {
	repo     Repository
	users    UserDirectory
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service instance. notifier may be nil.
func NewService(repo Repository, directory UserDirectory, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		users:    directory,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Queues returns the leads currently waiting for a pre-departure or
// post-arrival call.
func (s *Service) Queues(ctx context.Context, actor *users.User) (*Queues, error) {
	if !CanViewQueues(actor) {
		return nil, ErrForbidden
	}
	return s.queues(ctx, s.now())
}

func (s *Service) queues(ctx context.Context, now time.Time) (*Queues, error) {
	pre, err := s.repo.Queue(ctx, CallPreDeparture, DueDay(CallPreDeparture, now))
	if err != nil {
		return nil, err
	}
	post, err := s.repo.Queue(ctx, CallPostArrival, DueDay(CallPostArrival, now))
	if err != nil {
		return nil, err
	}
	if pre == nil {
		pre = []QueueEntry{}
	}
	if post == nil {
		post = []QueueEntry{}
	}
	return &Queues{PreDeparture: pre, PostArrival: post}, nil
}

// AssignToMe claims a queued lead for the calling agent. The unique
// (lead, type) constraint makes a second claim fail with ErrCallExists.
func (s *Service) AssignToMe(ctx context.Context, actor *users.User, t CallType, leadID int64) (*Call, error) {
	if !CanAssignToMe(actor) {
		return nil, ErrForbidden
	}
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown call type %q", ErrInvalid, t)
	}
	var call *Call
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.QueueLead(ctx, t, leadID, DueDay(t, s.now())); err != nil {
			return err
		}
		var err error
		call, err = tx.Create(ctx, Call{
			LeadID:     leadID,
			CallType:   t,
			Status:     StatusAssigned,
			AssignedTo: &actor.ID,
			CreatedBy:  &actor.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("call claimed",
		slog.Int64("lead_id", leadID),
		slog.String("call_type", string(t)),
		slog.Int64("user_id", actor.ID),
	)
	return call, nil
}

// CreateCall lets an admin open a call for any lead, optionally assigned.
func (s *Service) CreateCall(ctx context.Context, actor *users.User, req CreateCallRequest) (*Call, error) {
	if !CanAdminister(actor) {
		return nil, ErrForbidden
	}
	if !req.CallType.Valid() {
		return nil, fmt.Errorf("%w: unknown call type %q", ErrInvalid, req.CallType)
	}
	ok, err := s.repo.LeadExists(ctx, req.LeadID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: lead %d", ErrNotFound, req.LeadID)
	}
	call := Call{
		LeadID:    req.LeadID,
		CallType:  req.CallType,
		Status:    StatusPending,
		Notes:     strings.TrimSpace(req.Notes),
		CreatedBy: &actor.ID,
	}
	if req.AssignedTo != nil {
		if err := s.checkAgent(ctx, *req.AssignedTo); err != nil {
			return nil, err
		}
		call.AssignedTo = req.AssignedTo
		call.Status = StatusAssigned
	}
	return s.repo.Create(ctx, call)
}

// AssignCall hands an open call to an agent.
func (s *Service) AssignCall(ctx context.Context, actor *users.User, id, agentID int64) (*Call, error) {
	if !CanAdminister(actor) {
		return nil, ErrForbidden
	}
	if err := s.checkAgent(ctx, agentID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, id, func(c *Call) error {
		if c.Status == StatusCompleted {
			return ErrActionNotAllowed
		}
		c.AssignedTo = &agentID
		if c.Status == StatusPending {
			c.Status = StatusAssigned
		}
		return nil
	})
}

// StartCall records a dial attempt.
func (s *Service) StartCall(ctx context.Context, actor *users.User, id int64) (*Call, error) {
	return s.mutate(ctx, actor, id, func(c *Call) error {
		if c.Status != StatusAssigned && c.Status != StatusNotAnswered {
			return ErrActionNotAllowed
		}
		now := s.now()
		c.Status = StatusCalled
		c.Attempts++
		c.LastCalledAt = &now
		return nil
	})
}

// MarkNotAnswered returns a dialled call to the retry state.
func (s *Service) MarkNotAnswered(ctx context.Context, actor *users.User, id int64) (*Call, error) {
	return s.mutate(ctx, actor, id, func(c *Call) error {
		if c.Status != StatusCalled {
			return ErrActionNotAllowed
		}
		c.Status = StatusNotAnswered
		return nil
	})
}

// UpdateChecklist replaces the ticked checklist items and, when given, the
// call notes.
func (s *Service) UpdateChecklist(ctx context.Context, actor *users.User, id int64, req ChecklistRequest) (*Call, error) {
	return s.mutate(ctx, actor, id, func(c *Call) error {
		if c.Status == StatusCompleted {
			return ErrActionNotAllowed
		}
		keys, err := normaliseChecklist(c.CallType, req.Completed)
		if err != nil {
			return err
		}
		c.ChecklistDone = keys
		if req.Notes != nil {
			c.Notes = strings.TrimSpace(*req.Notes)
		}
		return nil
	})
}

// Complete closes a call once every checklist item is ticked.
func (s *Service) Complete(ctx context.Context, actor *users.User, id int64, req CompleteRequest) (*Call, error) {
	return s.mutate(ctx, actor, id, func(c *Call) error {
		if c.Status != StatusCalled {
			return ErrActionNotAllowed
		}
		if req.Completed != nil {
			keys, err := normaliseChecklist(c.CallType, req.Completed)
			if err != nil {
				return err
			}
			c.ChecklistDone = keys
		}
		if !c.ChecklistComplete() {
			return fmt.Errorf("%w: checklist incomplete", ErrInvalid)
		}
		if req.Notes != nil {
			c.Notes = strings.TrimSpace(*req.Notes)
		}
		now := s.now()
		c.Status = StatusCompleted
		c.CompletedAt = &now
		return nil
	})
}

// Get returns a call visible to actor.
func (s *Service) Get(ctx context.Context, actor *users.User, id int64) (*CallView, error) {
	scope := ScopeFor(actor)
	if scope.None {
		return nil, ErrForbidden
	}
	c, err := s.repo.Get(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	return buildView(actor, c), nil
}

// List returns calls visible to actor.
func (s *Service) List(ctx context.Context, actor *users.User, filter ListFilter) ([]CallView, int, error) {
	scope := ScopeFor(actor)
	if scope.None {
		return nil, 0, ErrForbidden
	}
	calls, total, err := s.repo.List(ctx, filter, scope)
	if err != nil {
		return nil, 0, err
	}
	out := make([]CallView, 0, len(calls))
	for i := range calls {
		out = append(out, *buildView(actor, &calls[i]))
	}
	return out, total, nil
}

// ScanQueues counts the waiting calls as of now and alerts the call-center
// manager when any are waiting. It backs the daily queue-scan job.
func (s *Service) ScanQueues(ctx context.Context, now time.Time) (jobs.QueueScanResult, error) {
	q, err := s.queues(ctx, now)
	if err != nil {
		return jobs.QueueScanResult{}, fmt.Errorf("scan call queues: %w", err)
	}
	result := jobs.QueueScanResult{PreDeparture: len(q.PreDeparture), PostArrival: len(q.PostArrival)}
	if result.PreDeparture+result.PostArrival == 0 || s.notifier == nil || s.users == nil {
		return result, nil
	}
	manager, err := s.users.ManagerOf(ctx, users.RoleCallCenter, 0)
	if errors.Is(err, users.ErrNotFound) {
		s.logger.Warn("no call-center manager to alert", slog.Int("waiting", result.PreDeparture+result.PostArrival))
		return result, nil
	}
	if err != nil {
		return result, err
	}
	err = s.notifier.Notify(ctx, []int64{manager.ID}, notifications.Message{
		Key: notifications.KeyCallQueueWaiting,
		Params: map[string]string{
			"pre_departure": strconv.Itoa(result.PreDeparture),
			"post_arrival":  strconv.Itoa(result.PostArrival),
		},
		Data: map[string]any{"date": truncateDay(now).Format(time.DateOnly)},
	})
	if err != nil {
		return result, err
	}
	result.Notified = 1
	return result, nil
}

// mutate loads the call under the actor's scope, applies fn and saves the
// result only if nobody changed its status in between.
func (s *Service) mutate(ctx context.Context, actor *users.User, id int64, fn func(*Call) error) (*Call, error) {
	scope := ScopeFor(actor)
	if scope.None {
		return nil, ErrForbidden
	}
	var out *Call
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		c, err := tx.Get(ctx, id, scope)
		if err != nil {
			return err
		}
		if !CanWork(actor, c) {
			return ErrForbidden
		}
		expected := c.Status
		if err := fn(c); err != nil {
			return err
		}
		c.UpdatedAt = s.now()
		if err := tx.Save(ctx, *c, expected); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) checkAgent(ctx context.Context, id int64) error {
	if s.users == nil {
		return nil
	}
	u, err := s.users.Lookup(ctx, id)
	if errors.Is(err, users.ErrNotFound) {
		return fmt.Errorf("%w: assignee %d not found", ErrInvalid, id)
	}
	if err != nil {
		return err
	}
	if !u.IsCallCenter() || !u.Active {
		return fmt.Errorf("%w: assignee must be an active call-center agent", ErrInvalid)
	}
	return nil
}

// normaliseChecklist drops duplicates and rejects keys outside the
// checklist of t. The result keeps checklist order.
func normaliseChecklist(t CallType, keys []string) ([]string, error) {
	ticked := make(map[string]bool, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if !t.HasItem(k) {
			return nil, fmt.Errorf("%w: unknown checklist item %q", ErrInvalid, k)
		}
		ticked[k] = true
	}
	out := make([]string, 0, len(ticked))
	for _, item := range t.Checklist() {
		if ticked[item.Key] {
			out = append(out, item.Key)
		}
	}
	return out, nil
}
