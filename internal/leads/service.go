package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voyage-crm/voyage/internal/notifications"
	"github.com/voyage-crm/voyage/internal/observability"
	"github.com/voyage-crm/voyage/internal/users"
)

// UserDirectory resolves assignees and role managers.
type UserDirectory interface {
	Lookup(ctx context.Context, id int64) (*users.User, error)
	ManagerOf(ctx context.Context, role users.Role, excludeID int64) (*users.User, error)
}

// Notifier delivers a message to a set of users.
type Notifier interface {
	Notify(ctx context.Context, recipients []int64, msg notifications.Message) error
}

// CacheInvalidator drops cached aggregates that read leads.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

const maxReferenceAttempts = 3

// Service implements the lead pipeline.
type Service struct {
	repo      Repository
	directory UserDirectory
	notifier  Notifier
	cache     CacheInvalidator
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service instance. notifier may be nil.
func NewService(repo Repository, directory UserDirectory, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		directory: directory,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithCache registers the cache dropped after every lead mutation.
func (s *Service) WithCache(c CacheInvalidator) *Service {
	s.cache = c
	return s
}

// WithMetrics registers the Prometheus collectors.
func (s *Service) WithMetrics(m *observability.Metrics) *Service {
	s.metrics = m
	return s
}

// NewReferenceID returns a reference of the form LD-YYMMDD-XXXXXX.
func NewReferenceID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("LD-%s-%s", now.UTC().Format("060102"), suffix)
}

// Create registers a new lead in status new.
func (s *Service) Create(ctx context.Context, actor *users.User, req CreateLeadRequest) (*Lead, error) {
	if !CanCreate(actor) {
		return nil, ErrForbidden
	}
	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		return nil, errCustomerNameRequired
	}
	if err := checkDates(req.DepartureDate, req.ArrivalDate); err != nil {
		return nil, err
	}
	priority := Priority(req.Priority)
	if priority == "" {
		priority = PriorityMedium
	}
	creator := actor.ID
	lead := Lead{
		CustomerName:      name,
		CustomerID:        req.CustomerID,
		Platform:          Platform(req.Platform),
		Status:            StatusNew,
		Priority:          priority,
		CreatedBy:         &creator,
		Destination:       strings.TrimSpace(req.Destination),
		DepartureDate:     dayPtr(req.DepartureDate),
		ArrivalDate:       dayPtr(req.ArrivalDate),
		Adults:            req.Adults,
		Children:          req.Children,
		Infants:           req.Infants,
		AirTicketStatus:   ServicePending,
		HotelStatus:       ServicePending,
		VisaStatus:        ServicePending,
		LandPackageStatus: ServicePending,
		Notes:             req.Notes,
	}
	if !lead.Platform.Valid() || !lead.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown platform or priority", ErrInvalid)
	}

	var created *Lead
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		lead.ReferenceID = NewReferenceID(s.now())
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
			l, err := tx.Create(ctx, lead)
			if err != nil {
				return err
			}
			created = l
			return tx.AppendLog(ctx, ActionLog{
				LeadID:      l.ID,
				UserID:      &creator,
				Action:      "created",
				Description: fmt.Sprintf("Lead created by %s", actor.Name),
			})
		})
		if errors.Is(err, errDuplicateReference) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.invalidate(ctx)
		s.logger.Info("lead created", slog.Int64("lead_id", created.ID), slog.String("reference", created.ReferenceID), slog.Int64("actor_id", actor.ID))
		return created, nil
	}
	return nil, fmt.Errorf("leads: could not allocate a unique reference id")
}

// Get returns the lead with its derived fields and the actions actor may
// take. Leads outside the actor's scope are reported as not found.
func (s *Service) Get(ctx context.Context, actor *users.User, id int64) (*LeadView, error) {
	l, err := s.repo.Get(ctx, id, ScopeFor(actor))
	if err != nil {
		return nil, err
	}
	v := s.view(l, actor)
	return &v, nil
}

// List returns leads visible to actor.
func (s *Service) List(ctx context.Context, actor *users.User, filter ListFilter) ([]LeadView, int, error) {
	if !CanViewAny(actor) {
		return nil, 0, ErrForbidden
	}
	if filter.View == ViewTrash && !CanViewTrash(actor) {
		return nil, 0, ErrForbidden
	}
	if filter.View == "" {
		filter.View = ViewActive
	}
	list, total, err := s.repo.List(ctx, filter, ScopeFor(actor))
	if err != nil {
		return nil, 0, err
	}
	out := make([]LeadView, 0, len(list))
	for i := range list {
		out = append(out, s.view(&list[i], actor))
	}
	return out, total, nil
}

// Update changes the descriptive fields of a lead.
func (s *Service) Update(ctx context.Context, actor *users.User, id int64, req UpdateLeadRequest) (*LeadView, error) {
	name := trimPtr(req.CustomerName)
	if name != nil && *name == "" {
		return nil, errCustomerNameRequired
	}
	var updated *Lead
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		l, err := tx.Get(ctx, id, ScopeFor(actor))
		if err != nil {
			return err
		}
		if !CanEdit(actor, l) {
			return ErrForbidden
		}
		dep, arr := l.DepartureDate, l.ArrivalDate
		if req.DepartureDate != nil {
			dep = req.DepartureDate
		}
		if req.ArrivalDate != nil {
			arr = req.ArrivalDate
		}
		if err := checkDates(dep, arr); err != nil {
			return err
		}
		changes := Changes{
			CustomerName:  name,
			CustomerID:    req.CustomerID,
			ClearCustomer: req.ClearCustomer,
			Destination:   trimPtr(req.Destination),
			DepartureDate: dayPtr(req.DepartureDate),
			ArrivalDate:   dayPtr(req.ArrivalDate),
			Adults:        req.Adults,
			Children:      req.Children,
			Infants:       req.Infants,
			Notes:         req.Notes,
		}
		if req.Platform != nil {
			p := Platform(*req.Platform)
			changes.Platform = &p
		}
		if req.Priority != nil {
			p := Priority(*req.Priority)
			changes.Priority = &p
		}
		updated, err = tx.Update(ctx, id, changes)
		if err != nil {
			return err
		}
		uid := actor.ID
		return tx.AppendLog(ctx, ActionLog{LeadID: id, UserID: &uid, Action: "updated", Description: fmt.Sprintf("Lead details updated by %s", actor.Name)})
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	v := s.view(updated, actor)
	return &v, nil
}

// Perform runs a named pipeline action. The status compare-and-set and the
// action log entry commit together.
func (s *Service) Perform(ctx context.Context, actor *users.User, id int64, action Action, req ActionRequest) (*LeadView, error) {
	if actor == nil {
		return nil, ErrNotFound
	}
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalid, action)
	}
	var target *users.User
	if req.UserID != nil && rules[action].needsTarget != "" {
		u, err := s.directory.Lookup(ctx, *req.UserID)
		if err != nil && !errors.Is(err, users.ErrNotFound) {
			return nil, err
		}
		target = u
	}

	var (
		lead *Lead
		t    Transition
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		l, err := tx.Get(ctx, id, ScopeFor(actor))
		if err != nil {
			return err
		}
		t, err = Plan(action, l, actor, target, Status(req.Status))
		if err != nil {
			return err
		}
		if err := tx.ApplyTransition(ctx, id, t); err != nil {
			return err
		}
		uid := actor.ID
		if err := tx.AppendLog(ctx, ActionLog{LeadID: id, UserID: &uid, Action: string(action), Description: t.Description}); err != nil {
			return err
		}
		t.Apply(l)
		lead = l
		return nil
	})
	switch {
	case errors.Is(err, ErrStaleLead):
		s.metrics.LeadTransition(string(action), "stale")
		return nil, err
	case errors.Is(err, ErrActionNotAllowed):
		s.metrics.LeadTransition(string(action), "denied")
		return nil, err
	case err != nil:
		return nil, err
	}
	s.metrics.LeadTransition(string(action), "ok")
	s.invalidate(ctx)
	s.logger.Info("lead action",
		slog.Int64("lead_id", id),
		slog.String("action", string(action)),
		slog.String("from", string(t.From)),
		slog.String("to", string(t.To)),
		slog.Int64("actor_id", actor.ID),
	)
	if target != nil {
		s.notify(ctx, []int64{target.ID}, notifications.Message{
			Key: notifications.KeyLeadAssigned,
			Params: map[string]string{
				"reference":   lead.ReferenceID,
				"actor":       actor.Name,
				"customer":    lead.CustomerName,
				"destination": lead.Destination,
			},
			Data: map[string]any{"lead_id": lead.ID},
		})
	}
	v := s.view(lead, actor)
	return &v, nil
}

// Archive hides a lead from active listings and dashboards.
func (s *Service) Archive(ctx context.Context, actor *users.User, id int64) (*LeadView, error) {
	return s.setArchived(ctx, actor, id, true)
}

// Unarchive returns an archived lead to active listings.
func (s *Service) Unarchive(ctx context.Context, actor *users.User, id int64) (*LeadView, error) {
	return s.setArchived(ctx, actor, id, false)
}

func (s *Service) setArchived(ctx context.Context, actor *users.User, id int64, archived bool) (*LeadView, error) {
	if !CanArchive(actor) {
		return nil, ErrForbidden
	}
	var lead *Lead
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		l, err := tx.Get(ctx, id, ScopeFor(actor))
		if err != nil {
			return err
		}
		if l.IsArchived() == archived {
			return fmt.Errorf("%w: lead is already in the requested state", ErrActionNotAllowed)
		}
		if err := tx.SetArchived(ctx, id, archived, actor.ID); err != nil {
			return err
		}
		action, desc := "archived", fmt.Sprintf("Lead archived by %s", actor.Name)
		if archived {
			now := s.now()
			by := actor.ID
			l.ArchivedAt, l.ArchivedBy = &now, &by
		} else {
			action, desc = "unarchived", fmt.Sprintf("Lead unarchived by %s", actor.Name)
			l.ArchivedAt, l.ArchivedBy = nil, nil
		}
		uid := actor.ID
		lead = l
		return tx.AppendLog(ctx, ActionLog{LeadID: id, UserID: &uid, Action: action, Description: desc})
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	v := s.view(lead, actor)
	return &v, nil
}

// UpdateServiceStatus sets the status of one booking component.
func (s *Service) UpdateServiceStatus(ctx context.Context, actor *users.User, id int64, service Component, status ServiceStatus) (*LeadView, error) {
	if _, ok := service.Column(); !ok {
		return nil, fmt.Errorf("%w: unknown service %q", ErrInvalid, service)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown service status %q", ErrInvalid, status)
	}
	var lead *Lead
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		l, err := tx.Get(ctx, id, ScopeFor(actor))
		if err != nil {
			return err
		}
		if !CanUpdateServices(actor, l) {
			return fmt.Errorf("%w: services cannot be updated", ErrActionNotAllowed)
		}
		previous := l.ServiceStatusOf(service)
		if previous == status {
			lead = l
			return nil
		}
		if err := tx.SetServiceStatus(ctx, id, service, status); err != nil {
			return err
		}
		l.setServiceStatus(service, status)
		lead = l
		uid := actor.ID
		return tx.AppendLog(ctx, ActionLog{
			LeadID:      id,
			UserID:      &uid,
			Action:      "service_status",
			Description: fmt.Sprintf("%s: %s to %s", serviceLabel(service), previous.Label(), status.Label()),
		})
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	v := s.view(lead, actor)
	return &v, nil
}

// Delete moves a lead to the trash.
func (s *Service) Delete(ctx context.Context, actor *users.User, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		l, err := tx.Get(ctx, id, ScopeFor(actor))
		if err != nil {
			return err
		}
		if !CanDelete(actor, l) {
			return ErrForbidden
		}
		if err := tx.SoftDelete(ctx, id); err != nil {
			return err
		}
		uid := actor.ID
		return tx.AppendLog(ctx, ActionLog{LeadID: id, UserID: &uid, Action: "deleted", Description: fmt.Sprintf("Lead deleted by %s", actor.Name)})
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logger.Info("lead deleted", slog.Int64("lead_id", id), slog.Int64("actor_id", actor.ID))
	return nil
}

// Restore brings a deleted lead back from the trash.
func (s *Service) Restore(ctx context.Context, actor *users.User, id int64) (*LeadView, error) {
	if !CanViewTrash(actor) {
		return nil, ErrNotFound
	}
	var lead *Lead
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		l, err := tx.GetDeleted(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Restore(ctx, id); err != nil {
			return err
		}
		l.DeletedAt = nil
		lead = l
		uid := actor.ID
		return tx.AppendLog(ctx, ActionLog{LeadID: id, UserID: &uid, Action: "restored", Description: fmt.Sprintf("Lead restored by %s", actor.Name)})
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	v := s.view(lead, actor)
	return &v, nil
}

// History returns the action log of a lead visible to actor, newest first.
func (s *Service) History(ctx context.Context, actor *users.User, id int64) ([]ActionLog, error) {
	if _, err := s.repo.Get(ctx, id, ScopeFor(actor)); err != nil {
		return nil, err
	}
	return s.repo.ListLogs(ctx, id)
}

// Notes returns the internal notes of a lead visible to actor.
func (s *Service) Notes(ctx context.Context, actor *users.User, id int64) ([]Note, error) {
	if _, err := s.repo.Get(ctx, id, ScopeFor(actor)); err != nil {
		return nil, err
	}
	return s.repo.ListNotes(ctx, id)
}

// AddNote stores an internal note and notifies the people working the lead.
func (s *Service) AddNote(ctx context.Context, actor *users.User, id int64, body string) (*Note, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: note body is required", ErrInvalid)
	}
	var (
		lead *Lead
		note *Note
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		l, err := tx.Get(ctx, id, ScopeFor(actor))
		if err != nil {
			return err
		}
		note, err = tx.AddNote(ctx, Note{LeadID: id, UserID: actor.ID, Body: body})
		if err != nil {
			return err
		}
		lead = l
		uid := actor.ID
		return tx.AppendLog(ctx, ActionLog{LeadID: id, UserID: &uid, Action: "note_added", Description: fmt.Sprintf("Note added by %s", actor.Name)})
	})
	if err != nil {
		return nil, err
	}

	recipients, err := s.NoteRecipients(ctx, lead, actor)
	if err != nil {
		s.logger.Warn("resolve note recipients", slog.Int64("lead_id", id), slog.Any("error", err))
	}
	s.notify(ctx, recipients, notifications.Message{
		Key: notifications.KeyLeadNoteAdded,
		Params: map[string]string{
			"reference": lead.ReferenceID,
			"author":    actor.Name,
			"excerpt":   excerpt(body, 120),
		},
		Data: map[string]any{"lead_id": lead.ID, "note_id": note.ID},
	})
	return note, nil
}

// NoteRecipients returns who hears about a note on l written by author:
// the assigned sales rep, the assigned operator, the creator and the
// manager of each assignee's role. The author is never included and every
// user appears once. Manager lookups that find nobody are skipped.
func (s *Service) NoteRecipients(ctx context.Context, l *Lead, author *users.User) ([]int64, error) {
	var (
		ids   []int64
		errs  []error
		roles = map[users.Role]struct{}{}
	)
	add := func(id *int64) {
		if id != nil && *id != author.ID {
			ids = append(ids, *id)
		}
	}
	add(l.AssignedTo)
	add(l.AssignedOperator)
	add(l.CreatedBy)

	for _, assignee := range []*int64{l.AssignedTo, l.AssignedOperator} {
		if assignee == nil {
			continue
		}
		u, err := s.directory.Lookup(ctx, *assignee)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, done := roles[u.Role]; done {
			continue
		}
		roles[u.Role] = struct{}{}
		manager, err := s.directory.ManagerOf(ctx, u.Role, author.ID)
		if errors.Is(err, users.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		add(&manager.ID)
	}
	return notifications.Unique(ids), errors.Join(errs...)
}

func (s *Service) view(l *Lead, actor *users.User) LeadView {
	actions := AvailableActions(l, actor)
	views := make([]ActionView, 0, len(actions))
	for _, a := range actions {
		views = append(views, ActionView{Action: a, Label: a.Label()})
	}
	return LeadView{
		Lead:            *l,
		TotalPax:        l.TotalPax(),
		Duration:        l.DurationLabel(),
		Services:        l.ServiceSummary(),
		StatusLabel:     l.Status.Label(),
		StatusColor:     l.Status.Color(),
		Actions:         views,
		CanEdit:         CanEdit(actor, l),
		CanDelete:       CanDelete(actor, l),
		CanEditServices: CanUpdateServices(actor, l),
	}
}

func (s *Service) notify(ctx context.Context, recipients []int64, msg notifications.Message) {
	if s.notifier == nil || len(recipients) == 0 {
		return
	}
	if err := s.notifier.Notify(ctx, recipients, msg); err != nil {
		s.logger.Warn("notify", slog.String("key", msg.Key), slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate dashboard cache", slog.Any("error", err))
	}
}

func checkDates(departure, arrival *time.Time) error {
	if departure != nil && arrival != nil && truncateDay(*arrival).Before(truncateDay(*departure)) {
		return fmt.Errorf("%w: arrival date must not be before departure date", ErrInvalid)
	}
	return nil
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := truncateDay(*t)
	return &d
}

var errCustomerNameRequired = fmt.Errorf("%w: customer name is required", ErrInvalid)

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func serviceLabel(s Component) string {
	switch s {
	case ComponentAirTicket:
		return "Air ticket"
	case ComponentHotel:
		return "Hotel"
	case ComponentVisa:
		return "Visa"
	case ComponentLandPackage:
		return "Land package"
	}
	return string(s)
}
