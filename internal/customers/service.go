package customers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voyage-crm/voyage/internal/leads"
	"github.com/voyage-crm/voyage/internal/users"
)

// Service handles customer business logic.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new customer service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

func (s *Service) view(actor *users.User, c *Customer) CustomerView {
	return CustomerView{Customer: *c, CanEdit: CanEdit(actor), CanDelete: CanDelete(actor)}
}

// Create creates a new customer.
func (s *Service) Create(ctx context.Context, actor *users.User, req CreateCustomerRequest) (*CustomerView, error) {
	if !CanCreate(actor) {
		return nil, ErrForbidden
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	creator := actor.ID
	c, err := s.repo.Create(ctx, Customer{Name: name, ContactInfo: cleanContact(req.ContactInfo), CreatedBy: &creator})
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	s.logger.Info("customer created", slog.Int64("customer_id", c.ID), slog.Int64("actor_id", actor.ID))
	v := s.view(actor, c)
	return &v, nil
}

// Update changes name and contact info. A nil ContactInfo keeps the stored one.
func (s *Service) Update(ctx context.Context, actor *users.User, id int64, req UpdateCustomerRequest) (*CustomerView, error) {
	if !CanEdit(actor) {
		return nil, ErrForbidden
	}
	var name *string
	if req.Name != nil {
		n := strings.TrimSpace(*req.Name)
		if n == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalid)
		}
		name = &n
	}
	var contact ContactInfo
	if req.ContactInfo != nil {
		contact = cleanContact(req.ContactInfo)
	}
	c, err := s.repo.Update(ctx, id, name, contact)
	if err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}
	v := s.view(actor, c)
	return &v, nil
}

// Get returns a customer by ID.
func (s *Service) Get(ctx context.Context, actor *users.User, id int64) (*CustomerView, error) {
	if !CanView(actor) {
		return nil, ErrForbidden
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v := s.view(actor, c)
	return &v, nil
}

// List returns customers matching filter and the unpaged total.
func (s *Service) List(ctx context.Context, actor *users.User, filter ListFilter) ([]CustomerView, int, error) {
	if !CanView(actor) {
		return nil, 0, ErrForbidden
	}
	list, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	out := make([]CustomerView, 0, len(list))
	for i := range list {
		out = append(out, s.view(actor, &list[i]))
	}
	return out, total, nil
}

// Delete removes a customer that no lead references.
func (s *Service) Delete(ctx context.Context, actor *users.User, id int64) error {
	if !CanDelete(actor) {
		return ErrForbidden
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.Get(ctx, id); err != nil {
			return err
		}
		used, err := tx.HasLeads(ctx, id)
		if err != nil {
			return err
		}
		if used {
			return ErrInUse
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("customer deleted", slog.Int64("customer_id", id), slog.Int64("actor_id", actor.ID))
	return nil
}

// ListLeads returns the non-deleted leads booked for a customer that the
// actor may see in the lead pipeline.
func (s *Service) ListLeads(ctx context.Context, actor *users.User, id int64) ([]LeadSummary, error) {
	if !CanView(actor) {
		return nil, ErrForbidden
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListLeads(ctx, id, leads.ScopeFor(actor))
}
