package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/voyage-crm/voyage/internal/users"
)

func (s *Service) costLead(ctx context.Context, repo Repository, actor *users.User, leadID int64) (*LeadRef, error) {
	lead, err := repo.LeadRef(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if !CanManageCosts(actor, lead) {
		if CanViewInvoices(actor, lead) {
			return nil, ErrForbidden
		}
		return nil, ErrNotFound
	}
	return lead, nil
}

// ListCosts returns the cost lines of a lead with their summary.
func (s *Service) ListCosts(ctx context.Context, actor *users.User, leadID int64) (*CostsView, error) {
	if _, err := s.costLead(ctx, s.repo, actor, leadID); err != nil {
		return nil, err
	}
	costs, err := s.repo.ListCosts(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if costs == nil {
		costs = []LeadCost{}
	}
	return &CostsView{Costs: costs, Summary: Summarize(costs)}, nil
}

// SummaryForLead totals the cost lines of a lead.
func (s *Service) SummaryForLead(ctx context.Context, actor *users.User, leadID int64) (CostSummary, error) {
	view, err := s.ListCosts(ctx, actor, leadID)
	if err != nil {
		return CostSummary{}, err
	}
	return view.Summary, nil
}

// AddCost adds a cost line to a lead.
func (s *Service) AddCost(ctx context.Context, actor *users.User, leadID int64, req CostRequest) (*LeadCost, error) {
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalid)
	}
	amount, err := nonNegative(req.Amount, "amount")
	if err != nil {
		return nil, err
	}
	vendor, err := nonNegative(req.VendorAmount, "vendor amount")
	if err != nil {
		return nil, err
	}
	var cost *LeadCost
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := s.costLead(ctx, tx, actor, leadID); err != nil {
			return err
		}
		var err error
		cost, err = tx.CreateCost(ctx, LeadCost{LeadID: leadID, Description: desc, Amount: amount, VendorAmount: vendor})
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, actor, "lead", "lead_cost.create", leadID, map[string]any{
			"lead_cost_id":  cost.ID,
			"amount":        amount.StringFixed(2),
			"vendor_amount": vendor.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}
	s.mutated(ctx, "lead_cost_create")
	return cost, nil
}

// UpdateCost edits a cost line.
func (s *Service) UpdateCost(ctx context.Context, actor *users.User, id int64, req UpdateCostRequest) (*LeadCost, error) {
	changes := CostChanges{Description: trimPtr(req.Description)}
	if changes.Description != nil && *changes.Description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalid)
	}
	if req.Amount != nil {
		v, err := nonNegative(*req.Amount, "amount")
		if err != nil {
			return nil, err
		}
		changes.Amount = &v
	}
	if req.VendorAmount != nil {
		v, err := nonNegative(*req.VendorAmount, "vendor amount")
		if err != nil {
			return nil, err
		}
		changes.VendorAmount = &v
	}
	var cost *LeadCost
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.GetCost(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.costLead(ctx, tx, actor, current.LeadID); err != nil {
			return err
		}
		cost, err = tx.UpdateCost(ctx, id, changes)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, actor, "lead", "lead_cost.update", current.LeadID, map[string]any{"lead_cost_id": id})
	})
	if err != nil {
		return nil, err
	}
	s.mutated(ctx, "lead_cost_update")
	return cost, nil
}

// DeleteCost removes a cost line.
func (s *Service) DeleteCost(ctx context.Context, actor *users.User, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.GetCost(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.costLead(ctx, tx, actor, current.LeadID); err != nil {
			return err
		}
		if err := tx.DeleteCost(ctx, id); err != nil {
			return err
		}
		return s.audit(ctx, tx, actor, "lead", "lead_cost.delete", current.LeadID, map[string]any{"lead_cost_id": id})
	})
	if err != nil {
		return err
	}
	s.mutated(ctx, "lead_cost_delete")
	return nil
}

// MarkCostPaid flags the vendor side of a cost line as paid.
func (s *Service) MarkCostPaid(ctx context.Context, actor *users.User, id int64) (*LeadCost, error) {
	return s.setCostPaid(ctx, actor, id, true)
}

// MarkCostUnpaid clears the paid flag of a cost line.
func (s *Service) MarkCostUnpaid(ctx context.Context, actor *users.User, id int64) (*LeadCost, error) {
	return s.setCostPaid(ctx, actor, id, false)
}

func (s *Service) setCostPaid(ctx context.Context, actor *users.User, id int64, paid bool) (*LeadCost, error) {
	var cost *LeadCost
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.GetCost(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.costLead(ctx, tx, actor, current.LeadID); err != nil {
			return err
		}
		if current.IsPaid == paid {
			cost = current
			return nil
		}
		at := s.now()
		paidAt := &at
		if !paid {
			paidAt = nil
		}
		if err := tx.SetCostPaid(ctx, id, paid, paidAt); err != nil {
			return err
		}
		cost, err = tx.GetCost(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cost, nil
}
