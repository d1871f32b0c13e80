package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voyage-crm/voyage/internal/users"
)

// lockedInvoiceLead locks invoiceID and loads its lead for policy checks.
func lockedInvoiceLead(ctx context.Context, tx Repository, invoiceID int64) (*Invoice, *LeadRef, error) {
	inv, err := tx.LockInvoice(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	lead, err := tx.LeadRef(ctx, inv.LeadID)
	if err != nil {
		return nil, nil, err
	}
	return inv, lead, nil
}

// AddVendorBill books a supplier cost against an invoice.
func (s *Service) AddVendorBill(ctx context.Context, actor *users.User, invoiceID int64, req VendorBillRequest) (*VendorBill, error) {
	amount := Money(req.BillAmount)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: bill amount must be positive", ErrInvalid)
	}
	serviceType := ServiceType(req.ServiceType)
	if !serviceType.Valid() {
		return nil, fmt.Errorf("%w: unknown service type", ErrInvalid)
	}
	vendor := strings.TrimSpace(req.VendorName)
	if vendor == "" {
		return nil, fmt.Errorf("%w: vendor name is required", ErrInvalid)
	}

	var bill *VendorBill
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		_, lead, err := lockedInvoiceLead(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if !CanManageVendorBills(actor, lead) {
			return ErrForbidden
		}
		bill, err = tx.CreateBill(ctx, VendorBill{
			InvoiceID:     invoiceID,
			VendorName:    vendor,
			BillNumber:    strings.TrimSpace(req.BillNumber),
			BillAmount:    amount,
			ServiceType:   serviceType,
			PaymentStatus: BillPending,
			Notes:         req.Notes,
		})
		if err != nil {
			return err
		}
		if _, _, err := s.recompute(ctx, tx, invoiceID); err != nil {
			return err
		}
		return s.audit(ctx, tx, actor, "invoice", "vendor_bill.create", invoiceID, map[string]any{
			"vendor_bill_id": bill.ID,
			"vendor_name":    vendor,
			"bill_amount":    amount.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}
	s.mutated(ctx, "vendor_bill_create")
	return bill, nil
}

// UpdateVendorBill edits a vendor bill. Its payment state is changed only
// through MarkBillPaid and MarkBillPending.
func (s *Service) UpdateVendorBill(ctx context.Context, actor *users.User, id int64, req UpdateVendorBillRequest) (*VendorBill, error) {
	changes := BillChanges{
		VendorName: trimPtr(req.VendorName),
		BillNumber: trimPtr(req.BillNumber),
		Notes:      req.Notes,
	}
	if changes.VendorName != nil && *changes.VendorName == "" {
		return nil, fmt.Errorf("%w: vendor name is required", ErrInvalid)
	}
	if req.BillAmount != nil {
		amount := Money(*req.BillAmount)
		if !amount.IsPositive() {
			return nil, fmt.Errorf("%w: bill amount must be positive", ErrInvalid)
		}
		changes.BillAmount = &amount
	}
	if req.ServiceType != nil {
		t := ServiceType(*req.ServiceType)
		if !t.Valid() {
			return nil, fmt.Errorf("%w: unknown service type", ErrInvalid)
		}
		changes.ServiceType = &t
	}

	var bill *VendorBill
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.GetBill(ctx, id)
		if err != nil {
			return err
		}
		_, lead, err := lockedInvoiceLead(ctx, tx, current.InvoiceID)
		if err != nil {
			return err
		}
		if !CanManageVendorBills(actor, lead) {
			return ErrForbidden
		}
		bill, err = tx.UpdateBill(ctx, id, changes)
		if err != nil {
			return err
		}
		if _, _, err := s.recompute(ctx, tx, current.InvoiceID); err != nil {
			return err
		}
		return s.audit(ctx, tx, actor, "invoice", "vendor_bill.update", current.InvoiceID, map[string]any{
			"vendor_bill_id": id,
			"bill_amount":    bill.BillAmount.StringFixed(2),
		})
	})
	if err != nil {
		return nil, err
	}
	s.mutated(ctx, "vendor_bill_update")
	return bill, nil
}

// DeleteVendorBill removes a vendor bill and recomputes its invoice.
func (s *Service) DeleteVendorBill(ctx context.Context, actor *users.User, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.GetBill(ctx, id)
		if err != nil {
			return err
		}
		_, lead, err := lockedInvoiceLead(ctx, tx, current.InvoiceID)
		if err != nil {
			return err
		}
		if !CanManageVendorBills(actor, lead) {
			return ErrForbidden
		}
		if err := tx.DeleteBill(ctx, id); err != nil {
			return err
		}
		if _, _, err := s.recompute(ctx, tx, current.InvoiceID); err != nil {
			return err
		}
		return s.audit(ctx, tx, actor, "invoice", "vendor_bill.delete", current.InvoiceID, map[string]any{
			"vendor_bill_id": id,
			"bill_amount":    current.BillAmount.StringFixed(2),
		})
	})
	if err != nil {
		return err
	}
	s.mutated(ctx, "vendor_bill_delete")
	return nil
}

// MarkBillPaid settles a vendor bill. paidOn defaults to today. Marking an
// already paid bill changes nothing.
func (s *Service) MarkBillPaid(ctx context.Context, actor *users.User, id int64, paidOn *time.Time) (*VendorBill, error) {
	day := truncateDay(s.now())
	if paidOn != nil {
		day = truncateDay(*paidOn)
	}
	return s.settleBill(ctx, actor, id, BillPaid, &day)
}

// MarkBillPending reopens a paid vendor bill. Reopening a pending bill
// changes nothing.
func (s *Service) MarkBillPending(ctx context.Context, actor *users.User, id int64) (*VendorBill, error) {
	return s.settleBill(ctx, actor, id, BillPending, nil)
}

func (s *Service) settleBill(ctx context.Context, actor *users.User, id int64, status BillStatus, paidOn *time.Time) (*VendorBill, error) {
	if !CanSettleVendorBills(actor) {
		return nil, ErrForbidden
	}
	var (
		bill    *VendorBill
		changed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.GetBill(ctx, id)
		if err != nil {
			return err
		}
		if _, err := tx.LockInvoice(ctx, current.InvoiceID); err != nil {
			return err
		}
		// Re-read under the invoice lock so concurrent settles see each other.
		if current, err = tx.GetBill(ctx, id); err != nil {
			return err
		}
		if current.PaymentStatus == status {
			bill = current
			return nil
		}
		if err := tx.SetBillStatus(ctx, id, status, paidOn); err != nil {
			return err
		}
		if _, _, err := s.recompute(ctx, tx, current.InvoiceID); err != nil {
			return err
		}
		changed = true
		bill, err = tx.GetBill(ctx, id)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, actor, "invoice", "vendor_bill."+string(status), current.InvoiceID, map[string]any{
			"vendor_bill_id": id,
		})
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.mutated(ctx, "vendor_bill_"+string(status))
	}
	return bill, nil
}
