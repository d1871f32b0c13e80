package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateInvoiceRequest struct {
	InvoiceNumber string          `json:"invoice_number" validate:"required,max=64"`
	LeadID        int64           `json:"lead_id" validate:"required,gt=0"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	IssueDate     *time.Time      `json:"issue_date,omitempty"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	Notes         string          `json:"notes" validate:"max=5000"`
}

type UpdateInvoiceRequest struct {
	TotalAmount  *decimal.Decimal `json:"total_amount,omitempty"`
	IssueDate    *time.Time       `json:"issue_date,omitempty"`
	DueDate      *time.Time       `json:"due_date,omitempty"`
	ClearDueDate bool             `json:"clear_due_date,omitempty"`
	Notes        *string          `json:"notes,omitempty" validate:"omitempty,max=5000"`
}

type PaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   time.Time       `json:"payment_date" validate:"required"`
	ReceiptNumber string          `json:"receipt_number" validate:"max=64"`
	PaymentMethod string          `json:"payment_method,omitempty" validate:"omitempty,oneof=cash bank_transfer card cheque online"`
	Notes         string          `json:"notes" validate:"max=5000"`
}

type UpdatePaymentRequest struct {
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	PaymentDate   *time.Time       `json:"payment_date,omitempty"`
	ReceiptNumber *string          `json:"receipt_number,omitempty" validate:"omitempty,max=64"`
	PaymentMethod *string          `json:"payment_method,omitempty" validate:"omitempty,oneof=cash bank_transfer card cheque online"`
	Notes         *string          `json:"notes,omitempty" validate:"omitempty,max=5000"`
}

type VendorBillRequest struct {
	VendorName  string          `json:"vendor_name" validate:"required,max=200"`
	BillNumber  string          `json:"bill_number" validate:"max=64"`
	BillAmount  decimal.Decimal `json:"bill_amount"`
	ServiceType string          `json:"service_type" validate:"required,oneof=air_ticket hotel visa land_package transport other"`
	Notes       string          `json:"notes" validate:"max=5000"`
}

type UpdateVendorBillRequest struct {
	VendorName  *string          `json:"vendor_name,omitempty" validate:"omitempty,min=1,max=200"`
	BillNumber  *string          `json:"bill_number,omitempty" validate:"omitempty,max=64"`
	BillAmount  *decimal.Decimal `json:"bill_amount,omitempty"`
	ServiceType *string          `json:"service_type,omitempty" validate:"omitempty,oneof=air_ticket hotel visa land_package transport other"`
	Notes       *string          `json:"notes,omitempty" validate:"omitempty,max=5000"`
}

type CostRequest struct {
	Description  string          `json:"description" validate:"required,max=500"`
	Amount       decimal.Decimal `json:"amount"`
	VendorAmount decimal.Decimal `json:"vendor_amount"`
}

type UpdateCostRequest struct {
	Description  *string          `json:"description,omitempty" validate:"omitempty,min=1,max=500"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	VendorAmount *decimal.Decimal `json:"vendor_amount,omitempty"`
}

// InvoiceView is an invoice with its children and read-side totals.
type InvoiceView struct {
	Invoice
	Lead                  *LeadRef          `json:"lead,omitempty"`
	Payments              []CustomerPayment `json:"payments"`
	VendorBills           []VendorBill      `json:"vendor_bills"`
	TotalCustomerPayments decimal.Decimal   `json:"total_customer_payments"`
	TotalVendorBills      decimal.Decimal   `json:"total_vendor_bills"`
	VendorOutstanding     decimal.Decimal   `json:"vendor_outstanding"`
	Profit                decimal.Decimal   `json:"profit"`
	ProfitMargin          decimal.Decimal   `json:"profit_margin"`
	CustomerStatusLabel   string            `json:"customer_status_label"`
	CustomerStatusColor   string            `json:"customer_status_color"`
	VendorStatusLabel     string            `json:"vendor_status_label"`
	VendorStatusColor     string            `json:"vendor_status_color"`
	CanManage             bool              `json:"can_manage"`
	CanManageVendorBills  bool              `json:"can_manage_vendor_bills"`
	CanSettleVendorBills  bool              `json:"can_settle_vendor_bills"`
}

// CostsView lists a lead's cost lines with their totals.
type CostsView struct {
	Costs   []LeadCost  `json:"costs"`
	Summary CostSummary `json:"summary"`
}
