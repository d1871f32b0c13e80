package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voyage-crm/voyage/internal/leads"
	"github.com/voyage-crm/voyage/internal/platform/httpx"
)

var (
	ErrNotFound  = fmt.Errorf("billing: %w", httpx.ErrNotFound)
	ErrInvalid   = fmt.Errorf("billing: %w", httpx.ErrValidation)
	ErrForbidden = fmt.Errorf("billing: %w", httpx.ErrForbidden)
	// ErrLeadNotReady is returned when invoicing a lead that is not confirmed.
	ErrLeadNotReady = fmt.Errorf("billing: lead is not confirmed: %w", httpx.ErrValidation)
	// ErrDuplicateNumber is returned when an invoice number is already taken.
	ErrDuplicateNumber = fmt.Errorf("billing: invoice number already exists: %w", httpx.ErrValidation)
	// ErrDuplicateRequest is returned when an Idempotency-Key was already used.
	ErrDuplicateRequest = fmt.Errorf("billing: request already processed: %w", httpx.ErrDuplicate)
)

// PaymentStatus is the settlement state of either side of an invoice.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

var paymentStatusMeta = map[PaymentStatus][2]string{
	PaymentPending: {"Pending", "warning"},
	PaymentPartial: {"Partial", "info"},
	PaymentPaid:    {"Paid", "success"},
}

func (s PaymentStatus) Label() string { return paymentStatusMeta[s][0] }
func (s PaymentStatus) Color() string { return paymentStatusMeta[s][1] }

// BillStatus is the state of a single vendor bill.
type BillStatus string

const (
	BillPending BillStatus = "pending"
	BillPaid    BillStatus = "paid"
)

func (s BillStatus) Valid() bool { return s == BillPending || s == BillPaid }

// ServiceType classifies what a vendor bill pays for.
type ServiceType string

const (
	ServiceAirTicket   ServiceType = "air_ticket"
	ServiceHotel       ServiceType = "hotel"
	ServiceVisa        ServiceType = "visa"
	ServiceLandPackage ServiceType = "land_package"
	ServiceTransport   ServiceType = "transport"
	ServiceOther       ServiceType = "other"
)

var serviceTypeLabels = map[ServiceType]string{
	ServiceAirTicket:   "Air Ticket",
	ServiceHotel:       "Hotel",
	ServiceVisa:        "Visa",
	ServiceLandPackage: "Land Package",
	ServiceTransport:   "Transport",
	ServiceOther:       "Other",
}

func (t ServiceType) Valid() bool   { _, ok := serviceTypeLabels[t]; return ok }
func (t ServiceType) Label() string { return serviceTypeLabels[t] }

// PaymentMethod records how a customer paid.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCard         PaymentMethod = "card"
	MethodCheque       PaymentMethod = "cheque"
	MethodOnline       PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCard, MethodCheque, MethodOnline:
		return true
	}
	return false
}

// LeadRef is the part of a lead billing needs for policy and invoicing.
type LeadRef struct {
	ID               int64        `json:"id"`
	ReferenceID      string       `json:"reference_id"`
	CustomerName     string       `json:"customer_name"`
	Status           leads.Status `json:"status"`
	AssignedTo       *int64       `json:"assigned_to,omitempty"`
	AssignedOperator *int64       `json:"assigned_operator,omitempty"`
	CreatedBy        *int64       `json:"created_by,omitempty"`
}

// Invoice is the customer-facing bill of a confirmed lead. Balance and both
// payment statuses are derived and only written by recomputation.
type Invoice struct {
	ID                    int64           `json:"id"`
	InvoiceNumber         string          `json:"invoice_number"`
	LeadID                int64           `json:"lead_id"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	BalanceAmount         decimal.Decimal `json:"balance_amount"`
	CustomerPaymentStatus PaymentStatus   `json:"customer_payment_status"`
	VendorPaymentStatus   PaymentStatus   `json:"vendor_payment_status"`
	IssueDate             time.Time       `json:"issue_date"`
	DueDate               *time.Time      `json:"due_date,omitempty"`
	Notes                 string          `json:"notes"`
	CreatedBy             *int64          `json:"created_by,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// CustomerPayment is money received against an invoice.
type CustomerPayment struct {
	ID            int64           `json:"id"`
	InvoiceID     int64           `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   time.Time       `json:"payment_date"`
	ReceiptNumber string          `json:"receipt_number"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Notes         string          `json:"notes"`
	CreatedBy     *int64          `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// VendorBill is a supplier cost booked against an invoice.
type VendorBill struct {
	ID            int64           `json:"id"`
	InvoiceID     int64           `json:"invoice_id"`
	VendorName    string          `json:"vendor_name"`
	BillNumber    string          `json:"bill_number"`
	BillAmount    decimal.Decimal `json:"bill_amount"`
	ServiceType   ServiceType     `json:"service_type"`
	PaymentStatus BillStatus      `json:"payment_status"`
	PaymentDate   *time.Time      `json:"payment_date,omitempty"`
	Notes         string          `json:"notes"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (b *VendorBill) IsPaid() bool { return b.PaymentStatus == BillPaid }

// LeadCost is an itemised cost line on a lead, tracked outside invoices.
type LeadCost struct {
	ID           int64           `json:"id"`
	LeadID       int64           `json:"lead_id"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	VendorAmount decimal.Decimal `json:"vendor_amount"`
	IsPaid       bool            `json:"is_paid"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CostSummary totals the cost lines of a lead.
type CostSummary struct {
	Amount       decimal.Decimal `json:"amount"`
	VendorAmount decimal.Decimal `json:"vendor_amount"`
	Profit       decimal.Decimal `json:"profit"`
	VendorPaid   decimal.Decimal `json:"vendor_paid"`
	VendorUnpaid decimal.Decimal `json:"vendor_unpaid"`
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	LeadID         *int64
	CustomerStatus PaymentStatus
	VendorStatus   PaymentStatus
	Search         string
	Limit          int
	Offset         int
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
