package dashboard

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voyage-crm/voyage/internal/leads"
	"github.com/voyage-crm/voyage/internal/platform/httpx"
)

var ErrForbidden = fmt.Errorf("dashboard: %w", httpx.ErrForbidden)

// upcomingWindow is how far ahead departures are listed.
const upcomingWindow = 7

// StatusCount is the number of live leads in one pipeline stage.
type StatusCount struct {
	Status leads.Status `json:"status"`
	Label  string       `json:"label"`
	Color  string       `json:"color"`
	Count  int          `json:"count"`
}

// Departure is a lead travelling within the upcoming window.
type Departure struct {
	LeadID        int64        `json:"lead_id"`
	ReferenceID   string       `json:"reference_id"`
	CustomerName  string       `json:"customer_name"`
	Destination   string       `json:"destination"`
	Status        leads.Status `json:"status"`
	DepartureDate time.Time    `json:"departure_date"`
}

// FinanceSummary totals invoices and vendor bills across all leads.
type FinanceSummary struct {
	Invoiced       decimal.Decimal `json:"invoiced"`
	Received       decimal.Decimal `json:"received"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	VendorBilled   decimal.Decimal `json:"vendor_billed"`
	VendorUnpaid   decimal.Decimal `json:"vendor_unpaid"`
	Profit         decimal.Decimal `json:"profit"`
	UnpaidInvoices int             `json:"unpaid_invoices"`
}

// Overview is the landing page payload for one user.
type Overview struct {
	StatusCounts       []StatusCount   `json:"status_counts"`
	TotalLeads         int             `json:"total_leads"`
	MyOpenLeads        int             `json:"my_open_leads"`
	UpcomingDepartures []Departure     `json:"upcoming_departures"`
	Finance            *FinanceSummary `json:"finance,omitempty"`
	GeneratedAt        time.Time       `json:"generated_at"`
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
