package leads

import (
	"fmt"
	"time"

	"github.com/voyage-crm/voyage/internal/platform/httpx"
)

var (
	ErrNotFound = fmt.Errorf("leads: %w", httpx.ErrNotFound)
	ErrInvalid  = fmt.Errorf("leads: %w", httpx.ErrValidation)
	// ErrActionNotAllowed is returned when an action's guard rejects the
	// current status, role or assignment.
	ErrActionNotAllowed = fmt.Errorf("leads: action not allowed: %w", httpx.ErrConflict)
	// ErrStaleLead is returned when the lead changed between read and update.
	ErrStaleLead = fmt.Errorf("leads: lead was modified concurrently: %w", httpx.ErrConflict)
	ErrForbidden = fmt.Errorf("leads: %w", httpx.ErrForbidden)
)

// Lead is a customer inquiry moving through the sales and operations pipeline.
type Lead struct {
	ID                int64         `json:"id"`
	ReferenceID       string        `json:"reference_id"`
	CustomerName      string        `json:"customer_name"`
	CustomerID        *int64        `json:"customer_id,omitempty"`
	Platform          Platform      `json:"platform"`
	Status            Status        `json:"status"`
	Priority          Priority      `json:"priority"`
	AssignedTo        *int64        `json:"assigned_to,omitempty"`
	AssignedOperator  *int64        `json:"assigned_operator,omitempty"`
	CreatedBy         *int64        `json:"created_by,omitempty"`
	Destination       string        `json:"destination"`
	DepartureDate     *time.Time    `json:"departure_date,omitempty"`
	ArrivalDate       *time.Time    `json:"arrival_date,omitempty"`
	Adults            int           `json:"adults"`
	Children          int           `json:"children"`
	Infants           int           `json:"infants"`
	AirTicketStatus   ServiceStatus `json:"air_ticket_status"`
	HotelStatus       ServiceStatus `json:"hotel_status"`
	VisaStatus        ServiceStatus `json:"visa_status"`
	LandPackageStatus ServiceStatus `json:"land_package_status"`
	Notes             string        `json:"notes"`
	ArchivedAt        *time.Time    `json:"archived_at,omitempty"`
	ArchivedBy        *int64        `json:"archived_by,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	DeletedAt         *time.Time    `json:"deleted_at,omitempty"`
}

func (l *Lead) IsArchived() bool { return l.ArchivedAt != nil }
func (l *Lead) IsDeleted() bool  { return l.DeletedAt != nil }
func (l *Lead) IsClosed() bool   { return l.Status == StatusClosed }

// TotalPax is the number of travellers.
func (l *Lead) TotalPax() int { return l.Adults + l.Children + l.Infants }

// DurationNights is the trip length, zero when a date is missing or the
// dates are reversed.
func (l *Lead) DurationNights() int {
	if l.DepartureDate == nil || l.ArrivalDate == nil {
		return 0
	}
	nights := int(truncateDay(*l.ArrivalDate).Sub(truncateDay(*l.DepartureDate)).Hours() / 24)
	if nights < 0 {
		return 0
	}
	return nights
}

// DurationLabel renders the trip length as "N nights / N+1 days".
func (l *Lead) DurationLabel() string {
	n := l.DurationNights()
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d nights / %d days", n, n+1)
}

// ServiceStatusOf returns the status of one booking component.
func (l *Lead) ServiceStatusOf(s Component) ServiceStatus {
	switch s {
	case ComponentAirTicket:
		return l.AirTicketStatus
	case ComponentHotel:
		return l.HotelStatus
	case ComponentVisa:
		return l.VisaStatus
	case ComponentLandPackage:
		return l.LandPackageStatus
	}
	return ""
}

func (l *Lead) setServiceStatus(s Component, v ServiceStatus) {
	switch s {
	case ComponentAirTicket:
		l.AirTicketStatus = v
	case ComponentHotel:
		l.HotelStatus = v
	case ComponentVisa:
		l.VisaStatus = v
	case ComponentLandPackage:
		l.LandPackageStatus = v
	}
}

// ServiceSummary aggregates the booking components. Components marked
// not_required are left out of Required.
type ServiceSummary struct {
	Required int  `json:"required"`
	Done     int  `json:"done"`
	Pending  int  `json:"pending"`
	Complete bool `json:"complete"`
	Progress int  `json:"progress"`
}

func (l *Lead) ServiceSummary() ServiceSummary {
	var sum ServiceSummary
	for _, s := range Components() {
		switch l.ServiceStatusOf(s) {
		case ServiceNotRequired:
			continue
		case ServiceDone:
			sum.Done++
		default:
			sum.Pending++
		}
		sum.Required++
	}
	sum.Complete = sum.Pending == 0
	if sum.Required == 0 {
		sum.Progress = 100
	} else {
		sum.Progress = sum.Done * 100 / sum.Required
	}
	return sum
}

// ActionLog is an append-only record of a lead change.
type ActionLog struct {
	ID          int64     `json:"id"`
	LeadID      int64     `json:"lead_id"`
	UserID      *int64    `json:"user_id,omitempty"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Note is an internal comment left on a lead.
type Note struct {
	ID        int64     `json:"id"`
	LeadID    int64     `json:"lead_id"`
	UserID    int64     `json:"user_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// View selects which partition of leads a listing reads.
type View string

const (
	ViewActive   View = "active"
	ViewArchived View = "archived"
	ViewTrash    View = "trash"
)

// ListFilter narrows lead listings.
type ListFilter struct {
	View       View
	Status     Status
	Platform   Platform
	AssignedTo *int64
	Search     string
	Limit      int
	Offset     int
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
