package leaves

import (
	"fmt"
	"time"

	"github.com/voyage-crm/voyage/internal/platform/httpx"
	"github.com/voyage-crm/voyage/internal/users"
)

var (
	ErrNotFound  = fmt.Errorf("leaves: %w", httpx.ErrNotFound)
	ErrInvalid   = fmt.Errorf("leaves: %w", httpx.ErrValidation)
	ErrForbidden = fmt.Errorf("leaves: %w", httpx.ErrForbidden)
	// ErrOverlap is returned when a request collides with another pending
	// or approved leave of the same user.
	ErrOverlap = fmt.Errorf("leaves: overlaps an existing leave: %w", httpx.ErrConflict)
	// ErrNotPending is returned when a decided or cancelled leave is acted on.
	ErrNotPending = fmt.Errorf("leaves: leave is no longer pending: %w", httpx.ErrConflict)
	// ErrReasonRequired is returned when a rejection has no reason.
	ErrReasonRequired = fmt.Errorf("leaves: rejection reason is required: %w", httpx.ErrValidation)
)

type Type string

const (
	TypeAnnual    Type = "annual"
	TypeSick      Type = "sick"
	TypeCasual    Type = "casual"
	TypeEmergency Type = "emergency"
	TypeUnpaid    Type = "unpaid"
)

var typeLabels = map[Type]string{
	TypeAnnual:    "Annual",
	TypeSick:      "Sick",
	TypeCasual:    "Casual",
	TypeEmergency: "Emergency",
	TypeUnpaid:    "Unpaid",
}

func (t Type) Valid() bool   { _, ok := typeLabels[t]; return ok }
func (t Type) Label() string { return typeLabels[t] }

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

var statusMeta = map[Status][2]string{
	StatusPending:   {"Pending", "warning"},
	StatusApproved:  {"Approved", "success"},
	StatusRejected:  {"Rejected", "danger"},
	StatusCancelled: {"Cancelled", "gray"},
}

func (s Status) Valid() bool   { _, ok := statusMeta[s]; return ok }
func (s Status) Label() string { return statusMeta[s][0] }
func (s Status) Color() string { return statusMeta[s][1] }

// Leave is a request for time off. UserName and UserRole are read from the
// requester's account.
type Leave struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	UserName        string     `json:"user_name"`
	UserRole        users.Role `json:"user_role"`
	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	Type            Type       `json:"type"`
	Status          Status     `json:"status"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         time.Time  `json:"end_date"`
	Reason          string     `json:"reason"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DurationInDays counts both ends of the range.
func (l *Leave) DurationInDays() int {
	return DaysBetween(l.StartDate, l.EndDate)
}

// DaysBetween returns the inclusive day count from start to end.
func DaysBetween(start, end time.Time) int {
	return int(truncateDay(end).Sub(truncateDay(start)).Hours()/24) + 1
}

// Decision is what an approver records on a pending leave.
type Decision struct {
	Status     Status
	ApprovedBy int64
	ApprovedAt time.Time
	Reason     *string
}

type ClosureType string

const (
	ClosureHoliday ClosureType = "holiday"
	ClosureOffice  ClosureType = "office_closure"
)

func (t ClosureType) Valid() bool { return t == ClosureHoliday || t == ClosureOffice }

// OfficeClosure is a day range when the office is shut for everyone.
type OfficeClosure struct {
	ID        int64       `json:"id"`
	Title     string      `json:"title"`
	Type      ClosureType `json:"type"`
	StartDate time.Time   `json:"start_date"`
	EndDate   time.Time   `json:"end_date"`
	Notes     string      `json:"notes"`
	CreatedBy *int64      `json:"created_by,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ListFilter narrows leave listings. From and To select leaves overlapping
// the range.
type ListFilter struct {
	UserID *int64
	Status Status
	Type   Type
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// CalendarEntry is one bar on the team calendar.
type CalendarEntry struct {
	Kind      string    `json:"kind"`
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	UserID    *int64    `json:"user_id,omitempty"`
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
