package callcenter

import (
	"fmt"
	"time"

	"github.com/voyage-crm/voyage/internal/platform/httpx"
)

var (
	ErrNotFound  = fmt.Errorf("callcenter: %w", httpx.ErrNotFound)
	ErrInvalid   = fmt.Errorf("callcenter: %w", httpx.ErrValidation)
	ErrForbidden = fmt.Errorf("callcenter: %w", httpx.ErrForbidden)
	// ErrCallExists is returned when the lead already has a call of the type.
	ErrCallExists = fmt.Errorf("callcenter: call already exists for lead: %w", httpx.ErrConflict)
	// ErrNotInQueue is returned when a lead is not due for the requested call.
	ErrNotInQueue = fmt.Errorf("callcenter: lead is not in the call queue: %w", httpx.ErrConflict)
	// ErrActionNotAllowed is returned when the call status forbids the action.
	ErrActionNotAllowed = fmt.Errorf("callcenter: action not allowed: %w", httpx.ErrConflict)
	// ErrStaleCall is returned when the call changed between read and update.
	ErrStaleCall = fmt.Errorf("callcenter: call was modified concurrently: %w", httpx.ErrConflict)
)

// CallType distinguishes the courtesy calls around a trip.
type CallType string

const (
	CallPreDeparture CallType = "pre_departure"
	CallPostArrival  CallType = "post_arrival"
)

// ChecklistItem is one thing an agent confirms during a call.
type ChecklistItem struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

var checklists = map[CallType][]ChecklistItem{
	CallPreDeparture: {
		{"tickets_shared", "Tickets shared"},
		{"hotel_vouchers_shared", "Hotel vouchers shared"},
		{"visa_confirmed", "Visa confirmed"},
		{"transfer_details_shared", "Transfer details shared"},
		{"emergency_contact_shared", "Emergency contact shared"},
		{"insurance_explained", "Insurance explained"},
	},
	CallPostArrival: {
		{"feedback_collected", "Feedback collected"},
		{"issues_logged", "Issues logged"},
		{"review_requested", "Review requested"},
		{"future_travel_interest", "Future travel interest"},
	},
}

func (t CallType) Valid() bool { _, ok := checklists[t]; return ok }

func (t CallType) Label() string {
	switch t {
	case CallPreDeparture:
		return "Pre-departure"
	case CallPostArrival:
		return "Post-arrival"
	}
	return ""
}

// Checklist returns the items an agent must tick for calls of type t.
func (t CallType) Checklist() []ChecklistItem { return checklists[t] }

// HasItem reports whether key belongs to the checklist of t.
func (t CallType) HasItem(key string) bool {
	for _, item := range checklists[t] {
		if item.Key == key {
			return true
		}
	}
	return false
}

// CallStatus is the progress of a call.
type CallStatus string

const (
	StatusPending     CallStatus = "pending"
	StatusAssigned    CallStatus = "assigned"
	StatusCalled      CallStatus = "called"
	StatusNotAnswered CallStatus = "not_answered"
	StatusCompleted   CallStatus = "completed"
)

var statusMeta = map[CallStatus][2]string{
	StatusPending:     {"Pending", "gray"},
	StatusAssigned:    {"Assigned", "info"},
	StatusCalled:      {"Called", "primary"},
	StatusNotAnswered: {"Not Answered", "warning"},
	StatusCompleted:   {"Completed", "success"},
}

func (s CallStatus) Valid() bool   { _, ok := statusMeta[s]; return ok }
func (s CallStatus) Label() string { return statusMeta[s][0] }
func (s CallStatus) Color() string { return statusMeta[s][1] }

// Call is a courtesy call to a traveller, at most one per lead and type.
type Call struct {
	ID            int64      `json:"id"`
	LeadID        int64      `json:"lead_id"`
	CallType      CallType   `json:"call_type"`
	Status        CallStatus `json:"status"`
	AssignedTo    *int64     `json:"assigned_call_center_user,omitempty"`
	Attempts      int        `json:"call_attempts"`
	ChecklistDone []string   `json:"call_checklist_completed"`
	Notes         string     `json:"call_notes"`
	LastCalledAt  *time.Time `json:"last_called_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedBy     *int64     `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ChecklistComplete reports whether every item of the call type is ticked.
func (c *Call) ChecklistComplete() bool {
	done := make(map[string]bool, len(c.ChecklistDone))
	for _, k := range c.ChecklistDone {
		done[k] = true
	}
	for _, item := range c.CallType.Checklist() {
		if !done[item.Key] {
			return false
		}
	}
	return true
}

// QueueEntry is a lead due for a call that nobody has taken yet.
type QueueEntry struct {
	LeadID        int64      `json:"lead_id"`
	ReferenceID   string     `json:"reference_id"`
	CustomerName  string     `json:"customer_name"`
	Destination   string     `json:"destination"`
	Status        string     `json:"status"`
	DepartureDate *time.Time `json:"departure_date,omitempty"`
	ArrivalDate   *time.Time `json:"arrival_date,omitempty"`
	TotalPax      int        `json:"total_pax"`
}

// Queues groups the two call queues.
type Queues struct {
	PreDeparture []QueueEntry `json:"pre_departure"`
	PostArrival  []QueueEntry `json:"post_arrival"`
}

// ListFilter narrows call listings.
type ListFilter struct {
	CallType CallType
	Status   CallStatus
	LeadID   *int64
	Limit    int
	Offset   int
}

// DueDay returns the trip date a call of type t is due for on day now:
// departures two days ahead, arrivals the day before.
func DueDay(t CallType, now time.Time) time.Time {
	today := truncateDay(now)
	if t == CallPostArrival {
		return today.AddDate(0, 0, -1)
	}
	return today.AddDate(0, 0, 2)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
