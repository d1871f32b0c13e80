package leaves

import (
	"time"

	"github.com/voyage-crm/voyage/internal/users"
)

type CreateLeaveRequest struct {
	Type      Type      `json:"type" validate:"required,oneof=annual sick casual emergency unpaid"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
	Reason    string    `json:"reason" validate:"max=1000"`
}

type RejectRequest struct {
	Reason string `json:"rejection_reason" validate:"max=1000"`
}

type ClosureRequest struct {
	Title     string      `json:"title" validate:"required,max=200"`
	Type      ClosureType `json:"type" validate:"required,oneof=holiday office_closure"`
	StartDate time.Time   `json:"start_date" validate:"required"`
	EndDate   time.Time   `json:"end_date" validate:"required"`
	Notes     string      `json:"notes" validate:"max=2000"`
}

// LeaveView decorates a leave with labels and the actor's permissions.
type LeaveView struct {
	Leave
	DurationInDays int    `json:"duration_in_days"`
	TypeLabel      string `json:"type_label"`
	StatusLabel    string `json:"status_label"`
	StatusColor    string `json:"status_color"`
	CanDecide      bool   `json:"can_decide"`
	CanCancel      bool   `json:"can_cancel"`
}

func buildView(actor *users.User, l *Leave) *LeaveView {
	return &LeaveView{
		Leave:          *l,
		DurationInDays: l.DurationInDays(),
		TypeLabel:      l.Type.Label(),
		StatusLabel:    l.Status.Label(),
		StatusColor:    l.Status.Color(),
		CanDecide:      l.Status == StatusPending && CanDecide(actor, l),
		CanCancel:      CanCancel(actor, l),
	}
}
