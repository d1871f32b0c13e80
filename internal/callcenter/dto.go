package callcenter

import "github.com/voyage-crm/voyage/internal/users"

// CreateCallRequest opens a call on behalf of an admin.
type CreateCallRequest struct {
	LeadID     int64    `json:"lead_id" validate:"required,gt=0"`
	CallType   CallType `json:"call_type" validate:"required,oneof=pre_departure post_arrival"`
	AssignedTo *int64   `json:"assigned_call_center_user" validate:"omitempty,gt=0"`
	Notes      string   `json:"call_notes" validate:"max=2000"`
}

// AssignRequest names the agent a call is handed to.
type AssignRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

// ChecklistRequest replaces the ticked checklist items.
type ChecklistRequest struct {
	Completed []string `json:"call_checklist_completed" validate:"dive,required,max=60"`
	Notes     *string  `json:"call_notes" validate:"omitempty,max=2000"`
}

// CompleteRequest optionally carries the final checklist and notes.
type CompleteRequest struct {
	Completed []string `json:"call_checklist_completed" validate:"omitempty,dive,required,max=60"`
	Notes     *string  `json:"call_notes" validate:"omitempty,max=2000"`
}

// CallView decorates a call for display.
type CallView struct {
	Call
	TypeLabel   string          `json:"call_type_label"`
	StatusLabel string          `json:"status_label"`
	StatusColor string          `json:"status_color"`
	Checklist   []ChecklistItem `json:"checklist"`
	CanWork     bool            `json:"can_work"`
}

func buildView(actor *users.User, c *Call) *CallView {
	return &CallView{
		Call:        *c,
		TypeLabel:   c.CallType.Label(),
		StatusLabel: c.Status.Label(),
		StatusColor: c.Status.Color(),
		Checklist:   c.CallType.Checklist(),
		CanWork:     CanWork(actor, c) && c.Status != StatusCompleted,
	}
}
