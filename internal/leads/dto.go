package leads

import "time"

type CreateLeadRequest struct {
	CustomerName  string     `json:"customer_name" validate:"required,max=200"`
	CustomerID    *int64     `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	Platform      string     `json:"platform" validate:"required,oneof=facebook whatsapp email"`
	Priority      string     `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Destination   string     `json:"destination" validate:"max=200"`
	DepartureDate *time.Time `json:"departure_date,omitempty"`
	ArrivalDate   *time.Time `json:"arrival_date,omitempty"`
	Adults        int        `json:"adults" validate:"gte=0,lte=500"`
	Children      int        `json:"children" validate:"gte=0,lte=500"`
	Infants       int        `json:"infants" validate:"gte=0,lte=500"`
	Notes         string     `json:"notes" validate:"max=5000"`
}

type UpdateLeadRequest struct {
	CustomerName  *string    `json:"customer_name,omitempty" validate:"omitempty,min=1,max=200"`
	CustomerID    *int64     `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	ClearCustomer bool       `json:"clear_customer,omitempty"`
	Platform      *string    `json:"platform,omitempty" validate:"omitempty,oneof=facebook whatsapp email"`
	Priority      *string    `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Destination   *string    `json:"destination,omitempty" validate:"omitempty,max=200"`
	DepartureDate *time.Time `json:"departure_date,omitempty"`
	ArrivalDate   *time.Time `json:"arrival_date,omitempty"`
	Adults        *int       `json:"adults,omitempty" validate:"omitempty,gte=0,lte=500"`
	Children      *int       `json:"children,omitempty" validate:"omitempty,gte=0,lte=500"`
	Infants       *int       `json:"infants,omitempty" validate:"omitempty,gte=0,lte=500"`
	Notes         *string    `json:"notes,omitempty" validate:"omitempty,max=5000"`
}

// ActionRequest carries the optional arguments of a pipeline action.
type ActionRequest struct {
	UserID *int64 `json:"user_id,omitempty" validate:"omitempty,gt=0"`
	Status string `json:"status,omitempty"`
}

type ServiceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending not_required done"`
}

type NoteRequest struct {
	Body string `json:"body" validate:"required,max=5000"`
}

// ActionView is an action the actor can trigger, with its caption.
type ActionView struct {
	Action Action `json:"action"`
	Label  string `json:"label"`
}

// LeadView is a lead with its derived read-side fields.
type LeadView struct {
	Lead
	TotalPax        int            `json:"total_pax"`
	Duration        string         `json:"duration"`
	Services        ServiceSummary `json:"services"`
	StatusLabel     string         `json:"status_label"`
	StatusColor     string         `json:"status_color"`
	Actions         []ActionView   `json:"actions"`
	CanEdit         bool           `json:"can_edit"`
	CanDelete       bool           `json:"can_delete"`
	CanEditServices bool           `json:"can_edit_services"`
}
