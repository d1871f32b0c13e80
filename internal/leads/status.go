package leads

// Status is the pipeline stage of a lead.
type Status string

const (
	StatusNew                    Status = "new"
	StatusAssignedToSales        Status = "assigned_to_sales"
	StatusAssignedToOperations   Status = "assigned_to_operations"
	StatusInfoGatherComplete     Status = "info_gather_complete"
	StatusPricingInProgress      Status = "pricing_in_progress"
	StatusSentToCustomer         Status = "sent_to_customer"
	StatusOperationComplete      Status = "operation_complete"
	StatusConfirmed              Status = "confirmed"
	StatusDocumentUploadComplete Status = "document_upload_complete"
	StatusClosed                 Status = "mark_closed"
)

type enumMeta struct {
	label string
	color string
}

var statusMeta = map[Status]enumMeta{
	StatusNew:                    {"New", "gray"},
	StatusAssignedToSales:        {"Assigned to Sales", "info"},
	StatusAssignedToOperations:   {"Assigned to Operations", "warning"},
	StatusInfoGatherComplete:     {"Info Gather Complete", "primary"},
	StatusPricingInProgress:      {"Pricing In Progress", "warning"},
	StatusSentToCustomer:         {"Sent to Customer", "info"},
	StatusOperationComplete:      {"Operation Complete", "success"},
	StatusConfirmed:              {"Confirmed", "success"},
	StatusDocumentUploadComplete: {"Document Upload Complete", "success"},
	StatusClosed:                 {"Closed", "danger"},
}

// Statuses returns every status in pipeline order.
func Statuses() []Status {
	return []Status{
		StatusNew,
		StatusAssignedToSales,
		StatusAssignedToOperations,
		StatusInfoGatherComplete,
		StatusPricingInProgress,
		StatusSentToCustomer,
		StatusOperationComplete,
		StatusConfirmed,
		StatusDocumentUploadComplete,
		StatusClosed,
	}
}

func (s Status) Valid() bool   { _, ok := statusMeta[s]; return ok }
func (s Status) Label() string { return statusMeta[s].label }
func (s Status) Color() string { return statusMeta[s].color }

// In reports whether s is one of set.
func (s Status) In(set ...Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// InvoiceReady reports whether invoices may be raised for a lead in s.
func (s Status) InvoiceReady() bool {
	return s.In(StatusConfirmed, StatusDocumentUploadComplete)
}

// ServiceStatus tracks one booking component.
type ServiceStatus string

const (
	ServicePending     ServiceStatus = "pending"
	ServiceNotRequired ServiceStatus = "not_required"
	ServiceDone        ServiceStatus = "done"
)

var serviceStatusMeta = map[ServiceStatus]enumMeta{
	ServicePending:     {"Pending", "warning"},
	ServiceNotRequired: {"Not Required", "gray"},
	ServiceDone:        {"Done", "success"},
}

func ServiceStatuses() []ServiceStatus {
	return []ServiceStatus{ServicePending, ServiceNotRequired, ServiceDone}
}

func (s ServiceStatus) Valid() bool   { _, ok := serviceStatusMeta[s]; return ok }
func (s ServiceStatus) Label() string { return serviceStatusMeta[s].label }
func (s ServiceStatus) Color() string { return serviceStatusMeta[s].color }

// Component names one of the four booking components on a lead.
type Component string

const (
	ComponentAirTicket   Component = "air_ticket"
	ComponentHotel       Component = "hotel"
	ComponentVisa        Component = "visa"
	ComponentLandPackage Component = "land_package"
)

// Components lists the booking components in display order.
func Components() []Component {
	return []Component{ComponentAirTicket, ComponentHotel, ComponentVisa, ComponentLandPackage}
}

// Column returns the leads column storing the component status.
func (s Component) Column() (string, bool) {
	switch s {
	case ComponentAirTicket:
		return "air_ticket_status", true
	case ComponentHotel:
		return "hotel_status", true
	case ComponentVisa:
		return "visa_status", true
	case ComponentLandPackage:
		return "land_package_status", true
	}
	return "", false
}

// Platform is the channel a lead arrived through.
type Platform string

const (
	PlatformFacebook Platform = "facebook"
	PlatformWhatsApp Platform = "whatsapp"
	PlatformEmail    Platform = "email"
)

var platformMeta = map[Platform]enumMeta{
	PlatformFacebook: {"Facebook", "info"},
	PlatformWhatsApp: {"WhatsApp", "success"},
	PlatformEmail:    {"Email", "gray"},
}

func Platforms() []Platform { return []Platform{PlatformFacebook, PlatformWhatsApp, PlatformEmail} }

func (p Platform) Valid() bool   { _, ok := platformMeta[p]; return ok }
func (p Platform) Label() string { return platformMeta[p].label }
func (p Platform) Color() string { return platformMeta[p].color }

// Priority orders the sales queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var priorityMeta = map[Priority]enumMeta{
	PriorityLow:    {"Low", "gray"},
	PriorityMedium: {"Medium", "warning"},
	PriorityHigh:   {"High", "danger"},
}

func Priorities() []Priority { return []Priority{PriorityLow, PriorityMedium, PriorityHigh} }

func (p Priority) Valid() bool   { _, ok := priorityMeta[p]; return ok }
func (p Priority) Label() string { return priorityMeta[p].label }
func (p Priority) Color() string { return priorityMeta[p].color }

// Option is the wire form of an enum value with its display metadata.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

// EnumOptions returns every lead enum for clients building forms and filters.
func EnumOptions() map[string][]Option {
	out := map[string][]Option{}
	for _, s := range Statuses() {
		out["status"] = append(out["status"], Option{string(s), s.Label(), s.Color()})
	}
	for _, s := range ServiceStatuses() {
		out["service_status"] = append(out["service_status"], Option{string(s), s.Label(), s.Color()})
	}
	for _, p := range Platforms() {
		out["platform"] = append(out["platform"], Option{string(p), p.Label(), p.Color()})
	}
	for _, p := range Priorities() {
		out["priority"] = append(out["priority"], Option{string(p), p.Label(), p.Color()})
	}
	return out
}
