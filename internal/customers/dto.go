package customers

// CreateCustomerRequest is the payload for creating a customer.
type CreateCustomerRequest struct {
	Name        string            `json:"name" validate:"required,max=200"`
	ContactInfo map[string]string `json:"contact_info" validate:"omitempty,dive,keys,max=40,endkeys,max=500"`
}

// UpdateCustomerRequest carries the fields to change. Nil fields are kept.
type UpdateCustomerRequest struct {
	Name        *string           `json:"name" validate:"omitempty,min=1,max=200"`
	ContactInfo map[string]string `json:"contact_info" validate:"omitempty,dive,keys,max=40,endkeys,max=500"`
}

// CustomerView decorates a customer with the actor's capabilities.
type CustomerView struct {
	Customer
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
}
