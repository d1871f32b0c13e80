package customers

import (
	"fmt"
	"strings"
	"time"

	"github.com/voyage-crm/voyage/internal/platform/httpx"
)

var (
	ErrNotFound  = fmt.Errorf("customers: %w", httpx.ErrNotFound)
	ErrInvalid   = fmt.Errorf("customers: %w", httpx.ErrValidation)
	ErrForbidden = fmt.Errorf("customers: %w", httpx.ErrForbidden)
	// ErrInUse is returned when deleting a customer that leads still reference.
	ErrInUse = fmt.Errorf("customers: customer has leads: %w", httpx.ErrConflict)
)

// ContactInfo holds free-form contact channels keyed by kind (phone, email, whatsapp, address).
type ContactInfo map[string]string

// Customer is a traveller or company the agency sells trips to.
type Customer struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	ContactInfo ContactInfo `json:"contact_info"`
	CreatedBy   *int64      `json:"created_by,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// LeadSummary is the slice of a lead shown on a customer's page.
type LeadSummary struct {
	ID            int64      `json:"id"`
	ReferenceID   string     `json:"reference_id"`
	Status        string     `json:"status"`
	Destination   string     `json:"destination"`
	DepartureDate *time.Time `json:"departure_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ListFilter narrows customer listings.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

func cleanContact(in map[string]string) ContactInfo {
	out := make(ContactInfo, len(in))
	for k, v := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
