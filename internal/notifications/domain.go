package notifications

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voyage-crm/voyage/internal/platform/httpx"
)

var ErrNotFound = fmt.Errorf("notifications: %w", httpx.ErrNotFound)

// Template keys understood by the locale files.
const (
	KeyLeadNoteAdded    = "lead_note_added"
	KeyLeadAssigned     = "lead_assigned"
	KeyCallQueueWaiting = "call_queue_waiting"
	KeyLeaveRequested   = "leave_requested"
	KeyLeaveDecided     = "leave_decided"
	KeyInvoicePaid      = "invoice_paid"
)

// Notification is a stored, already rendered message for one user.
type Notification struct {
	ID        uuid.UUID      `json:"id"`
	UserID    int64          `json:"user_id"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Message is what domain services hand to the Dispatcher. Amounts hold
// decimal strings and are formatted per recipient locale at delivery.
type Message struct {
	Key     string
	Params  map[string]string
	Amounts map[string]string
	Data    map[string]any
}
