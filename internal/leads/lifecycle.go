package leads

import (
	"fmt"

	"github.com/voyage-crm/voyage/internal/users"
)

// Action names a pipeline step a user can trigger on a lead.
type Action string

const (
	ActionAssignToMe                 Action = "assign_to_me"
	ActionAssignSales                Action = "assign_sales"
	ActionMarkInfoGatherComplete     Action = "mark_info_gather_complete"
	ActionAssignOperatorToMe         Action = "assign_operator_to_me"
	ActionAssignOperator             Action = "assign_operator"
	ActionReturnToSales              Action = "return_to_sales"
	ActionStartPricing               Action = "start_pricing"
	ActionMarkSentToCustomer         Action = "mark_sent_to_customer"
	ActionMarkOperationComplete      Action = "mark_operation_complete"
	ActionConfirm                    Action = "confirm"
	ActionMarkDocumentUploadComplete Action = "mark_document_upload_complete"
	ActionMarkClosed                 Action = "mark_closed"
	ActionChangeStatus               Action = "change_status"
)

// Transition is the planned effect of an action. The repository applies it
// only while the lead still has status From, and AssignedTo/Operator are
// only written when non-nil. RequireOperatorFree holds when the lead has no
// operator or is already operated by Operator.
type Transition struct {
	Action              Action
	From                Status
	To                  Status
	AssignedTo          *int64
	Operator            *int64
	RequireUnassigned   bool
	RequireOperatorFree bool
	Description         string
}

type rule struct {
	label string
	// allowed is the visibility predicate: status, role and assignment.
	allowed func(l *Lead, actor *users.User) bool
	// next returns the status after the action.
	next func(l *Lead) Status
	// needsTarget marks actions that act on behalf of another user.
	needsTarget users.Role
}

func to(s Status) func(*Lead) Status { return func(*Lead) Status { return s } }

func assignedSales(l *Lead, actor *users.User) bool {
	return actor.IsAdmin() || (actor.IsSales() && actor.Is(l.AssignedTo))
}

func assignedOperator(l *Lead, actor *users.User) bool {
	return actor.IsAdmin() || (actor.IsOperation() && actor.Is(l.AssignedOperator))
}

var rules = map[Action]rule{
	ActionAssignToMe: {
		label: "Assign to me",
		allowed: func(l *Lead, actor *users.User) bool {
			return actor.IsSales() && l.AssignedTo == nil && l.Status.In(StatusNew, StatusAssignedToSales)
		},
		next: to(StatusAssignedToSales),
	},
	ActionAssignSales: {
		label: "Assign sales",
		allowed: func(l *Lead, actor *users.User) bool {
			return actor.IsAdmin() && !l.IsClosed()
		},
		next: func(l *Lead) Status {
			if l.Status == StatusNew {
				return StatusAssignedToSales
			}
			return l.Status
		},
		needsTarget: users.RoleSales,
	},
	ActionMarkInfoGatherComplete: {
		label: "Info gather complete",
		allowed: func(l *Lead, actor *users.User) bool {
			return l.Status == StatusAssignedToSales && assignedSales(l, actor)
		},
		next: to(StatusInfoGatherComplete),
	},
	ActionAssignOperatorToMe: {
		label: "Assign operator to me",
		allowed: func(l *Lead, actor *users.User) bool {
			// A lead returned to sales keeps its operator, who may take it back.
			return actor.IsOperation() && (l.AssignedOperator == nil || actor.Is(l.AssignedOperator)) &&
				l.Status.In(operatorQueue...)
		},
		next: to(StatusAssignedToOperations),
	},
	ActionAssignOperator: {
		label: "Assign operator",
		allowed: func(l *Lead, actor *users.User) bool {
			return actor.IsAdmin() && !l.IsClosed()
		},
		next: func(l *Lead) Status {
			if l.Status.In(operatorQueue...) {
				return StatusAssignedToOperations
			}
			return l.Status
		},
		needsTarget: users.RoleOperation,
	},
	ActionReturnToSales: {
		label: "Return to sales",
		allowed: func(l *Lead, actor *users.User) bool {
			return l.Status == StatusAssignedToOperations && assignedOperator(l, actor)
		},
		next: to(StatusInfoGatherComplete),
	},
	ActionStartPricing: {
		label: "Start pricing",
		allowed: func(l *Lead, actor *users.User) bool {
			return l.Status == StatusAssignedToOperations && assignedOperator(l, actor)
		},
		next: to(StatusPricingInProgress),
	},
	ActionMarkSentToCustomer: {
		label: "Sent to customer",
		allowed: func(l *Lead, actor *users.User) bool {
			return l.Status == StatusPricingInProgress && assignedSales(l, actor)
		},
		next: to(StatusSentToCustomer),
	},
	ActionMarkOperationComplete: {
		label: "Operation complete",
		allowed: func(l *Lead, actor *users.User) bool {
			return l.Status == StatusSentToCustomer && assignedOperator(l, actor)
		},
		next: to(StatusOperationComplete),
	},
	ActionConfirm: {
		label: "Confirm lead",
		allowed: func(l *Lead, actor *users.User) bool {
			return l.Status == StatusOperationComplete && assignedSales(l, actor)
		},
		next: to(StatusConfirmed),
	},
	ActionMarkDocumentUploadComplete: {
		label: "Documents uploaded",
		allowed: func(l *Lead, actor *users.User) bool {
			return l.Status == StatusConfirmed && assignedOperator(l, actor)
		},
		next: to(StatusDocumentUploadComplete),
	},
	ActionMarkClosed: {
		label: "Close lead",
		allowed: func(l *Lead, actor *users.User) bool {
			return !l.Status.In(StatusClosed, StatusDocumentUploadComplete) && assignedSales(l, actor)
		},
		next: to(StatusClosed),
	},
	ActionChangeStatus: {
		label: "Change status",
		allowed: func(l *Lead, actor *users.User) bool {
			return actor.IsAdmin()
		},
	},
}

// actionOrder fixes the order AvailableActions reports actions in.
var actionOrder = []Action{
	ActionAssignToMe,
	ActionAssignSales,
	ActionMarkInfoGatherComplete,
	ActionAssignOperatorToMe,
	ActionAssignOperator,
	ActionReturnToSales,
	ActionStartPricing,
	ActionMarkSentToCustomer,
	ActionMarkOperationComplete,
	ActionConfirm,
	ActionMarkDocumentUploadComplete,
	ActionMarkClosed,
	ActionChangeStatus,
}

// Label returns the button caption of a.
func (a Action) Label() string { return rules[a].label }

// Valid reports whether a is a known action.
func (a Action) Valid() bool { _, ok := rules[a]; return ok }

// Allowed reports whether actor may trigger a on l right now. Archived,
// deleted and unknown combinations are never allowed.
func Allowed(a Action, l *Lead, actor *users.User) bool {
	r, ok := rules[a]
	if !ok || l == nil || actor == nil || l.IsArchived() || l.IsDeleted() {
		return false
	}
	return r.allowed(l, actor)
}

// AvailableActions lists the actions actor may trigger on l, in pipeline order.
func AvailableActions(l *Lead, actor *users.User) []Action {
	out := []Action{}
	for _, a := range actionOrder {
		if Allowed(a, l, actor) {
			out = append(out, a)
		}
	}
	return out
}

// Plan validates a against l and returns the transition to apply. target is
// the user being assigned by assign_sales/assign_operator, and status is the
// requested value for change_status; both are ignored by other actions.
func Plan(a Action, l *Lead, actor *users.User, target *users.User, status Status) (Transition, error) {
	if !a.Valid() {
		return Transition{}, fmt.Errorf("%w: unknown action %q", ErrInvalid, a)
	}
	if !Allowed(a, l, actor) {
		return Transition{}, fmt.Errorf("%w: %s on lead in status %s", ErrActionNotAllowed, a, l.Status)
	}
	r := rules[a]
	t := Transition{Action: a, From: l.Status}

	switch a {
	case ActionChangeStatus:
		if !status.Valid() {
			return Transition{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
		}
		t.To = status
		t.Description = fmt.Sprintf("Status changed from %s to %s", l.Status.Label(), status.Label())
		return t, nil
	case ActionAssignToMe:
		id := actor.ID
		t.AssignedTo = &id
		t.RequireUnassigned = true
	case ActionAssignOperatorToMe:
		id := actor.ID
		t.Operator = &id
		t.RequireOperatorFree = true
	}

	if r.needsTarget != "" {
		if target == nil || !target.Active || target.Role != r.needsTarget {
			return Transition{}, fmt.Errorf("%w: assignee must be an active %s user", ErrInvalid, r.needsTarget.Label())
		}
		id := target.ID
		if r.needsTarget == users.RoleSales {
			t.AssignedTo = &id
		} else {
			t.Operator = &id
		}
	}

	t.To = r.next(l)
	t.Description = describe(t, l, actor, target)
	return t, nil
}

func describe(t Transition, l *Lead, actor, target *users.User) string {
	switch t.Action {
	case ActionAssignToMe:
		return fmt.Sprintf("%s assigned the lead to themselves", actor.Name)
	case ActionAssignOperatorToMe:
		return fmt.Sprintf("%s took the lead for operations", actor.Name)
	case ActionAssignSales, ActionAssignOperator:
		return fmt.Sprintf("%s assigned the lead to %s", actor.Name, target.Name)
	}
	if t.From == t.To {
		return t.Action.Label()
	}
	return fmt.Sprintf("%s: %s to %s", t.Action.Label(), l.Status.Label(), t.To.Label())
}

// Apply mutates l as the repository would after a successful transition.
func (t Transition) Apply(l *Lead) {
	l.Status = t.To
	if t.AssignedTo != nil {
		id := *t.AssignedTo
		l.AssignedTo = &id
	}
	if t.Operator != nil {
		id := *t.Operator
		l.AssignedOperator = &id
	}
}
