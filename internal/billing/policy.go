package billing

import (
	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
)

// Scope restricts invoice listings for an actor.
type Scope struct {
	None     bool
	All      bool
	SalesRep int64
	Operator int64
}

// ScopeFor returns the invoice visibility of actor: finance sees every
// invoice, sales and operations only those of their own leads. The
// invoices.view grant widens any role to every invoice.
func ScopeFor(actor *users.User) Scope {
	switch {
	case actor == nil:
		return Scope{None: true}
	case actor.IsAdmin(), actor.IsAccount(), actor.HasPermission(shared.PermInvoicesView):
		return Scope{All: true}
	case actor.IsSales():
		return Scope{SalesRep: actor.ID}
	case actor.IsOperation():
		return Scope{Operator: actor.ID}
	}
	return Scope{None: true}
}

// Matches reports whether invoices of lead are visible under s.
func (s Scope) Matches(lead *LeadRef) bool {
	switch {
	case lead == nil, s.None:
		return false
	case s.All:
		return true
	case s.SalesRep != 0:
		return lead.AssignedTo != nil && *lead.AssignedTo == s.SalesRep
	case s.Operator != 0:
		return lead.AssignedOperator != nil && *lead.AssignedOperator == s.Operator
	}
	return false
}

func isFinance(actor *users.User) bool {
	return actor.HasRole(users.RoleAdmin, users.RoleAccount)
}

// CanViewInvoices reports whether actor may read the invoices of lead.
func CanViewInvoices(actor *users.User, lead *LeadRef) bool {
	return ScopeFor(actor).Matches(lead)
}

// CanManageInvoices covers creating, editing and deleting invoices and
// customer payments.
func CanManageInvoices(actor *users.User) bool {
	return isFinance(actor) || actor.HasPermission(shared.PermInvoicesEdit)
}

// CanManageVendorBills covers creating, editing and deleting vendor bills.
func CanManageVendorBills(actor *users.User, lead *LeadRef) bool {
	if isFinance(actor) {
		return true
	}
	return actor.IsOperation() && lead != nil && actor.Is(lead.AssignedOperator)
}

// CanSettleVendorBills covers marking vendor bills paid or pending.
func CanSettleVendorBills(actor *users.User) bool {
	return isFinance(actor)
}

// CanManageCosts covers every lead cost operation.
func CanManageCosts(actor *users.User, lead *LeadRef) bool {
	return CanManageVendorBills(actor, lead)
}
