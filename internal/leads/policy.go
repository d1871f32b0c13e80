package leads

import (
	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
)

// Scope is the row filter applied to every lead read for an actor. Rows
// outside the scope are never loaded, so hidden leads surface as not found.
type Scope struct {
	// None hides every lead.
	None bool
	// All shows every lead.
	All bool
	// SalesRep shows unassigned leads and leads assigned to this user.
	SalesRep int64
	// Operator shows leads operated by this user and unclaimed leads
	// waiting for operations.
	Operator int64
	// Statuses restricts visible leads to these statuses.
	Statuses []Status
}

// operatorQueue lists statuses in which an unclaimed lead is offered to operations.
var operatorQueue = []Status{StatusAssignedToSales, StatusInfoGatherComplete}

// callCenterStatuses lists the statuses call-center staff work with.
var callCenterStatuses = []Status{StatusConfirmed, StatusDocumentUploadComplete}

// ScopeFor returns the visibility scope of actor. Record-scoped roles keep
// their scope even when granted leads.view; the permission only opens the
// listing to roles without one, such as hr.
func ScopeFor(actor *users.User) Scope {
	switch {
	case actor == nil:
		return Scope{None: true}
	case actor.IsAdmin(), actor.IsMarketing(), actor.IsAccount():
		return Scope{All: true}
	case actor.IsSales():
		return Scope{SalesRep: actor.ID}
	case actor.IsOperation():
		return Scope{Operator: actor.ID}
	case actor.IsCallCenter():
		return Scope{Statuses: callCenterStatuses}
	case actor.HasPermission(shared.PermLeadsView):
		return Scope{All: true}
	default:
		return Scope{None: true}
	}
}

// Matches reports whether l is visible under s.
func (s Scope) Matches(l *Lead) bool {
	switch {
	case l == nil, s.None:
		return false
	case s.All:
		return true
	case s.SalesRep != 0:
		return l.AssignedTo == nil || *l.AssignedTo == s.SalesRep
	case s.Operator != 0:
		if l.AssignedOperator != nil {
			return *l.AssignedOperator == s.Operator
		}
		return l.Status.In(operatorQueue...)
	case len(s.Statuses) > 0:
		return l.Status.In(s.Statuses...)
	}
	return false
}

// CanViewAny reports whether actor may open the lead listing at all.
func CanViewAny(actor *users.User) bool {
	return !ScopeFor(actor).None
}

// CanView reports whether actor may read l.
func CanView(actor *users.User, l *Lead) bool {
	return ScopeFor(actor).Matches(l)
}

// CanCreate reports whether actor may register new leads.
func CanCreate(actor *users.User) bool {
	return actor.HasRole(users.RoleAdmin, users.RoleSales, users.RoleMarketing)
}

// CanEdit reports whether actor may change the descriptive fields of l.
// Pipeline moves go through named actions instead.
func CanEdit(actor *users.User, l *Lead) bool {
	if actor == nil || l == nil || l.IsDeleted() {
		return false
	}
	switch {
	case actor.IsAdmin(), actor.HasPermission(shared.PermLeadsEdit):
		return true
	case actor.IsSales():
		return l.AssignedTo == nil || *l.AssignedTo == actor.ID
	case actor.IsMarketing():
		return actor.Is(l.CreatedBy) && l.Status == StatusNew
	}
	return false
}

// CanDelete reports whether actor may move l to the trash.
func CanDelete(actor *users.User, l *Lead) bool {
	if l == nil {
		return false
	}
	return actor.IsAdmin() || actor.HasPermission(shared.PermLeadsDelete)
}

// CanViewTrash reports whether actor may list and restore deleted leads.
func CanViewTrash(actor *users.User) bool {
	return actor.IsAdmin()
}

// CanUpdateServices reports whether actor may change the booking component
// statuses of l. Closed, archived and deleted leads are frozen.
func CanUpdateServices(actor *users.User, l *Lead) bool {
	if l == nil || l.IsClosed() || l.IsArchived() || l.IsDeleted() {
		return false
	}
	return actor.IsAdmin() || (actor.IsOperation() && actor.Is(l.AssignedOperator))
}

// CanArchive reports whether actor may archive or unarchive leads.
func CanArchive(actor *users.User) bool {
	return actor.IsAdmin()
}
