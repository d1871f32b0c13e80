package callcenter

import "github.com/voyage-crm/voyage/internal/users"

// Scope restricts call reads. Call-center agents only ever load the calls
// assigned to them.
type Scope struct {
	None     bool
	All      bool
	Assignee int64
}

func ScopeFor(actor *users.User) Scope {
	switch {
	case actor == nil:
		return Scope{None: true}
	case actor.IsAdmin():
		return Scope{All: true}
	case actor.IsCallCenter():
		return Scope{Assignee: actor.ID}
	}
	return Scope{None: true}
}

// Matches reports whether c is visible under s.
func (s Scope) Matches(c *Call) bool {
	switch {
	case c == nil, s.None:
		return false
	case s.All:
		return true
	case s.Assignee != 0:
		return c.AssignedTo != nil && *c.AssignedTo == s.Assignee
	}
	return false
}

// CanViewQueues reports whether actor may see the unclaimed call queues.
func CanViewQueues(actor *users.User) bool {
	return actor.HasRole(users.RoleAdmin, users.RoleCallCenter)
}

// CanAssignToMe reports whether actor may claim a queued lead.
func CanAssignToMe(actor *users.User) bool {
	return actor.IsCallCenter()
}

// CanAdminister covers creating calls directly and reassigning them.
func CanAdminister(actor *users.User) bool {
	return actor.IsAdmin()
}

// CanWork reports whether actor may dial, tick and complete c.
func CanWork(actor *users.User, c *Call) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.IsCallCenter() && c != nil && actor.Is(c.AssignedTo)
}
