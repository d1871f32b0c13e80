package leaves

import "github.com/voyage-crm/voyage/internal/users"

// Scope restricts which leaves an actor reads. Everyone sees their own;
// managers also see staff sharing their role.
type Scope struct {
	None bool
	All  bool
	Self int64
	Role users.Role
}

func ScopeFor(actor *users.User) Scope {
	switch {
	case actor == nil:
		return Scope{None: true}
	case actor.HasRole(users.RoleAdmin, users.RoleHR):
		return Scope{All: true}
	case actor.IsManager():
		return Scope{Self: actor.ID, Role: actor.Role}
	}
	return Scope{Self: actor.ID}
}

func (s Scope) Matches(l *Leave) bool {
	switch {
	case l == nil, s.None:
		return false
	case s.All:
		return true
	case l.UserID == s.Self:
		return true
	}
	return s.Role != "" && l.UserRole == s.Role
}

// CanDecide reports whether actor may approve or reject l. Nobody decides
// their own request.
func CanDecide(actor *users.User, l *Leave) bool {
	if actor == nil || l == nil || actor.ID == l.UserID {
		return false
	}
	if actor.HasRole(users.RoleAdmin, users.RoleHR) {
		return true
	}
	return actor.IsManager() && actor.Role == l.UserRole
}

// CanCancel reports whether actor may withdraw l.
func CanCancel(actor *users.User, l *Leave) bool {
	return actor != nil && l != nil && actor.ID == l.UserID && l.Status == StatusPending
}

// CanManageClosures covers office closure mutations.
func CanManageClosures(actor *users.User) bool {
	return actor.HasRole(users.RoleAdmin, users.RoleHR)
}
