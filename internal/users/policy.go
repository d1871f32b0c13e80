package users

import "github.com/voyage-crm/voyage/internal/shared"

// CanViewAny reports whether actor may list staff accounts.
func CanViewAny(actor *User) bool {
	return actor.IsAdmin() || actor.IsHR() || actor.HasPermission(shared.PermUsersView)
}

// CanEdit reports whether actor may create or modify staff accounts.
func CanEdit(actor *User) bool {
	return actor.IsAdmin() || actor.HasPermission(shared.PermUsersEdit)
}
