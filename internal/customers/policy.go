package customers

import "github.com/voyage-crm/voyage/internal/users"

// CanView reports whether actor may read customers.
func CanView(actor *users.User) bool {
	return actor.HasRole(users.RoleAdmin, users.RoleSales, users.RoleMarketing, users.RoleOperation, users.RoleAccount)
}

func CanCreate(actor *users.User) bool {
	return actor.HasRole(users.RoleAdmin, users.RoleSales, users.RoleMarketing)
}

func CanEdit(actor *users.User) bool {
	return actor.HasRole(users.RoleAdmin, users.RoleSales)
}

func CanDelete(actor *users.User) bool {
	return actor.IsAdmin()
}
