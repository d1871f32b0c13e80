package shared

// Named permissions granted through user_permissions or permission groups.
// Admins hold every permission implicitly.
const (
	PermLeadsView   = "leads.view"
	PermLeadsEdit   = "leads.edit"
	PermLeadsDelete = "leads.delete"

	PermInvoicesView = "invoices.view"
	PermInvoicesEdit = "invoices.edit"

	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermPermissionsView = "permissions.view"
	PermPermissionsEdit = "permissions.edit"
)

// CoreScopes lists every named permission seeded by migrations.
func CoreScopes() []string {
	return []string{
		PermLeadsView,
		PermLeadsEdit,
		PermLeadsDelete,
		PermInvoicesView,
		PermInvoicesEdit,
		PermUsersView,
		PermUsersEdit,
		PermPermissionsView,
		PermPermissionsEdit,
	}
}
