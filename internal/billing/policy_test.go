package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
)

func TestInvoicePermissionsWidenRoles(t *testing.T) {
	lead := &LeadRef{ID: 1, AssignedTo: ptr(int64(9))}

	hr := staff(4, users.RoleHR)
	assert.False(t, CanViewInvoices(hr, lead))
	assert.False(t, CanManageInvoices(hr))

	hr.Permissions = []string{shared.PermInvoicesView}
	assert.True(t, ScopeFor(hr).All)
	assert.True(t, CanViewInvoices(hr, lead))
	assert.False(t, CanManageInvoices(hr))

	sales := staff(5, users.RoleSales)
	sales.Permissions = []string{shared.PermInvoicesEdit}
	assert.True(t, CanManageInvoices(sales))
	assert.False(t, CanSettleVendorBills(sales))
}

func TestScopeForNilActor(t *testing.T) {
	assert.True(t, ScopeFor(nil).None)
	assert.False(t, ScopeFor(nil).Matches(&LeadRef{ID: 1}))
}
