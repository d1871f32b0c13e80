package leads

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
)

func TestScopeMatchesPerRole(t *testing.T) {
	sales := staff(2, users.RoleSales)
	ops := staff(3, users.RoleOperation)
	other := int64(99)

	unassigned := &Lead{Status: StatusNew}
	mine := &Lead{Status: StatusAssignedToSales, AssignedTo: &sales.ID}
	theirs := &Lead{Status: StatusAssignedToSales, AssignedTo: &other}
	confirmed := &Lead{Status: StatusConfirmed, AssignedTo: &other, AssignedOperator: &other}
	operated := &Lead{Status: StatusPricingInProgress, AssignedOperator: &ops.ID}

	cases := []struct {
		name  string
		actor *users.User
		lead  *Lead
		want  bool
	}{
		{"nil actor", nil, unassigned, false},
		{"admin sees all", staff(1, users.RoleAdmin), theirs, true},
		{"sales sees unassigned", sales, unassigned, true},
		{"sales sees own", sales, mine, true},
		{"sales never sees other rep", sales, theirs, false},
		{"ops sees unclaimed queue", ops, theirs, true},
		{"ops does not see new", ops, unassigned, false},
		{"ops sees own", ops, operated, true},
		{"ops never sees other operator", ops, confirmed, false},
		{"call center sees confirmed", staff(4, users.RoleCallCenter), confirmed, true},
		{"call center does not see pipeline", staff(4, users.RoleCallCenter), mine, false},
		{"hr sees nothing", staff(5, users.RoleHR), unassigned, false},
		{"marketing sees all", staff(6, users.RoleMarketing), theirs, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanView(tc.actor, tc.lead))
		})
	}
}

func TestLeadsViewPermissionDoesNotWidenSalesScope(t *testing.T) {
	sales := staff(2, users.RoleSales)
	sales.Permissions = []string{shared.PermLeadsView}
	other := int64(99)
	assert.False(t, CanView(sales, &Lead{Status: StatusAssignedToSales, AssignedTo: &other}))

	hr := staff(5, users.RoleHR)
	hr.Permissions = []string{shared.PermLeadsView}
	assert.True(t, CanView(hr, &Lead{Status: StatusNew}))
}

func TestCanEditRules(t *testing.T) {
	sales := staff(2, users.RoleSales)
	marketing := staff(6, users.RoleMarketing)
	other := int64(99)

	assert.True(t, CanEdit(sales, &Lead{Status: StatusNew}))
	assert.True(t, CanEdit(sales, &Lead{Status: StatusAssignedToSales, AssignedTo: &sales.ID}))
	assert.False(t, CanEdit(sales, &Lead{Status: StatusAssignedToSales, AssignedTo: &other}))

	assert.True(t, CanEdit(marketing, &Lead{Status: StatusNew, CreatedBy: &marketing.ID}))
	assert.False(t, CanEdit(marketing, &Lead{Status: StatusAssignedToSales, CreatedBy: &marketing.ID}))
	assert.False(t, CanEdit(marketing, &Lead{Status: StatusNew, CreatedBy: &other}))

	granted := staff(3, users.RoleOperation)
	granted.Permissions = []string{shared.PermLeadsEdit}
	assert.True(t, CanEdit(granted, &Lead{Status: StatusConfirmed}))

	assert.False(t, CanEdit(nil, &Lead{}))
	assert.False(t, CanDelete(nil, &Lead{}))
	assert.False(t, CanCreate(nil))
	assert.False(t, CanCreate(staff(3, users.RoleOperation)))
}

func TestCanUpdateServices(t *testing.T) {
	ops := staff(3, users.RoleOperation)
	lead := &Lead{Status: StatusPricingInProgress, AssignedOperator: &ops.ID}
	assert.True(t, CanUpdateServices(ops, lead))
	assert.False(t, CanUpdateServices(staff(7, users.RoleOperation), lead))

	lead.Status = StatusClosed
	assert.False(t, CanUpdateServices(staff(1, users.RoleAdmin), lead))
}
