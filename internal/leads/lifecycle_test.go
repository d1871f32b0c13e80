package leads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyage-crm/voyage/internal/users"
)

func TestInfoGatherCompleteRejectedOnNewLead(t *testing.T) {
	sales := staff(2, users.RoleSales)
	lead := &Lead{ID: 1, Status: StatusNew}

	assert.False(t, Allowed(ActionMarkInfoGatherComplete, lead, sales))
	assert.NotContains(t, AvailableActions(lead, sales), ActionMarkInfoGatherComplete)

	_, err := Plan(ActionMarkInfoGatherComplete, lead, sales, nil, "")
	require.ErrorIs(t, err, ErrActionNotAllowed)

	admin := staff(1, users.RoleAdmin)
	_, err = Plan(ActionMarkInfoGatherComplete, lead, admin, nil, "")
	require.ErrorIs(t, err, ErrActionNotAllowed)
}

func TestSalesPipelineHappyPath(t *testing.T) {
	sales := staff(2, users.RoleSales)
	ops := staff(3, users.RoleOperation)
	lead := &Lead{ID: 1, Status: StatusNew}

	steps := []struct {
		action Action
		actor  *users.User
		want   Status
	}{
		{ActionAssignToMe, sales, StatusAssignedToSales},
		{ActionMarkInfoGatherComplete, sales, StatusInfoGatherComplete},
		{ActionAssignOperatorToMe, ops, StatusAssignedToOperations},
		{ActionStartPricing, ops, StatusPricingInProgress},
		{ActionMarkSentToCustomer, sales, StatusSentToCustomer},
		{ActionMarkOperationComplete, ops, StatusOperationComplete},
		{ActionConfirm, sales, StatusConfirmed},
		{ActionMarkDocumentUploadComplete, ops, StatusDocumentUploadComplete},
	}
	for _, step := range steps {
		tr, err := Plan(step.action, lead, step.actor, nil, "")
		require.NoError(t, err, step.action)
		assert.Equal(t, step.want, tr.To, step.action)
		tr.Apply(lead)
	}
	require.NotNil(t, lead.AssignedTo)
	assert.Equal(t, sales.ID, *lead.AssignedTo)
	require.NotNil(t, lead.AssignedOperator)
	assert.Equal(t, ops.ID, *lead.AssignedOperator)
	assert.True(t, lead.Status.InvoiceReady())
}

func TestAssignToMeRequiresUnassignedLead(t *testing.T) {
	other := int64(9)
	lead := &Lead{ID: 1, Status: StatusAssignedToSales, AssignedTo: &other}
	sales := staff(2, users.RoleSales)

	_, err := Plan(ActionAssignToMe, lead, sales, nil, "")
	assert.ErrorIs(t, err, ErrActionNotAllowed)

	lead.AssignedTo = nil
	tr, err := Plan(ActionAssignToMe, lead, sales, nil, "")
	require.NoError(t, err)
	assert.True(t, tr.RequireUnassigned)
	assert.Equal(t, StatusAssignedToSales, tr.From)
}

func TestOtherRepCannotAdvanceLead(t *testing.T) {
	owner := int64(2)
	lead := &Lead{ID: 1, Status: StatusAssignedToSales, AssignedTo: &owner}
	intruder := staff(5, users.RoleSales)

	_, err := Plan(ActionMarkInfoGatherComplete, lead, intruder, nil, "")
	assert.ErrorIs(t, err, ErrActionNotAllowed)
}

func TestAdminAssignValidatesTarget(t *testing.T) {
	admin := staff(1, users.RoleAdmin)
	lead := &Lead{ID: 1, Status: StatusNew}

	_, err := Plan(ActionAssignSales, lead, admin, staff(3, users.RoleOperation), "")
	assert.ErrorIs(t, err, ErrInvalid)

	inactive := staff(4, users.RoleSales)
	inactive.Active = false
	_, err = Plan(ActionAssignSales, lead, admin, inactive, "")
	assert.ErrorIs(t, err, ErrInvalid)

	tr, err := Plan(ActionAssignSales, lead, admin, staff(2, users.RoleSales), "")
	require.NoError(t, err)
	assert.Equal(t, StatusAssignedToSales, tr.To)
	require.NotNil(t, tr.AssignedTo)
	assert.Equal(t, int64(2), *tr.AssignedTo)

	lead.Status = StatusPricingInProgress
	tr, err = Plan(ActionAssignOperator, lead, admin, staff(3, users.RoleOperation), "")
	require.NoError(t, err)
	assert.Equal(t, StatusPricingInProgress, tr.To, "reassigning later keeps the status")
}

func TestReturnToSalesAndClose(t *testing.T) {
	ops := staff(3, users.RoleOperation)
	sales := staff(2, users.RoleSales)
	lead := &Lead{ID: 1, Status: StatusAssignedToOperations, AssignedTo: &sales.ID, AssignedOperator: &ops.ID}

	tr, err := Plan(ActionReturnToSales, lead, ops, nil, "")
	require.NoError(t, err)
	assert.Equal(t, StatusInfoGatherComplete, tr.To)

	tr, err = Plan(ActionMarkClosed, lead, sales, nil, "")
	require.NoError(t, err)
	tr.Apply(lead)
	assert.Empty(t, AvailableActions(lead, sales))

	lead.Status = StatusDocumentUploadComplete
	assert.False(t, Allowed(ActionMarkClosed, lead, sales))
}

func TestChangeStatusIsAdminOnly(t *testing.T) {
	lead := &Lead{ID: 1, Status: StatusConfirmed}
	_, err := Plan(ActionChangeStatus, lead, staff(2, users.RoleSales), nil, StatusNew)
	assert.ErrorIs(t, err, ErrActionNotAllowed)

	_, err = Plan(ActionChangeStatus, lead, staff(1, users.RoleAdmin), nil, "bogus")
	assert.ErrorIs(t, err, ErrInvalid)

	tr, err := Plan(ActionChangeStatus, lead, staff(1, users.RoleAdmin), nil, StatusNew)
	require.NoError(t, err)
	assert.Equal(t, StatusNew, tr.To)
}

func TestArchivedLeadHasNoActions(t *testing.T) {
	lead := &Lead{ID: 1, Status: StatusNew}
	admin := staff(1, users.RoleAdmin)
	require.NotEmpty(t, AvailableActions(lead, admin))

	lead.ArchivedAt = ptr(lead.CreatedAt)
	assert.Empty(t, AvailableActions(lead, admin))
	assert.Empty(t, AvailableActions(lead, nil))
}

func TestUnknownActionIsInvalid(t *testing.T) {
	_, err := Plan("teleport", &Lead{Status: StatusNew}, staff(1, users.RoleAdmin), nil, "")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestReturnToSalesRoundTrip(t *testing.T) {
	sales := staff(2, users.RoleSales)
	ops := staff(3, users.RoleOperation)
	ops2 := staff(4, users.RoleOperation)
	owner, operator := sales.ID, ops.ID
	lead := &Lead{ID: 1, Status: StatusAssignedToOperations, AssignedTo: &owner, AssignedOperator: &operator}

	tr, err := Plan(ActionReturnToSales, lead, ops, nil, "")
	require.NoError(t, err)
	tr.Apply(lead)
	assert.Equal(t, StatusInfoGatherComplete, lead.Status)

	assert.Equal(t, []Action{ActionAssignOperatorToMe}, AvailableActions(lead, ops))
	assert.Empty(t, AvailableActions(lead, ops2))
	_, err = Plan(ActionAssignOperatorToMe, lead, ops2, nil, "")
	assert.ErrorIs(t, err, ErrActionNotAllowed)

	tr, err = Plan(ActionAssignOperatorToMe, lead, ops, nil, "")
	require.NoError(t, err)
	assert.True(t, tr.RequireOperatorFree)
	tr.Apply(lead)
	assert.Equal(t, StatusAssignedToOperations, lead.Status)
	assert.Contains(t, AvailableActions(lead, ops), ActionStartPricing)
}
