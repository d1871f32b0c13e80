package customers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyage-crm/voyage/internal/leads"
	"github.com/voyage-crm/voyage/internal/platform/httpx"
	"github.com/voyage-crm/voyage/internal/rbac"
	"github.com/voyage-crm/voyage/internal/users"
)

type memoryCustomerRepo struct {
	nextID    int64
	customers map[int64]*Customer
	leads     map[int64][]leads.Lead
}

func newMemoryCustomerRepo() *memoryCustomerRepo {
	return &memoryCustomerRepo{customers: map[int64]*Customer{}, leads: map[int64][]leads.Lead{}}
}

func (m *memoryCustomerRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryCustomerRepo) Create(_ context.Context, c Customer) (*Customer, error) {
	m.nextID++
	c.ID = m.nextID
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	cp := c
	m.customers[c.ID] = &cp
	return &c, nil
}

func (m *memoryCustomerRepo) Get(_ context.Context, id int64) (*Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memoryCustomerRepo) List(_ context.Context, f ListFilter) ([]Customer, int, error) {
	var out []Customer
	for _, c := range m.customers {
		if f.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = nil
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memoryCustomerRepo) Update(_ context.Context, id int64, name *string, contact ContactInfo) (*Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	if name != nil {
		c.Name = *name
	}
	if contact != nil {
		c.ContactInfo = contact
	}
	cp := *c
	return &cp, nil
}

func (m *memoryCustomerRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.customers[id]; !ok {
		return ErrNotFound
	}
	delete(m.customers, id)
	return nil
}

func (m *memoryCustomerRepo) HasLeads(_ context.Context, id int64) (bool, error) {
	return len(m.leads[id]) > 0, nil
}

func (m *memoryCustomerRepo) ListLeads(_ context.Context, id int64, scope leads.Scope) ([]LeadSummary, error) {
	var out []LeadSummary
	for _, l := range m.leads[id] {
		if l.DeletedAt != nil || !scope.Matches(&l) {
			continue
		}
		out = append(out, LeadSummary{ID: l.ID, ReferenceID: l.ReferenceID, Status: string(l.Status), Destination: l.Destination})
	}
	return out, nil
}

func staff(id int64, role users.Role) *users.User {
	return &users.User{ID: id, Name: string(role), Role: role, Active: true}
}

func TestCreateNormalisesContactInfo(t *testing.T) {
	repo := newMemoryCustomerRepo()
	svc := NewService(repo, nil)

	c, err := svc.Create(context.Background(), staff(2, users.RoleSales), CreateCustomerRequest{
		Name:        "  Rahman Family ",
		ContactInfo: map[string]string{" Phone ": "+62 811 000", "email": "", "": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Rahman Family", c.Name)
	assert.Equal(t, ContactInfo{"phone": "+62 811 000"}, c.ContactInfo)
	require.NotNil(t, c.CreatedBy)
	assert.Equal(t, int64(2), *c.CreatedBy)
	assert.True(t, c.CanEdit)
	assert.False(t, c.CanDelete)
}

func TestRolePolicy(t *testing.T) {
	cases := []struct {
		role      users.Role
		view      bool
		create    bool
		edit      bool
		canDelete bool
	}{
		{users.RoleAdmin, true, true, true, true},
		{users.RoleSales, true, true, true, false},
		{users.RoleMarketing, true, true, false, false},
		{users.RoleOperation, true, false, false, false},
		{users.RoleAccount, true, false, false, false},
		{users.RoleHR, false, false, false, false},
		{users.RoleCallCenter, false, false, false, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			u := staff(1, tc.role)
			assert.Equal(t, tc.view, CanView(u))
			assert.Equal(t, tc.create, CanCreate(u))
			assert.Equal(t, tc.edit, CanEdit(u))
			assert.Equal(t, tc.canDelete, CanDelete(u))
		})
	}
	assert.False(t, CanView(nil))
	assert.False(t, CanDelete(nil))
}

func TestUpdateKeepsContactWhenOmitted(t *testing.T) {
	repo := newMemoryCustomerRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	admin := staff(1, users.RoleAdmin)

	c, err := svc.Create(ctx, admin, CreateCustomerRequest{Name: "Ayu", ContactInfo: map[string]string{"whatsapp": "0812"}})
	require.NoError(t, err)

	name := "Ayu Lestari"
	updated, err := svc.Update(ctx, admin, c.ID, UpdateCustomerRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ayu Lestari", updated.Name)
	assert.Equal(t, "0812", updated.ContactInfo["whatsapp"])

	blank := "  "
	_, err = svc.Update(ctx, admin, c.ID, UpdateCustomerRequest{Name: &blank})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = svc.Update(ctx, staff(9, users.RoleMarketing), c.ID, UpdateCustomerRequest{Name: &name})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDeleteRefusesCustomerWithLeads(t *testing.T) {
	repo := newMemoryCustomerRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	admin := staff(1, users.RoleAdmin)

	c, err := svc.Create(ctx, admin, CreateCustomerRequest{Name: "Booked"})
	require.NoError(t, err)
	repo.leads[c.ID] = []leads.Lead{{ID: 10, ReferenceID: "LD-260101-ABCDEF", Status: leads.StatusConfirmed}}

	err = svc.Delete(ctx, admin, c.ID)
	require.ErrorIs(t, err, ErrInUse)
	assert.True(t, errors.Is(err, httpx.ErrConflict))

	booked, err := svc.ListLeads(ctx, staff(3, users.RoleAdmin), c.ID)
	require.NoError(t, err)
	require.Len(t, booked, 1)

	free, err := svc.Create(ctx, admin, CreateCustomerRequest{Name: "Walk-in"})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Delete(ctx, staff(2, users.RoleSales), free.ID), ErrForbidden)
	require.NoError(t, svc.Delete(ctx, admin, free.ID))
	_, err = svc.Get(ctx, admin, free.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSearchAndPaging(t *testing.T) {
	repo := newMemoryCustomerRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	admin := staff(1, users.RoleAdmin)
	for _, n := range []string{"Budi Travel", "Citra", "Budiman"} {
		_, err := svc.Create(ctx, admin, CreateCustomerRequest{Name: n})
		require.NoError(t, err)
	}

	list, total, err := svc.List(ctx, admin, ListFilter{Search: "budi", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 1)
	assert.Equal(t, "Budi Travel", list[0].Name)

	_, _, err = svc.List(ctx, staff(5, users.RoleHR), ListFilter{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRoutesRejectRolesOutsideGroup(t *testing.T) {
	repo := newMemoryCustomerRepo()
	h := NewHandler(nil, NewService(repo, nil), rbac.Middleware{})
	r := chi.NewRouter()
	r.Route("/customers", h.MountRoutes)

	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	req = req.WithContext(users.WithActor(req.Context(), staff(4, users.RoleHR)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/customers", strings.NewReader(`{"name":"Dewi"}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(users.WithActor(req.Context(), staff(2, users.RoleSales)))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Dewi"`)
}

func TestListLeadsFollowsLeadVisibility(t *testing.T) {
	repo := newMemoryCustomerRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	admin := staff(1, users.RoleAdmin)
	sales, sales2 := staff(2, users.RoleSales), staff(3, users.RoleSales)
	ops := staff(4, users.RoleOperation)

	c, err := svc.Create(ctx, admin, CreateCustomerRequest{Name: "Rahman Family"})
	require.NoError(t, err)
	owner := sales.ID
	operator := ops.ID
	deleted := time.Now()
	repo.leads[c.ID] = []leads.Lead{
		{ID: 10, ReferenceID: "LD-260101-AAAAAA", Status: leads.StatusAssignedToSales, AssignedTo: &owner},
		{ID: 11, ReferenceID: "LD-260101-BBBBBB", Status: leads.StatusNew},
		{ID: 12, ReferenceID: "LD-260101-CCCCCC", Status: leads.StatusConfirmed, AssignedTo: &owner, AssignedOperator: &operator},
		{ID: 13, ReferenceID: "LD-260101-DDDDDD", Status: leads.StatusNew, DeletedAt: &deleted},
	}

	ids := func(actor *users.User) []int64 {
		list, err := svc.ListLeads(ctx, actor, c.ID)
		require.NoError(t, err)
		var out []int64
		for _, l := range list {
			out = append(out, l.ID)
		}
		return out
	}

	assert.Equal(t, []int64{10, 11, 12}, ids(admin))
	assert.Equal(t, []int64{10, 11, 12}, ids(sales))
	assert.Equal(t, []int64{11}, ids(sales2))
	// Unclaimed leads waiting on sales are offered to operations.
	assert.Equal(t, []int64{10, 12}, ids(ops))
	assert.Len(t, ids(staff(5, users.RoleAccount)), 3)
}
