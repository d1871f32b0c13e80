package rbac

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyage-crm/voyage/internal/platform/db"
	"github.com/voyage-crm/voyage/internal/users"
)

type memoryRBACRepo struct {
	perms       map[int64]Permission
	groups      map[int64]Group
	groupPerms  map[int64][]int64
	userPerms   map[int64]map[int64]Grant
	userGroups  map[int64]map[int64]Grant
	nextPermID  int64
	nextGroupID int64
}

func newMemoryRBACRepo() *memoryRBACRepo {
	return &memoryRBACRepo{
		perms:      map[int64]Permission{},
		groups:     map[int64]Group{},
		groupPerms: map[int64][]int64{},
		userPerms:  map[int64]map[int64]Grant{},
		userGroups: map[int64]map[int64]Grant{},
	}
}

func (r *memoryRBACRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryRBACRepo) Exec() db.DBTX { return nil }

func (r *memoryRBACRepo) ListPermissions(context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(r.perms))
	for _, p := range r.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRBACRepo) GetPermissionByName(_ context.Context, name string) (*Permission, error) {
	for _, p := range r.perms {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRBACRepo) CreatePermission(_ context.Context, p Permission) (*Permission, error) {
	for _, existing := range r.perms {
		if existing.Name == p.Name {
			return nil, ErrDuplicate
		}
	}
	r.nextPermID++
	p.ID = r.nextPermID
	r.perms[p.ID] = p
	return &p, nil
}

func (r *memoryRBACRepo) groupWithPerms(id int64) Group {
	g := r.groups[id]
	g.Permissions = []string{}
	for _, pid := range r.groupPerms[id] {
		g.Permissions = append(g.Permissions, r.perms[pid].Name)
	}
	sort.Strings(g.Permissions)
	return g
}

func (r *memoryRBACRepo) ListGroups(context.Context) ([]Group, error) {
	var out []Group
	for id := range r.groups {
		out = append(out, r.groupWithPerms(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRBACRepo) GetGroup(_ context.Context, id int64) (*Group, error) {
	if _, ok := r.groups[id]; !ok {
		return nil, ErrNotFound
	}
	g := r.groupWithPerms(id)
	return &g, nil
}

func (r *memoryRBACRepo) CreateGroup(_ context.Context, name, description string) (*Group, error) {
	r.nextGroupID++
	g := Group{ID: r.nextGroupID, Name: name, Description: description}
	r.groups[g.ID] = g
	return &g, nil
}

func (r *memoryRBACRepo) DeleteGroup(_ context.Context, id int64) error {
	if _, ok := r.groups[id]; !ok {
		return ErrNotFound
	}
	delete(r.groups, id)
	delete(r.groupPerms, id)
	return nil
}

func (r *memoryRBACRepo) SetGroupPermissions(_ context.Context, groupID int64, ids []int64) error {
	r.groupPerms[groupID] = append([]int64(nil), ids...)
	return nil
}

func grantSet(m map[int64]map[int64]Grant, userID int64) map[int64]Grant {
	if m[userID] == nil {
		m[userID] = map[int64]Grant{}
	}
	return m[userID]
}

func (r *memoryRBACRepo) GrantPermission(_ context.Context, userID, permissionID, grantedBy int64) error {
	grantSet(r.userPerms, userID)[permissionID] = Grant{UserID: userID, Name: r.perms[permissionID].Name, Kind: GrantKindPermission, GrantedBy: &grantedBy, GrantedAt: time.Now()}
	return nil
}

func (r *memoryRBACRepo) RevokePermission(_ context.Context, userID, permissionID int64) error {
	delete(grantSet(r.userPerms, userID), permissionID)
	return nil
}

func (r *memoryRBACRepo) GrantGroup(_ context.Context, userID, groupID, grantedBy int64) error {
	grantSet(r.userGroups, userID)[groupID] = Grant{UserID: userID, Name: r.groups[groupID].Name, Kind: GrantKindGroup, GrantedBy: &grantedBy, GrantedAt: time.Now()}
	return nil
}

func (r *memoryRBACRepo) RevokeGroup(_ context.Context, userID, groupID int64) error {
	delete(grantSet(r.userGroups, userID), groupID)
	return nil
}

func (r *memoryRBACRepo) ListGrants(_ context.Context, userID int64) ([]Grant, error) {
	var out []Grant
	for _, g := range r.userPerms[userID] {
		out = append(out, g)
	}
	for _, g := range r.userGroups[userID] {
		out = append(out, g)
	}
	return out, nil
}

func (r *memoryRBACRepo) EffectivePermissions(_ context.Context, userID int64) ([]string, error) {
	set := map[string]struct{}{}
	for pid := range r.userPerms[userID] {
		set[r.perms[pid].Name] = struct{}{}
	}
	for gid := range r.userGroups[userID] {
		for _, pid := range r.groupPerms[gid] {
			set[r.perms[pid].Name] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func seedPermissions(t *testing.T, repo *memoryRBACRepo, names ...string) {
	t.Helper()
	for _, n := range names {
		res, act, err := ParsePermissionName(n)
		require.NoError(t, err)
		_, err = repo.CreatePermission(context.Background(), Permission{Name: n, Resource: res, Action: act})
		require.NoError(t, err)
	}
}

func TestHasPermissionDirectAndGroup(t *testing.T) {
	repo := newMemoryRBACRepo()
	seedPermissions(t, repo, "leads.view", "leads.edit", "invoices.view")
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	admin := &users.User{ID: 1, Role: users.RoleAdmin}
	sales := &users.User{ID: 7, Role: users.RoleSales}

	ok, err := svc.HasPermission(ctx, sales, "leads.edit")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.Grant(ctx, admin, sales.ID, GrantKindPermission, "leads.edit"))
	ok, err = svc.HasPermission(ctx, sales, "Leads.Edit")
	require.NoError(t, err)
	assert.True(t, ok)

	g, err := svc.SaveGroup(ctx, admin, 0, "finance-readers", "", []string{"invoices.view"})
	require.NoError(t, err)
	assert.Equal(t, []string{"invoices.view"}, g.Permissions)
	require.NoError(t, svc.Grant(ctx, admin, sales.ID, GrantKindGroup, "finance-readers"))

	effective, err := svc.EffectivePermissions(ctx, sales.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"invoices.view", "leads.edit"}, effective)

	grants, _, err := svc.Grants(ctx, admin, sales.ID)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	for _, gr := range grants {
		require.NotNil(t, gr.GrantedBy)
		assert.Equal(t, admin.ID, *gr.GrantedBy)
	}

	require.NoError(t, svc.Revoke(ctx, admin, sales.ID, GrantKindPermission, "leads.edit"))
	ok, err = svc.HasPermission(ctx, sales, "leads.edit")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasPermissionAdminAndNil(t *testing.T) {
	svc := NewService(newMemoryRBACRepo(), nil, nil)
	ok, err := svc.HasPermission(context.Background(), &users.User{ID: 1, Role: users.RoleAdmin}, "whatever.thing")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasPermission(context.Background(), nil, "leads.view")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMutationsRequirePermissionsEdit(t *testing.T) {
	repo := newMemoryRBACRepo()
	seedPermissions(t, repo, "leads.view")
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	viewer := &users.User{ID: 3, Role: users.RoleHR, Permissions: []string{"permissions.view"}}
	_, err := svc.ListPermissions(ctx, viewer)
	require.NoError(t, err)
	err = svc.Grant(ctx, viewer, 9, GrantKindPermission, "leads.view")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.CreatePermission(ctx, &users.User{ID: 1, Role: users.RoleAdmin}, "bad", "")
	assert.ErrorIs(t, err, ErrInvalid)
	p, err := svc.CreatePermission(ctx, &users.User{ID: 1, Role: users.RoleAdmin}, " Reports.Export ", "")
	require.NoError(t, err)
	assert.Equal(t, "reports.export", p.Name)
	assert.Equal(t, "reports", p.Resource)
}
