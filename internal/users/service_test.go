package users

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memoryUserRepo struct {
	users  map[int64]User
	nextID int64
}

func newMemoryUserRepo(seed ...User) *memoryUserRepo {
	repo := &memoryUserRepo{users: make(map[int64]User)}
	for _, u := range seed {
		repo.users[u.ID] = u
		if u.ID > repo.nextID {
			repo.nextID = u.ID
		}
	}
	return repo
}

func (r *memoryUserRepo) Get(_ context.Context, id int64) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *memoryUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryUserRepo) List(_ context.Context, f ListFilter) ([]User, error) {
	var out []User
	for _, u := range r.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Active != nil && u.Active != *f.Active {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryUserRepo) Create(_ context.Context, u User) (*User, error) {
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return nil, ErrEmailTaken
		}
	}
	r.nextID++
	u.ID = r.nextID
	u.CreatedAt = time.Now()
	r.users[u.ID] = u
	return &u, nil
}

func (r *memoryUserRepo) Update(_ context.Context, id int64, c Changes) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Name != nil {
		u.Name = *c.Name
	}
	if c.Role != nil {
		u.Role = *c.Role
	}
	if c.Manager != nil {
		u.Manager = *c.Manager
	}
	if c.Active != nil {
		u.Active = *c.Active
	}
	if c.PasswordHash != nil {
		u.PasswordHash = *c.PasswordHash
	}
	r.users[id] = u
	return &u, nil
}

func (r *memoryUserRepo) FindManager(_ context.Context, role Role, excludeID int64) (*User, error) {
	var best *User
	for _, u := range r.users {
		if u.Role != role || !u.Manager || !u.Active || u.ID == excludeID {
			continue
		}
		if best == nil || u.ID < best.ID {
			cp := u
			best = &cp
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func TestCreateHashesPasswordAndChecksPolicy(t *testing.T) {
	repo := newMemoryUserRepo(User{ID: 1, Role: RoleAdmin, Active: true})
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, &User{ID: 9, Role: RoleSales}, CreateUserRequest{Name: "x", Email: "x@y.z", Password: "password1", Role: "sales"})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Create(ctx, &User{ID: 1, Role: RoleAdmin}, CreateUserRequest{Name: "x", Email: "x@y.z", Password: "password1", Role: "pilot"})
	require.ErrorIs(t, err, ErrInvalid)

	u, err := svc.Create(ctx, &User{ID: 1, Role: RoleAdmin}, CreateUserRequest{Name: " Rina ", Email: "Rina@Voyage.Test", Password: "password1", Role: "sales", IsManager: true})
	require.NoError(t, err)
	assert.Equal(t, "Rina", u.Name)
	assert.Equal(t, "rina@voyage.test", u.Email)
	assert.True(t, u.Manager)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("password1")))
}

func TestManagerOfPicksLowestIDAndSkipsAuthor(t *testing.T) {
	repo := newMemoryUserRepo(
		User{ID: 3, Role: RoleSales, Manager: true, Active: true},
		User{ID: 5, Role: RoleSales, Manager: true, Active: true},
		User{ID: 2, Role: RoleSales, Manager: false, Active: true},
		User{ID: 1, Role: RoleOperation, Manager: true, Active: true},
	)
	svc := NewService(repo, nil)
	ctx := context.Background()

	m, err := svc.ManagerOf(ctx, RoleSales, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.ID)

	m, err = svc.ManagerOf(ctx, RoleSales, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), m.ID)

	_, err = svc.ManagerOf(ctx, RoleHR, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetHidesOtherAccountsFromStaff(t *testing.T) {
	repo := newMemoryUserRepo(User{ID: 1, Role: RoleSales}, User{ID: 2, Role: RoleSales})
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, &User{ID: 1, Role: RoleSales}, 2)
	assert.ErrorIs(t, err, ErrNotFound)
	u, err := svc.Get(ctx, &User{ID: 1, Role: RoleSales}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)
	_, err = svc.Get(ctx, nil, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(ctx, &User{ID: 7, Role: RoleHR}, 2)
	assert.NoError(t, err)
}

func TestUpdateRefusesSelfDeactivation(t *testing.T) {
	repo := newMemoryUserRepo(User{ID: 1, Role: RoleAdmin, Active: true}, User{ID: 2, Role: RoleSales, Active: true})
	svc := NewService(repo, nil)
	admin := &User{ID: 1, Role: RoleAdmin}
	off := false

	_, err := svc.Update(context.Background(), admin, 1, UpdateUserRequest{IsActive: &off})
	require.ErrorIs(t, err, ErrInvalid)

	role := "operation"
	u, err := svc.Update(context.Background(), admin, 2, UpdateUserRequest{IsActive: &off, Role: &role})
	require.NoError(t, err)
	assert.False(t, u.Active)
	assert.Equal(t, RoleOperation, u.Role)
}
