package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voyage-crm/voyage/internal/users"
)

func serveWith(actor *users.User, mw func(http.Handler) http.Handler) int {
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if actor != nil {
		req = req.WithContext(users.WithActor(req.Context(), actor))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireAny(t *testing.T) {
	m := Middleware{}
	mw := m.RequireAny("Leads.View ", "leads.edit")

	assert.Equal(t, http.StatusUnauthorized, serveWith(nil, mw))
	assert.Equal(t, http.StatusForbidden, serveWith(&users.User{ID: 1, Role: users.RoleSales}, mw))
	assert.Equal(t, http.StatusNoContent, serveWith(&users.User{ID: 1, Role: users.RoleSales, Permissions: []string{"leads.view"}}, mw))
	assert.Equal(t, http.StatusNoContent, serveWith(&users.User{ID: 2, Role: users.RoleAdmin}, mw))
}

func TestRequireAll(t *testing.T) {
	m := Middleware{}
	mw := m.RequireAll("leads.view", "leads.edit")

	assert.Equal(t, http.StatusForbidden, serveWith(&users.User{ID: 1, Role: users.RoleSales, Permissions: []string{"leads.view"}}, mw))
	assert.Equal(t, http.StatusNoContent, serveWith(&users.User{ID: 1, Role: users.RoleSales, Permissions: []string{"leads.view", "leads.edit"}}, mw))
}

func TestRequireRole(t *testing.T) {
	m := Middleware{}
	mw := m.RequireRole(users.RoleAdmin, users.RoleHR)

	assert.Equal(t, http.StatusUnauthorized, serveWith(nil, mw))
	assert.Equal(t, http.StatusForbidden, serveWith(&users.User{ID: 1, Role: users.RoleSales}, mw))
	assert.Equal(t, http.StatusNoContent, serveWith(&users.User{ID: 1, Role: users.RoleHR}, mw))
}
