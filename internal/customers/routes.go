package customers

import (
	"github.com/go-chi/chi/v5"

	"github.com/voyage-crm/voyage/internal/users"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(users.RoleAdmin, users.RoleSales, users.RoleMarketing, users.RoleOperation, users.RoleAccount))
		r.Get("/", h.List)
		r.Get("/{id}", h.Show)
		r.Get("/{id}/leads", h.Leads)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(users.RoleAdmin, users.RoleSales, users.RoleMarketing))
		r.Post("/", h.Create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(users.RoleAdmin, users.RoleSales))
		r.Patch("/{id}", h.Update)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(users.RoleAdmin))
		r.Delete("/{id}", h.Delete)
	})
}
