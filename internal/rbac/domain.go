package rbac

import (
	"fmt"
	"strings"
	"time"

	"github.com/voyage-crm/voyage/internal/platform/httpx"
)

var (
	ErrNotFound  = fmt.Errorf("rbac: %w", httpx.ErrNotFound)
	ErrDuplicate = fmt.Errorf("rbac: %w", httpx.ErrDuplicate)
	ErrInvalid   = fmt.Errorf("rbac: %w", httpx.ErrValidation)
	ErrForbidden = fmt.Errorf("rbac: %w", httpx.ErrForbidden)
)

// Permission is a named "resource.action" capability.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// Group bundles permissions so they can be granted together.
type Group struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// Grant records who gave a user a permission or group, and when.
type Grant struct {
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	GrantedBy *int64    `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
}

const (
	GrantKindPermission = "permission"
	GrantKindGroup      = "group"
)

// PermissionName joins resource and action into the canonical name.
func PermissionName(resource, action string) string {
	return normalize(resource) + "." + normalize(action)
}

// ParsePermissionName splits "resource.action".
func ParsePermissionName(name string) (resource, action string, err error) {
	parts := strings.Split(normalize(name), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: permission must look like resource.action", ErrInvalid)
	}
	return parts[0], parts[1], nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
