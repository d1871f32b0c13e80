package users

import (
	"fmt"
	"time"

	"github.com/voyage-crm/voyage/internal/platform/httpx"
)

// Role is the staff department a user belongs to.
type Role string

const (
	RoleMarketing  Role = "marketing"
	RoleSales      Role = "sales"
	RoleOperation  Role = "operation"
	RoleHR         Role = "hr"
	RoleAdmin      Role = "admin"
	RoleAccount    Role = "account"
	RoleCallCenter Role = "call_center"
)

// Roles lists every role in display order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleSales, RoleOperation, RoleMarketing, RoleAccount, RoleHR, RoleCallCenter}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles() {
		if r == known {
			return true
		}
	}
	return false
}

// Label returns the human readable role name.
func (r Role) Label() string {
	switch r {
	case RoleMarketing:
		return "Marketing"
	case RoleSales:
		return "Sales"
	case RoleOperation:
		return "Operation"
	case RoleHR:
		return "HR"
	case RoleAdmin:
		return "Admin"
	case RoleAccount:
		return "Account"
	case RoleCallCenter:
		return "Call Center"
	default:
		return string(r)
	}
}

var (
	ErrNotFound   = fmt.Errorf("users: %w", httpx.ErrNotFound)
	ErrEmailTaken = fmt.Errorf("users: email already registered: %w", httpx.ErrDuplicate)
	ErrInvalid    = fmt.Errorf("users: %w", httpx.ErrValidation)
	ErrForbidden  = fmt.Errorf("users: %w", httpx.ErrForbidden)
)

// User is a staff account. Permissions carries the named permissions
// resolved for the current request and is never persisted on this row.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Manager      bool      `json:"is_manager"`
	Active       bool      `json:"is_active"`
	Permissions  []string  `json:"permissions,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) hasRole(r Role) bool { return u != nil && u.Role == r }

func (u *User) IsAdmin() bool      { return u.hasRole(RoleAdmin) }
func (u *User) IsSales() bool      { return u.hasRole(RoleSales) }
func (u *User) IsOperation() bool  { return u.hasRole(RoleOperation) }
func (u *User) IsHR() bool         { return u.hasRole(RoleHR) }
func (u *User) IsMarketing() bool  { return u.hasRole(RoleMarketing) }
func (u *User) IsAccount() bool    { return u.hasRole(RoleAccount) }
func (u *User) IsCallCenter() bool { return u.hasRole(RoleCallCenter) }

// IsManager reports whether u manages the staff of its role.
func (u *User) IsManager() bool { return u != nil && u.Manager }

// HasRole reports whether u holds any of roles.
func (u *User) HasRole(roles ...Role) bool {
	if u == nil {
		return false
	}
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// HasPermission reports whether u holds the named permission. Admins hold
// every permission.
func (u *User) HasPermission(name string) bool {
	if u == nil {
		return false
	}
	if u.IsAdmin() {
		return true
	}
	for _, p := range u.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// Is reports whether u is the user identified by id.
func (u *User) Is(id *int64) bool {
	return u != nil && id != nil && *id == u.ID
}

// ListFilter narrows user listings.
type ListFilter struct {
	Role   Role
	Active *bool
	Search string
}

// Changes holds optional updates applied by admins.
type Changes struct {
	Name         *string
	Role         *Role
	Manager      *bool
	Active       *bool
	PasswordHash *string
}
