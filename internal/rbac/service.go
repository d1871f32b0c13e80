package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/voyage-crm/voyage/internal/shared"
	"github.com/voyage-crm/voyage/internal/users"
)

// Service orchestrates named permission management.
type Service struct {
	repo    Repository
	auditor shared.Auditor
	logger  *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, auditor shared.Auditor, logger *slog.Logger) *Service {
	if auditor == nil {
		auditor = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, auditor: auditor, logger: logger}
}

// CanView reports whether actor may read permissions and grants.
func CanView(actor *users.User) bool {
	return actor.HasPermission(shared.PermPermissionsView) || actor.HasPermission(shared.PermPermissionsEdit)
}

// CanEdit reports whether actor may create permissions or change grants.
func CanEdit(actor *users.User) bool {
	return actor.HasPermission(shared.PermPermissionsEdit)
}

// EffectivePermissions returns deduplicated permission names for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.repo.EffectivePermissions(ctx, userID)
}

// HasPermission reports whether u holds name. Admins hold every permission;
// otherwise direct and group grants are consulted.
func (s *Service) HasPermission(ctx context.Context, u *users.User, name string) (bool, error) {
	if u == nil {
		return false, nil
	}
	if u.IsAdmin() {
		return true, nil
	}
	perms, err := s.repo.EffectivePermissions(ctx, u.ID)
	if err != nil {
		return false, err
	}
	return slices.Contains(perms, normalize(name)), nil
}

func (s *Service) ListPermissions(ctx context.Context, actor *users.User) ([]Permission, error) {
	if !CanView(actor) {
		return nil, ErrForbidden
	}
	return s.repo.ListPermissions(ctx)
}

// CreatePermission registers a new "resource.action" permission.
func (s *Service) CreatePermission(ctx context.Context, actor *users.User, name, description string) (*Permission, error) {
	if !CanEdit(actor) {
		return nil, ErrForbidden
	}
	resource, action, err := ParsePermissionName(name)
	if err != nil {
		return nil, err
	}
	return s.repo.CreatePermission(ctx, Permission{
		Name:        PermissionName(resource, action),
		Resource:    resource,
		Action:      action,
		Description: strings.TrimSpace(description),
	})
}

func (s *Service) ListGroups(ctx context.Context, actor *users.User) ([]Group, error) {
	if !CanView(actor) {
		return nil, ErrForbidden
	}
	return s.repo.ListGroups(ctx)
}

// SaveGroup creates a group (id 0) or replaces the permission set of an
// existing one.
func (s *Service) SaveGroup(ctx context.Context, actor *users.User, id int64, name, description string, permissions []string) (*Group, error) {
	if !CanEdit(actor) {
		return nil, ErrForbidden
	}
	name = strings.TrimSpace(name)
	if id == 0 && name == "" {
		return nil, fmt.Errorf("%w: group name required", ErrInvalid)
	}
	var saved *Group
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if id == 0 {
			g, err := tx.CreateGroup(ctx, name, strings.TrimSpace(description))
			if err != nil {
				return err
			}
			id = g.ID
		} else if _, err := tx.GetGroup(ctx, id); err != nil {
			return err
		}
		ids := make([]int64, 0, len(permissions))
		for _, pname := range permissions {
			p, err := tx.GetPermissionByName(ctx, normalize(pname))
			if err != nil {
				return fmt.Errorf("permission %q: %w", pname, err)
			}
			ids = append(ids, p.ID)
		}
		if err := tx.SetGroupPermissions(ctx, id, ids); err != nil {
			return err
		}
		g, err := tx.GetGroup(ctx, id)
		if err != nil {
			return err
		}
		saved = g
		return s.auditor.Record(ctx, tx.Exec(), shared.AuditLog{
			ActorID: actor.ID, Action: "group.save", Entity: "permission_group", EntityID: id,
			Meta: map[string]any{"permissions": g.Permissions},
		})
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Service) DeleteGroup(ctx context.Context, actor *users.User, id int64) error {
	if !CanEdit(actor) {
		return ErrForbidden
	}
	return s.repo.DeleteGroup(ctx, id)
}

// Grant gives userID a permission or group, recording actor as grantor.
func (s *Service) Grant(ctx context.Context, actor *users.User, userID int64, kind, name string) error {
	return s.changeGrant(ctx, actor, userID, kind, name, true)
}

// Revoke removes a direct permission or group grant.
func (s *Service) Revoke(ctx context.Context, actor *users.User, userID int64, kind, name string) error {
	return s.changeGrant(ctx, actor, userID, kind, name, false)
}

func (s *Service) changeGrant(ctx context.Context, actor *users.User, userID int64, kind, name string, grant bool) error {
	if !CanEdit(actor) {
		return ErrForbidden
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		var entityID int64
		switch kind {
		case GrantKindPermission:
			p, err := tx.GetPermissionByName(ctx, normalize(name))
			if err != nil {
				return err
			}
			entityID = p.ID
			if grant {
				err = tx.GrantPermission(ctx, userID, p.ID, actor.ID)
			} else {
				err = tx.RevokePermission(ctx, userID, p.ID)
			}
			if err != nil {
				return err
			}
		case GrantKindGroup:
			groups, err := tx.ListGroups(ctx)
			if err != nil {
				return err
			}
			idx := slices.IndexFunc(groups, func(g Group) bool { return strings.EqualFold(g.Name, strings.TrimSpace(name)) })
			if idx < 0 {
				return ErrNotFound
			}
			entityID = groups[idx].ID
			if grant {
				err = tx.GrantGroup(ctx, userID, entityID, actor.ID)
			} else {
				err = tx.RevokeGroup(ctx, userID, entityID)
			}
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: grant kind must be permission or group", ErrInvalid)
		}
		action := "grant"
		if !grant {
			action = "revoke"
		}
		s.logger.Info("permission "+action, slog.Int64("user_id", userID), slog.String("kind", kind), slog.String("name", name), slog.Int64("actor_id", actor.ID))
		return s.auditor.Record(ctx, tx.Exec(), shared.AuditLog{
			ActorID: actor.ID, Action: kind + "." + action, Entity: "user", EntityID: userID,
			Meta: map[string]any{"name": name, "target_id": entityID},
		})
	})
}

// Grants lists the direct and group grants held by userID.
func (s *Service) Grants(ctx context.Context, actor *users.User, userID int64) ([]Grant, []string, error) {
	if !CanView(actor) {
		return nil, nil, ErrForbidden
	}
	grants, err := s.repo.ListGrants(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	effective, err := s.repo.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return grants, effective, nil
}
