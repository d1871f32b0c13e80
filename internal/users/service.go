package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Service handles staff account management.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Lookup fetches a user without applying actor policy. Used by
// authentication and by other services resolving assignees.
func (s *Service) Lookup(ctx context.Context, id int64) (*User, error) {
	return s.repo.Get(ctx, id)
}

// ManagerOf returns the manager of role, skipping excludeID. It returns
// ErrNotFound when the role has no other manager.
func (s *Service) ManagerOf(ctx context.Context, role Role, excludeID int64) (*User, error) {
	return s.repo.FindManager(ctx, role, excludeID)
}

// List returns users visible to actor.
func (s *Service) List(ctx context.Context, actor *User, filter ListFilter) ([]User, error) {
	if !CanViewAny(actor) {
		return nil, ErrForbidden
	}
	return s.repo.List(ctx, filter)
}

// Get returns a single user. Staff may always read their own account.
func (s *Service) Get(ctx context.Context, actor *User, id int64) (*User, error) {
	if actor == nil || (actor.ID != id && !CanViewAny(actor)) {
		return nil, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// Create registers a staff account with a bcrypt hashed password.
func (s *Service) Create(ctx context.Context, actor *User, req CreateUserRequest) (*User, error) {
	if !CanEdit(actor) {
		return nil, ErrForbidden
	}
	role := Role(req.Role)
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalid, req.Role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.repo.Create(ctx, User{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		Role:         role,
		Manager:      req.IsManager,
		Active:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user created", slog.Int64("user_id", u.ID), slog.String("role", string(u.Role)), slog.Int64("actor_id", actor.ID))
	return u, nil
}

// Update changes role, manager flag, activation or password.
func (s *Service) Update(ctx context.Context, actor *User, id int64, req UpdateUserRequest) (*User, error) {
	if !CanEdit(actor) {
		return nil, ErrForbidden
	}
	var changes Changes
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		changes.Name = &name
	}
	if req.Role != nil {
		role := Role(*req.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalid, *req.Role)
		}
		changes.Role = &role
	}
	if req.IsActive != nil && !*req.IsActive && actor.ID == id {
		return nil, fmt.Errorf("%w: cannot deactivate your own account", ErrInvalid)
	}
	changes.Manager = req.IsManager
	changes.Active = req.IsActive
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		h := string(hash)
		changes.PasswordHash = &h
	}
	u, err := s.repo.Update(ctx, id, changes)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}
