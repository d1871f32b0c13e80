package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/voyage-crm/voyage/internal/users"
)

// dummyHash keeps the bcrypt cost paid for unknown emails so response time
// does not reveal which addresses have accounts.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("voyage-unknown-account"), bcrypt.DefaultCost)

// Service checks staff credentials and keeps the session audit trail.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Authenticate resolves the staff member for an email/password pair. The
// email is matched case-insensitively. Inactive accounts fail with
// ErrAccountDisabled only after the password has been verified.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*users.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrAccountDisabled
	}
	return user, nil
}

// ChangePassword replaces the actor's password after re-checking the current one.
func (s *Service) ChangePassword(ctx context.Context, actor *users.User, current, next string) error {
	if actor == nil {
		return ErrInvalidCredentials
	}
	user, err := s.repo.FindByEmail(ctx, actor.Email)
	if err != nil || user == nil {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	if current == next {
		return ErrPasswordReused
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	return s.repo.SetPassword(ctx, user.ID, string(hash))
}

// RegisterSession records a successful login in the sessions table.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, ttl time.Duration, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, s.now().Add(ttl), clientIP(ip), truncate(ua, 255))
}

// RemoveSession deletes the audit row of a session on logout.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// clientIP strips the port from a RemoteAddr style value.
func clientIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
