package auth

import (
	"errors"
	"fmt"

	"github.com/voyage-crm/voyage/internal/platform/httpx"
)

var (
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", httpx.ErrUnauthorized)
	// ErrAccountDisabled is returned for deactivated staff with a correct password.
	ErrAccountDisabled = fmt.Errorf("%w: account disabled", httpx.ErrUnauthorized)
	// ErrPasswordReused rejects a password change that keeps the old secret.
	ErrPasswordReused = fmt.Errorf("%w: new password must differ from the current one", httpx.ErrValidation)
)

func isLoginFailure(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrAccountDisabled)
}
