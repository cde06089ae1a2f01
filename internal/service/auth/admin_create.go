// internal/service/auth/admin_create.go
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	xerrors "saas-billing/internal/pkg/errors"
	"saas-billing/internal/pkg/rbac"

	"go.uber.org/zap"
)

// EnsureAdmin seeds an ADMIN account on startup. An existing user with the
// email is promoted instead of recreated.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password, name string) error {
	if email == "" {
		return nil
	}
	if password == "" || name == "" {
		return fmt.Errorf("super admin email, password, and name must be provided via environment variables")
	}

	existing, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	switch {
	case err == nil:
		if existing.Role == rbac.RoleAdmin {
			s.logger.Info("super admin already exists, skipping creation")
			return nil
		}
		if err := s.users.UpdateRole(ctx, existing.ID, rbac.RoleAdmin); err != nil {
			return fmt.Errorf("failed to promote super admin: %w", err)
		}
		s.logger.Info("existing user promoted to admin", zap.String("user_id", existing.ID))
		return nil
	case !errors.Is(err, xerrors.ErrNotFound):
		return fmt.Errorf("failed to check super admin: %w", err)
	}

	u, err := s.CreateUser(ctx, name, email, password, rbac.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to create super admin: %w", err)
	}

	s.logger.Info("super admin created successfully",
		zap.String("email", u.Email),
		zap.String("user_id", u.ID),
	)
	return nil
}

const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"

// GenerateTemporaryPassword returns 12 random characters followed by "A1!"
// to satisfy common complexity rules.
func GenerateTemporaryPassword() (string, error) {
	buf := make([]byte, 12)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		buf[i] = passwordAlphabet[n.Int64()]
	}
	return string(buf) + "A1!", nil
}
