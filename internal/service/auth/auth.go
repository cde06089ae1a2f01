// internal/service/auth/auth.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"saas-billing/internal/domain/auth"
	"saas-billing/internal/domain/subscription"
	xerrors "saas-billing/internal/pkg/errors"
	"saas-billing/internal/pkg/jwt"
	"saas-billing/internal/pkg/rbac"
	"saas-billing/internal/pkg/session"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const BcryptCost = 12

// unknownUserHash is compared against when the email has no account so both
// login failures spend one bcrypt comparison at BcryptCost.
var unknownUserHash = sync.OnceValue(func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("unknown-user-placeholder"), BcryptCost)
	if err != nil {
		panic(fmt.Sprintf("generate placeholder hash: %v", err))
	}
	return h
})

var comparePassword = bcrypt.CompareHashAndPassword

var (
	errInvalidCredentials = xerrors.New(xerrors.ErrUnauthorized, "Invalid email or password")
	errTooManyAttempts    = xerrors.New(xerrors.ErrRateLimited, "Too many login attempts. Please try again later.")
	errEmailTaken         = xerrors.New(xerrors.ErrDuplicateEntry, "A user with this email already exists")
	errInvalidToken       = xerrors.New(xerrors.ErrUnauthorized, "Invalid or expired token")
)

type AuthService struct {
	users          auth.UserRepository
	subscriptions  subscription.Repository
	jwtManager     *jwt.Manager
	sessionManager *session.Manager
	rateLimiter    *session.RateLimiter
	logger         *zap.Logger
}

func NewAuthService(
	users auth.UserRepository,
	subscriptions subscription.Repository,
	jwtManager *jwt.Manager,
	sessionManager *session.Manager,
	rateLimiter *session.RateLimiter,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:          users,
		subscriptions:  subscriptions,
		jwtManager:     jwtManager,
		sessionManager: sessionManager,
		rateLimiter:    rateLimiter,
		logger:         logger,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ========== Registration ==========

// Register creates a USER account and logs it in.
func (s *AuthService) Register(ctx context.Context, req *auth.RegisterRequest) (*auth.LoginResponse, error) {
	u, err := s.CreateUser(ctx, req.Name, req.Email, req.Password, rbac.RoleUser)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", u.ID))
	return s.issue(ctx, u)
}

// CreateUser hashes password and stores a new user with the given role.
func (s *AuthService) CreateUser(ctx context.Context, name, email, password, role string) (*auth.User, error) {
	email = NormalizeEmail(email)

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, errEmailTaken
	} else if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &auth.User{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(name),
		Role:         role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, xerrors.ErrDuplicateEntry) {
			return nil, errEmailTaken
		}
		return nil, err
	}
	return u, nil
}

// ========== Login ==========

// Login authenticates with email/password. Unknown emails and wrong
// passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, req *auth.LoginRequest) (*auth.LoginResponse, error) {
	email := NormalizeEmail(req.Email)

	allowed, _, err := s.rateLimiter.CheckLoginAttempt(ctx, req.IPAddress, email)
	if err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	if !allowed {
		return nil, errTooManyAttempts
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			_ = comparePassword(unknownUserHash(), []byte(req.Password))
			return nil, errInvalidCredentials
		}
		return nil, err
	}

	if err := comparePassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errInvalidCredentials
	}

	if err := s.rateLimiter.ResetLoginAttempts(ctx, req.IPAddress, email); err != nil {
		s.logger.Warn("failed to reset login attempts", zap.Error(err))
	}

	return s.issue(ctx, u)
}

func (s *AuthService) issue(ctx context.Context, u *auth.User) (*auth.LoginResponse, error) {
	token, _, expiresAt, err := s.jwtManager.Generator.Generate(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	info, err := s.userInfo(ctx, u)
	if err != nil {
		return nil, err
	}

	return &auth.LoginResponse{
		User:      *info,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *AuthService) userInfo(ctx context.Context, u *auth.User) (*auth.UserInfo, error) {
	info := &auth.UserInfo{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  u.Role,
	}

	sub, err := s.subscriptions.FindByUserID(ctx, u.ID)
	switch {
	case err == nil:
		summary := &auth.SubscriptionSummary{
			ID:           sub.ID,
			Status:       string(sub.Status),
			TierID:       sub.TierID,
			BillingCycle: string(sub.BillingCycle),
			RenewalDate:  sub.RenewalDate,
		}
		if sub.Tier != nil {
			summary.TierName = sub.Tier.Name
		}
		info.Subscription = summary
	case errors.Is(err, xerrors.ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return info, nil
}

// Me returns the caller's profile with their current subscription.
func (s *AuthService) Me(ctx context.Context, userID string) (*auth.UserInfo, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.New(xerrors.ErrNotFound, "User not found")
		}
		return nil, err
	}
	return s.userInfo(ctx, u)
}

// ========== Tokens ==========

// ValidateToken verifies the signature and rejects revoked tokens. A
// blacklist lookup failure rejects the token too.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, ok := s.jwtManager.Verifier.VerifyToken(token)
	if !ok {
		return nil, errInvalidToken
	}

	revoked, err := s.sessionManager.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		s.logger.Error("blacklist lookup failed", zap.Error(err))
		return nil, errInvalidToken
	}
	if revoked {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Logout revokes the token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, claims *jwt.Claims) error {
	if claims == nil || claims.ID == "" {
		return nil
	}
	var ttl time.Duration
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if err := s.sessionManager.BlacklistToken(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}
	return nil
}
