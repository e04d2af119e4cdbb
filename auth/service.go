package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/MariamAlaa-8/realstate-backend/errs"
	"github.com/MariamAlaa-8/realstate-backend/registry"
)

var (
	// ErrInvalidCredentials signals a wrong phone or password.
	ErrInvalidCredentials = errs.New(errs.CodeAuthorization, "auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errs.New(errs.CodeValidation, "auth: password must be at least 8 characters")
	// ErrNotActivated signals a temporary account that has not exchanged its credential.
	ErrNotActivated = errs.New(errs.CodeAuthorization, "auth: account must be activated first")
	// ErrInactive signals a disabled account.
	ErrInactive = errs.New(errs.CodeAuthorization, "auth: account is inactive")
)

const minPasswordLength = 8

// Service handles account business logic.
type Service struct {
	repo      Repository
	registry  registry.Verifier
	jwtSecret []byte
	now       func() time.Time
}

type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new account service.
func NewService(repo Repository, reg registry.Verifier, jwtSecret string, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		registry:  reg,
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a new account for a citizen listed in the civil registry.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if len(req.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	if req.Password != req.ConfirmPassword {
		return nil, errs.New(errs.CodeValidation, "auth: passwords do not match")
	}
	if strings.TrimSpace(req.FullName) == "" || strings.TrimSpace(req.NationalID) == "" || strings.TrimSpace(req.Phone) == "" {
		return nil, errs.New(errs.CodeValidation, "auth: full_name, national_id and phone are required")
	}
	if strings.HasPrefix(req.NationalID, TempNationalIDPrefix) {
		return nil, errs.New(errs.CodeValidation, "auth: invalid national id")
	}
	if err := registry.Require(ctx, s.registry, req.NationalID); err != nil {
		return nil, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	now := s.now().UTC()
	user, err := s.repo.CreateUser(ctx, User{
		ID:           uuid.NewString(),
		FullName:     strings.TrimSpace(req.FullName),
		NationalID:   strings.TrimSpace(req.NationalID),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: string(passwordHash),
		Role:         RoleUser,
		IsActive:     true,
		ActivatedAt:  &now,
		LastActivity: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Activate exchanges the temporary credential of a provisioned buyer for a
// real password after checking the buyer's national id against the registry.
func (s *Service) Activate(ctx context.Context, req ActivateRequest) (*User, error) {
	if len(req.NewPassword) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	user, err := s.repo.GetUserByPhone(ctx, strings.TrimSpace(req.Phone))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsTemp {
		return nil, errs.New(errs.CodeStateConflict, "auth: account is already activated")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.TemporaryPassword)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := registry.Require(ctx, s.registry, req.NationalID); err != nil {
		return nil, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	now := s.now().UTC()
	user.NationalID = strings.TrimSpace(req.NationalID)
	user.PasswordHash = string(passwordHash)
	user.IsTemp = false
	user.ActivatedAt = &now
	user.LastActivity = now
	user.UpdatedAt = now
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RequireActive loads the acting user and refuses temporary or disabled accounts.
func (s *Service) RequireActive(ctx context.Context, userID string) (User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, errs.Wrap(err, errs.CodeAuthorization, "auth: unknown actor")
		}
		return User{}, err
	}
	if user.IsTemp || user.ActivatedAt == nil {
		return User{}, ErrNotActivated
	}
	if !user.IsActive {
		return User{}, ErrInactive
	}
	return user, nil
}

// GetUserByID retrieves user information by ID.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// PurgeInactive removes ordinary accounts idle for longer than idle.
func (s *Service) PurgeInactive(ctx context.Context, idle time.Duration) ([]string, error) {
	if idle <= 0 {
		return nil, errs.New(errs.CodeValidation, "auth: idle period must be positive")
	}
	ids, err := s.repo.PurgeInactiveUsers(ctx, s.now().UTC().Add(-idle))
	if err != nil {
		return nil, fmt.Errorf("auth: purge inactive users: %w", err)
	}
	return ids, nil
}

// VerifyToken validates a JWT token and returns the user ID and role.
func (s *Service) VerifyToken(tokenString string) (string, Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", "", errs.Wrap(err, errs.CodeAuthorization, "auth: parse token")
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		userID, ok := claims["user_id"].(string)
		if !ok || userID == "" {
			return "", "", errs.New(errs.CodeAuthorization, "auth: invalid user_id in token")
		}
		roleStr, ok := claims["role"].(string)
		if !ok {
			return "", "", errs.New(errs.CodeAuthorization, "auth: invalid role in token")
		}
		role := Role(roleStr)
		if !isValidRole(role) {
			return "", "", errs.Newf(errs.CodeAuthorization, "auth: invalid role %q in token", roleStr)
		}
		return userID, role, nil
	}

	return "", "", errs.New(errs.CodeAuthorization, "auth: invalid token")
}

func isValidRole(role Role) bool {
	switch role {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}
