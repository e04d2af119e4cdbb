package auth

import (
	"context"
	"time"

	"github.com/MariamAlaa-8/realstate-backend/errs"
)

var (
	// ErrUserNotFound signals that the user does not exist.
	ErrUserNotFound = errs.New(errs.CodeNotFound, "auth: user not found")
	// ErrDuplicateUser signals that the national id or phone is already registered.
	ErrDuplicateUser = errs.New(errs.CodeStateConflict, "auth: national id or phone already registered")
)

// Repository handles data access for accounts.
type Repository interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
	GetUserByPhone(ctx context.Context, phone string) (User, error)
	UpdateUser(ctx context.Context, user User) error
	ListUsersByRole(ctx context.Context, role Role) ([]User, error)
	// PurgeInactiveUsers deletes ordinary accounts idle since before cutoff,
	// together with their records and notifications, and returns their ids.
	// Accounts party to an open transaction are kept.
	PurgeInactiveUsers(ctx context.Context, cutoff time.Time) ([]string, error)
}
