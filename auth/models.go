package auth

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the domain representation of an account. Accounts provisioned for a
// buyer during a sale are temporary until the buyer activates them.
type User struct {
	ID           string
	FullName     string
	NationalID   string
	Phone        string
	PasswordHash string
	Role         Role
	IsTemp       bool
	IsActive     bool
	ActivatedAt  *time.Time
	LastActivity time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	FullName        string `json:"full_name"`
	NationalID      string `json:"national_id"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ActivateRequest exchanges a temporary credential for a verified account.
type ActivateRequest struct {
	Phone             string `json:"phone"`
	TemporaryPassword string `json:"temporary_password"`
	NewPassword       string `json:"new_password"`
	NationalID        string `json:"national_id"`
}
