package auth

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TempNationalIDPrefix marks placeholder national ids of unactivated buyers.
const TempNationalIDPrefix = "TEMP-"

const temporaryPasswordBytes = 10

// TemporaryAccount is a freshly provisioned buyer account and its one-time credential.
type TemporaryAccount struct {
	User     User
	Password string
}

// NewTemporaryAccount provisions an account for a buyer known only by name and
// phone. The account cannot act until it is activated.
func NewTemporaryAccount(fullName, phone string, now time.Time) (TemporaryAccount, error) {
	raw := make([]byte, temporaryPasswordBytes)
	if _, err := rand.Read(raw); err != nil {
		return TemporaryAccount{}, fmt.Errorf("auth: generate temporary password: %w", err)
	}
	password := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw))

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return TemporaryAccount{}, fmt.Errorf("auth: hash temporary password: %w", err)
	}

	return TemporaryAccount{
		User: User{
			ID:           uuid.NewString(),
			FullName:     strings.TrimSpace(fullName),
			NationalID:   TempNationalIDPrefix + uuid.NewString(),
			Phone:        strings.TrimSpace(phone),
			PasswordHash: string(hash),
			Role:         RoleUser,
			IsTemp:       true,
			IsActive:     true,
			LastActivity: now,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		Password: password,
	}, nil
}
