package auth

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/MariamAlaa-8/realstate-backend/errs"
	"github.com/MariamAlaa-8/realstate-backend/registry"
)

const (
	knownNationalID   = "29001011234567"
	buyerNationalID   = "29505051234567"
	unknownNationalID = "11111111111111"
)

func newTestService(repo *fakeRepository) *Service {
	clock := func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	return NewService(repo, registry.NewStatic(knownNationalID, buyerNationalID), "test-secret", WithClock(clock))
}

func TestService_Register(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	user, err := svc.Register(context.Background(), RegisterRequest{
		FullName:        "Mona Adel",
		NationalID:      knownNationalID,
		Phone:           "01000000001",
		Password:        "supersafe",
		ConfirmPassword: "supersafe",
	})
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}
	if user.Role != RoleUser {
		t.Fatalf("register: expected role %s got %s", RoleUser, user.Role)
	}
	if user.IsTemp || user.ActivatedAt == nil {
		t.Fatalf("register: expected an activated account, got %+v", user)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("supersafe")); err != nil {
		t.Fatalf("register: password hash mismatch: %v", err)
	}
	if _, err := svc.RequireActive(context.Background(), user.ID); err != nil {
		t.Fatalf("require active: %v", err)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{FullName: "A", NationalID: knownNationalID, Phone: "1", Password: "short", ConfirmPassword: "short"})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	_, err = svc.Register(ctx, RegisterRequest{FullName: "A", NationalID: knownNationalID, Phone: "1", Password: "longenough", ConfirmPassword: "different"})
	if !errs.HasCode(err, errs.CodeValidation) {
		t.Fatalf("expected validation error for mismatch, got %v", err)
	}

	_, err = svc.Register(ctx, RegisterRequest{FullName: "A", NationalID: unknownNationalID, Phone: "1", Password: "longenough", ConfirmPassword: "longenough"})
	if !errs.HasCode(err, errs.CodeValidation) {
		t.Fatalf("expected civil registry rejection, got %v", err)
	}
}

func TestService_DuplicateNationalID(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)

	req := RegisterRequest{FullName: "Mona", NationalID: knownNationalID, Phone: "01000000001", Password: "strongpassword", ConfirmPassword: "strongpassword"}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	req.Phone = "01000000002"
	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrDuplicateUser) {
		t.Fatalf("expected ErrDuplicateUser, got %v", err)
	}
}

func TestService_TemporaryAccountMustActivate(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	acct, err := NewTemporaryAccount("Omar Khaled", "01200000000", time.Now().UTC())
	if err != nil {
		t.Fatalf("temporary account: %v", err)
	}
	if _, err := repo.CreateUser(ctx, acct.User); err != nil {
		t.Fatalf("create temp user: %v", err)
	}

	if _, err := svc.RequireActive(ctx, acct.User.ID); !errors.Is(err, ErrNotActivated) {
		t.Fatalf("expected ErrNotActivated, got %v", err)
	}

	_, err = svc.Activate(ctx, ActivateRequest{Phone: "01200000000", TemporaryPassword: "wrong", NewPassword: "newpassword", NationalID: buyerNationalID})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	_, err = svc.Activate(ctx, ActivateRequest{Phone: "01200000000", TemporaryPassword: acct.Password, NewPassword: "newpassword", NationalID: unknownNationalID})
	if !errs.HasCode(err, errs.CodeValidation) {
		t.Fatalf("expected registry validation error, got %v", err)
	}

	user, err := svc.Activate(ctx, ActivateRequest{Phone: "01200000000", TemporaryPassword: acct.Password, NewPassword: "newpassword", NationalID: buyerNationalID})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if user.IsTemp || user.NationalID != buyerNationalID {
		t.Fatalf("unexpected activated user %+v", user)
	}
	if _, err := svc.RequireActive(ctx, acct.User.ID); err != nil {
		t.Fatalf("require active after activation: %v", err)
	}

	_, err = svc.Activate(ctx, ActivateRequest{Phone: "01200000000", TemporaryPassword: acct.Password, NewPassword: "newpassword", NationalID: buyerNationalID})
	if !errs.HasCode(err, errs.CodeStateConflict) {
		t.Fatalf("expected second activation to conflict, got %v", err)
	}
}

func TestService_RequireActiveRejectsUnknownAndDisabled(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.RequireActive(ctx, "ghost"); !errs.HasCode(err, errs.CodeAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}

	now := time.Now()
	disabled := User{ID: "u-disabled", Phone: "3", NationalID: "n3", ActivatedAt: &now, IsActive: false}
	if _, err := repo.CreateUser(ctx, disabled); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.RequireActive(ctx, "u-disabled"); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
}

func TestService_VerifyToken(t *testing.T) {
	svc := newTestService(newFakeRepository())

	signed := func(secret string, claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return token
	}
	exp := time.Now().Add(time.Hour).Unix()

	userID, role, err := svc.VerifyToken(signed("test-secret", jwt.MapClaims{"user_id": "u-1", "role": "admin", "exp": exp}))
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if userID != "u-1" || role != RoleAdmin {
		t.Fatalf("unexpected claims %s %s", userID, role)
	}

	if _, _, err := svc.VerifyToken(signed("other-secret", jwt.MapClaims{"user_id": "u-1", "role": "admin", "exp": exp})); !errs.HasCode(err, errs.CodeAuthorization) {
		t.Fatalf("expected authorization error for bad signature, got %v", err)
	}
	if _, _, err := svc.VerifyToken(signed("test-secret", jwt.MapClaims{"user_id": "u-1", "role": "broker", "exp": exp})); err == nil {
		t.Fatal("expected unknown role to be rejected")
	}
}

func TestService_PurgeInactive(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	old := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 5, 25, 0, 0, 0, 0, time.UTC)
	for _, u := range []User{
		{ID: "stale", Phone: "1", NationalID: "n1", Role: RoleUser, LastActivity: old},
		{ID: "fresh", Phone: "2", NationalID: "n2", Role: RoleUser, LastActivity: recent},
		{ID: "admin", Phone: "3", NationalID: "n3", Role: RoleAdmin, LastActivity: old},
	} {
		if _, err := repo.CreateUser(ctx, u); err != nil {
			t.Fatalf("seed %s: %v", u.ID, err)
		}
	}

	ids, err := svc.PurgeInactive(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if len(ids) != 1 || ids[0] != "stale" {
		t.Fatalf("expected only stale user purged, got %v", ids)
	}
	if _, err := svc.PurgeInactive(ctx, 0); !errs.HasCode(err, errs.CodeValidation) {
		t.Fatalf("expected validation error for zero idle period, got %v", err)
	}
}

func TestAdminDirectoryMergesStaticAndStoredAdmins(t *testing.T) {
	repo := newFakeRepository()
	ctx := context.Background()
	now := time.Now()
	for _, u := range []User{
		{ID: "admin-db", Phone: "1", NationalID: "n1", Role: RoleAdmin, IsActive: true, ActivatedAt: &now},
		{ID: "admin-off", Phone: "2", NationalID: "n2", Role: RoleAdmin, IsActive: false},
		{ID: "citizen", Phone: "3", NationalID: "n3", Role: RoleUser, IsActive: true},
	} {
		if _, err := repo.CreateUser(ctx, u); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	admins, err := NewAdminDirectory(repo, []string{"admin-cfg", "admin-db"}).Admins(ctx)
	if err != nil {
		t.Fatalf("admins: %v", err)
	}
	sort.Strings(admins)
	if len(admins) != 2 || admins[0] != "admin-cfg" || admins[1] != "admin-db" {
		t.Fatalf("unexpected admins %v", admins)
	}
}

type fakeRepository struct {
	usersByID map[string]User
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{usersByID: make(map[string]User)}
}

func (f *fakeRepository) CreateUser(ctx context.Context, user User) (User, error) {
	for _, existing := range f.usersByID {
		if existing.NationalID == user.NationalID || existing.Phone == user.Phone {
			return User{}, ErrDuplicateUser
		}
	}
	f.usersByID[user.ID] = user
	return user, nil
}

func (f *fakeRepository) GetUserByID(ctx context.Context, userID string) (User, error) {
	user, ok := f.usersByID[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (f *fakeRepository) GetUserByPhone(ctx context.Context, phone string) (User, error) {
	for _, u := range f.usersByID {
		if u.Phone == phone {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (f *fakeRepository) UpdateUser(ctx context.Context, user User) error {
	if _, ok := f.usersByID[user.ID]; !ok {
		return ErrUserNotFound
	}
	for id, existing := range f.usersByID {
		if id != user.ID && existing.NationalID == user.NationalID {
			return ErrDuplicateUser
		}
	}
	f.usersByID[user.ID] = user
	return nil
}

func (f *fakeRepository) ListUsersByRole(ctx context.Context, role Role) ([]User, error) {
	var out []User
	for _, u := range f.usersByID {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeRepository) PurgeInactiveUsers(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	for id, u := range f.usersByID {
		if u.Role == RoleUser && u.LastActivity.Before(cutoff) {
			ids = append(ids, id)
			delete(f.usersByID, id)
		}
	}
	return ids, nil
}
