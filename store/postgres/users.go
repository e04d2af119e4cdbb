package postgres

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MariamAlaa-8/realstate-backend/auth"
	"github.com/MariamAlaa-8/realstate-backend/store"
)

const userColumns = `
    id, full_name, national_id, phone, password_hash, role, is_temp, is_active,
    activated_at, last_activity, created_at, updated_at`

func scanUser(row pgx.Row) (auth.User, error) {
	var user auth.User
	err := row.Scan(
		&user.ID,
		&user.FullName,
		&user.NationalID,
		&user.Phone,
		&user.PasswordHash,
		&user.Role,
		&user.IsTemp,
		&user.IsActive,
		&user.ActivatedAt,
		&user.LastActivity,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

// userError maps store sentinels onto the auth ones.
func userError(err error, op string) error {
	err = translate(err, op)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return auth.ErrUserNotFound
	case errors.Is(err, store.ErrDuplicate):
		return auth.ErrDuplicateUser
	}
	return err
}

func (t *Tx) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	const insertSQL = `
INSERT INTO users (id, full_name, national_id, phone, password_hash, role, is_temp, is_active,
                   activated_at, last_activity, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + userColumns

	var created auth.User
	err := t.savepoint(ctx, func(sp pgx.Tx) error {
		var err error
		created, err = scanUser(sp.QueryRow(ctx, insertSQL,
			u.ID, u.FullName, u.NationalID, u.Phone, u.PasswordHash, u.Role, u.IsTemp, u.IsActive,
			u.ActivatedAt, u.LastActivity, u.CreatedAt, u.UpdatedAt,
		))
		return err
	})
	if err != nil {
		return auth.User{}, userError(err, "create user")
	}
	return created, nil
}

func (t *Tx) GetUserByID(ctx context.Context, userID string) (auth.User, error) {
	user, err := scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		return auth.User{}, userError(err, "get user by id")
	}
	return user, nil
}

func (t *Tx) GetUserByPhone(ctx context.Context, phone string) (auth.User, error) {
	user, err := scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone))
	if err != nil {
		return auth.User{}, userError(err, "get user by phone")
	}
	return user, nil
}

func (t *Tx) UpdateUser(ctx context.Context, u auth.User) error {
	const updateSQL = `
UPDATE users SET
    full_name = $2, national_id = $3, phone = $4, password_hash = $5, role = $6,
    is_temp = $7, is_active = $8, activated_at = $9, last_activity = $10, updated_at = $11
WHERE id = $1`

	var tagRows int64
	err := t.savepoint(ctx, func(sp pgx.Tx) error {
		tag, err := sp.Exec(ctx, updateSQL,
			u.ID, u.FullName, u.NationalID, u.Phone, u.PasswordHash, u.Role,
			u.IsTemp, u.IsActive, u.ActivatedAt, u.LastActivity, u.UpdatedAt,
		)
		tagRows = tag.RowsAffected()
		return err
	})
	if err != nil {
		return userError(err, "update user")
	}
	if tagRows == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func (t *Tx) TouchUser(ctx context.Context, userID string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE users SET last_activity = GREATEST(last_activity, $2) WHERE id = $1`, userID, at)
	if err != nil {
		return userError(err, "touch user")
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func (t *Tx) ListUsersByRole(ctx context.Context, role auth.Role) ([]auth.User, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY id`, role)
	if err != nil {
		return nil, translate(err, "list users by role")
	}
	defer rows.Close()

	var out []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, translate(err, "scan user")
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list users by role")
	}
	return out, nil
}

// PurgeInactiveUsers relies on ON DELETE CASCADE for records and notifications.
func (t *Tx) PurgeInactiveUsers(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := t.tx.Query(ctx, `
DELETE FROM users u
WHERE u.role = 'user'
  AND u.last_activity < $1
  AND NOT EXISTS (
      SELECT 1 FROM transactions tr
      WHERE tr.status IN ('pending', 'paid')
        AND (tr.buyer_id = u.id OR tr.seller_id = u.id)
  )
RETURNING u.id`, cutoff)
	if err != nil {
		return nil, translate(err, "purge inactive users")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, translate(err, "purge inactive users")
	}
	sort.Strings(ids)
	return ids, nil
}
