// Package postgres implements store.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MariamAlaa-8/realstate-backend/auth"
	"github.com/MariamAlaa-8/realstate-backend/errs"
	"github.com/MariamAlaa-8/realstate-backend/store"
)

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store runs units of work in pgx transactions.
type Store struct {
	pool TxBeginner
}

func New(pool TxBeginner) *Store {
	return &Store{pool: pool}
}

var _ store.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return translate(err, "begin")
	}
	defer tx.Rollback(ctx)

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(err, "commit")
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user auth.User) (auth.User, error) {
	var out auth.User
	err := s.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.CreateUser(ctx, user)
		return err
	})
	return out, err
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (auth.User, error) {
	var out auth.User
	err := s.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.GetUserByID(ctx, userID)
		return err
	})
	return out, err
}

func (s *Store) GetUserByPhone(ctx context.Context, phone string) (auth.User, error) {
	var out auth.User
	err := s.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.GetUserByPhone(ctx, phone)
		return err
	})
	return out, err
}

func (s *Store) UpdateUser(ctx context.Context, user auth.User) error {
	return s.InTx(ctx, func(tx store.Tx) error { return tx.UpdateUser(ctx, user) })
}

func (s *Store) ListUsersByRole(ctx context.Context, role auth.Role) ([]auth.User, error) {
	var out []auth.User
	err := s.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListUsersByRole(ctx, role)
		return err
	})
	return out, err
}

func (s *Store) PurgeInactiveUsers(ctx context.Context, cutoff time.Time) ([]string, error) {
	var out []string
	err := s.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.PurgeInactiveUsers(ctx, cutoff)
		return err
	})
	return out, err
}

// Tx wraps one pgx transaction.
type Tx struct {
	tx pgx.Tx
}

var _ store.Tx = (*Tx)(nil)

// savepoint runs fn in a nested transaction so a failing statement does not
// abort the enclosing one.
func (t *Tx) savepoint(ctx context.Context, fn func(pgx.Tx) error) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return translate(err, "savepoint")
	}
	if err := fn(sp); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	if err := sp.Commit(ctx); err != nil {
		return translate(err, "release savepoint")
	}
	return nil
}

const (
	uniqueViolation      = "23505"
	foreignKeyViolation  = "23503"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
	queryCanceled        = "57014"
	adminShutdown        = "57P01"
)

// translate maps driver errors onto the store sentinels and the error taxonomy.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == uniqueViolation:
			return store.ErrDuplicate
		case pgErr.Code == serializationFailure, pgErr.Code == deadlockDetected,
			pgErr.Code == queryCanceled, pgErr.Code == adminShutdown,
			len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return errs.Wrap(err, errs.CodeStoreUnavailable, "postgres: "+op)
		}
		return fmt.Errorf("postgres: %s: %w", op, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(err, errs.CodeStoreUnavailable, "postgres: "+op)
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}

// nullable turns empty ids into SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
