// Package registry answers whether a national ID exists in the civil registry.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/MariamAlaa-8/realstate-backend/errs"
)

// Verifier checks national IDs against the civil registry.
type Verifier interface {
	Exists(ctx context.Context, nationalID string) (bool, error)
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGVerifier reads the civil_registry table.
type PGVerifier struct {
	db Querier
}

func NewPGVerifier(db Querier) *PGVerifier {
	return &PGVerifier{db: db}
}

func (v *PGVerifier) Exists(ctx context.Context, nationalID string) (bool, error) {
	nationalID = strings.TrimSpace(nationalID)
	if nationalID == "" {
		return false, nil
	}
	var exists bool
	err := v.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM civil_registry WHERE national_id = $1)`, nationalID).Scan(&exists)
	if err != nil {
		return false, errs.Wrap(err, errs.CodeStoreUnavailable, "registry: lookup national id")
	}
	return exists, nil
}

// Cache is the subset of the go-redis client used by CachedVerifier.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// CachedVerifier memoises answers of another verifier in Redis. Cache errors
// fall through to the underlying verifier.
type CachedVerifier struct {
	next   Verifier
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedVerifier(next Verifier, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedVerifier{next: next, cache: cache, ttl: ttl, logger: logger}
}

const (
	cachePrefix = "civil_registry:"
	cacheHit    = "1"
	cacheMiss   = "0"
)

func (v *CachedVerifier) Exists(ctx context.Context, nationalID string) (bool, error) {
	key := cachePrefix + strings.TrimSpace(nationalID)

	val, err := v.cache.Get(ctx, key).Result()
	switch {
	case err == nil:
		return val == cacheHit, nil
	case !errors.Is(err, redis.Nil):
		v.logger.WarnContext(ctx, "registry: cache read failed", "error", err)
	}

	exists, err := v.next.Exists(ctx, nationalID)
	if err != nil {
		return false, err
	}

	stored := cacheMiss
	if exists {
		stored = cacheHit
	}
	if err := v.cache.Set(ctx, key, stored, v.ttl).Err(); err != nil {
		v.logger.WarnContext(ctx, "registry: cache write failed", "error", err)
	}
	return exists, nil
}

// Static is an in-memory registry used by tests and local runs.
type Static map[string]struct{}

func NewStatic(ids ...string) Static {
	s := make(Static, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Static) Exists(_ context.Context, nationalID string) (bool, error) {
	_, ok := s[strings.TrimSpace(nationalID)]
	return ok, nil
}

// Require fails with a validation error when nationalID is not registered.
func Require(ctx context.Context, v Verifier, nationalID string) error {
	ok, err := v.Exists(ctx, nationalID)
	if err != nil {
		return fmt.Errorf("registry: verify national id: %w", err)
	}
	if !ok {
		return errs.New(errs.CodeValidation, "registry: national id not found in civil registry")
	}
	return nil
}
