// Package infra boots the Postgres instance used by integration tests.
package infra

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/MariamAlaa-8/realstate-backend/db"
)

// DSNEnv names a database to reuse instead of starting a container.
const DSNEnv = "TEST_DATABASE_URL"

// Harness owns the lifecycle of the Postgres test container and pgx pool.
type Harness struct {
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
	dsn       string
}

// DockerAvailable reports whether a container runtime answers.
func DockerAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

// NewHarness connects to TEST_DATABASE_URL when set, otherwise boots a
// Postgres 16 container. The schema is applied either way.
func NewHarness(ctx context.Context) (*Harness, error) {
	h := &Harness{dsn: os.Getenv(DSNEnv)}

	if h.dsn == "" {
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("registry"),
			postgres.WithUsername("registry"),
			postgres.WithPassword("registry"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			return nil, fmt.Errorf("start postgres container: %w", err)
		}
		h.container = pgContainer

		dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			h.Close(ctx)
			return nil, fmt.Errorf("resolve connection string: %w", err)
		}
		h.dsn = dsn
	}

	pool, err := db.NewPool(ctx, h.dsn, db.PoolOptions{
		MaxConns:        32,
		MaxConnIdleTime: 30 * time.Second,
		MaxConnLifetime: 5 * time.Minute,
	})
	if err != nil {
		h.Close(ctx)
		return nil, err
	}
	h.pool = pool

	if err := db.Migrate(ctx, pool); err != nil {
		h.Close(ctx)
		return nil, err
	}
	return h, nil
}

// Pool exposes the configured pgx pool.
func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// DSN returns the connection string for direct connections.
func (h *Harness) DSN() string {
	return h.dsn
}

// Close tears down resources.
func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
	}
	if h.container != nil {
		_ = h.container.Terminate(ctx)
	}
}

// Reset truncates every mutable table.
func (h *Harness) Reset(ctx context.Context) error {
	tables := []string{
		"idempotency",
		"notifications",
		"outbox",
		"transactions",
		"contracts",
		"civil_registry",
		"users",
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reset begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, tbl := range tables {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+tbl+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", tbl, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reset commit: %w", err)
	}
	return nil
}
