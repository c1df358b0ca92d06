package infra

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Harness owns the Postgres database and migrated pool used by integration tests.
type Harness struct {
	container *PGContainer
	pool      *pgxpool.Pool
	teardown  func(context.Context) error
}

// Enabled reports whether integration tests may reach a database: either
// DATABASE_URL points at one or RENTFLOW_TESTCONTAINERS=1 allows starting one.
func Enabled() bool {
	return os.Getenv("DATABASE_URL") != "" || os.Getenv("RENTFLOW_TEST_PG_DSN") != "" || os.Getenv("RENTFLOW_TESTCONTAINERS") == "1"
}

// NewHarness prepares a migrated schema isolated to this run.
func NewHarness(ctx context.Context) (*Harness, error) {
	container, dsn, err := StartPostgres16(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}

	pool, teardown, err := ApplyMigrations(ctx, dsn, true)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &Harness{container: container, pool: pool, teardown: teardown}, nil
}

// Setup returns a ready harness or skips t when no database is configured.
// Everything is torn down with t.
func Setup(t testing.TB) *Harness {
	t.Helper()
	if !Enabled() {
		t.Skip("set DATABASE_URL or RENTFLOW_TESTCONTAINERS=1 to run Postgres integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	h, err := NewHarness(ctx)
	if err != nil {
		t.Fatalf("integration harness: %v", err)
	}
	t.Cleanup(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		h.Close(closeCtx)
	})
	return h
}

// Pool exposes the migrated pgx pool.
func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// Close drops the isolated schema and tears down resources.
func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
	}
	if h.teardown != nil {
		_ = h.teardown(ctx)
	}
	_ = h.container.Terminate(ctx)
}

// Reset truncates the client-state tables.
func (h *Harness) Reset(ctx context.Context) error {
	tables := []string{
		"timeline_events",
		"idempotency_keys",
		"client_sessions",
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reset begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, tbl := range tables {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+tbl+" RESTART IDENTITY CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", tbl, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reset commit: %w", err)
	}
	return nil
}
