package infra

import (
	"context"
	"fmt"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const pgImage = "postgres:16"

// PGContainer is a throwaway Postgres. The zero value stands for a database
// someone else owns, and terminating it does nothing.
type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres16 returns a DSN for the integration database. An explicit
// overrideDSN wins, then RENTFLOW_TEST_PG_DSN; only without either is a
// container started.
func StartPostgres16(ctx context.Context, overrideDSN string) (*PGContainer, string, error) {
	for _, dsn := range []string{overrideDSN, os.Getenv("RENTFLOW_TEST_PG_DSN")} {
		if dsn != "" {
			return &PGContainer{}, dsn, nil
		}
	}

	c, err := postgres.Run(ctx, pgImage,
		postgres.WithDatabase("rentflow"),
		postgres.WithUsername("rentflow"),
		postgres.WithPassword("rentflow"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", fmt.Errorf("run %s: %w", pgImage, err)
	}
	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, "", fmt.Errorf("container dsn: %w", err)
	}
	return &PGContainer{C: c}, dsn, nil
}

func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}
