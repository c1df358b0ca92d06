package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Query is an oracle over the client journal: any returned row is a violation.
type Query struct {
	Name string
	SQL  string
}

func Journal() []Query {
	return []Query{
		{
			Name: "J1_key_binds_one_payment",
			SQL: `SELECT resource_id, COUNT(*) FROM idempotency_keys
                  WHERE resource_id IS NOT NULL
                  GROUP BY resource_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "J2_refund_recorded_as_refunded",
			SQL: `SELECT id, aggregate_id, status FROM timeline_events
                  WHERE type = 'PAYMENT_REFUNDED' AND status IS DISTINCT FROM 'refunded'`,
		},
		{
			Name: "J3_mutations_carry_actor",
			SQL: `SELECT id, type FROM timeline_events
                  WHERE type <> 'PAYMENT_SETTLED' AND actor_id IS NULL`,
		},
		{
			Name: "J4_single_lease_created",
			SQL: `SELECT payload->>'booking_id', COUNT(*) FROM timeline_events
                  WHERE type = 'LEASE_CREATED'
                  GROUP BY payload->>'booking_id' HAVING COUNT(*) > 1`,
		},
	}
}

// RunJournal executes the journal oracles and returns the first failure (name
// and sample row text) or an empty name if all pass.
func RunJournal(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range Journal() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
