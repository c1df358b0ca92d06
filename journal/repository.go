package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// InsertIdempotencyKey reserves key for scope inside the active transaction.
func (r *Repository) InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key, scope string) error {
	if key == "" {
		return fmt.Errorf("journal: empty idempotency key")
	}

	_, err := tx.Exec(ctx, `INSERT INTO idempotency_keys (key, scope) VALUES ($1, $2)`, key, scope)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("journal: insert idempotency key: %w", err)
	}
	return nil
}

// LookupIdempotencyKey loads the reservation for key.
func (r *Repository) LookupIdempotencyKey(ctx context.Context, q Querier, key string) (IdempotencyRecord, error) {
	var (
		rec        IdempotencyRecord
		resourceID *string
	)
	err := q.QueryRow(ctx,
		`SELECT key, scope, resource_id, created_at, bound_at FROM idempotency_keys WHERE key=$1`, key,
	).Scan(&rec.Key, &rec.Scope, &resourceID, &rec.CreatedAt, &rec.BoundAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, ErrKeyNotFound
	}
	if err != nil {
		return IdempotencyRecord{}, fmt.Errorf("journal: select idempotency key: %w", err)
	}
	if resourceID != nil {
		rec.ResourceID = *resourceID
	}
	return rec, nil
}

// BindIdempotencyKey records the resource created by the submission under key.
func (r *Repository) BindIdempotencyKey(ctx context.Context, q Querier, key, resourceID string) error {
	tag, err := q.Exec(ctx,
		`UPDATE idempotency_keys SET resource_id=$2, bound_at=COALESCE(bound_at, NOW()) WHERE key=$1`,
		key, resourceID,
	)
	if err != nil {
		return fmt.Errorf("journal: bind idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// AppendEvent inserts one timeline row.
func (r *Repository) AppendEvent(ctx context.Context, q Querier, ev Event) error {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("journal: marshal timeline payload: %w", err)
	}

	var actorID, status any
	if ev.ActorID != "" {
		actorID = ev.ActorID
	}
	if ev.Status != "" {
		status = ev.Status
	}

	const insertSQL = `
INSERT INTO timeline_events (aggregate_type, aggregate_id, type, actor_id, status, payload)
VALUES ($1, $2, $3, $4, $5, $6);
`
	if _, err := q.Exec(ctx, insertSQL, ev.AggregateType, ev.AggregateID, ev.Type, actorID, status, payloadBytes); err != nil {
		return fmt.Errorf("journal: insert timeline event: %w", err)
	}
	return nil
}

// ListEvents returns the timeline of one aggregate, oldest first.
func (r *Repository) ListEvents(ctx context.Context, q Querier, aggregateType, aggregateID string) ([]Event, error) {
	rows, err := q.Query(ctx, `
SELECT id, aggregate_type, aggregate_id, type, COALESCE(actor_id, ''), COALESCE(status, ''), payload, occurred_at
FROM timeline_events
WHERE aggregate_type=$1 AND aggregate_id=$2
ORDER BY id`, aggregateType, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("journal: list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev  Event
			raw []byte
		)
		if err := rows.Scan(&ev.ID, &ev.AggregateType, &ev.AggregateID, &ev.Type, &ev.ActorID, &ev.Status, &raw, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("journal: scan event: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ev.Payload); err != nil {
				return nil, fmt.Errorf("journal: decode payload: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate events: %w", err)
	}
	return events, nil
}
