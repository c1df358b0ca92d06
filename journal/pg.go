package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DB abstracts pgxpool.Pool for testability.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// KeyRepository is the data access PG needs.
type KeyRepository interface {
	InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key, scope string) error
	LookupIdempotencyKey(ctx context.Context, q Querier, key string) (IdempotencyRecord, error)
	BindIdempotencyKey(ctx context.Context, q Querier, key, resourceID string) error
	AppendEvent(ctx context.Context, q Querier, ev Event) error
	ListEvents(ctx context.Context, q Querier, aggregateType, aggregateID string) ([]Event, error)
}

// PG is the Postgres-backed journal.
type PG struct {
	db   DB
	repo KeyRepository
}

func NewPG(db DB, repo KeyRepository) *PG {
	if repo == nil {
		repo = NewRepository()
	}
	return &PG{db: db, repo: repo}
}

// Reserve claims key for scope. existed reports an earlier reservation, whose
// record is returned.
func (p *PG) Reserve(ctx context.Context, key, scope string) (rec IdempotencyRecord, existed bool, err error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return IdempotencyRecord{}, false, fmt.Errorf("journal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := p.repo.InsertIdempotencyKey(ctx, tx, key, scope); err != nil {
		if !errors.Is(err, ErrDuplicateIdempotencyKey) {
			return IdempotencyRecord{}, false, err
		}
		// The failed insert aborted tx; read the earlier reservation outside it.
		_ = tx.Rollback(ctx)
		prior, err := p.repo.LookupIdempotencyKey(ctx, p.db, key)
		if err != nil {
			return IdempotencyRecord{}, false, err
		}
		if prior.Scope != scope {
			return prior, true, ErrKeyScopeMismatch
		}
		return prior, true, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return IdempotencyRecord{}, false, fmt.Errorf("journal: commit: %w", err)
	}
	return IdempotencyRecord{Key: key, Scope: scope}, false, nil
}

func (p *PG) Bind(ctx context.Context, key, resourceID string) error {
	return p.repo.BindIdempotencyKey(ctx, p.db, key, resourceID)
}

func (p *PG) Record(ctx context.Context, ev Event) error {
	return p.repo.AppendEvent(ctx, p.db, ev)
}

func (p *PG) Timeline(ctx context.Context, aggregateType, aggregateID string) ([]Event, error) {
	return p.repo.ListEvents(ctx, p.db, aggregateType, aggregateID)
}
