package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgx used by PGStore; *pgxpool.Pool satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore keeps the session in the client_sessions table, one row per profile.
type PGStore struct {
	db      DB
	profile string
}

func NewPGStore(db DB, profile string) *PGStore {
	if profile == "" {
		profile = "default"
	}
	return &PGStore{db: db, profile: profile}
}

func (p *PGStore) Load(ctx context.Context) (*Session, error) {
	var raw []byte
	err := p.db.QueryRow(ctx,
		`SELECT value FROM client_sessions WHERE profile=$1 AND storage_key=$2`,
		p.profile, StorageKey,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: select: %w", err)
	}
	return decode(raw)
}

func (p *PGStore) Save(ctx context.Context, s *Session) error {
	raw, err := encode(s)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, `
        INSERT INTO client_sessions (profile, storage_key, value, updated_at)
        VALUES ($1, $2, $3::jsonb, NOW())
        ON CONFLICT (profile, storage_key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
    `, p.profile, StorageKey, string(raw))
	if err != nil {
		return fmt.Errorf("session: upsert: %w", err)
	}
	return nil
}

func (p *PGStore) Clear(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM client_sessions WHERE profile=$1 AND storage_key=$2`, p.profile, StorageKey); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}
