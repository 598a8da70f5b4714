package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS session_snapshots (
    session_id TEXT PRIMARY KEY,
    data       JSONB NOT NULL,
    saved_at   TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps snapshots as JSONB rows
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and makes sure the snapshot table exists
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureTable(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create session_snapshots: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	cmdTag, err := s.pool.Exec(ctx, `
        INSERT INTO session_snapshots (session_id, data, saved_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (session_id) DO UPDATE
        SET data = EXCLUDED.data, saved_at = EXCLUDED.saved_at
    `, snap.SessionID, data, snap.SavedAt)
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", snap.SessionID, err)
	}

	log.Debug().
		Str("session_id", snap.SessionID).
		Int64("rows", cmdTag.RowsAffected()).
		Msg("saved snapshot")
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM session_snapshots WHERE session_id = $1`, sessionID).Scan(&data)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return Snapshot{}, ErrNotFound
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return Snapshot{}, err
		default:
			return Snapshot{}, fmt.Errorf("load snapshot %s: %w", sessionID, err)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot %s: %w", sessionID, err)
	}
	return snap, nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM session_snapshots WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", sessionID, err)
	}
	return nil
}

// Close releases the pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}
