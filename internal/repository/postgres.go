package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/xiaot623/gogo/assistant/internal/domain"
)

// PostgresStore implements CheckpointStore on a pgx connection pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and creates the checkpoints table.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping postgres")
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			session_id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			state JSONB NOT NULL,
			pending_interrupt_id TEXT,
			version BIGINT NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, cp *domain.Checkpoint) error {
	state, err := encodeState(cp)
	if err != nil {
		return err
	}
	var pending *string
	if id := pendingID(cp); id != "" {
		pending = &id
	}
	err = s.db.QueryRow(ctx, `
		INSERT INTO checkpoints (session_id, mode, state, pending_interrupt_id, version, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, 1, now())
		ON CONFLICT (session_id) DO UPDATE SET
			mode = EXCLUDED.mode,
			state = EXCLUDED.state,
			pending_interrupt_id = EXCLUDED.pending_interrupt_id,
			version = checkpoints.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING version, updated_at`,
		cp.SessionID, string(cp.Mode), string(state), pending,
	).Scan(&cp.Version, &cp.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to save checkpoint")
	}
	cp.PendingInterruptID = pendingID(cp)
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	var mode string
	var state []byte
	var pending *string
	err := s.db.QueryRow(ctx, `
		SELECT session_id, mode, state, pending_interrupt_id, version, updated_at
		FROM checkpoints WHERE session_id = $1`, sessionID,
	).Scan(&cp.SessionID, &mode, &state, &pending, &cp.Version, &cp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load checkpoint")
	}
	cp.Mode = domain.AgentMode(mode)
	if pending != nil {
		cp.PendingInterruptID = *pending
	}
	if err := decodeState(state, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *PostgresStore) ClaimInterrupt(ctx context.Context, sessionID, interruptID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE checkpoints SET pending_interrupt_id = NULL
		WHERE session_id = $1 AND pending_interrupt_id = $2`, sessionID, interruptID)
	if err != nil {
		return false, errors.Wrap(err, "failed to claim interrupt")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM checkpoints WHERE session_id = $1`, sessionID); err != nil {
		return errors.Wrap(err, "failed to delete checkpoint")
	}
	return nil
}
