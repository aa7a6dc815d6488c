package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/xiaot623/gogo/assistant/internal/domain"
)

// SQLiteStore implements CheckpointStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			session_id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			state TEXT NOT NULL,
			pending_interrupt_id TEXT,
			version INTEGER NOT NULL DEFAULT 1,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_pending ON checkpoints(pending_interrupt_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Older databases were created before the mode column existed.
	return s.ensureColumn("checkpoints", "mode", "ALTER TABLE checkpoints ADD COLUMN mode TEXT NOT NULL DEFAULT 'tool'")
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save writes the checkpoint, replacing any previous one for the session.
func (s *SQLiteStore) Save(ctx context.Context, cp *domain.Checkpoint) error {
	state, err := encodeState(cp)
	if err != nil {
		return err
	}
	now := time.Now()
	var pending sql.NullString
	if id := pendingID(cp); id != "" {
		pending = sql.NullString{String: id, Valid: true}
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO checkpoints (session_id, mode, state, pending_interrupt_id, version, updated_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			mode = excluded.mode,
			state = excluded.state,
			pending_interrupt_id = excluded.pending_interrupt_id,
			version = checkpoints.version + 1,
			updated_at = excluded.updated_at
		RETURNING version`,
		cp.SessionID, string(cp.Mode), string(state), pending, now)
	if err := row.Scan(&cp.Version); err != nil {
		return errors.Wrap(err, "failed to save checkpoint")
	}
	cp.PendingInterruptID = pending.String
	cp.UpdatedAt = now
	return nil
}

// Load returns the latest checkpoint of a session.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	var mode, state string
	var pending sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, mode, state, pending_interrupt_id, version, updated_at
		FROM checkpoints WHERE session_id = ?`, sessionID,
	).Scan(&cp.SessionID, &mode, &state, &pending, &cp.Version, &cp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load checkpoint")
	}
	cp.Mode = domain.AgentMode(mode)
	cp.PendingInterruptID = pending.String
	if err := decodeState([]byte(state), &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// ClaimInterrupt clears the pending interrupt if it still matches interruptID.
func (s *SQLiteStore) ClaimInterrupt(ctx context.Context, sessionID, interruptID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE checkpoints SET pending_interrupt_id = NULL
		WHERE session_id = ? AND pending_interrupt_id = ?`, sessionID, interruptID)
	if err != nil {
		return false, errors.Wrap(err, "failed to claim interrupt")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to claim interrupt")
	}
	return n == 1, nil
}

// Delete removes a session's checkpoint.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE session_id = ?`, sessionID); err != nil {
		return errors.Wrap(err, "failed to delete checkpoint")
	}
	return nil
}
