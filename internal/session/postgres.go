package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgx pool methods the store needs. Satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists session state and the processed-message ledger in
// Postgres. Access is already serialized per session by the demultiplexer,
// so plain upserts are sufficient.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) ([]byte, bool, error) {
	var state []byte
	err := s.db.QueryRow(ctx, `
		SELECT state
		FROM saga_session_state
		WHERE session_id = $1
	`, sessionID).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return state, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, sessionID string, state []byte) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO saga_session_state (session_id, state)
		VALUES ($1, $2)
		ON CONFLICT (session_id)
		DO UPDATE SET state = EXCLUDED.state, updated_at = now()
	`, sessionID, state)
	if err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

// Processed reports whether the (session, message) pair was already
// handled to completion.
func (s *PostgresStore) Processed(ctx context.Context, sessionID, messageID string) (bool, error) {
	var seen bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM saga_processed_messages
			WHERE session_id = $1 AND message_id = $2
		)
	`, sessionID, messageID).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("check processed %s/%s: %w", sessionID, messageID, err)
	}
	return seen, nil
}

// MarkProcessed records the (session, message) pair. Recording it twice is
// harmless; only the mark written after a completed handling matters.
func (s *PostgresStore) MarkProcessed(ctx context.Context, sessionID, messageID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO saga_processed_messages (session_id, message_id)
		VALUES ($1, $2)
		ON CONFLICT (session_id, message_id) DO NOTHING
	`, sessionID, messageID)
	if err != nil {
		return fmt.Errorf("mark processed %s/%s: %w", sessionID, messageID, err)
	}
	return nil
}
