// Package outbox implements the staged-admission path: orders are written
// to a durable table first and published to the orders topic by a relay,
// so admission and publication never have to commit atomically across the
// database and the broker.
package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/appdevgbb/event-driven-architecture/internal/message"
)

// DB is the subset of pgx pool methods the store needs. Satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store stages orders into the outbox table.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Stage records an order for asynchronous publication. Staging the same
// order twice is a no-op.
func (s *Store) Stage(ctx context.Context, ev message.OrderCreatedEvent) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_outbox (order_id, account_number, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id) DO NOTHING
	`, ev.OrderID, ev.AccountNumber, ev.Quantity)
	if err != nil {
		return fmt.Errorf("stage order %s: %w", ev.OrderID, err)
	}
	return nil
}
