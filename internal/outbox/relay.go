package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appdevgbb/event-driven-architecture/internal/message"
	"github.com/appdevgbb/event-driven-architecture/internal/transport"
)

const relayBatchSize = 100

// Relay completes the outbox transaction: it polls unprocessed rows,
// publishes each as an OrderCreatedEvent keyed by the order id, and marks
// the row processed. A crash between publish and commit republishes the
// order; the orchestrator's duplicate guard absorbs it because the message
// id is the order id.
type Relay struct {
	db        DB
	publisher transport.Publisher
	logger    *zap.Logger
	interval  time.Duration
}

func NewRelay(db DB, publisher transport.Publisher, interval time.Duration, logger *zap.Logger) *Relay {
	return &Relay{db: db, publisher: publisher, interval: interval, logger: logger}
}

// Run polls until the context is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.RelayBatch(ctx); err != nil {
				r.logger.Error("outbox relay batch failed", zap.Error(err))
			} else if n > 0 {
				r.logger.Info("outbox batch relayed", zap.Int("orders", n))
			}
		}
	}
}

// RelayBatch publishes up to one batch of staged orders and reports how
// many were relayed. Rows are locked with SKIP LOCKED so concurrent relay
// instances never double-publish within a healthy run.
func (r *Relay) RelayBatch(ctx context.Context) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT order_id::text, account_number, quantity
		FROM order_outbox
		WHERE processed = false
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, relayBatchSize)
	if err != nil {
		return 0, fmt.Errorf("select staged orders: %w", err)
	}

	var staged []message.OrderCreatedEvent
	for rows.Next() {
		var (
			rawID string
			ev    message.OrderCreatedEvent
		)
		if err := rows.Scan(&rawID, &ev.AccountNumber, &ev.Quantity); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan staged order: %w", err)
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("parse order id %q: %w", rawID, err)
		}
		ev.OrderID = id
		staged = append(staged, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate staged orders: %w", err)
	}

	for _, ev := range staged {
		if err := r.publish(ctx, ev); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE order_outbox SET processed = true WHERE order_id = $1
		`, ev.OrderID); err != nil {
			return 0, fmt.Errorf("mark order %s processed: %w", ev.OrderID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(staged), nil
}

func (r *Relay) publish(ctx context.Context, ev message.OrderCreatedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal OrderCreatedEvent: %w", err)
	}
	return r.publisher.Publish(ctx, transport.Envelope{
		Type:      message.TypeOrderCreated,
		MessageID: ev.OrderID.String(),
		SessionID: ev.OrderID.String(),
		Body:      body,
	})
}
