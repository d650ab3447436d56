package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appdevgbb/event-driven-architecture/internal/message"
	"github.com/appdevgbb/event-driven-architecture/internal/transport"
)

// InventoryWorker consumes the inventory commands queue, applies
// adjustments to the stock count and routes the reply back into the
// requester's session.
type InventoryWorker struct {
	stock  *Stock
	sender transport.Sender
	logger *zap.Logger
}

func NewInventoryWorker(stock *Stock, sender transport.Sender, logger *zap.Logger) *InventoryWorker {
	return &InventoryWorker{stock: stock, sender: sender, logger: logger}
}

// Run processes deliveries until the stream closes or the context ends.
func (w *InventoryWorker) Run(ctx context.Context, deliveries <-chan transport.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case del, ok := <-deliveries:
			if !ok {
				return
			}
			if err := w.handle(ctx, del.Envelope); err != nil {
				w.logger.Error("inventory command failed", zap.Error(err))
				_ = del.Nack()
				continue
			}
			_ = del.Ack()
		}
	}
}

func (w *InventoryWorker) handle(ctx context.Context, env transport.Envelope) error {
	if env.Type != message.TypeInventoryAdjustmentCmd {
		w.logger.Warn("unknown message type dropped", zap.String("messageType", env.Type))
		return nil
	}

	var cmd message.InventoryAdjustmentCommand
	if err := json.Unmarshal(env.Body, &cmd); err != nil {
		return fmt.Errorf("unmarshal InventoryAdjustmentCommand: %w", err)
	}

	w.logger.Info("inventory adjustment command received", zap.Int("amount", cmd.AdjustmentAmount))

	// Reservations are guarded; restocks and compensations always apply.
	var guard StockGuard
	if cmd.AdjustmentAmount < 0 {
		guard = NonNegativeCount
	}

	status := w.stock.Adjust(cmd.AdjustmentAmount, guard)
	w.logger.Info("inventory level", zap.Int("count", w.stock.Count()))

	if env.ReplyTo == "" {
		w.logger.Warn("inventory command without replyTo")
		return nil
	}

	body, err := json.Marshal(message.InventoryAdjustmentReply{
		AdjustmentAmount: cmd.AdjustmentAmount,
		Status:           status,
	})
	if err != nil {
		return fmt.Errorf("marshal InventoryAdjustmentReply: %w", err)
	}

	return w.sender.Send(ctx, env.ReplyTo, transport.Envelope{
		Type:      message.TypeInventoryAdjustmentReply,
		MessageID: uuid.NewString(),
		SessionID: env.ReplySessionID,
		Body:      body,
	})
}

// RunReplenishment restocks the warehouse with random shipments while it
// sits below capacity, through the same lock as the guarded reservations.
func (w *InventoryWorker) RunReplenishment(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.replenish()
		}
	}
}

func (w *InventoryWorker) replenish() {
	count := w.stock.Count()
	if count >= w.stock.Max() {
		return
	}

	shipment := 10 + rand.IntN(91)
	if headroom := w.stock.Max() - count; shipment > headroom {
		shipment = headroom
	}

	w.stock.Adjust(shipment, nil)
	w.logger.Info("shipment arrived", zap.Int("amount", shipment), zap.Int("count", w.stock.Count()))
}
