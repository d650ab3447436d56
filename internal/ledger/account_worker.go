package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"go.uber.org/zap"

	"github.com/appdevgbb/event-driven-architecture/internal/message"
	"github.com/appdevgbb/event-driven-architecture/internal/transport"
)

// AccountWorker consumes the account commands queue, applies adjustments
// to the ledger and routes the reply back into the requester's session.
type AccountWorker struct {
	book   *Accounts
	sender transport.Sender
	logger *zap.Logger
}

func NewAccountWorker(book *Accounts, sender transport.Sender, logger *zap.Logger) *AccountWorker {
	return &AccountWorker{book: book, sender: sender, logger: logger}
}

// Run processes deliveries until the stream closes or the context ends.
func (w *AccountWorker) Run(ctx context.Context, deliveries <-chan transport.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case del, ok := <-deliveries:
			if !ok {
				return
			}
			if err := w.handle(ctx, del.Envelope); err != nil {
				w.logger.Error("account command failed", zap.Error(err))
				_ = del.Nack()
				continue
			}
			_ = del.Ack()
		}
	}
}

func (w *AccountWorker) handle(ctx context.Context, env transport.Envelope) error {
	if env.Type != message.TypeAccountAdjustmentCmd {
		w.logger.Warn("unknown message type dropped", zap.String("messageType", env.Type))
		return nil
	}

	var cmd message.AccountAdjustmentCommand
	if err := json.Unmarshal(env.Body, &cmd); err != nil {
		return fmt.Errorf("unmarshal AccountAdjustmentCommand: %w", err)
	}

	w.logger.Info("account adjustment command received",
		zap.Int("accountNumber", cmd.AccountNumber),
		zap.String("amount", cmd.AdjustmentAmount.String()))

	// Debits are guarded; credits (compensations, payments) always apply.
	var guard AccountGuard
	if cmd.AdjustmentAmount.IsNeg() {
		guard = NonNegativeBalance
	}

	status, err := w.book.Adjust(cmd.AccountNumber, cmd.AdjustmentAmount, guard)
	if err != nil {
		return err
	}

	if balance, ok := w.book.Balance(cmd.AccountNumber); ok {
		w.logger.Info("account balance",
			zap.Int("accountNumber", cmd.AccountNumber),
			zap.String("balance", balance.String()))
	}

	if env.ReplyTo == "" {
		w.logger.Warn("account command without replyTo", zap.Int("accountNumber", cmd.AccountNumber))
		return nil
	}

	body, err := json.Marshal(message.AccountAdjustmentReply{
		AdjustmentAmount: cmd.AdjustmentAmount,
		Status:           status,
	})
	if err != nil {
		return fmt.Errorf("marshal AccountAdjustmentReply: %w", err)
	}

	return w.sender.Send(ctx, env.ReplyTo, transport.Envelope{
		Type:      message.TypeAccountAdjustmentReply,
		MessageID: uuid.NewString(),
		SessionID: env.ReplySessionID,
		Body:      body,
	})
}

// RunReplenishment credits random payments to accounts sitting below
// their limit. The adjustments go through the same lock as the guarded
// debits, so the loop never interleaves unsafely with saga traffic.
func (w *AccountWorker) RunReplenishment(ctx context.Context, every time.Duration) {
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

func (w *AccountWorker) replenish() {
	limit := w.book.Limit()
	for accountNumber, balance := range w.book.Balances() {
		if balance.Cmp(limit) >= 0 {
			continue
		}

		headroom, err := limit.Sub(balance)
		if err != nil {
			w.logger.Error("replenishment headroom", zap.Error(err))
			continue
		}

		// Random payment between 100.00 and 500.00, capped at the limit.
		payment := decimal.MustNew(10000+rand.Int64N(40000), 2)
		if payment.Cmp(headroom) > 0 {
			payment = headroom
		}

		if _, err := w.book.Adjust(accountNumber, payment, nil); err != nil {
			w.logger.Error("replenishment adjust", zap.Error(err))
			continue
		}
		w.logger.Info("payment received on account",
			zap.Int("accountNumber", accountNumber),
			zap.String("amount", payment.String()))
	}
}
