package saga

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/appdevgbb/event-driven-architecture/internal/message"
	"github.com/appdevgbb/event-driven-architecture/internal/session"
	"github.com/appdevgbb/event-driven-architecture/internal/transport"
)

// Orchestrator handles the orchestration queue for one session at a time
// (the session demultiplexer guarantees sequencing) and owns the saga
// state transitions. Side effects are ordered deliberately: outbound
// sends first, state write second, dedup mark third, ack last. A send
// that was delivered cannot be rolled back, which is why rejection flows
// compensate instead.
type Orchestrator struct {
	commands transport.Sender
	events   transport.Publisher
	store    session.Store
	logger   *zap.Logger
}

func NewOrchestrator(commands transport.Sender, events transport.Publisher, store session.Store, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		commands: commands,
		events:   events,
		store:    store,
		logger:   logger,
	}
}

// Handle processes one envelope from the orchestration queue. It reports
// done=true once the session has reached a terminal phase.
func (o *Orchestrator) Handle(ctx context.Context, env transport.Envelope) (bool, error) {
	if env.MessageID != "" {
		seen, err := o.store.Processed(ctx, env.SessionID, env.MessageID)
		if err != nil {
			return false, err
		}
		if seen {
			o.logger.Debug("duplicate delivery dropped",
				zap.String("sessionId", env.SessionID),
				zap.String("messageId", env.MessageID))
			return false, nil
		}
	}

	done, err := o.handleMessage(ctx, env)
	if err != nil {
		return false, err
	}

	// Marked only now, after every side effect landed: a delivery whose
	// handling failed is not marked and gets reprocessed on redelivery.
	if env.MessageID != "" {
		if err := o.store.MarkProcessed(ctx, env.SessionID, env.MessageID); err != nil {
			return false, err
		}
	}
	return done, nil
}

func (o *Orchestrator) handleMessage(ctx context.Context, env transport.Envelope) (bool, error) {
	switch env.Type {
	case message.TypeOrderCreated:
		return o.handleOrderCreated(ctx, env)
	case message.TypeInventoryAdjustmentReply:
		return o.handleInventoryReply(ctx, env)
	case message.TypeAccountAdjustmentReply:
		return o.handleAccountReply(ctx, env)
	default:
		// Protocol or version mismatch from a peer, not a transient fault.
		o.logger.Warn("unknown message type dropped",
			zap.String("messageType", env.Type),
			zap.String("sessionId", env.SessionID))
		return false, nil
	}
}

func (o *Orchestrator) handleOrderCreated(ctx context.Context, env transport.Envelope) (bool, error) {
	var ev message.OrderCreatedEvent
	if err := json.Unmarshal(env.Body, &ev); err != nil {
		return false, fmt.Errorf("unmarshal OrderCreatedEvent: %w", err)
	}

	inventoryAmount := -ev.Quantity

	quantity, err := decimal.New(int64(ev.Quantity), 0)
	if err != nil {
		return false, fmt.Errorf("order quantity %d: %w", ev.Quantity, err)
	}
	total, err := UnitPrice.Mul(quantity)
	if err != nil {
		return false, fmt.Errorf("order total: %w", err)
	}
	accountAmount := total.Neg()

	// The two reservations are independent; issue them in parallel. Both
	// must be on the wire before the state write so a crash never leaves a
	// persisted saga whose commands were not attempted.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.sendInventoryCommand(gctx, inventoryAmount, env.SessionID)
	})
	g.Go(func() error {
		return o.sendAccountCommand(gctx, ev.AccountNumber, accountAmount, env.SessionID)
	})
	if err := g.Wait(); err != nil {
		return false, err
	}

	st := newState(ev, inventoryAmount, accountAmount)
	if err := o.saveState(ctx, env.SessionID, st); err != nil {
		return false, err
	}

	o.logger.Info("order admitted",
		zap.String("orderId", ev.OrderID.String()),
		zap.Int("accountNumber", ev.AccountNumber),
		zap.Int("quantity", ev.Quantity))
	return false, nil
}

func (o *Orchestrator) handleInventoryReply(ctx context.Context, env transport.Envelope) (bool, error) {
	var reply message.InventoryAdjustmentReply
	if err := json.Unmarshal(env.Body, &reply); err != nil {
		return false, fmt.Errorf("unmarshal InventoryAdjustmentReply: %w", err)
	}

	st, ok, err := o.loadState(ctx, env.SessionID)
	if err != nil {
		return false, err
	}
	if !ok {
		o.logger.Warn("inventory reply for unknown session dropped", zap.String("sessionId", env.SessionID))
		return false, nil
	}

	if st.Phase.Terminal() {
		return true, o.lateInventoryReply(ctx, env.SessionID, st, reply)
	}

	// Persist each reply before deciding so a crash between the two
	// replies does not lose the first result.
	st.InventoryStatus = reply.Status
	if err := o.saveState(ctx, env.SessionID, st); err != nil {
		return false, err
	}

	return o.conclude(ctx, env.SessionID, st)
}

func (o *Orchestrator) handleAccountReply(ctx context.Context, env transport.Envelope) (bool, error) {
	var reply message.AccountAdjustmentReply
	if err := json.Unmarshal(env.Body, &reply); err != nil {
		return false, fmt.Errorf("unmarshal AccountAdjustmentReply: %w", err)
	}

	st, ok, err := o.loadState(ctx, env.SessionID)
	if err != nil {
		return false, err
	}
	if !ok {
		o.logger.Warn("account reply for unknown session dropped", zap.String("sessionId", env.SessionID))
		return false, nil
	}

	if st.Phase.Terminal() {
		o.logger.Info("account reply after terminal phase dropped",
			zap.String("orderId", st.Order.OrderID.String()),
			zap.String("phase", string(st.Phase)))
		return true, nil
	}

	st.AccountStatus = reply.Status
	if err := o.saveState(ctx, env.SessionID, st); err != nil {
		return false, err
	}

	return o.conclude(ctx, env.SessionID, st)
}

// lateInventoryReply handles an inventory reply arriving after the saga
// already ended. The invalid-account path rejects without waiting for
// inventory, so a successful reservation landing afterwards must still be
// released; anything else is a duplicate and is dropped.
func (o *Orchestrator) lateInventoryReply(ctx context.Context, sessionID string, st State, reply message.InventoryAdjustmentReply) error {
	needsRelease := st.Phase == PhaseRejected &&
		st.RejectedReason == message.RejectInvalidAccountNumber &&
		st.InventoryStatus == "" &&
		reply.Status == message.InventorySuccess

	if !needsRelease {
		o.logger.Info("inventory reply after terminal phase dropped",
			zap.String("orderId", st.Order.OrderID.String()),
			zap.String("phase", string(st.Phase)))
		return nil
	}

	o.logger.Info("releasing inventory reserved for rejected order",
		zap.String("orderId", st.Order.OrderID.String()),
		zap.Int("amount", -st.InventoryAdjustmentAmount))
	if err := o.sendInventoryCommand(ctx, -st.InventoryAdjustmentAmount, sessionID); err != nil {
		return err
	}

	st.InventoryStatus = reply.Status
	return o.saveState(ctx, sessionID, st)
}

// conclude re-evaluates the decision table and, once it yields a terminal
// phase, sends the compensations and publishes the outcome event.
func (o *Orchestrator) conclude(ctx context.Context, sessionID string, st State) (bool, error) {
	dec := Decide(st)
	if dec.Phase == PhaseProcessing {
		return false, nil
	}

	st.Phase = dec.Phase
	st.RejectedReason = dec.Reason

	if dec.CompensateAccount {
		amount := st.AccountAdjustmentAmount.Neg()
		o.logger.Info("sending compensating account transaction",
			zap.String("orderId", st.Order.OrderID.String()),
			zap.Int("accountNumber", st.Order.AccountNumber),
			zap.String("amount", amount.String()))
		if err := o.sendAccountCommand(ctx, st.Order.AccountNumber, amount, sessionID); err != nil {
			// The account stays debited until the triggering reply is
			// redelivered; surfaced for monitoring, never swallowed.
			return false, fmt.Errorf("compensate account: %w", err)
		}
	}
	if dec.CompensateInventory {
		o.logger.Info("sending compensating inventory transaction",
			zap.String("orderId", st.Order.OrderID.String()),
			zap.Int("amount", -st.InventoryAdjustmentAmount))
		if err := o.sendInventoryCommand(ctx, -st.InventoryAdjustmentAmount, sessionID); err != nil {
			return false, fmt.Errorf("compensate inventory: %w", err)
		}
	}

	if err := o.publishOutcome(ctx, st); err != nil {
		return false, err
	}

	if err := o.saveState(ctx, sessionID, st); err != nil {
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) publishOutcome(ctx context.Context, st State) error {
	if st.Phase == PhaseCompleted {
		o.logger.Info("order completed",
			zap.String("orderId", st.Order.OrderID.String()),
			zap.Int("accountNumber", st.Order.AccountNumber),
			zap.Int("quantity", st.Order.Quantity))
		return o.publishEvent(ctx, message.TypeOrderCompleted, st.Order.OrderID, message.CompletedFrom(st.Order))
	}

	o.logger.Info("order rejected",
		zap.String("orderId", st.Order.OrderID.String()),
		zap.String("reason", string(st.RejectedReason)),
		zap.Int("accountNumber", st.Order.AccountNumber),
		zap.Int("quantity", st.Order.Quantity))
	return o.publishEvent(ctx, message.TypeOrderRejected, st.Order.OrderID, message.RejectedFrom(st.Order, st.RejectedReason))
}

func (o *Orchestrator) publishEvent(ctx context.Context, msgType string, orderID uuid.UUID, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}
	return o.events.Publish(ctx, transport.Envelope{
		Type:      msgType,
		MessageID: uuid.NewString(),
		SessionID: orderID.String(),
		Body:      body,
	})
}

func (o *Orchestrator) sendInventoryCommand(ctx context.Context, amount int, sessionID string) error {
	body, err := json.Marshal(message.InventoryAdjustmentCommand{AdjustmentAmount: amount})
	if err != nil {
		return fmt.Errorf("marshal InventoryAdjustmentCommand: %w", err)
	}
	return o.commands.Send(ctx, transport.QueueInventoryCommands, transport.Envelope{
		Type:           message.TypeInventoryAdjustmentCmd,
		MessageID:      uuid.NewString(),
		ReplyTo:        transport.QueueOrderOrchestration,
		ReplySessionID: sessionID,
		Body:           body,
	})
}

func (o *Orchestrator) sendAccountCommand(ctx context.Context, accountNumber int, amount decimal.Decimal, sessionID string) error {
	body, err := json.Marshal(message.AccountAdjustmentCommand{
		AccountNumber:    accountNumber,
		AdjustmentAmount: amount,
	})
	if err != nil {
		return fmt.Errorf("marshal AccountAdjustmentCommand: %w", err)
	}
	return o.commands.Send(ctx, transport.QueueAccountCommands, transport.Envelope{
		Type:           message.TypeAccountAdjustmentCmd,
		MessageID:      uuid.NewString(),
		ReplyTo:        transport.QueueOrderOrchestration,
		ReplySessionID: sessionID,
		Body:           body,
	})
}

func (o *Orchestrator) loadState(ctx context.Context, sessionID string) (State, bool, error) {
	raw, ok, err := o.store.Load(ctx, sessionID)
	if err != nil || !ok {
		return State{}, ok, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, false, fmt.Errorf("unmarshal session state: %w", err)
	}
	return st, true, nil
}

func (o *Orchestrator) saveState(ctx context.Context, sessionID string, st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	return o.store.Save(ctx, sessionID, raw)
}
