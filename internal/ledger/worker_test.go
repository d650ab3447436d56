package ledger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/appdevgbb/event-driven-architecture/internal/message"
	"github.com/appdevgbb/event-driven-architecture/internal/transport"
)

type sentReply struct {
	queue string
	env   transport.Envelope
}

type replyRecorder struct {
	replies []sentReply
}

func (r *replyRecorder) Send(_ context.Context, queue string, env transport.Envelope) error {
	r.replies = append(r.replies, sentReply{queue: queue, env: env})
	return nil
}

func accountCommand(t *testing.T, accountNumber int, amountCents int64) transport.Envelope {
	t.Helper()
	body, err := json.Marshal(message.AccountAdjustmentCommand{
		AccountNumber:    accountNumber,
		AdjustmentAmount: cents(t, amountCents),
	})
	require.NoError(t, err)
	return transport.Envelope{
		Type:           message.TypeAccountAdjustmentCmd,
		MessageID:      "m1",
		ReplyTo:        transport.QueueOrderOrchestration,
		ReplySessionID: "order-1",
		Body:           body,
	}
}

func inventoryCommand(t *testing.T, amount int) transport.Envelope {
	t.Helper()
	body, err := json.Marshal(message.InventoryAdjustmentCommand{AdjustmentAmount: amount})
	require.NoError(t, err)
	return transport.Envelope{
		Type:           message.TypeInventoryAdjustmentCmd,
		MessageID:      "m1",
		ReplyTo:        transport.QueueOrderOrchestration,
		ReplySessionID: "order-1",
		Body:           body,
	}
}

func TestAccountWorkerDebitsAndReplies(t *testing.T) {
	book := NewAccounts(1, cents(t, 500000))
	sender := &replyRecorder{}
	w := NewAccountWorker(book, sender, zap.NewNop())

	require.NoError(t, w.handle(context.Background(), accountCommand(t, 1, -50000)))

	require.Len(t, sender.replies, 1)
	reply := sender.replies[0]
	assert.Equal(t, transport.QueueOrderOrchestration, reply.queue)
	assert.Equal(t, message.TypeAccountAdjustmentReply, reply.env.Type)
	assert.Equal(t, "order-1", reply.env.SessionID)

	var payload message.AccountAdjustmentReply
	require.NoError(t, json.Unmarshal(reply.env.Body, &payload))
	assert.Equal(t, message.AccountSuccess, payload.Status)
	assert.Zero(t, cents(t, -50000).Cmp(payload.AdjustmentAmount))

	assertBalance(t, book, 1, cents(t, 450000))
}

func TestAccountWorkerReportsInsufficientCredit(t *testing.T) {
	book := NewAccounts(1, cents(t, 10000))
	sender := &replyRecorder{}
	w := NewAccountWorker(book, sender, zap.NewNop())

	require.NoError(t, w.handle(context.Background(), accountCommand(t, 1, -20000)))

	require.Len(t, sender.replies, 1)
	var payload message.AccountAdjustmentReply
	require.NoError(t, json.Unmarshal(sender.replies[0].env.Body, &payload))
	assert.Equal(t, message.InsufficientCredit, payload.Status)
	assertBalance(t, book, 1, cents(t, 10000))
}

func TestAccountWorkerReportsInvalidAccount(t *testing.T) {
	book := NewAccounts(5, DefaultCreditLimit)
	sender := &replyRecorder{}
	w := NewAccountWorker(book, sender, zap.NewNop())

	require.NoError(t, w.handle(context.Background(), accountCommand(t, 6, -100)))

	require.Len(t, sender.replies, 1)
	var payload message.AccountAdjustmentReply
	require.NoError(t, json.Unmarshal(sender.replies[0].env.Body, &payload))
	assert.Equal(t, message.InvalidAccountNumber, payload.Status)
}

func TestAccountWorkerCompensationIsUnguarded(t *testing.T) {
	book := NewAccounts(1, cents(t, 10000))
	sender := &replyRecorder{}
	w := NewAccountWorker(book, sender, zap.NewNop())

	require.NoError(t, w.handle(context.Background(), accountCommand(t, 1, -10000)))
	require.NoError(t, w.handle(context.Background(), accountCommand(t, 1, 10000)))

	require.Len(t, sender.replies, 2)
	var payload message.AccountAdjustmentReply
	require.NoError(t, json.Unmarshal(sender.replies[1].env.Body, &payload))
	assert.Equal(t, message.AccountSuccess, payload.Status)
	assertBalance(t, book, 1, cents(t, 10000))
}

func TestAccountWorkerIgnoresUnknownType(t *testing.T) {
	sender := &replyRecorder{}
	w := NewAccountWorker(NewAccounts(1, DefaultCreditLimit), sender, zap.NewNop())

	err := w.handle(context.Background(), transport.Envelope{Type: "Mystery", Body: []byte(`{}`)})
	require.NoError(t, err)
	assert.Empty(t, sender.replies)
}

func TestInventoryWorkerReservesAndReplies(t *testing.T) {
	stock := NewStock(100)
	sender := &replyRecorder{}
	w := NewInventoryWorker(stock, sender, zap.NewNop())

	require.NoError(t, w.handle(context.Background(), inventoryCommand(t, -30)))

	require.Len(t, sender.replies, 1)
	reply := sender.replies[0]
	assert.Equal(t, transport.QueueOrderOrchestration, reply.queue)
	assert.Equal(t, message.TypeInventoryAdjustmentReply, reply.env.Type)
	assert.Equal(t, "order-1", reply.env.SessionID)

	var payload message.InventoryAdjustmentReply
	require.NoError(t, json.Unmarshal(reply.env.Body, &payload))
	assert.Equal(t, message.InventorySuccess, payload.Status)
	assert.Equal(t, -30, payload.AdjustmentAmount)
	assert.Equal(t, 70, stock.Count())
}

func TestInventoryWorkerReportsInsufficientInventory(t *testing.T) {
	stock := NewStock(20)
	sender := &replyRecorder{}
	w := NewInventoryWorker(stock, sender, zap.NewNop())

	require.NoError(t, w.handle(context.Background(), inventoryCommand(t, -21)))

	require.Len(t, sender.replies, 1)
	var payload message.InventoryAdjustmentReply
	require.NoError(t, json.Unmarshal(sender.replies[0].env.Body, &payload))
	assert.Equal(t, message.InsufficientInventory, payload.Status)
	assert.Equal(t, 20, stock.Count())
}

func TestAccountReplenishmentNeverExceedsLimit(t *testing.T) {
	book := NewAccounts(2, cents(t, 500000))
	w := NewAccountWorker(book, &replyRecorder{}, zap.NewNop())

	// Account 1 sits just under the limit; account 2 is drained.
	_, err := book.Adjust(1, cents(t, -50), nil)
	require.NoError(t, err)
	_, err = book.Adjust(2, cents(t, -500000), nil)
	require.NoError(t, err)

	w.replenish()

	assertBalance(t, book, 1, cents(t, 500000))
	b2, _ := book.Balance(2)
	assert.True(t, b2.Cmp(cents(t, 0)) > 0, "drained account received no payment")
	assert.True(t, b2.Cmp(cents(t, 500000)) <= 0, "payment exceeded the limit")
}

func TestAccountReplenishmentSkipsFullAccounts(t *testing.T) {
	book := NewAccounts(1, cents(t, 500000))
	w := NewAccountWorker(book, &replyRecorder{}, zap.NewNop())

	w.replenish()
	assertBalance(t, book, 1, cents(t, 500000))
}

func TestInventoryReplenishmentNeverExceedsCapacity(t *testing.T) {
	stock := NewStock(1000)
	w := NewInventoryWorker(stock, &replyRecorder{}, zap.NewNop())

	// Headroom below the minimum shipment size: the shipment is capped.
	stock.Adjust(-5, NonNegativeCount)
	w.replenish()
	assert.Equal(t, 1000, stock.Count())

	stock.Adjust(-500, NonNegativeCount)
	w.replenish()
	count := stock.Count()
	assert.GreaterOrEqual(t, count, 510)
	assert.LessOrEqual(t, count, 600)
}

func TestInventoryReplenishmentSkipsFullWarehouse(t *testing.T) {
	stock := NewStock(1000)
	w := NewInventoryWorker(stock, &replyRecorder{}, zap.NewNop())

	w.replenish()
	assert.Equal(t, 1000, stock.Count())
}
