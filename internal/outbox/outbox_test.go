package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/appdevgbb/event-driven-architecture/internal/message"
	"github.com/appdevgbb/event-driven-architecture/internal/transport"
)

type fakePublisher struct {
	published []transport.Envelope
	fail      bool
}

func (f *fakePublisher) Publish(_ context.Context, env transport.Envelope) error {
	if f.fail {
		return assert.AnError
	}
	f.published = append(f.published, env)
	return nil
}

func TestStoreStage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ev := message.OrderCreatedEvent{OrderID: uuid.New(), AccountNumber: 3, Quantity: 7}
	mock.ExpectExec("INSERT INTO order_outbox").
		WithArgs(ev.OrderID, 3, 7).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewStore(mock).Stage(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayBatchPublishesAndMarksProcessed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	first := uuid.New()
	second := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT order_id::text, account_number, quantity").
		WithArgs(relayBatchSize).
		WillReturnRows(pgxmock.NewRows([]string{"order_id", "account_number", "quantity"}).
			AddRow(first.String(), 1, 10).
			AddRow(second.String(), 4, 25))
	mock.ExpectExec("UPDATE order_outbox SET processed = true").
		WithArgs(first).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE order_outbox SET processed = true").
		WithArgs(second).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	pub := &fakePublisher{}
	relay := NewRelay(mock, pub, 0, zap.NewNop())

	n, err := relay.RelayBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, pub.published, 2)
	env := pub.published[0]
	assert.Equal(t, message.TypeOrderCreated, env.Type)
	// Message id doubles as the order id so republished rows dedup
	// downstream.
	assert.Equal(t, first.String(), env.MessageID)
	assert.Equal(t, first.String(), env.SessionID)

	var got message.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(env.Body, &got))
	assert.Equal(t, first, got.OrderID)
	assert.Equal(t, 1, got.AccountNumber)
	assert.Equal(t, 10, got.Quantity)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayBatchEmptyOutbox(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT order_id::text, account_number, quantity").
		WithArgs(relayBatchSize).
		WillReturnRows(pgxmock.NewRows([]string{"order_id", "account_number", "quantity"}))
	mock.ExpectCommit()

	pub := &fakePublisher{}
	relay := NewRelay(mock, pub, 0, zap.NewNop())

	n, err := relay.RelayBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, pub.published)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayBatchRollsBackOnPublishFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT order_id::text, account_number, quantity").
		WithArgs(relayBatchSize).
		WillReturnRows(pgxmock.NewRows([]string{"order_id", "account_number", "quantity"}).
			AddRow(uuid.NewString(), 2, 5))
	mock.ExpectRollback()

	relay := NewRelay(mock, &fakePublisher{fail: true}, 0, zap.NewNop())

	_, err = relay.RelayBatch(context.Background())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
