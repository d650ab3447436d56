// Package transport abstracts the message broker used by the saga
// pipeline: point-to-point command queues, an orders topic with
// server-side filtering by message type, and per-message settlement.
// There are two implementations: AMQP (RabbitMQ) for real deployments and
// an in-process broker for tests and single-binary runs.
package transport

import (
	"context"
	"encoding/json"
)

// Messaging topology. The names are stable logical identifiers shared with
// the surrounding pipeline.
const (
	ExchangeOrders          = "orders"
	ExchangeDeadLetter      = "orders.dlx"
	QueueOrderOrchestration = "order-orchestration"
	QueueInventoryCommands  = "inventory-commands"
	QueueAccountCommands    = "account-commands"
	QueueReplicator         = "orders.replicator"
	QueueDeadLetter         = "orders.dead-letter"
)

// Envelope carries a message plus the out-of-band routing metadata.
// Type and the session ids ride transport headers, never the body.
type Envelope struct {
	// Type is the message-type tag, one of the message.Type* constants.
	Type string
	// MessageID identifies this delivery for deduplication.
	MessageID string
	// SessionID groups messages that must be handled sequentially by one
	// consumer. For orchestration-bound traffic it is the order id.
	SessionID string
	// ReplyTo names the queue a reply should be sent to, if any.
	ReplyTo string
	// ReplySessionID is the session the reply must be routed into.
	ReplySessionID string
	Body           json.RawMessage
}

// Delivery is a received envelope plus its settlement handle. Exactly one
// of Ack or Nack must be called; a nacked message is left to the broker's
// redelivery or dead-letter policy.
type Delivery struct {
	Envelope
	Ack  func() error
	Nack func() error
}

// Sender delivers an envelope to a named point-to-point queue.
type Sender interface {
	Send(ctx context.Context, queue string, env Envelope) error
}

// Publisher delivers an envelope to the orders topic, where bindings route
// it by message type.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Consumer opens a delivery stream from a queue. The channel closes when
// the context is cancelled or the underlying connection drops.
type Consumer interface {
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)
}
