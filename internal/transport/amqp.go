package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/appdevgbb/event-driven-architecture/internal/message"
)

// Header names used to carry envelope metadata on AMQP messages.
const (
	headerMessageType    = "MessageType"
	headerSessionID      = "SessionId"
	headerReplySessionID = "ReplySessionId"
)

const publishTimeout = 3 * time.Second

// AMQP implements Sender, Publisher and Consumer on top of a RabbitMQ
// connection. One publishing channel is shared behind a mutex; each
// Consume call opens its own channel.
type AMQP struct {
	conn *amqp.Connection

	mu sync.Mutex
	ch *amqp.Channel
}

// Dial connects to the broker at url.
func Dial(url string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	return &AMQP{conn: conn, ch: ch}, nil
}

// Close tears down the publishing channel and the connection.
func (t *AMQP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.ch.Close()
	return t.conn.Close()
}

// DeclareTopology idempotently creates the exchange, queues and bindings
// the pipeline relies on. Every process declares on startup so ordering of
// deployments does not matter.
func (t *AMQP) DeclareTopology() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ch.ExchangeDeclare(ExchangeOrders, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeOrders, err)
	}

	// Nacked messages are routed here instead of being discarded, so
	// failed deliveries stay inspectable and replayable.
	if err := t.ch.ExchangeDeclare(ExchangeDeadLetter, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeDeadLetter, err)
	}
	if _, err := t.ch.QueueDeclare(QueueDeadLetter, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueDeadLetter, err)
	}
	if err := t.ch.QueueBind(QueueDeadLetter, "", ExchangeDeadLetter, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", QueueDeadLetter, err)
	}

	// Single-active-consumer keeps session ordering intact across
	// orchestrator replicas: only one consumer drains the queue at a time.
	_, err := t.ch.QueueDeclare(QueueOrderOrchestration, true, false, false, false, amqp.Table{
		"x-single-active-consumer": true,
		"x-dead-letter-exchange":   ExchangeDeadLetter,
	})
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueOrderOrchestration, err)
	}

	for _, q := range []string{QueueInventoryCommands, QueueAccountCommands, QueueReplicator} {
		_, err := t.ch.QueueDeclare(q, true, false, false, false, amqp.Table{
			"x-dead-letter-exchange": ExchangeDeadLetter,
		})
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	// Server-side filter: only order-created events reach the orchestrator,
	// while the replicator sees everything published to the topic.
	if err := t.ch.QueueBind(QueueOrderOrchestration, message.TypeOrderCreated, ExchangeOrders, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", QueueOrderOrchestration, err)
	}
	if err := t.ch.QueueBind(QueueReplicator, "#", ExchangeOrders, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", QueueReplicator, err)
	}

	return nil
}

// Send publishes directly to a named queue via the default exchange.
func (t *AMQP) Send(ctx context.Context, queue string, env Envelope) error {
	return t.publish(ctx, "", queue, env)
}

// Publish sends to the orders topic; the message type is the routing key,
// which is what the subscription filters match on.
func (t *AMQP) Publish(ctx context.Context, env Envelope) error {
	return t.publish(ctx, ExchangeOrders, env.Type, env)
}

func (t *AMQP) publish(ctx context.Context, exchange, routingKey string, env Envelope) error {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.ch.PublishWithContext(
		pubCtx,
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    env.MessageID,
			ReplyTo:      env.ReplyTo,
			Headers: amqp.Table{
				headerMessageType:    env.Type,
				headerSessionID:      env.SessionID,
				headerReplySessionID: env.ReplySessionID,
			},
			Body: env.Body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", env.Type, err)
	}
	return nil
}

// Consume opens a manual-ack delivery stream from queue.
func (t *AMQP) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	ch, err := t.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				d := toDelivery(msg)
				select {
				case out <- d:
				case <-ctx.Done():
					_ = msg.Nack(false, true)
					return
				}
			}
		}
	}()

	return out, nil
}

func toDelivery(msg amqp.Delivery) Delivery {
	return Delivery{
		Envelope: Envelope{
			Type:           stringHeader(msg.Headers, headerMessageType),
			MessageID:      msg.MessageId,
			SessionID:      stringHeader(msg.Headers, headerSessionID),
			ReplyTo:        msg.ReplyTo,
			ReplySessionID: stringHeader(msg.Headers, headerReplySessionID),
			Body:           msg.Body,
		},
		Ack:  func() error { return msg.Ack(false) },
		Nack: func() error { return msg.Nack(false, false) },
	}
}

func stringHeader(headers amqp.Table, key string) string {
	if headers == nil {
		return ""
	}
	v, _ := headers[key].(string)
	return v
}
