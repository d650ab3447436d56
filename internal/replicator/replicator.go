// Package replicator bridges the orders topic into Kafka so downstream
// analytics consumers read the event stream without touching the broker
// the saga runs on.
package replicator

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/appdevgbb/event-driven-architecture/internal/transport"
)

// Writer is the kafka-go writer surface the bridge needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Bridge copies every message from the replicator queue to a Kafka topic,
// keyed by session id and carrying the message type as a header.
type Bridge struct {
	writer Writer
	logger *zap.Logger
}

func NewBridge(writer Writer, logger *zap.Logger) *Bridge {
	return &Bridge{writer: writer, logger: logger}
}

// Run forwards deliveries until the stream closes or the context ends.
func (b *Bridge) Run(ctx context.Context, deliveries <-chan transport.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case del, ok := <-deliveries:
			if !ok {
				return
			}
			if err := b.forward(ctx, del.Envelope); err != nil {
				b.logger.Error("replicate message failed",
					zap.String("messageType", del.Type),
					zap.Error(err))
				_ = del.Nack()
				continue
			}
			_ = del.Ack()
		}
	}
}

func (b *Bridge) forward(ctx context.Context, env transport.Envelope) error {
	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.SessionID),
		Value: env.Body,
		Headers: []kafka.Header{
			{Key: "MessageType", Value: []byte(env.Type)},
		},
	})
}
