package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/appdevgbb/event-driven-architecture/internal/message"
)

const memoryQueueDepth = 256

// Memory is an in-process broker implementing Sender, Publisher and
// Consumer. It mirrors the AMQP topology: point-to-point queues plus an
// orders topic whose bindings filter on the message type. Used by tests
// and by single-binary demo runs.
type Memory struct {
	mu       sync.Mutex
	queues   map[string]chan Envelope
	bindings map[string][]string // queue -> accepted types, empty slice = all
}

// NewMemory creates a broker with the standard pipeline bindings in place.
func NewMemory() *Memory {
	m := &Memory{
		queues:   make(map[string]chan Envelope),
		bindings: make(map[string][]string),
	}
	m.BindTopic(QueueOrderOrchestration, message.TypeOrderCreated)
	m.BindTopic(QueueReplicator)
	return m
}

// BindTopic subscribes a queue to the orders topic. With no types the queue
// receives every published message.
func (m *Memory) BindTopic(queue string, types ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings[queue] = types
	m.ensureQueue(queue)
}

func (m *Memory) ensureQueue(name string) chan Envelope {
	q, ok := m.queues[name]
	if !ok {
		q = make(chan Envelope, memoryQueueDepth)
		m.queues[name] = q
	}
	return q
}

// Send enqueues directly onto a named queue.
func (m *Memory) Send(ctx context.Context, queue string, env Envelope) error {
	m.mu.Lock()
	q := m.ensureQueue(queue)
	m.mu.Unlock()

	select {
	case q <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("queue %s full", queue)
	}
}

// Publish fans out to every bound queue whose filter matches the type.
func (m *Memory) Publish(ctx context.Context, env Envelope) error {
	m.mu.Lock()
	var targets []chan Envelope
	for queue, types := range m.bindings {
		if len(types) == 0 {
			targets = append(targets, m.ensureQueue(queue))
			continue
		}
		for _, t := range types {
			if t == env.Type {
				targets = append(targets, m.ensureQueue(queue))
				break
			}
		}
	}
	m.mu.Unlock()

	for _, q := range targets {
		select {
		case q <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Consume streams deliveries from a queue until the context is cancelled.
// Nack drops the message; the in-process broker has no redelivery.
func (m *Memory) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	m.mu.Lock()
	q := m.ensureQueue(queue)
	m.mu.Unlock()

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-q:
				d := Delivery{
					Envelope: env,
					Ack:      func() error { return nil },
					Nack:     func() error { return nil },
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
