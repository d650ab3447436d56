package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/appdevgbb/event-driven-architecture/internal/transport"
)

const sessionBuffer = 64

// HandlerFunc processes one envelope. Returning done=true signals that the
// session reached a terminal state and its worker may be released without
// waiting for the idle timeout. A non-nil error nacks the delivery and
// leaves redelivery to the broker.
type HandlerFunc func(ctx context.Context, env transport.Envelope) (done bool, err error)

// Demux fans a single consumed queue out to per-session workers. Messages
// sharing a session id are handled strictly sequentially by one goroutine;
// distinct sessions run concurrently. Idle workers retire after the idle
// timeout, so the worker population tracks the set of in-flight orders.
type Demux struct {
	handler HandlerFunc
	idle    time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	workers map[string]*worker
	wg      sync.WaitGroup
}

type worker struct {
	id string
	ch chan transport.Delivery
}

func NewDemux(handler HandlerFunc, idle time.Duration, logger *zap.Logger) *Demux {
	return &Demux{
		handler: handler,
		idle:    idle,
		logger:  logger,
		workers: make(map[string]*worker),
	}
}

// Run dispatches deliveries until the context is cancelled or the stream
// closes, then waits for in-flight workers to finish.
func (d *Demux) Run(ctx context.Context, deliveries <-chan transport.Delivery) {
	defer d.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case del, ok := <-deliveries:
			if !ok {
				return
			}
			d.dispatch(ctx, del)
		}
	}
}

func (d *Demux) dispatch(ctx context.Context, del transport.Delivery) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.workers[del.SessionID]
	if !ok {
		w = &worker{id: del.SessionID, ch: make(chan transport.Delivery, sessionBuffer)}
		d.workers[del.SessionID] = w
		d.wg.Add(1)
		d.logger.Debug("session initialized", zap.String("sessionId", del.SessionID))
		go d.runWorker(ctx, w)
	}

	// Sent while holding the lock: a worker can only retire under the same
	// lock and only with an empty buffer, so the send cannot be lost. The
	// ctx case keeps a full buffer from wedging shutdown against a worker
	// that is waiting for the lock to exit; the unacked delivery is left to
	// the broker.
	select {
	case w.ch <- del:
	case <-ctx.Done():
	}
}

func (d *Demux) runWorker(ctx context.Context, w *worker) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			delete(d.workers, w.id)
			d.mu.Unlock()
			return
		case del := <-w.ch:
			done := d.handle(ctx, del)
			if done && d.tryRetire(w) {
				return
			}
		case <-time.After(d.idle):
			if d.tryRetire(w) {
				return
			}
		}
	}
}

func (d *Demux) handle(ctx context.Context, del transport.Delivery) bool {
	done, err := d.handler(ctx, del.Envelope)
	if err != nil {
		d.logger.Error("session handler failed",
			zap.String("sessionId", del.SessionID),
			zap.String("messageType", del.Type),
			zap.Error(err))
		if nackErr := del.Nack(); nackErr != nil {
			d.logger.Error("nack failed", zap.String("sessionId", del.SessionID), zap.Error(nackErr))
		}
		return false
	}
	if ackErr := del.Ack(); ackErr != nil {
		d.logger.Error("ack failed", zap.String("sessionId", del.SessionID), zap.Error(ackErr))
	}
	return done
}

// tryRetire removes the worker from the routing table if no deliveries are
// pending. TryLock avoids a lost wakeup against a dispatcher that is mid-
// send to this worker's buffer.
func (d *Demux) tryRetire(w *worker) bool {
	if !d.mu.TryLock() {
		return false
	}
	defer d.mu.Unlock()
	if len(w.ch) > 0 {
		return false
	}
	delete(d.workers, w.id)
	d.logger.Debug("session released", zap.String("sessionId", w.id))
	return true
}

// ActiveSessions reports the number of live session workers.
func (d *Demux) ActiveSessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}
