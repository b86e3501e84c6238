package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emanuelschuetze/openslides-datastore-service/internal/conn"
	"github.com/emanuelschuetze/openslides-datastore-service/internal/ir"
)

var (
	// ErrClosed is returned by HandleEvents after the broker was closed.
	ErrClosed = errors.New("messaging: broker closed")

	// ErrSubscriptionClosed is returned by Next once the subscription is
	// closed and drained.
	ErrSubscriptionClosed = errors.New("messaging: subscription closed")
)

// Message is one notification: every position persisted by one write call.
type Message struct {
	ID        uuid.UUID             `json:"id"`
	Published time.Time             `json:"published"`
	Positions []ir.PositionedEvents `json:"positions"`
}

// Broker fans persisted events out to in-process subscribers. Each
// subscriber has its own unbounded FIFO queue, so messages arrive in
// publish order and a slow subscriber never blocks a write.
//
// The writer notifies before it commits. When HandleEvents runs inside a
// conn transaction the message is held until that transaction commits and
// dropped if it rolls back, so subscribers never see positions that were
// not persisted. Outside a transaction it is delivered at once.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBroker creates a broker without subscribers.
func NewBroker() *Broker {
	return &Broker{subs: make(map[*Subscription]struct{})}
}

// Subscription receives every message published after it was created.
type Subscription struct {
	broker *Broker
	queue  *messageQueue
}

// Subscribe registers a new subscriber. On a closed broker the returned
// subscription is already closed.
func (b *Broker) Subscribe() *Subscription {
	sub := &Subscription{broker: b, queue: newMessageQueue()}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.queue.Close()
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes it. Messages already queued can still
// be read.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	sub.queue.Close()
}

// HandleEvents publishes one message carrying positions to every
// subscriber. It fails only when the broker is closed or ctx is done, in
// which case nothing is delivered.
func (b *Broker) HandleEvents(ctx context.Context, positions []ir.PositionedEvents) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	msg := Message{
		ID:        uuid.Must(uuid.NewV7()),
		Published: time.Now().UTC(),
		Positions: positions,
	}
	if conn.AfterCommit(ctx, func() { b.publish(msg) }) {
		slog.Debug("holding message until commit", "message_id", msg.ID)
		return nil
	}
	b.publish(msg)
	return nil
}

func (b *Broker) publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		slog.Debug("dropping message for closed broker", "message_id", msg.ID)
		return
	}
	for sub := range b.subs {
		sub.queue.Enqueue(msg)
	}

	slog.Debug("published events",
		"message_id", msg.ID,
		"positions", len(msg.Positions),
		"subscribers", len(b.subs),
	)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes the broker and every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for sub := range subs {
		sub.queue.Close()
	}
}

// Next blocks until a message is available, ctx is done or the
// subscription is closed and drained.
func (s *Subscription) Next(ctx context.Context) (Message, error) {
	for {
		if m, ok := s.queue.TryDequeue(); ok {
			return m, nil
		}
		if s.queue.isDrained() {
			return Message{}, ErrSubscriptionClosed
		}

		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-s.queue.Wait():
		}
	}
}

// TryNext returns the next message without blocking.
func (s *Subscription) TryNext() (Message, bool) {
	return s.queue.TryDequeue()
}

// Len returns the number of undelivered messages.
func (s *Subscription) Len() int {
	return s.queue.Len()
}

// Close unsubscribes from the broker.
func (s *Subscription) Close() {
	s.broker.Unsubscribe(s)
}
