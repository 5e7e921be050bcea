// Package queue carries pipeline messages between the submitter and the
// workers with at-least-once delivery.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/certforge/backend/internal/models"
)

// Handler processes one message. A non-nil error leaves the message for
// redelivery.
type Handler func(ctx context.Context, msg models.QueueJob) error

type Queue interface {
	// Send enqueues msgs as one batch.
	Send(ctx context.Context, msgs ...models.QueueJob) error
	// Consume delivers messages to h until ctx is done.
	Consume(ctx context.Context, h Handler) error
}

// DefaultMaxDeliveries bounds delivery attempts before dead-lettering.
const DefaultMaxDeliveries = 5

type delivery struct {
	payload  []byte
	attempts int
}

// DeadLetter is a message that exhausted its deliveries.
type DeadLetter struct {
	Message  models.QueueJob
	Attempts int
	LastErr  string
}

// Memory is an in-process queue. Messages round-trip through JSON like
// they would on the wire, and a failed message goes to the back of the
// queue until it has been delivered MaxDeliveries times.
type Memory struct {
	mu            sync.Mutex
	pending       []delivery
	sent          []models.QueueJob
	dead          []DeadLetter
	maxDeliveries int
	notify        chan struct{}
}

func NewMemory(maxDeliveries int) *Memory {
	if maxDeliveries < 1 {
		maxDeliveries = DefaultMaxDeliveries
	}
	return &Memory{maxDeliveries: maxDeliveries, notify: make(chan struct{}, 1)}
}

func (m *Memory) Send(_ context.Context, msgs ...models.QueueJob) error {
	encoded := make([]delivery, 0, len(msgs))
	for _, msg := range msgs {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		encoded = append(encoded, delivery{payload: payload})
	}

	m.mu.Lock()
	m.pending = append(m.pending, encoded...)
	m.sent = append(m.sent, msgs...)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

func (m *Memory) pop() (delivery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return delivery{}, false
	}
	d := m.pending[0]
	m.pending = m.pending[1:]
	return d, true
}

func (m *Memory) deliver(ctx context.Context, d delivery, h Handler) {
	d.attempts++

	var msg models.QueueJob
	err := json.Unmarshal(d.payload, &msg)
	if err == nil {
		err = safeHandle(ctx, h, msg)
	}
	if err == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if d.attempts >= m.maxDeliveries {
		m.dead = append(m.dead, DeadLetter{Message: msg, Attempts: d.attempts, LastErr: err.Error()})
		return
	}
	m.pending = append(m.pending, d)
}

// Drain delivers messages, including ones enqueued by handlers, until the
// queue is empty.
func (m *Memory) Drain(ctx context.Context, h Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, ok := m.pop()
		if !ok {
			return nil
		}
		m.deliver(ctx, d, h)
	}
}

func (m *Memory) Consume(ctx context.Context, h Handler) error {
	for {
		if err := m.Drain(ctx, h); err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-m.notify:
		}
	}
}

// Sent returns every message ever sent, in order.
func (m *Memory) Sent() []models.QueueJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.QueueJob(nil), m.sent...)
}

func (m *Memory) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Memory) DeadLetters() []DeadLetter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DeadLetter(nil), m.dead...)
}

// safeHandle turns a handler panic into an error.
func safeHandle(ctx context.Context, h Handler, msg models.QueueJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, msg)
}
