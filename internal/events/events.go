package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Name identifies a conflict lifecycle event
type Name string

const (
	ConflictDetected Name = "conflict-detected"
	ConflictResolved Name = "conflict-resolved"
)

// Event is published by the conflict engine
type Event struct {
	Name       Name      `json:"name"`
	FileID     string    `json:"file_id"`
	ConflictID string    `json:"conflict_id"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    any       `json:"payload,omitempty"`
}

// Sink receives events. Emit is fire-and-forget: it has no return value and
// a failing consumer must not affect the caller.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// Handler processes events
type Handler func(ctx context.Context, event Event) error

type subscription struct {
	id      uint64
	name    Name // empty matches every event
	handler Handler
}

// Bus is an in-process Sink with explicit subscription. Handlers run
// synchronously in subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger *zap.Logger
}

var _ Sink = (*Bus)(nil)

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// Subscribe registers h for every event and returns a function that removes it
func (b *Bus) Subscribe(h Handler) func() {
	return b.SubscribeTo("", h)
}

// SubscribeTo registers h for events with the given name
func (b *Bus) SubscribeTo(name Name, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, name: name, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Channel returns a buffered channel fed with every event. Events are
// dropped rather than blocking Emit when the buffer is full.
func (b *Bus) Channel(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	var mu sync.Mutex
	closed := false

	unsubscribe := b.Subscribe(func(_ context.Context, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return nil
		}
		select {
		case ch <- event:
			return nil
		default:
			return fmt.Errorf("channel full, dropped %s", event.Name)
		}
	})

	return ch, func() {
		unsubscribe()
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
}

// Emit delivers event to every matching handler. Handler errors and panics
// are logged and swallowed.
func (b *Bus) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.name != "" && s.name != event.Name {
			continue
		}
		b.deliver(ctx, s, event)
	}
}

func (b *Bus) deliver(ctx context.Context, s subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("event handler panicked",
				zap.String("event", string(event.Name)),
				zap.Any("panic", r),
			)
		}
	}()

	if err := s.handler(ctx, event); err != nil {
		b.logger.Warn("event handler failed",
			zap.String("event", string(event.Name)),
			zap.String("file_id", event.FileID),
			zap.Error(err),
		)
	}
}
