// Package eventbus is the in-process publish/subscribe hub for turn events.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"voicebot/internal/domain"
)

// subscriber receives events of one type, or every event when all is set.
type subscriber struct {
	id        uint64
	eventType domain.EventType
	all       bool
	handler   domain.EventHandler
}

func (s subscriber) wants(t domain.EventType) bool { return s.all || s.eventType == t }

// Bus delivers each event to its subscribers on separate goroutines.
// Handlers must not assume ordering between events.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscriber
	nextID atomic.Uint64
	logger *slog.Logger
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Publish fans event out to matching subscribers. Panicking handlers are
// recovered and logged. Publishing on a closed bus is a no-op.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	matched := make([]subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(event.Type) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range matched {
		b.wg.Add(1)
		go b.deliver(ctx, event, s.handler)
	}
}

func (b *Bus) deliver(ctx context.Context, event domain.Event, handler domain.EventHandler) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(event.Type),
				"panic", r,
			)
		}
	}()
	handler(ctx, event)
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(subscriber{eventType: eventType, handler: handler})
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add(subscriber{all: true, handler: handler})
}

func (b *Bus) add(s subscriber) func() {
	s.id = b.nextID.Add(1)

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, cur := range b.subs {
				if cur.id == s.id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Close rejects further publishes and waits for in-flight handlers.
// It is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}

// Emit marshals payload and publishes it. A nil bus drops the event.
func Emit(ctx context.Context, bus domain.EventBus, eventType domain.EventType, sessionID string, payload any) {
	if bus == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	bus.Publish(ctx, domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Payload:   raw,
	})
}

// LogEvents subscribes a debug logger to every event on bus.
func LogEvents(bus domain.EventBus, logger *slog.Logger) func() {
	return bus.SubscribeAll(func(ctx context.Context, e domain.Event) {
		logger.DebugContext(ctx, "event",
			"type", string(e.Type),
			"session", e.SessionID,
			"payload", string(e.Payload),
		)
	})
}

var _ domain.EventBus = (*Bus)(nil)
