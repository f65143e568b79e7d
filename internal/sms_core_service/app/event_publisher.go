package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
)

// Broadcaster delivers events to in-process consumers. Consumers attach with a
// buffer size; an event is dropped for a consumer whose buffer is full and
// dropped entirely when nobody is attached.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]chan domain.Event
	nextID int
	logger *slog.Logger
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[int]chan domain.Event),
		logger: logger.With("component", "event_broadcaster"),
	}
}

// Attach registers a consumer. The returned func detaches it and closes the channel.
func (b *Broadcaster) Attach(buffer int) (<-chan domain.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	detach := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, detach
}

func (b *Broadcaster) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.subs) == 0 {
		eventsDroppedCounter.WithLabelValues(string(event.Kind()), "no_listener").Inc()
		b.logger.DebugContext(ctx, "No listener attached, dropping event", "kind", event.Kind())
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			eventsDroppedCounter.WithLabelValues(string(event.Kind()), "buffer_full").Inc()
			b.logger.WarnContext(ctx, "Listener buffer full, dropping event", "kind", event.Kind(), "listener", id)
		}
	}
}

// MultiPublisher fans an event out to several publishers in order.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, event domain.Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, event)
		}
	}
}
