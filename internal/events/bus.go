// ABOUTME: In-memory fan-out bus delivering domain events to subscribers
// ABOUTME: Non-blocking publish with per-subscriber buffers and context-scoped subscriptions

package events

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

type subscriber struct {
	ch      chan Event
	sources []string
}

func (s subscriber) wants(e Event) bool {
	return len(s.sources) == 0 || slices.Contains(s.sources, e.Source())
}

// Bus fans events out to subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]subscriber
	closed      bool
	logger      *slog.Logger
}

// NewBus creates a bus. Pass nil logger for default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]subscriber),
		logger:      logger.With("component", "events"),
	}
}

// Subscribe registers for events from the given sources ("session", "chat");
// no sources means everything. The subscription ends when ctx is cancelled,
// which closes the returned channel.
func (b *Bus) Subscribe(ctx context.Context, sources ...string) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = subscriber{ch: ch, sources: sources}
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID, "sources", sources)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish delivers e to every interested subscriber without blocking.
// A zero Time is set to now.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subscribers {
		if !sub.wants(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.logger.Debug("dropped event for slow subscriber", "sub_id", id, "kind", e.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(sub.ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel immediately.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	b.closed = true
}
