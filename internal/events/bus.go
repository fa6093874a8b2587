package events

import (
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"github.com/mondominator/audiora/internal/utils"
)

// Subscriber is a handle returned by Bus.Subscribe. Events arrive on C until
// Unsubscribe is called, at which point C is closed.
type Subscriber struct {
	ID      string
	C       <-chan Event
	ch      chan Event
	dropped atomic.Int64
}

// Dropped returns how many events were discarded because this subscriber's
// buffer was full.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// Bus fans events out to every subscriber. Delivery is best-effort and
// isolated: each subscriber has its own bounded buffer, and a full buffer
// drops the event for that subscriber only. Publish never blocks.
type Bus struct {
	logger     hclog.Logger
	bufferSize int

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool

	recentMax int
	recent    []Event

	totalEvents  atomic.Int64
	droppedTotal atomic.Int64
	byType       sync.Map // EventType -> *atomic.Int64
}

// NewBus creates a broadcast hub. bufferSize bounds each subscriber's
// outbound queue; recentMax bounds the in-memory ring of recent events.
func NewBus(logger hclog.Logger, bufferSize, recentMax int) *Bus {
	if bufferSize < 1 {
		bufferSize = 64
	}
	if recentMax < 0 {
		recentMax = 0
	}
	return &Bus{
		logger:      logger.Named("event-bus"),
		bufferSize:  bufferSize,
		subscribers: make(map[string]*Subscriber),
		recentMax:   recentMax,
		recent:      make([]Event, 0, recentMax),
	}
}

// Subscribe registers a new subscriber and returns its handle.
func (b *Bus) Subscribe() *Subscriber {
	ch := make(chan Event, b.bufferSize)
	sub := &Subscriber{
		ID: utils.GenerateUUID(),
		C:  ch,
		ch: ch,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.subscribers[sub.ID] = sub

	b.logger.Debug("subscriber added", "subscriberID", sub.ID, "total", len(b.subscribers))
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call for
// an already-removed subscriber.
func (b *Bus) Unsubscribe(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[subscriberID]
	if !ok {
		return
	}
	delete(b.subscribers, subscriberID)
	close(sub.ch)

	b.logger.Debug("subscriber removed", "subscriberID", subscriberID, "dropped", sub.Dropped())
}

// Publish delivers the event to every subscriber without blocking. A slow
// subscriber loses the event; everyone else still receives it. Delivery
// happens under the lock so an unsubscribe cannot close a channel mid-fanout;
// the sends never block, so the lock is held only briefly.
func (b *Bus) Publish(event Event) {
	if event.ID == "" {
		event.ID = utils.GenerateUUID()
	}

	b.totalEvents.Add(1)
	b.countByType(event.Type)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if b.recentMax > 0 {
		if len(b.recent) >= b.recentMax {
			b.recent = b.recent[1:]
		}
		b.recent = append(b.recent, event)
	}

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
			b.droppedTotal.Add(1)
			b.logger.Warn("subscriber buffer full, dropping event",
				"subscriberID", sub.ID, "eventType", event.Type)
		}
	}
}

// Stats returns a snapshot of hub activity.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	recent := make([]Event, len(b.recent))
	copy(recent, b.recent)
	active := len(b.subscribers)
	b.mu.RUnlock()

	byType := make(map[string]int64)
	b.byType.Range(func(key, value interface{}) bool {
		byType[string(key.(EventType))] = value.(*atomic.Int64).Load()
		return true
	})

	return Stats{
		TotalEvents:       b.totalEvents.Load(),
		EventsByType:      byType,
		DroppedEvents:     b.droppedTotal.Load(),
		ActiveSubscribers: active,
		RecentEvents:      recent,
	}
}

// Close unsubscribes everyone and rejects further publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		close(sub.ch)
	}
	b.logger.Info("event bus closed")
}

func (b *Bus) countByType(t EventType) {
	counter, _ := b.byType.LoadOrStore(t, &atomic.Int64{})
	counter.(*atomic.Int64).Add(1)
}
