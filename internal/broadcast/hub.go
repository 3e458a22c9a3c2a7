// Package broadcast is the fan-out hub that distributes wire.TronEvents
// to subscribers (SSE clients, in-process test listeners). It keeps the
// teacher's watermill gochannel mechanism but generalizes its fixed
// EventType enum into the closed wire.TronEvent sum type, and replaces
// the teacher's unbounded goroutine-per-subscriber Publish with a bounded
// per-subscriber queue that drops on overflow instead of blocking the
// producer, per the resource model's backpressure rule.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tron-run/tron/internal/logging"
	"github.com/tron-run/tron/internal/wire"
)

// QueueSize is the bounded per-subscriber queue depth.
const QueueSize = 256

// Subscription is a live subscriber handle. Events()  yields TronEvents
// in publish order until Close is called or the hub is closed; a
// producer that outruns the consumer drops events rather than blocking.
type Subscription struct {
	id      uint64
	ch      chan wire.TronEvent
	hub     *Hub
	filter  func(wire.TronEvent) bool
	closeMu sync.Once
}

// Events returns the channel to range over.
func (s *Subscription) Events() <-chan wire.TronEvent { return s.ch }

// Close unsubscribes and releases the channel.
func (s *Subscription) Close() {
	s.closeMu.Do(func() {
		s.hub.remove(s.id)
		close(s.ch)
	})
}

// Hub is the broadcast hub referenced by spec §4.F: a fan-out queue of
// TronEvents held by the orchestrator surface, with one Hub per process.
type Hub struct {
	mu        sync.RWMutex
	subs      map[uint64]*Subscription
	nextID    uint64
	queueSize int
	pubsub    *gochannel.GoChannel
	closed    bool
}

// NewHub constructs an empty hub with the default QueueSize.
func NewHub() *Hub {
	return NewHubWithQueueSize(QueueSize)
}

// NewHubWithQueueSize constructs an empty hub with a caller-chosen
// per-subscriber queue depth, so a deployment can trade memory for a
// lower drop rate under bursty publish load (internal/config's
// broadcast queue size knob).
func NewHubWithQueueSize(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = QueueSize
	}
	return &Hub{
		subs:      make(map[uint64]*Subscription),
		queueSize: queueSize,
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: int64(queueSize), Persistent: false},
			watermill.NopLogger{},
		),
	}
}

// Subscribe registers a subscriber, optionally filtered (e.g. to one
// session's events for the SSE per-session stream). A nil filter
// receives everything.
func (h *Hub) Subscribe(filter func(wire.TronEvent) bool) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := atomic.AddUint64(&h.nextID, 1)
	sub := &Subscription{id: id, ch: make(chan wire.TronEvent, h.queueSize), hub: h, filter: filter}
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[id] = sub
	return sub
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Publish fans ev out to every matching subscriber. Each subscriber send
// is non-blocking: a full queue drops the event for that slow consumer
// only, never blocking the producer or other subscribers (spec §5
// "Suspension points").
func (h *Hub) Publish(ev wire.TronEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			logging.Warn().Str("type", string(ev.TronType())).Msg("broadcast: dropped event for slow subscriber")
		}
	}
}

// Close shuts the hub down, closing every subscriber channel.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for _, sub := range h.subs {
		close(sub.ch)
	}
	h.subs = nil
	return h.pubsub.Close()
}

// BySession returns a filter matching only events whose base session id
// equals sessionID, for the per-session SSE stream.
func BySession(sessionID string) func(wire.TronEvent) bool {
	return func(ev wire.TronEvent) bool {
		return ev.GetBase().SessionID == sessionID
	}
}
