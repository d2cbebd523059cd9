package pubsub

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Billy-Davies-2/draftkit/internal/logger"
)

// Event is a state change notification. Version is the store version after
// the change was applied.
type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Version uint64         `json:"version"`
	Time    time.Time      `json:"time"`
	Payload map[string]any `json:"payload,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(typ string, version uint64, payload map[string]any) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    typ,
		Version: version,
		Time:    time.Now().UTC(),
		Payload: payload,
	}
}

// Publisher is the write side of the bus. The store depends on this only.
type Publisher interface {
	Publish(Event)
}

// Upstream is an interface for upstream publishers (e.g., NATS)
type Upstream interface {
	Publisher
	Subscribe() chan Event
	Unsubscribe(chan Event)
}

// fanout is a set of buffered subscriber channels. Delivery never blocks:
// a full channel misses the event.
type fanout struct {
	mu          sync.RWMutex
	subscribers []chan Event
	buffer      int
}

func newFanout(buffer int) *fanout {
	return &fanout{subscribers: []chan Event{}, buffer: buffer}
}

func (f *fanout) add() chan Event {
	ch := make(chan Event, f.buffer)
	f.mu.Lock()
	f.subscribers = append(f.subscribers, ch)
	n := len(f.subscribers)
	f.mu.Unlock()
	logger.Debug("PubSub: New subscriber added", "totalSubscribers", n)
	return ch
}

// remove closes ch only if it was registered here.
func (f *fanout) remove(ch chan Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, sub := range f.subscribers {
		if sub == ch {
			close(ch)
			f.subscribers = append(f.subscribers[:i], f.subscribers[i+1:]...)
			return
		}
	}
}

// broadcast holds the read lock while sending so remove and closeAll cannot
// close a channel mid-send. Sends never block.
func (f *fanout) broadcast(event Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, ch := range f.subscribers {
		select {
		case ch <- event:
		default:
			logger.Warn("PubSub: Skipping slow subscriber", "type", event.Type)
		}
	}
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subscribers {
		close(sub)
	}
	f.subscribers = nil
}

func (f *fanout) count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

// PubSub implements a simple publish-subscribe system
type PubSub struct {
	local    *fanout
	upstream Upstream // Optional upstream publisher (e.g., NATS)
	done     chan struct{}
}

// New creates a new PubSub instance
func New() *PubSub {
	return &PubSub{local: newFanout(10)}
}

// NewWithUpstream creates a PubSub that bridges to an upstream publisher.
// Publish goes to the upstream only; the upstream's broadcast is forwarded to
// local subscribers.
func NewWithUpstream(upstream Upstream) *PubSub {
	ps := &PubSub{
		local:    newFanout(10),
		upstream: upstream,
		done:     make(chan struct{}),
	}

	ch := upstream.Subscribe()
	go func() {
		defer close(ps.done)
		logger.Debug("PubSub: Subscribed to upstream, waiting for events")
		for event := range ch {
			ps.local.broadcast(event)
		}
		logger.Debug("PubSub: Upstream channel closed")
	}()

	return ps
}

// Subscribe adds a new subscriber and returns a channel for receiving events
func (ps *PubSub) Subscribe() chan Event {
	return ps.local.add()
}

// Unsubscribe removes a subscriber
func (ps *PubSub) Unsubscribe(ch chan Event) {
	ps.local.remove(ch)
}

// SubscriberCount returns the number of local subscribers.
func (ps *PubSub) SubscriberCount() int {
	return ps.local.count()
}

// Publish sends an event to all subscribers, through the upstream when one
// is configured.
func (ps *PubSub) Publish(event Event) {
	logger.Debug("PubSub: Publish called", "type", event.Type, "version", event.Version, "hasUpstream", ps.upstream != nil)
	if ps.upstream != nil {
		ps.upstream.Publish(event)
		return
	}
	ps.local.broadcast(event)
}

// Close closes every local subscriber channel.
func (ps *PubSub) Close() {
	ps.local.closeAll()
}
