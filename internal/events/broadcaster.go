// Package events fans transcript changes out to subscribers such as the
// terminal renderer.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ayaxan7/betTermux/internal/metrics"
)

const (
	EventAppend = "append"
	EventClear  = "clear"
)

// Entry kinds carried by append events.
const (
	KindPrompt = "prompt"
	KindOutput = "output"
	KindError  = "error"
)

// Event represents a transcript change.
type Event struct {
	Type      string `json:"type"`
	Kind      string `json:"kind,omitempty"`
	Text      string `json:"text,omitempty"`
	Cwd       string `json:"cwd,omitempty"`
	Index     int    `json:"index"`
	Timestamp int64  `json:"timestamp"`

	// Entry is the transcript entry itself, for in-process subscribers.
	Entry any `json:"-"`
}

// Broadcaster manages subscribers and publishes events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]*queue
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]*queue),
	}
}

// Subscribe adds a new subscriber and returns its event channel. Events are
// dropped while its buffer is full.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	return b.add(make(chan Event, 64), nil)
}

// SubscribeAll adds a subscriber that receives every event in order,
// however far it falls behind. The channel is closed after the events
// queued before Unsubscribe or Close have been delivered, so the caller
// must keep reading until then.
func (b *Broadcaster) SubscribeAll() chan Event {
	ch := make(chan Event)
	q := &queue{wake: make(chan struct{}, 1)}
	go q.pump(ch)
	return b.add(ch, q)
}

func (b *Broadcaster) add(ch chan Event, q *queue) chan Event {
	b.mu.Lock()
	b.subscribers[ch] = q
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetEventSubscribers(n)
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if q, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		closeSubscriber(ch, q)
	}
	n := len(b.subscribers)
	b.mu.Unlock()
	metrics.SetEventSubscribers(n)
}

// Publish sends an event to all subscribers. It never blocks.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, q := range b.subscribers {
		if q != nil {
			q.push(event)
			continue
		}
		select {
		case ch <- event:
		default:
		}
	}
	metrics.RecordEvent(event.Type)
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes everyone.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	for ch, q := range b.subscribers {
		closeSubscriber(ch, q)
	}
	b.subscribers = make(map[chan Event]*queue)
	b.mu.Unlock()
	metrics.SetEventSubscribers(0)
}

func closeSubscriber(ch chan Event, q *queue) {
	if q != nil {
		q.close()
		return
	}
	close(ch)
}

// queue is the unbounded backlog of a SubscribeAll subscriber.
type queue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	wake   chan struct{}
}

func (q *queue) push(e Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, e)
	q.mu.Unlock()
	q.signal()
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pump delivers queued events to out, closing it once the queue is closed
// and empty.
func (q *queue) pump(out chan Event) {
	defer close(out)
	for {
		q.mu.Lock()
		items, closed := q.items, q.closed
		q.items = nil
		q.mu.Unlock()

		for _, e := range items {
			out <- e
		}
		if len(items) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
