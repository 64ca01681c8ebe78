package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventTaskReceived  EventType = "task.received"
	EventTaskCompleted EventType = "task.completed"
	EventTaskSkipped   EventType = "task.skipped"
	EventTaskFailed    EventType = "task.failed"
	EventFileUploaded  EventType = "file.uploaded"
	EventFileFrozen    EventType = "file.frozen"
	EventDvasPublished EventType = "dvas.published"
	EventTaskPublished EventType = "task.published"
)

// Event represents one observable step of the processing pipeline
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// New creates an event with a fresh id and the current timestamp
func New(t EventType, message string, metadata map[string]string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now(),
		Message:   message,
		Metadata:  metadata,
	}
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// recentCap bounds the in-memory event history served by the API
const recentCap = 100

// Broker manages event subscriptions and distribution. It also keeps
// the most recent events so the API server can expose a task history
// without any persistent store.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}

	recent []*Event
	next   int
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
		recent:      make([]*Event, 0, recentCap),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	// Set identity if not set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.remember(event)
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) remember(event *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.recent) < recentCap {
		b.recent = append(b.recent, event)
		return
	}
	b.recent[b.next] = event
	b.next = (b.next + 1) % recentCap
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// Recent returns the retained events, oldest first
func (b *Broker) Recent() []*Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Event, 0, len(b.recent))
	if len(b.recent) < recentCap {
		out = append(out, b.recent...)
		return out
	}
	out = append(out, b.recent[b.next:]...)
	out = append(out, b.recent[:b.next]...)
	return out
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
