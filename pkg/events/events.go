package events

import (
	"sync"
	"time"
)

// EventType names a domain event topic.
type EventType string

const (
	EventWorkflowCreated      EventType = "workflow.created"
	EventWorkflowTransitioned EventType = "workflow.transitioned"
	EventWorkflowCompleted    EventType = "workflow.completed"
	EventWorkflowFailed       EventType = "workflow.failed"
	EventJobCreated           EventType = "reconciliation.job.created"
	EventJobClaimed           EventType = "reconciliation.job.claimed"
	EventJobCompleted         EventType = "reconciliation.job.completed"
	EventJobFailed            EventType = "reconciliation.job.failed"
	EventJobSwept             EventType = "reconciliation.job.swept"
	EventJobDeleted           EventType = "reconciliation.job.deleted"
)

// Event is one domain occurrence. The durable record of what happened
// lives in the workflow event and audit tables; an Event only notifies
// in-process observers.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber receives every published event, best effort.
type Subscriber chan *Event

// Broker fans published events out to all subscribers. Publish never
// blocks on a subscriber: a full subscriber buffer drops the event for
// that subscriber only.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}

	eventCh  chan *Event
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewBroker creates a Broker. Start must be called before events flow.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]struct{}),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the distribution loop.
func (b *Broker) Start() {
	go b.loop()
}

// Stop halts distribution. Events published after Stop are discarded.
// Subscriber channels stay open; close them with Unsubscribe.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe registers a new observer and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the observer and closes its channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish enqueues the event for distribution, stamping the timestamp if
// the caller left it zero.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// SubscriberCount reports how many observers are registered.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broker) loop() {
	for {
		select {
		case event := <-b.eventCh:
			b.fanOut(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) fanOut(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full; drop for this observer only.
		}
	}
}
