package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPublishSubscribe verifies events reach all subscribers
func TestPublishSubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{
		Type:     EventJobCompleted,
		Message:  "job done",
		Metadata: map[string]string{"job_id": "j-1"},
	})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case ev := <-sub:
			assert.Equal(t, EventJobCompleted, ev.Type)
			assert.Equal(t, "j-1", ev.Metadata["job_id"])
			assert.False(t, ev.Timestamp.IsZero(), "timestamp stamped on publish")
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

// TestUnsubscribe verifies removed subscribers stop receiving
func TestUnsubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	// Channel is closed on unsubscribe.
	_, open := <-sub
	require.False(t, open)
}

// TestSlowSubscriberSkipped verifies a full subscriber buffer never blocks
// the broker
func TestSlowSubscriberSkipped(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	slow := b.Subscribe()
	live := b.Subscribe()

	// Overflow the slow subscriber's buffer without draining it.
	for i := 0; i < 60; i++ {
		b.Publish(&Event{Type: EventWorkflowTransitioned})
	}

	// The healthy subscriber still gets events.
	received := 0
	timeout := time.After(2 * time.Second)
	for received < 50 {
		select {
		case <-live:
			received++
		case <-timeout:
			t.Fatalf("healthy subscriber starved after %d events", received)
		}
	}
	_ = slow
}
