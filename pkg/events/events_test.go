package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDeliversToAllSubscribers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub1 := broker.Subscribe()
	sub2 := broker.Subscribe()
	assert.Equal(t, 2, broker.SubscriberCount())

	broker.Publish(&Event{
		ID:        "e-1",
		Type:      EventActionNew,
		NsID:      "prod",
		ClusterID: "orders-db",
		Message:   "action submitted",
	})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case event := <-sub:
			assert.Equal(t, "e-1", event.ID)
			assert.Equal(t, EventActionNew, event.Type)
			assert.False(t, event.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBrokerPreservesTimestamp(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()

	stamp := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	broker.Publish(&Event{ID: "e-1", Type: EventReportOrchestrate, Timestamp: stamp})

	select {
	case event := <-sub:
		assert.Equal(t, stamp, event.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	broker.Unsubscribe(sub)
	assert.Equal(t, 0, broker.SubscriberCount())

	// The channel is closed on unsubscribe.
	_, open := <-sub
	require.False(t, open)
}

func TestBrokerSkipsSlowSubscriber(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	slow := broker.Subscribe()
	for i := 0; i < cap(slow); i++ {
		slow <- &Event{ID: "fill"}
	}

	fast := broker.Subscribe()
	broker.Publish(&Event{ID: "e-1", Type: EventActionUpdated})

	// The fast subscriber still receives while the full one is skipped.
	select {
	case event := <-fast:
		assert.Equal(t, "e-1", event.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}
