package event

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funkyflowstudios/synapse-hub-sub000/wire"
)

func statusEvent(connector, from, to string) StatusChanged {
	return StatusChanged{
		ConnectorID: connector,
		From:        from,
		To:          to,
		Reason:      "test",
		Timestamp:   time.Now(),
	}
}

func TestBusDeliversToAllMatching(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	var mu sync.Mutex
	got := make(map[SubscriptionID]int)
	var ids []SubscriptionID
	for i := 0; i < 3; i++ {
		var id SubscriptionID
		id = bus.Subscribe(Filter{}, func(Event) {
			mu.Lock()
			got[id]++
			mu.Unlock()
		})
		ids = append(ids, id)
	}

	bus.Publish(statusEvent("plc-1", "disconnected", "connecting"))
	bus.Publish(statusEvent("plc-1", "connecting", "authenticating"))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, id := range ids {
			if got[id] != 2 {
				return false
			}
		}
		return true
	}, time.Second, 10*time.Millisecond)
}

func TestBusFilterByConnectorAndFamily(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	var statusCount, telemetryCount atomic.Int64
	bus.Subscribe(Filter{Family: FamilyStatus, ConnectorID: "plc-1"}, func(Event) {
		statusCount.Add(1)
	})
	bus.Subscribe(Filter{Family: FamilyTelemetry, StreamID: "temp"}, func(Event) {
		telemetryCount.Add(1)
	})

	bus.Publish(statusEvent("plc-1", "disconnected", "connecting"))
	bus.Publish(statusEvent("plc-2", "disconnected", "connecting"))
	bus.Publish(TelemetryReceived{
		ConnectorID: "plc-1",
		StreamID:    "temp",
		Reading:     wire.Reading{StreamID: "temp", Value: 21.5},
		Timestamp:   time.Now(),
	})
	bus.Publish(TelemetryReceived{
		ConnectorID: "plc-1",
		StreamID:    "pressure",
		Reading:     wire.Reading{StreamID: "pressure", Value: 1.2},
		Timestamp:   time.Now(),
	})

	assert.Eventually(t, func() bool {
		return statusCount.Load() == 1 && telemetryCount.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestBusSlowSubscriberDropsNotBlocks(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	block := make(chan struct{})
	var delivered atomic.Int64
	bus.Subscribe(Filter{}, func(Event) {
		<-block
		delivered.Add(1)
	})

	var fast atomic.Int64
	fastGot := make(chan struct{}, 16)
	bus.Subscribe(Filter{}, func(Event) {
		fast.Add(1)
		fastGot <- struct{}{}
	})

	// Pace the publishes on the fast subscriber's deliveries so its
	// queue never overflows. The slow handler stays parked: one event
	// in its handler, one in its queue, the rest dropped for it alone.
	for i := 0; i < 10; i++ {
		bus.Publish(statusEvent("plc-1", "a", "b"))
		select {
		case <-fastGot:
		case <-time.After(time.Second):
			t.Fatalf("Publish %d blocked on slow subscriber", i)
		}
	}
	close(block)

	assert.Equal(t, int64(10), fast.Load())
	assert.Eventually(t, func() bool { return delivered.Load() >= 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, delivered.Load(), int64(2))
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	var count atomic.Int64
	id := bus.Subscribe(Filter{}, func(Event) { count.Add(1) })

	bus.Publish(statusEvent("plc-1", "a", "b"))
	assert.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 10*time.Millisecond)

	bus.Unsubscribe(id)
	require.Equal(t, 0, bus.SubscriberCount())

	bus.Publish(statusEvent("plc-1", "b", "c"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), count.Load())
}

func TestBusCloseDrainsQueuedEvents(t *testing.T) {
	bus := NewBus(16)

	var count atomic.Int64
	bus.Subscribe(Filter{}, func(Event) { count.Add(1) })
	for i := 0; i < 5; i++ {
		bus.Publish(statusEvent("plc-1", "a", "b"))
	}

	bus.Close()
	assert.Equal(t, int64(5), count.Load())

	// Publish after close is a no-op.
	bus.Publish(statusEvent("plc-1", "a", "b"))
	assert.Equal(t, int64(5), count.Load())
}
