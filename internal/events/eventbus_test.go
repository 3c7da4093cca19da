package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvent struct {
	kind PipelineEventKind
	at   time.Time
}

func (e fakeEvent) Kind() PipelineEventKind { return e.kind }
func (e fakeEvent) Timestamp() time.Time    { return e.at }

type mockConsumer struct {
	name           string
	processedCount atomic.Int32
	errorOnProcess bool
	processDelay   time.Duration

	mu     sync.Mutex
	events []PipelineEvent
}

func (m *mockConsumer) Name() string { return m.name }

func (m *mockConsumer) ProcessEvent(event PipelineEvent) error {
	if m.processDelay > 0 {
		time.Sleep(m.processDelay)
	}

	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()

	m.processedCount.Add(1)

	if m.errorOnProcess {
		return fmt.Errorf("mock consumer error")
	}
	return nil
}

func (m *mockConsumer) Events() []PipelineEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PipelineEvent, len(m.events))
	copy(out, m.events)
	return out
}

func TestBusTryPublishWithNoConsumersIsDropped(t *testing.T) {
	bus := New(DefaultConfig())
	ok := bus.TryPublish(fakeEvent{kind: KindSinkStateUpdate, at: time.Now()})
	assert.False(t, ok, "publishing before any consumer registers must not be accepted")
}

func TestBusDeliversToRegisteredConsumer(t *testing.T) {
	bus := New(DefaultConfig())
	defer bus.Shutdown(time.Second)

	consumer := &mockConsumer{name: "sink1"}
	bus.RegisterConsumer(consumer)

	ok := bus.TryPublish(fakeEvent{kind: KindSinkStateUpdate, at: time.Now()})
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return consumer.processedCount.Load() == 1
	}, time.Second, time.Millisecond)
}

func TestBusFansOutToAllConsumers(t *testing.T) {
	bus := New(DefaultConfig())
	defer bus.Shutdown(time.Second)

	a := &mockConsumer{name: "a"}
	b := &mockConsumer{name: "b"}
	bus.RegisterConsumer(a)
	bus.RegisterConsumer(b)

	bus.TryPublish(fakeEvent{kind: KindPlayerAdvanced, at: time.Now()})

	require.Eventually(t, func() bool {
		return a.processedCount.Load() == 1 && b.processedCount.Load() == 1
	}, time.Second, time.Millisecond)
}

func TestBusDropsEventsWhenBufferFull(t *testing.T) {
	bus := New(Config{BufferSize: 1, Workers: 1})
	defer bus.Shutdown(time.Second)

	slow := &mockConsumer{name: "slow", processDelay: 200 * time.Millisecond}
	bus.RegisterConsumer(slow)

	accepted := 0
	for i := 0; i < 10; i++ {
		if bus.TryPublish(fakeEvent{kind: KindTimelineChanged, at: time.Now()}) {
			accepted++
		}
	}

	assert.Less(t, accepted, 10, "a slow consumer must cause some publishes to be dropped, not block the producer")
	stats := bus.Stats()
	assert.Greater(t, stats.EventsDropped, uint64(0))
}

func TestBusConsumerErrorIsCountedAndDoesNotStopDelivery(t *testing.T) {
	bus := New(DefaultConfig())
	defer bus.Shutdown(time.Second)

	failing := &mockConsumer{name: "failing", errorOnProcess: true}
	bus.RegisterConsumer(failing)

	bus.TryPublish(fakeEvent{kind: KindSinkStateUpdate, at: time.Now()})
	bus.TryPublish(fakeEvent{kind: KindSinkStateUpdate, at: time.Now()})

	require.Eventually(t, func() bool {
		return failing.processedCount.Load() == 2
	}, time.Second, time.Millisecond)

	stats := bus.Stats()
	assert.Equal(t, uint64(2), stats.ConsumerErrors)
}

func TestBusConsumerPanicIsRecovered(t *testing.T) {
	bus := New(DefaultConfig())
	defer bus.Shutdown(time.Second)

	bus.RegisterConsumer(panicConsumer{})
	normal := &mockConsumer{name: "normal"}
	bus.RegisterConsumer(normal)

	bus.TryPublish(fakeEvent{kind: KindSinkStateUpdate, at: time.Now()})

	require.Eventually(t, func() bool {
		return normal.processedCount.Load() == 1
	}, time.Second, time.Millisecond)
}

type panicConsumer struct{}

func (panicConsumer) Name() string { return "panics" }
func (panicConsumer) ProcessEvent(PipelineEvent) error {
	panic("boom")
}

func TestBusShutdownStopsDelivery(t *testing.T) {
	bus := New(DefaultConfig())
	consumer := &mockConsumer{name: "c"}
	bus.RegisterConsumer(consumer)

	require.NoError(t, bus.Shutdown(time.Second))

	ok := bus.TryPublish(fakeEvent{kind: KindSinkStateUpdate, at: time.Now()})
	assert.False(t, ok, "publish after shutdown must be rejected")
}
