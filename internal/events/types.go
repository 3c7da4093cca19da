// Package events provides a non-blocking, fan-out event bus so that
// playback state changes can reach subscribers (a future web socket
// layer, telemetry, a CLI harness) without ever stalling the producer
// that raised them.
package events

import "time"

// PipelineEventKind discriminates the concrete PipelineEvent variants.
// The set is open: new event kinds can be added without touching the bus.
type PipelineEventKind string

const (
	KindSinkStateUpdate PipelineEventKind = "sink_state_update"
	KindPlayerAdvanced  PipelineEventKind = "player_advanced"
	KindTimelineChanged PipelineEventKind = "timeline_changed"
)

// PipelineEvent is the common shape every event published on the bus
// satisfies. Concrete types live alongside their producers (playback
// package) so this package has no dependency on playback's domain types.
type PipelineEvent interface {
	Kind() PipelineEventKind
	Timestamp() time.Time
}

// EventConsumer processes PipelineEvents delivered by the bus's worker
// pool. Consumers must not block for long: each worker calls every
// consumer in turn, so a slow consumer delays the bus worker dispatching to
// it (and the consumers after it), not the producer, and a consumer that
// blocks forever will eventually starve the worker pool.
type EventConsumer interface {
	Name() string
	ProcessEvent(event PipelineEvent) error
}

// BusStats are runtime counters for monitoring bus health.
type BusStats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}
