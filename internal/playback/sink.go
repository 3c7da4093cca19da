package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/turntable-fm/playback/internal/events"
)

// SinkStateKind discriminates the Sink lifecycle states.
type SinkStateKind int

const (
	SinkIdle SinkStateKind = iota
	SinkActive
	SinkLoading
	SinkSealed
	SinkError
)

func (k SinkStateKind) String() string {
	switch k {
	case SinkIdle:
		return "idle"
	case SinkActive:
		return "active"
	case SinkLoading:
		return "loading"
	case SinkSealed:
		return "sealed"
	case SinkError:
		return "error"
	default:
		return "unknown"
	}
}

// SinkState is the full lifecycle state of a Sink: a discriminant plus the
// reason string carried only by SinkError.
type SinkState struct {
	Kind   SinkStateKind
	Reason string
}

func (s SinkState) String() string {
	if s.Kind == SinkError && s.Reason != "" {
		return fmt.Sprintf("error(%s)", s.Reason)
	}
	return s.Kind.String()
}

// Equal compares two states by kind and, for Error, by reason.
func (s SinkState) Equal(other SinkState) bool {
	return s.Kind == other.Kind && s.Reason == other.Reason
}

func IdleState() SinkState                { return SinkState{Kind: SinkIdle} }
func ActiveState() SinkState              { return SinkState{Kind: SinkActive} }
func LoadingState() SinkState             { return SinkState{Kind: SinkLoading} }
func SealedState() SinkState              { return SinkState{Kind: SinkSealed} }
func ErrorState(reason string) SinkState { return SinkState{Kind: SinkError, Reason: reason} }

// SinkStateUpdateEvent is published whenever a Sink's state actually
// changes. The new state is stored first and the event is published
// afterwards, with the sink's lock released.
type SinkStateUpdateEvent struct {
	SinkID   SinkId
	NewState SinkState
	at       time.Time
}

func (e SinkStateUpdateEvent) Kind() events.PipelineEventKind { return events.KindSinkStateUpdate }
func (e SinkStateUpdateEvent) Timestamp() time.Time           { return e.at }

// Sink is a buffered, stateful container for the decoded samples of one
// audio source. It delegates storage to a MultiRangeBuffer and serializes
// its own state transitions behind a short-held mutex, publishing events
// with the lock released.
type Sink struct {
	ID             SinkId
	expectedLength *int // nil means unknown (live stream)

	buffer *MultiRangeBuffer
	bus    *events.Bus

	mu    sync.Mutex
	state SinkState
}

// NewSink creates a Sink in state Idle. expectedLength is nil for a live
// or otherwise length-unknown source.
func NewSink(id SinkId, expectedLength *int, bus *events.Bus) *Sink {
	bufferCap := UnknownLength
	if expectedLength != nil {
		bufferCap = *expectedLength
	}
	return &Sink{
		ID:             id,
		expectedLength: expectedLength,
		buffer:         NewMultiRangeBuffer(bufferCap),
		bus:            bus,
		state:          IdleState(),
	}
}

// Read delegates to the underlying buffer.
func (s *Sink) Read(offset int, dst []Sample) BufferRead {
	return s.buffer.Read(offset, dst)
}

// Write delegates to the underlying buffer.
func (s *Sink) Write(offset int, samples []Sample) int {
	return s.buffer.Write(offset, samples)
}

// DistanceFromVoid delegates to the underlying buffer.
func (s *Sink) DistanceFromVoid(offset int) BufferVoidDistance {
	return s.buffer.DistanceFromVoid(offset)
}

// ClearOutside delegates to the underlying buffer's RetainWindow.
func (s *Sink) ClearOutside(offset, window, chunkAlignment int) {
	s.buffer.RetainWindow(offset, window, chunkAlignment)
}

// DistanceFromEnd returns how many samples remain before expectedLength,
// or UnknownLength's worth of headroom when the length is unknown.
func (s *Sink) DistanceFromEnd(offset int) int {
	if s.expectedLength == nil {
		return UnknownLength - offset
	}
	remaining := *s.expectedLength - offset
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ExpectedLength returns the sink's configured length, or nil if unknown.
func (s *Sink) ExpectedLength() *int {
	return s.expectedLength
}

// State returns the current lifecycle state.
func (s *Sink) State() SinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the sink to newState if it differs from the
// current state, publishing a SinkStateUpdateEvent with the lock released.
// Sealed and Error are terminal: once reached, further SetState calls are
// no-ops.
func (s *Sink) SetState(newState SinkState) {
	s.mu.Lock()
	current := s.state
	if current.Kind == SinkSealed || current.Kind == SinkError {
		s.mu.Unlock()
		return
	}
	if current.Equal(newState) {
		s.mu.Unlock()
		return
	}
	s.state = newState
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.TryPublish(SinkStateUpdateEvent{SinkID: s.ID, NewState: newState, at: time.Now()})
	}
}

// IsPlayable reports whether the Timeline may read samples from this sink.
func (s *Sink) IsPlayable() bool {
	switch s.State().Kind {
	case SinkActive, SinkLoading, SinkSealed:
		return true
	default:
		return false
	}
}

// IsLoadable reports whether the Ingestion may still write into this sink.
func (s *Sink) IsLoadable() bool {
	switch s.State().Kind {
	case SinkIdle, SinkSealed, SinkError:
		return false
	default:
		return true
	}
}

// IsClearable reports whether this sink may be dropped without ceremony.
func (s *Sink) IsClearable() bool {
	return s.State().Kind == SinkIdle
}

// Activate transitions Idle -> Active. Called by the Timeline on enqueue.
func (s *Sink) Activate() {
	if s.State().Kind == SinkIdle {
		s.SetState(ActiveState())
	}
}

// Deactivate transitions Active -> Idle. Called by the Timeline on removal.
func (s *Sink) Deactivate() {
	if s.State().Kind == SinkActive {
		s.SetState(IdleState())
	}
}
