// Package ids provides process-unique, identity-comparable identifiers for
// playback entities (sinks, players). Values wrap a uuid.UUID so that two
// identifiers are equal if and only if they were produced by the same
// New call, never by coincidence of content.
package ids

import "github.com/google/uuid"

// SinkId identifies a single Sink for its lifetime.
type SinkId struct {
	value uuid.UUID
}

// NewSinkId generates a fresh, process-unique SinkId.
func NewSinkId() SinkId {
	return SinkId{value: uuid.New()}
}

// String returns the canonical textual form, suitable for logging.
func (id SinkId) String() string {
	return id.value.String()
}

// IsZero reports whether id is the zero value (never produced by NewSinkId).
func (id SinkId) IsZero() bool {
	return id.value == uuid.Nil
}

// PlayerId identifies a single playback session (one Timeline, one cursor).
type PlayerId struct {
	value uuid.UUID
}

// NewPlayerId generates a fresh, process-unique PlayerId.
func NewPlayerId() PlayerId {
	return PlayerId{value: uuid.New()}
}

// String returns the canonical textual form, suitable for logging.
func (id PlayerId) String() string {
	return id.value.String()
}

// IsZero reports whether id is the zero value (never produced by NewPlayerId).
func (id PlayerId) IsZero() bool {
	return id.value == uuid.Nil
}
