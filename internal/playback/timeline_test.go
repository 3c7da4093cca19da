package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turntable-fm/playback/internal/ids"
)

func newTestSink(t *testing.T, expectedLength int) *Sink {
	t.Helper()
	n := expectedLength
	return NewSink(ids.NewSinkId(), &n, nil)
}

func mustConfig(t *testing.T, sampleRate, channels int, thresholdSec, sizeSec float64) Config {
	t.Helper()
	cfg, err := NewConfig(sampleRate, channels, thresholdSec, sizeSec)
	require.NoError(t, err)
	return cfg
}

func TestNewTimelineAssignsUniquePlayerID(t *testing.T) {
	cfg := mustConfig(t, 1, 1, 3, 3)
	a := NewTimeline(cfg, nil, nil)
	b := NewTimeline(cfg, nil, nil)

	assert.False(t, a.ID().IsZero())
	assert.NotEqual(t, a.ID(), b.ID())
}

// TestTimelineTwoSinkAdvancement mirrors scenario S1.
func TestTimelineTwoSinkAdvancement(t *testing.T) {
	cfg := mustConfig(t, 1, 1, 3, 3)
	tl := NewTimeline(cfg, nil, nil)

	a := newTestSink(t, 10)
	b := newTestSink(t, 10)
	a.Activate()
	b.Activate()

	a.Write(0, samples(10, 1))
	a.SetState(SealedState())
	b.Write(0, samples(5, 1))

	tl.SetSinks([]*Sink{a, b})

	reads := tl.Advance(5)
	require.Len(t, reads, 1)
	assert.Equal(t, a.ID, reads[0].Sink.ID)
	assert.Equal(t, 0, reads[0].Offset)
	assert.Equal(t, 5, reads[0].Amount)

	reads = tl.Advance(4)
	require.Len(t, reads, 1)
	assert.Equal(t, 5, reads[0].Offset)
	assert.Equal(t, 4, reads[0].Amount)

	reads = tl.Advance(5)
	require.Len(t, reads, 2)
	assert.Equal(t, a.ID, reads[0].Sink.ID)
	assert.Equal(t, 9, reads[0].Offset)
	assert.Equal(t, 1, reads[0].Amount)
	assert.Equal(t, b.ID, reads[1].Sink.ID)
	assert.Equal(t, 0, reads[1].Offset)
	assert.Equal(t, 4, reads[1].Amount)

	reads = tl.Advance(1)
	require.Len(t, reads, 1)
	assert.Equal(t, b.ID, reads[0].Sink.ID)
	assert.Equal(t, 4, reads[0].Offset)
	assert.Equal(t, 1, reads[0].Amount)

	b.SetState(SealedState())
	reads = tl.Advance(5)
	assert.Empty(t, reads)
}

// TestTimelinePreloadThreshold mirrors scenario S2.
func TestTimelinePreloadThreshold(t *testing.T) {
	cfg := mustConfig(t, 1, 1, 3, 3)
	tl := NewTimeline(cfg, nil, nil)

	a := newTestSink(t, 10)
	b := newTestSink(t, 10)
	tl.SetSinks([]*Sink{a, b})

	intents := tl.Preload()
	require.Len(t, intents, 1)
	assert.Equal(t, a.ID, intents[0].SinkID)
	assert.Equal(t, 0, intents[0].Offset)

	a.Write(0, samples(3, 0))
	intents = tl.Preload()
	assert.Empty(t, intents)

	tl.offset.Store(2)
	intents = tl.Preload()
	require.Len(t, intents, 1)
	assert.Equal(t, a.ID, intents[0].SinkID)
	assert.Equal(t, 3, intents[0].Offset)

	a.SetState(SealedState())
	intents = tl.Preload()
	require.Len(t, intents, 1)
	assert.Equal(t, b.ID, intents[0].SinkID)
	assert.Equal(t, 0, intents[0].Offset)
}

// TestTimelinePreloadBothBelowThreshold mirrors scenario S3.
func TestTimelinePreloadBothBelowThreshold(t *testing.T) {
	cfg := mustConfig(t, 1, 1, 3, 3)
	tl := NewTimeline(cfg, nil, nil)

	a := newTestSink(t, 2)
	b := newTestSink(t, 2)
	tl.SetSinks([]*Sink{a, b})

	intents := tl.Preload()
	require.Len(t, intents, 2)
	assert.Equal(t, a.ID, intents[0].SinkID)
	assert.Equal(t, b.ID, intents[1].SinkID)
}

// TestTimelineErroredSinkSkipped mirrors scenario S4.
func TestTimelineErroredSinkSkipped(t *testing.T) {
	cfg := mustConfig(t, 1, 1, 3, 3)
	tl := NewTimeline(cfg, nil, nil)

	a := newTestSink(t, 10)
	b := newTestSink(t, 10)
	a.Activate()
	b.Activate()
	a.SetState(ErrorState("boom"))
	b.Write(0, samples(5, 0))

	tl.SetSinks([]*Sink{a, b})

	reads := tl.Advance(5)
	require.Len(t, reads, 1)
	assert.Equal(t, b.ID, reads[0].Sink.ID)
	assert.Equal(t, 0, reads[0].Offset)
	assert.Equal(t, 5, reads[0].Amount)
}

// TestTimelineReclamation mirrors scenario S5 at the Sink level.
func TestTimelineReclamation(t *testing.T) {
	s := newTestSink(t, 1000)
	s.Write(0, samples(100, 0))
	s.Write(500, samples(100, 0))

	s.ClearOutside(550, 20, 1)

	assert.Equal(t, BufferReadEmpty, s.Read(50, make([]Sample, 1)).Kind)
	dist := s.DistanceFromVoid(530)
	assert.Equal(t, 40, dist.Distance)
}

// TestTimelineShortReadAtUnderflow mirrors scenario S6.
func TestTimelineShortReadAtUnderflow(t *testing.T) {
	cfg := mustConfig(t, 1, 1, 3, 3)
	tl := NewTimeline(cfg, nil, nil)

	head := newTestSink(t, UnknownLength)
	head.Activate()
	head.Write(0, samples(3, 0))
	tl.SetSinks([]*Sink{head})

	reads := tl.Advance(10)
	require.Len(t, reads, 1)
	assert.Equal(t, 3, reads[0].Amount)
	assert.Equal(t, int64(3), tl.Offset())

	reads = tl.Advance(10)
	assert.Empty(t, reads)
	assert.Len(t, tl.Sinks(), 1, "underflowed sink must not be removed")
}

func TestTimelinePreloadIdempotentWithoutIntervening(t *testing.T) {
	cfg := mustConfig(t, 1, 1, 3, 3)
	tl := NewTimeline(cfg, nil, nil)

	a := newTestSink(t, 10)
	tl.SetSinks([]*Sink{a})

	first := tl.Preload()
	second := tl.Preload()
	assert.Equal(t, first, second)
}

func TestTimelineSetSinksDoesNotResetOffset(t *testing.T) {
	cfg := mustConfig(t, 1, 1, 3, 3)
	tl := NewTimeline(cfg, nil, nil)

	a := newTestSink(t, 10)
	a.Write(0, samples(10, 0))
	tl.SetSinks([]*Sink{a})
	tl.Advance(4)
	require.Equal(t, int64(4), tl.Offset())

	b := newTestSink(t, 10)
	tl.SetSinks([]*Sink{b, a})

	assert.Equal(t, int64(4), tl.Offset(), "replacing the head must not reset offset")
}
