package playback

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/turntable-fm/playback/internal/events"
	"github.com/turntable-fm/playback/internal/ids"
	"github.com/turntable-fm/playback/internal/observability/metrics"
)

// TimelineRead is one contiguous span handed back by advance, naming the
// sink it came from so the caller can detect track boundaries.
type TimelineRead struct {
	Sink   *Sink
	Offset int
	Amount int
}

// TimelinePreload is a load intent produced by preload, to be forwarded to
// Ingestion.RequestLoad by the caller.
type TimelinePreload struct {
	SinkID SinkId
	Offset int
}

// TimelineChangedEvent is published whenever the sink queue's membership
// changes, reporting the resulting ordered id list.
type TimelineChangedEvent struct {
	SinkIDs []SinkId
	at      time.Time
}

func (e TimelineChangedEvent) Kind() events.PipelineEventKind { return events.KindTimelineChanged }
func (e TimelineChangedEvent) Timestamp() time.Time           { return e.at }

// PlayerAdvancedEvent is published once per advance call that returned at
// least one read, reporting how many samples were delivered.
type PlayerAdvancedEvent struct {
	SamplesDelivered int
	TotalOffset      int64
	at               time.Time
}

func (e PlayerAdvancedEvent) Kind() events.PipelineEventKind { return events.KindPlayerAdvanced }
func (e PlayerAdvancedEvent) Timestamp() time.Time           { return e.at }

// Timeline is the ordered queue of sinks a player reads from, plus its
// playback cursor. The cursor (offset, totalOffset) is a pair of atomics
// so the audio thread can observe it without taking the queue mutex.
type Timeline struct {
	id      PlayerId
	config  Config
	bus     *events.Bus
	metrics *metrics.PlaybackMetrics

	mu    sync.Mutex
	sinks []*Sink

	offset      atomic.Int64 // position within the head sink
	totalOffset atomic.Int64 // monotonic samples consumed since creation

	// preloadPending* track the head sink currently below the preload
	// threshold, so the next call that finds it caught up can report how
	// long it took.
	preloadPendingSink  SinkId
	preloadPendingSince time.Time
	preloadPending      bool
}

// NewTimeline creates an empty Timeline, assigning it a fresh PlayerId. m
// may be nil.
func NewTimeline(config Config, bus *events.Bus, m *metrics.PlaybackMetrics) *Timeline {
	return &Timeline{id: ids.NewPlayerId(), config: config, bus: bus, metrics: m}
}

// ID identifies this playback session: one Timeline, one cursor.
func (t *Timeline) ID() PlayerId { return t.id }

// Offset returns the current position within the head sink.
func (t *Timeline) Offset() int64 { return t.offset.Load() }

// TotalOffset returns the monotonic count of samples consumed since creation.
func (t *Timeline) TotalOffset() int64 { return t.totalOffset.Load() }

// Sinks returns a snapshot of the current queue, head first.
func (t *Timeline) Sinks() []*Sink {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Sink, len(t.sinks))
	copy(out, t.sinks)
	return out
}

// Advance walks playable sinks starting at the head, consuming up to
// amount samples, and reports the contiguous spans it read. It never
// blocks: unavailable samples simply end the walk early (a short read).
func (t *Timeline) Advance(amount int) []TimelineRead {
	t.mu.Lock()
	defer t.mu.Unlock()

	var reads []TimelineRead
	remaining := amount
	cursor := int(t.offset.Load())

	playable := make([]*Sink, 0, len(t.sinks))
	for _, s := range t.sinks {
		if s.IsPlayable() {
			playable = append(playable, s)
		}
	}

	for _, sink := range playable {
		if remaining == 0 {
			break
		}

		avail := sink.DistanceFromVoid(cursor)
		take := avail.Distance
		if take > remaining {
			take = remaining
		}

		if take > 0 {
			reads = append(reads, TimelineRead{Sink: sink, Offset: cursor, Amount: take})
			t.totalOffset.Add(int64(take))
			cursor += take
			remaining -= take
		}
		t.offset.Store(int64(cursor))

		moveOn := !sink.IsLoadable() && avail.IsEnd && avail.Distance-take == 0
		if !moveOn {
			break
		}

		sink.Deactivate()
		t.sinks = removeSink(t.sinks, sink.ID)
		t.offset.Store(0)
		cursor = 0
		t.publishQueueChangeLocked()
	}

	if remaining > 0 && t.metrics != nil {
		t.metrics.RecordShortRead()
	}

	if t.bus != nil && len(reads) > 0 {
		t.bus.TryPublish(PlayerAdvancedEvent{
			SamplesDelivered: amount - remaining,
			TotalOffset:      t.totalOffset.Load(),
			at:               time.Now(),
		})
	}

	return reads
}

// removeSink returns sinks with the entry matching id removed, preserving order.
func removeSink(sinks []*Sink, id SinkId) []*Sink {
	out := make([]*Sink, 0, len(sinks))
	for _, s := range sinks {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}

// Preload plans what should be loaded next without performing any I/O.
// It must not be called while a load is in progress for any sink it
// returns; the Ingestion service is responsible for that invariant.
func (t *Timeline) Preload() []TimelinePreload {
	t.mu.Lock()
	defer t.mu.Unlock()

	var intents []TimelinePreload
	threshold := t.config.PreloadThresholdInSamples()
	budget := threshold
	offset := int(t.offset.Load())

	if head := firstOrNil(t.sinks); head != nil {
		t.trackPreloadLagLocked(head.ID, head.DistanceFromVoid(offset).Distance, threshold)
	}

	for _, sink := range t.sinks {
		avail := sink.DistanceFromVoid(offset)
		if avail.Distance >= threshold || budget <= 0 {
			break
		}

		if sink.IsLoadable() {
			intents = append(intents, TimelinePreload{SinkID: sink.ID, Offset: offset + avail.Distance})

			endAvail := sink.DistanceFromEnd(offset)
			spend := endAvail
			if spend > budget {
				spend = budget
			}
			budget -= spend
		}

		offset = 0
	}

	return intents
}

// SetSinks replaces the queue: deactivates everything removed, activates
// everything added. It does not reset offset — replacement is for
// appending/rewriting the tail, not for scrubbing the head (see
// DESIGN.md's resolution of the head-replacement open question).
func (t *Timeline) SetSinks(newSinks []*Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()

	oldByID := make(map[SinkId]*Sink, len(t.sinks))
	for _, s := range t.sinks {
		oldByID[s.ID] = s
	}
	newByID := make(map[SinkId]*Sink, len(newSinks))
	for _, s := range newSinks {
		newByID[s.ID] = s
	}

	for id, s := range oldByID {
		if _, stillPresent := newByID[id]; !stillPresent {
			s.Deactivate()
		}
	}
	for id, s := range newByID {
		if _, alreadyPresent := oldByID[id]; !alreadyPresent {
			s.Activate()
		}
	}

	t.sinks = append([]*Sink{}, newSinks...)
	t.publishQueueChangeLocked()
}

// ClearSuperflous trims the head sink's buffer to a guard window around
// the current offset, freeing memory behind the playhead.
func (t *Timeline) ClearSuperflous() {
	t.mu.Lock()
	head := firstOrNil(t.sinks)
	offset := int(t.offset.Load())
	t.mu.Unlock()

	if head == nil {
		return
	}
	window := t.config.PreloadSizeInSamples() * 4
	head.ClearOutside(offset, window, t.config.ChannelCount)
}

// Reset sets offset to 0 for the head sink, used when the caller explicitly
// restarts the current track.
func (t *Timeline) Reset() {
	t.offset.Store(0)
}

// trackPreloadLagLocked starts or resolves the preload-lag measurement for
// the head sink. If sinkID was already below threshold and has now caught
// up, it reports the elapsed time to metrics. Must be called with t.mu held.
func (t *Timeline) trackPreloadLagLocked(sinkID SinkId, distance, threshold int) {
	caughtUp := distance >= threshold

	if t.preloadPending && t.preloadPendingSink == sinkID {
		if caughtUp {
			if t.metrics != nil {
				t.metrics.ObservePreloadLag(time.Since(t.preloadPendingSince).Seconds())
			}
			t.preloadPending = false
		}
		return
	}

	if !caughtUp {
		t.preloadPendingSink = sinkID
		t.preloadPendingSince = time.Now()
		t.preloadPending = true
	}
}

func (t *Timeline) publishQueueChangeLocked() {
	if t.bus == nil {
		return
	}
	sinkIDs := make([]SinkId, len(t.sinks))
	for i, s := range t.sinks {
		sinkIDs[i] = s.ID
	}
	t.bus.TryPublish(TimelineChangedEvent{SinkIDs: sinkIDs, at: time.Now()})
}

func firstOrNil(sinks []*Sink) *Sink {
	if len(sinks) == 0 {
		return nil
	}
	return sinks[0]
}
