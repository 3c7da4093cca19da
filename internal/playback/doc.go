// Package playback implements the sample-flow pipeline of a collaborative
// audio turntable server: a sparsely populated range buffer fed by a
// background loader (Sink/MultiRangeBuffer), a queue of sinks with a
// real-time playback cursor (Timeline), and the ingestion loop that drives
// external Loadable sources into sinks without blocking the audio thread.
//
// # Architecture Overview
//
//   - MultiRangeBuffer: sparse, range-indexed sample storage with reclamation
//   - Sink: buffer wrapper plus a lifecycle state machine and event emission
//   - Timeline: ordered queue of sinks, playback cursor, advance/preload
//   - Ingestion: schedules loads against Loadable sources and writes into sinks
//
// # Concurrency and Thread Safety
//
// Sink and MultiRangeBuffer are safe for concurrent use: reads happen on the
// audio thread, writes happen on ingestion worker goroutines. Timeline's
// cursor (offset, total_offset) is a pair of atomics so it can be observed
// without taking the mutex that guards the sink queue; Advance itself does
// take that mutex. See the
// concurrency notes on Timeline and Ingestion for the exact discipline.
//
// # Error Handling
//
// Errors raised by a Loadable never reach the audio thread; they are
// absorbed into SinkState.Error(reason) and reported via the event bus.
// Errors raised before a sink exists (resolving an Input) are returned
// directly to the caller and never touch a Sink or Timeline.
package playback
