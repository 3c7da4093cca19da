package playback

import (
	"context"
	"errors"
	"math"

	"github.com/turntable-fm/playback/internal/ids"
)

// Sample is a single floating-point audio sample. Samples are interleaved
// by channel; one frame is Config.ChannelCount samples.
type Sample = float32

// UnknownLength marks a buffer or sink with no known upper bound (a live
// stream). It plays the role of usize::MAX in the reference design: any
// real offset compares less than it, and subtraction against it saturates.
const UnknownLength = math.MaxInt64

// Config is immutable after construction. Derived sample counts are
// computed once and cached, never recomputed on the hot path.
type Config struct {
	SampleRate                int
	ChannelCount              int
	PreloadThresholdInSeconds float64
	PreloadSizeInSeconds      float64

	preloadThresholdInSamples int
	preloadSizeInSamples      int
}

// NewConfig validates and constructs a Config, pre-computing derived sample
// counts so every consumer observes the same rounding.
func NewConfig(sampleRate, channelCount int, preloadThresholdSeconds, preloadSizeSeconds float64) (Config, error) {
	if sampleRate <= 0 {
		return Config{}, errors.New("playback: sample_rate must be positive")
	}
	if channelCount <= 0 {
		return Config{}, errors.New("playback: channel_count must be positive")
	}
	if preloadThresholdSeconds < 0 || preloadSizeSeconds < 0 {
		return Config{}, errors.New("playback: preload thresholds must be non-negative")
	}
	cfg := Config{
		SampleRate:                sampleRate,
		ChannelCount:              channelCount,
		PreloadThresholdInSeconds: preloadThresholdSeconds,
		PreloadSizeInSeconds:      preloadSizeSeconds,
	}
	cfg.preloadThresholdInSamples = secondsToSamples(preloadThresholdSeconds, sampleRate, channelCount)
	cfg.preloadSizeInSamples = secondsToSamples(preloadSizeSeconds, sampleRate, channelCount)
	return cfg, nil
}

func secondsToSamples(seconds float64, sampleRate, channelCount int) int {
	frames := int(math.Ceil(seconds * float64(sampleRate)))
	return frames * channelCount
}

// PreloadThresholdInSamples returns the cached derived quantity.
func (c Config) PreloadThresholdInSamples() int { return c.preloadThresholdInSamples }

// PreloadSizeInSamples returns the cached derived quantity.
func (c Config) PreloadSizeInSamples() int { return c.preloadSizeInSamples }

// Range is a contiguous, half-open region [Start, End) of sample indices
// within a sink's logical stream.
type Range struct {
	Start int
	End   int
}

// Len returns the number of samples the range spans.
func (r Range) Len() int { return r.End - r.Start }

// Contains reports whether offset falls within [Start, End).
func (r Range) Contains(offset int) bool {
	return offset >= r.Start && offset < r.End
}

// touchesOrOverlaps reports whether r and other are adjacent or overlapping,
// i.e. merging them would not introduce a gap.
func (r Range) touchesOrOverlaps(other Range) bool {
	return r.Start <= other.End && other.Start <= r.End
}

// BufferReadKind discriminates the outcome of a Sink/MultiRangeBuffer read.
type BufferReadKind int

const (
	// BufferReadEmpty means no data is available at the requested offset.
	BufferReadEmpty BufferReadKind = iota
	// BufferReadPartial means n < requested samples were returned; more may arrive.
	BufferReadPartial
	// BufferReadFull means exactly the requested number of samples were returned.
	BufferReadFull
	// BufferReadEnd means n samples were returned and no more will ever come.
	BufferReadEnd
)

// BufferRead is the result of a read against a MultiRangeBuffer or Sink.
type BufferRead struct {
	Kind   BufferReadKind
	Amount int
}

func emptyRead() BufferRead           { return BufferRead{Kind: BufferReadEmpty} }
func partialRead(n int) BufferRead    { return BufferRead{Kind: BufferReadPartial, Amount: n} }
func fullRead(n int) BufferRead       { return BufferRead{Kind: BufferReadFull, Amount: n} }
func endRead(n int) BufferRead        { return BufferRead{Kind: BufferReadEnd, Amount: n} }

// BufferVoidDistance reports how many contiguous samples are available
// starting at a given offset, and whether that run's end coincides with
// the end of the source.
type BufferVoidDistance struct {
	Distance int
	IsEnd    bool
}

// LoaderLengthKind discriminates the unit a Loadable reports its length in.
type LoaderLengthKind int

const (
	LoaderLengthBytes LoaderLengthKind = iota
	LoaderLengthSamples
	LoaderLengthDuration
)

// LoaderLength is the length of a Loadable's underlying source, reported in
// whatever unit is natural for that source.
type LoaderLength struct {
	Kind     LoaderLengthKind
	Bytes    int64
	Samples  int64
	Duration float64 // seconds, only meaningful when Kind == LoaderLengthDuration
}

// ReadResultKind discriminates the outcome of a Loadable.Read call.
type ReadResultKind int

const (
	// ReadMore means n bytes were returned and more may follow.
	ReadMore ReadResultKind = iota
	// ReadEnd means n bytes were returned and the stream is now exhausted.
	ReadEnd
)

// ReadResult is returned by Loadable.Read.
type ReadResult struct {
	Kind   ReadResultKind
	Amount int
}

// SeekWhence mirrors io.Seeker's whence values in a Loadable-specific type
// so the contract does not silently depend on the os/io constants.
type SeekWhence int

const (
	SeekStart SeekWhence = iota
	SeekCurrent
	SeekEnd
)

// SeekRequest describes a seek in whatever unit the Loadable operates on.
type SeekRequest struct {
	Whence SeekWhence
	Offset int64
}

// Loadable is implemented by decoder adapters and consumed by the
// ingestion service. Every method must be safe to call from a worker
// goroutine and may block; none may be called from the audio thread.
type Loadable interface {
	// Read fills dst and reports how much of it was populated.
	Read(ctx context.Context, dst []byte) (ReadResult, error)
	// Length reports the source's length, or nil if unknown (a live stream).
	Length() *LoaderLength
	// Seek repositions the read cursor and returns the new byte offset.
	Seek(ctx context.Context, req SeekRequest) (int64, error)
	// Close releases the underlying resource. Safe to call more than once.
	Close() error
}

// IntoLoadable converts a concrete source into a Loadable, transferring
// ownership of the underlying resource: it is released only when the
// returned Loadable is closed.
type IntoLoadable interface {
	IntoLoadable() (Loadable, error)
}

// InputMetadata describes a resolved Input for display purposes.
type InputMetadata struct {
	Title    string
	Artist   string
	Canonical string
	Source   string
	Duration float64
	Artwork  string
}

// Input is implemented by the provider layer and produces Loadables.
type Input interface {
	// Test is a cheap prefix/URL check for whether this provider can
	// handle query, without doing any network I/O.
	Test(query string) bool
	// Fetch resolves a query into one or more inputs (playlists expand
	// to multiple entries).
	Fetch(ctx context.Context, query string) ([]Input, error)
	// Length reports the input's duration in seconds, if known.
	Length() *float32
	// Metadata returns display metadata for this input.
	Metadata() InputMetadata
	// Loadable activates the underlying resource.
	Loadable(ctx context.Context) (Loadable, error)
}

// SinkId is a type alias kept local so other files in this package
// can refer to ids.SinkId as SinkId without importing the ids package
// directly everywhere.
type SinkId = ids.SinkId

// PlayerId identifies a playback session; see ids.PlayerId.
type PlayerId = ids.PlayerId
