// Package testsupport provides in-memory Loadable/Input doubles for tests
// and the cmd/playbacksim harness, standing in for a real network provider
// (YouTube, WaveDistrict) the way the teacher's implementors/ package
// provides concrete adapters for real devices.
package testsupport

import (
	"context"
	"io"
	"math"
	"sync"

	"github.com/turntable-fm/playback/internal/playback"
)

// FakeLoadable serves samples from an in-memory slice, encoded as
// little-endian float32 bytes, simulating a fully local audio source with
// a known length. Reads are chunked to ReadChunkSamples samples at a time
// (default 256) to exercise the ingestion worker's chunked-read loop.
type FakeLoadable struct {
	mu               sync.Mutex
	samples          []playback.Sample
	cursor           int64 // byte cursor
	ReadChunkSamples int
	closed           bool
}

// NewFakeLoadable wraps samples for sequential byte-oriented reads.
func NewFakeLoadable(samples []playback.Sample) *FakeLoadable {
	return &FakeLoadable{samples: samples, ReadChunkSamples: 256}
}

func (f *FakeLoadable) chunkSamples() int {
	if f.ReadChunkSamples <= 0 {
		return 256
	}
	return f.ReadChunkSamples
}

func (f *FakeLoadable) Read(ctx context.Context, dst []byte) (playback.ReadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return playback.ReadResult{}, io.ErrClosedPipe
	}
	if err := ctx.Err(); err != nil {
		return playback.ReadResult{}, err
	}

	totalBytes := int64(len(f.samples)) * 4
	if f.cursor >= totalBytes {
		return playback.ReadResult{Kind: playback.ReadEnd}, nil
	}

	want := f.chunkSamples() * 4
	if want > len(dst) {
		want = len(dst)
	}
	remaining := totalBytes - f.cursor
	if int64(want) > remaining {
		want = int(remaining)
	}

	startSample := f.cursor / 4
	n := want / 4
	for i := 0; i < n; i++ {
		bits := math.Float32bits(f.samples[int(startSample)+i])
		off := i * 4
		dst[off] = byte(bits)
		dst[off+1] = byte(bits >> 8)
		dst[off+2] = byte(bits >> 16)
		dst[off+3] = byte(bits >> 24)
	}

	f.cursor += int64(n * 4)

	if f.cursor >= totalBytes {
		return playback.ReadResult{Kind: playback.ReadEnd, Amount: n * 4}, nil
	}
	return playback.ReadResult{Kind: playback.ReadMore, Amount: n * 4}, nil
}

func (f *FakeLoadable) Length() *playback.LoaderLength {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &playback.LoaderLength{Kind: playback.LoaderLengthBytes, Bytes: int64(len(f.samples)) * 4}
}

func (f *FakeLoadable) Seek(ctx context.Context, req playback.SeekRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	totalBytes := int64(len(f.samples)) * 4
	switch req.Whence {
	case playback.SeekStart:
		f.cursor = req.Offset
	case playback.SeekCurrent:
		f.cursor += req.Offset
	case playback.SeekEnd:
		f.cursor = totalBytes + req.Offset
	}
	return f.cursor, nil
}

func (f *FakeLoadable) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// IntoLoadable satisfies playback.IntoLoadable, returning itself.
func (f *FakeLoadable) IntoLoadable() (playback.Loadable, error) {
	return f, nil
}

// FakeInput resolves any query that matches Prefix to a single FakeLoadable,
// standing in for a real provider during tests and the harness.
type FakeInput struct {
	Prefix   string
	Title    string
	Artist   string
	Samples  []playback.Sample
	duration float32
}

// NewFakeInput builds a FakeInput that always resolves to the same samples.
func NewFakeInput(prefix, title, artist string, samples []playback.Sample, sampleRate int) *FakeInput {
	duration := float32(0)
	if sampleRate > 0 {
		duration = float32(len(samples)) / float32(sampleRate)
	}
	return &FakeInput{Prefix: prefix, Title: title, Artist: artist, Samples: samples, duration: duration}
}

func (f *FakeInput) Test(query string) bool {
	return len(query) >= len(f.Prefix) && query[:len(f.Prefix)] == f.Prefix
}

func (f *FakeInput) Fetch(ctx context.Context, query string) ([]playback.Input, error) {
	if !f.Test(query) {
		return nil, playback.NewInputError(playback.InputErrorNoMatch, "")
	}
	return []playback.Input{f}, nil
}

func (f *FakeInput) Length() *float32 {
	d := f.duration
	return &d
}

func (f *FakeInput) Metadata() playback.InputMetadata {
	return playback.InputMetadata{
		Title:     f.Title,
		Artist:    f.Artist,
		Canonical: f.Prefix,
		Source:    "testsupport",
		Duration:  float64(f.duration),
	}
}

func (f *FakeInput) Loadable(ctx context.Context) (playback.Loadable, error) {
	return NewFakeLoadable(f.Samples), nil
}
