package playback

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// memLoadable is an in-memory Loadable double for tests: it serves raw
// bytes from a fixed buffer and can be made to fail on a given read.
type memLoadable struct {
	mu       sync.Mutex
	data     []byte
	cursor   int64
	failErr  error
	readSize int
	closed   bool

	// gate, when non-nil, is received from before every Read (the first
	// included), letting a test hold a load mid-flight deterministically.
	gate chan struct{}
}

func newMemLoadable(data []byte) *memLoadable {
	return &memLoadable{data: data, readSize: 4}
}

func (m *memLoadable) Read(_ context.Context, dst []byte) (ReadResult, error) {
	if m.gate != nil {
		<-m.gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return ReadResult{}, m.failErr
	}

	remaining := m.data[m.cursor:]
	n := m.readSize
	if n > len(remaining) {
		n = len(remaining)
	}
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst, remaining[:n])
	m.cursor += int64(n)

	if m.cursor >= int64(len(m.data)) {
		return ReadResult{Kind: ReadEnd, Amount: n}, nil
	}
	return ReadResult{Kind: ReadMore, Amount: n}, nil
}

func (m *memLoadable) Length() *LoaderLength {
	return &LoaderLength{Kind: LoaderLengthBytes, Bytes: int64(len(m.data))}
}

func (m *memLoadable) Seek(_ context.Context, req SeekRequest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch req.Whence {
	case SeekStart:
		m.cursor = req.Offset
	case SeekCurrent:
		m.cursor += req.Offset
	case SeekEnd:
		m.cursor = int64(len(m.data)) + req.Offset
	}
	return m.cursor, nil
}

func (m *memLoadable) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func floatsToBytes(vals ...float32) []byte {
	var buf bytes.Buffer
	for _, v := range vals {
		bits := math.Float32bits(v)
		buf.WriteByte(byte(bits))
		buf.WriteByte(byte(bits >> 8))
		buf.WriteByte(byte(bits >> 16))
		buf.WriteByte(byte(bits >> 24))
	}
	return buf.Bytes()
}

func newTestIngestion(t *testing.T) *Ingestion {
	t.Helper()
	cfg := mustConfig(t, 1, 1, 3, 3)
	ing := NewIngestion(cfg, IngestionConfig{ChunkSizeBytes: 4, BytesPerSample: 4}, nil, nil, DecodeFloat32LE)
	t.Cleanup(func() { _ = ing.Close() })
	return ing
}

func TestIngestionIngestDerivesExpectedLengthFromBytes(t *testing.T) {
	ing := newTestIngestion(t)
	data := floatsToBytes(1, 2, 3, 4)
	sink := ing.Ingest(newMemLoadable(data))

	require.NotNil(t, sink.ExpectedLength())
	assert.Equal(t, 4, *sink.ExpectedLength())
	assert.Equal(t, SinkIdle, sink.State().Kind)
}

func TestIngestionRequestLoadFillsSinkAndSeals(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("testing.(*T).Run"),
		goleak.IgnoreTopFunction("runtime.gopark"),
	)

	ing := newTestIngestion(t)
	data := floatsToBytes(1, 2, 3, 4)
	sink := ing.Ingest(newMemLoadable(data))

	ing.RequestLoad(sink.ID, 0, 4)

	require.Eventually(t, func() bool {
		return sink.State().Kind == SinkSealed
	}, time.Second, time.Millisecond)

	dst := make([]Sample, 4)
	read := sink.Read(0, dst)
	assert.Equal(t, 4, read.Amount)
	assert.Equal(t, []Sample{1, 2, 3, 4}, dst)
}

func TestIngestionRequestLoadTransitionsToErrorOnReadFailure(t *testing.T) {
	ing := newTestIngestion(t)
	loadable := newMemLoadable(floatsToBytes(1, 2))
	loadable.failErr = errors.New("disk exploded")
	sink := ing.Ingest(loadable)

	ing.RequestLoad(sink.ID, 0, 2)

	require.Eventually(t, func() bool {
		return sink.State().Kind == SinkError
	}, time.Second, time.Millisecond)

	assert.Equal(t, "disk exploded", sink.State().Reason)
}

func TestIngestionRequestLoadCoalescesOverlappingRequest(t *testing.T) {
	ing := newTestIngestion(t)
	loadable := newMemLoadable(floatsToBytes(1, 2, 3, 4, 5, 6))
	loadable.readSize = 4 // one sample per chunk
	loadable.gate = make(chan struct{})
	sink := ing.Ingest(loadable)

	ing.RequestLoad(sink.ID, 0, 2)
	loadable.gate <- struct{}{} // let the first chunk (offset 0, cursor->1) through

	require.Eventually(t, func() bool {
		ing.mu.Lock()
		job, inFlight := ing.loading[sink.ID]
		ing.mu.Unlock()
		return inFlight && job.cursor == 1
	}, time.Second, time.Millisecond, "load must still be in flight after one chunk")

	// offset 1 starts at-or-before the job's cursor (1), so this extends it.
	ing.RequestLoad(sink.ID, 1, 3)

	ing.mu.Lock()
	job := ing.loading[sink.ID]
	ing.mu.Unlock()
	require.NotNil(t, job)
	assert.Equal(t, 4, job.amount, "coalesced amount should cover offset 1 + amount 3")

	close(loadable.gate)

	require.Eventually(t, func() bool {
		return sink.State().Kind == SinkSealed || sink.State().Kind == SinkActive
	}, time.Second, time.Millisecond)
}

func TestIngestionRequestLoadDropsSupersededRequest(t *testing.T) {
	ing := newTestIngestion(t)
	loadable := newMemLoadable(floatsToBytes(1, 2, 3, 4, 5, 6))
	loadable.readSize = 4
	loadable.gate = make(chan struct{})
	sink := ing.Ingest(loadable)

	ing.RequestLoad(sink.ID, 0, 6)
	loadable.gate <- struct{}{} // cursor advances to 1

	require.Eventually(t, func() bool {
		ing.mu.Lock()
		_, inFlight := ing.loading[sink.ID]
		ing.mu.Unlock()
		return inFlight
	}, time.Second, time.Millisecond)

	ing.mu.Lock()
	originalAmount := ing.loading[sink.ID].amount
	ing.mu.Unlock()

	// offset 5 is past the job's cursor (1): already-superseded, must drop.
	ing.RequestLoad(sink.ID, 5, 1)

	ing.mu.Lock()
	assert.Equal(t, originalAmount, ing.loading[sink.ID].amount, "a request starting past the job cursor must be dropped, not extended")
	ing.mu.Unlock()

	close(loadable.gate)

	require.Eventually(t, func() bool {
		return sink.State().Kind == SinkSealed || sink.State().Kind == SinkActive
	}, time.Second, time.Millisecond)
}

func TestIngestionForgetClosesLoadableAndUntracksSink(t *testing.T) {
	ing := newTestIngestion(t)
	loadable := newMemLoadable(floatsToBytes(1, 2, 3, 4))
	sink := ing.Ingest(loadable)

	ing.RequestLoad(sink.ID, 0, 4)
	ing.Forget(sink.ID)

	ing.mu.Lock()
	_, stillTracked := ing.sinks[sink.ID]
	ing.mu.Unlock()
	assert.False(t, stillTracked)

	loadable.mu.Lock()
	closed := loadable.closed
	loadable.mu.Unlock()
	assert.True(t, closed)
}
