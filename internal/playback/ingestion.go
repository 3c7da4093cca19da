package playback

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/time/rate"

	"github.com/turntable-fm/playback/internal/events"
	"github.com/turntable-fm/playback/internal/ids"
	"github.com/turntable-fm/playback/internal/logging"
	"github.com/turntable-fm/playback/internal/observability/metrics"
)

// Decoder turns raw bytes read from a Loadable into samples. Production
// adapters wrap a real decoder (Symphonia-like); tests and the harness use
// a trivial little-endian float32 decoder (see DecodeFloat32LE).
type Decoder func(raw []byte) []Sample

// IngestionConfig tunes the worker pool and per-load throttling. Zero
// values fall back to sane defaults in NewIngestion.
type IngestionConfig struct {
	ChunkSizeBytes     int
	MaxConcurrentLoads int
	// ChunkReadsPerSecond throttles how fast a single load task may issue
	// Loadable.Read calls. Zero disables throttling.
	ChunkReadsPerSecond float64
	BytesPerSample      int
}

func (c IngestionConfig) withDefaults() IngestionConfig {
	if c.ChunkSizeBytes <= 0 {
		c.ChunkSizeBytes = 32 * 1024
	}
	if c.MaxConcurrentLoads <= 0 {
		c.MaxConcurrentLoads = 4
	}
	if c.BytesPerSample <= 0 {
		c.BytesPerSample = 4
	}
	return c
}

// loadJob tracks one in-flight request_load for a sink.
type loadJob struct {
	offset int
	amount int // target cumulative amount, may be extended by coalescing
	cursor int // how much has been written so far, relative to offset
	cancel context.CancelFunc
}

// Ingestion schedules loads against Loadable sources and writes decoded
// samples into sinks, off the audio thread. At most one load runs per
// sink at a time; overlapping requests are coalesced or dropped.
type Ingestion struct {
	config   IngestionConfig
	sampleCfg Config
	bus      *events.Bus
	metrics  *metrics.PlaybackMetrics
	decode   Decoder
	logger   *slog.Logger

	limiter *rate.Limiter
	sem     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sinks    map[SinkId]*Sink
	loadable map[SinkId]Loadable
	loading  map[SinkId]*loadJob
}

// NewIngestion constructs an Ingestion bound to bus and metrics (either may
// be nil). decode converts raw bytes into samples; pass DecodeFloat32LE for
// the default PCM float32 little-endian layout.
func NewIngestion(sampleCfg Config, cfg IngestionConfig, bus *events.Bus, m *metrics.PlaybackMetrics, decode Decoder) *Ingestion {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	var limiter *rate.Limiter
	if cfg.ChunkReadsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ChunkReadsPerSecond), 1)
	}

	return &Ingestion{
		config:    cfg,
		sampleCfg: sampleCfg,
		bus:       bus,
		metrics:   m,
		decode:    decode,
		logger:    logging.ForService("ingestion"),
		limiter:   limiter,
		sem:       make(chan struct{}, cfg.MaxConcurrentLoads),
		ctx:       ctx,
		cancel:    cancel,
		sinks:     make(map[SinkId]*Sink),
		loadable:  make(map[SinkId]Loadable),
		loading:   make(map[SinkId]*loadJob),
	}
}

// Ingest creates a new sink for loadable, deriving its expected length from
// Loadable.Length. The sink starts Idle; the caller activates it (by
// adding it to a Timeline via SetSinks).
func (ing *Ingestion) Ingest(loadable Loadable) *Sink {
	var expectedLength *int
	if length := loadable.Length(); length != nil {
		n := ing.sampleCountFor(*length)
		if n >= 0 {
			expectedLength = &n
		}
	}

	sink := NewSink(ids.NewSinkId(), expectedLength, ing.bus)

	ing.mu.Lock()
	ing.sinks[sink.ID] = sink
	ing.loadable[sink.ID] = loadable
	ing.mu.Unlock()

	return sink
}

func (ing *Ingestion) sampleCountFor(length LoaderLength) int {
	switch length.Kind {
	case LoaderLengthBytes:
		return int(length.Bytes) / ing.config.BytesPerSample
	case LoaderLengthSamples:
		return int(length.Samples)
	case LoaderLengthDuration:
		frames := length.Duration * float64(ing.sampleCfg.SampleRate)
		return int(frames) * ing.sampleCfg.ChannelCount
	default:
		return -1
	}
}

// RequestLoad enqueues a load job for sink_id. If a load is already in
// flight for that sink, the request is coalesced into the running job
// (extending its target amount) when it overlaps the job's current
// cursor, or dropped as already covered/superseded otherwise. Either way
// the outcome is observable via the sink staying in Loading plus a debug
// log line (see DESIGN.md for why no new event type was added).
func (ing *Ingestion) RequestLoad(sinkID SinkId, offset, amount int) {
	ing.mu.Lock()

	if job, inFlight := ing.loading[sinkID]; inFlight {
		defer ing.mu.Unlock()
		if offset <= job.offset+job.cursor {
			needed := offset + amount - job.offset
			if needed > job.amount {
				job.amount = needed
				ing.logger.Debug("coalesced overlapping load request", "sink_id", sinkID.String(), "new_amount", job.amount)
			}
		} else {
			ing.logger.Debug("dropped overlapping load request", "sink_id", sinkID.String(), "offset", offset)
		}
		return
	}

	sink, sinkOK := ing.sinks[sinkID]
	loadable, loadableOK := ing.loadable[sinkID]
	if !sinkOK || !loadableOK {
		ing.mu.Unlock()
		return
	}

	jobCtx, cancel := context.WithCancel(ing.ctx)
	job := &loadJob{offset: offset, amount: amount, cancel: cancel}
	ing.loading[sinkID] = job
	ing.mu.Unlock()

	ing.wg.Add(1)
	go ing.runLoad(jobCtx, sink, loadable, job)
}

// CancelLoad cancels any in-flight load for sinkID. Safe to call when no
// load is running.
func (ing *Ingestion) CancelLoad(sinkID SinkId) {
	ing.mu.Lock()
	job, ok := ing.loading[sinkID]
	ing.mu.Unlock()
	if ok {
		job.cancel()
	}
}

func (ing *Ingestion) runLoad(ctx context.Context, sink *Sink, loadable Loadable, job *loadJob) {
	defer ing.wg.Done()

	select {
	case ing.sem <- struct{}{}:
		defer func() { <-ing.sem }()
	case <-ctx.Done():
		ing.finishLoad(sink.ID)
		return
	}

	from := sink.State()
	sink.SetState(LoadingState())
	if ing.metrics != nil {
		ing.metrics.RecordSinkStateTransition(from.Kind.String(), SinkLoading.String())
	}

	if _, err := loadable.Seek(ctx, SeekRequest{Whence: SeekStart, Offset: int64(job.offset * ing.config.BytesPerSample)}); err != nil {
		ing.fail(sink, job, err)
		return
	}

	scratch := make([]byte, ing.config.ChunkSizeBytes)

	for {
		if ctx.Err() != nil {
			ing.finishLoad(sink.ID)
			return
		}

		if ing.limiter != nil {
			if err := ing.limiter.Wait(ctx); err != nil {
				ing.finishLoad(sink.ID)
				return
			}
		}

		result, err := loadable.Read(ctx, scratch)
		if err != nil {
			ing.fail(sink, job, err)
			return
		}

		ing.mu.Lock()
		writeOffset := job.offset + job.cursor
		ing.mu.Unlock()

		decoded := ing.decode(scratch[:result.Amount])
		n := sink.Write(writeOffset, decoded)

		ing.mu.Lock()
		job.cursor += n
		resident := job.cursor
		satisfied := job.cursor >= job.amount
		ing.mu.Unlock()

		if ing.metrics != nil {
			ing.metrics.RecordIngestedSamples(sink.ID.String(), n)
			ing.metrics.SetBufferResident(sink.ID.String(), float64(resident))
		}

		if result.Kind == ReadEnd {
			sink.SetState(SealedState())
			if ing.metrics != nil {
				ing.metrics.RecordSinkStateTransition(SinkLoading.String(), SinkSealed.String())
			}
			ing.finishLoad(sink.ID)
			return
		}
		if satisfied {
			sink.SetState(ActiveState())
			if ing.metrics != nil {
				ing.metrics.RecordSinkStateTransition(SinkLoading.String(), SinkActive.String())
			}
			ing.finishLoad(sink.ID)
			return
		}
	}
}

func (ing *Ingestion) fail(sink *Sink, job *loadJob, err error) {
	reason := err.Error()
	sink.SetState(ErrorState(reason))
	if ing.metrics != nil {
		ing.metrics.RecordSinkStateTransition(SinkLoading.String(), SinkError.String())
	}
	ing.logger.Error("load failed", "sink_id", sink.ID.String(), "error", reason)
	ing.finishLoad(sink.ID)
}

func (ing *Ingestion) finishLoad(sinkID SinkId) {
	ing.mu.Lock()
	delete(ing.loading, sinkID)
	ing.mu.Unlock()
}

// Forget releases Ingestion's references to a sink and its loadable,
// closing the loadable. Call once a sink has left the Timeline and no
// load is in flight for it.
func (ing *Ingestion) Forget(sinkID SinkId) {
	ing.CancelLoad(sinkID)

	ing.mu.Lock()
	loadable, ok := ing.loadable[sinkID]
	delete(ing.loadable, sinkID)
	delete(ing.sinks, sinkID)
	ing.mu.Unlock()

	if ok {
		_ = loadable.Close()
	}
}

// Close cancels every in-flight load and waits for their goroutines to exit.
func (ing *Ingestion) Close() error {
	ing.cancel()
	ing.wg.Wait()
	return nil
}

// DecodeFloat32LE decodes raw as a sequence of little-endian float32
// samples. This is the default Decoder used by the harness and tests; a
// production build would replace it with a real codec adapter.
func DecodeFloat32LE(raw []byte) []Sample {
	n := len(raw) / 4
	out := make([]Sample, n)
	for i := 0; i < n; i++ {
		bits := uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
		out[i] = float32FromBits(bits)
	}
	return out
}

func float32FromBits(bits uint32) Sample {
	return Sample(math.Float32frombits(bits))
}
