package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turntable-fm/playback/internal/logging"
)

// Config holds event bus configuration.
type Config struct {
	BufferSize int
	Workers    int
}

// DefaultConfig returns sane defaults for a single-process harness.
func DefaultConfig() Config {
	return Config{
		BufferSize: 1024,
		Workers:    2,
	}
}

// Bus provides asynchronous, non-blocking fan-out of PipelineEvents to
// registered consumers. TryPublish never blocks the caller: a full channel
// means the event is dropped, not queued further.
type Bus struct {
	eventChan chan PipelineEvent

	workers int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	running atomic.Bool

	mu        sync.Mutex
	consumers []EventConsumer

	stats BusStats

	logger *slog.Logger
}

// New creates a Bus with the given configuration but does not start its
// workers until the first consumer registers.
func New(cfg Config) *Bus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		eventChan: make(chan PipelineEvent, cfg.BufferSize),
		workers:   cfg.Workers,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logging.ForService("events"),
	}
}

// RegisterConsumer adds a consumer and starts the worker pool on first use.
func (b *Bus) RegisterConsumer(consumer EventConsumer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consumers = append(b.consumers, consumer)
	b.logger.Info("registered event consumer", "consumer", consumer.Name())

	if !b.running.Swap(true) {
		b.start()
	}
}

// TryPublish attempts to publish event without blocking. Returns true if
// accepted, false if dropped (no consumers, or the buffer is full).
func (b *Bus) TryPublish(event PipelineEvent) bool {
	if b == nil || !b.running.Load() {
		return false
	}

	select {
	case b.eventChan <- event:
		atomic.AddUint64(&b.stats.EventsReceived, 1)
		return true
	default:
		atomic.AddUint64(&b.stats.EventsDropped, 1)
		b.logger.Debug("event dropped due to full buffer", "kind", event.Kind())
		return false
	}
}

func (b *Bus) start() {
	b.logger.Info("starting event bus workers", "count", b.workers)
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()
	logger := b.logger.With("worker_id", id)

	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-b.eventChan:
			if !ok {
				return
			}
			b.dispatch(event, logger)
		}
	}
}

func (b *Bus) dispatch(event PipelineEvent, logger *slog.Logger) {
	b.mu.Lock()
	consumers := make([]EventConsumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.Unlock()

	for _, consumer := range consumers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					atomic.AddUint64(&b.stats.ConsumerErrors, 1)
					logger.Error("consumer panicked", "consumer", consumer.Name(), "panic", r, "kind", event.Kind())
				}
			}()
			if err := consumer.ProcessEvent(event); err != nil {
				atomic.AddUint64(&b.stats.ConsumerErrors, 1)
				logger.Error("consumer error", "consumer", consumer.Name(), "error", err, "kind", event.Kind())
				return
			}
			atomic.AddUint64(&b.stats.EventsProcessed, 1)
		}()
	}
}

// Shutdown stops accepting events and waits for in-flight dispatch to
// finish, up to timeout.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if b == nil || !b.running.Swap(false) {
		return nil
	}

	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("events: shutdown timeout exceeded")
	}
}

// Stats returns a snapshot of the bus's runtime counters.
func (b *Bus) Stats() BusStats {
	if b == nil {
		return BusStats{}
	}
	return BusStats{
		EventsReceived:  atomic.LoadUint64(&b.stats.EventsReceived),
		EventsProcessed: atomic.LoadUint64(&b.stats.EventsProcessed),
		EventsDropped:   atomic.LoadUint64(&b.stats.EventsDropped),
		ConsumerErrors:  atomic.LoadUint64(&b.stats.ConsumerErrors),
	}
}
