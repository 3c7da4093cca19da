// Package metrics exposes Prometheus instrumentation for the playback
// core. A nil *PlaybackMetrics is always safe to call methods on: callers
// that did not wire metrics simply get no-ops, mirroring the rest of this
// module's nil-receiver collector pattern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PlaybackMetrics collects counters, gauges, and histograms describing the
// health of the sink/timeline/ingestion pipeline.
type PlaybackMetrics struct {
	sinkStateTransitions *prometheus.CounterVec
	bufferBytesResident  *prometheus.GaugeVec
	preloadLag           prometheus.Histogram
	ingestedSamplesTotal *prometheus.CounterVec
	shortReadsTotal      prometheus.Counter
}

// NewPlaybackMetrics registers and returns a PlaybackMetrics bound to registry.
func NewPlaybackMetrics(registry *prometheus.Registry) *PlaybackMetrics {
	m := &PlaybackMetrics{
		sinkStateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "playback",
			Name:      "sink_state_transitions_total",
			Help:      "Number of sink state transitions, labeled by origin and destination state.",
		}, []string{"from", "to"}),
		bufferBytesResident: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "playback",
			Name:      "buffer_samples_resident",
			Help:      "Samples currently resident in a sink's buffer.",
		}, []string{"sink_id"}),
		preloadLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "playback",
			Name:      "preload_lag_seconds",
			Help:      "Time between a preload intent being emitted and its threshold being satisfied.",
			Buckets:   prometheus.DefBuckets,
		}),
		ingestedSamplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "playback",
			Name:      "ingested_samples_total",
			Help:      "Total samples written into sinks by the ingestion service.",
		}, []string{"sink_id"}),
		shortReadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "playback",
			Name:      "timeline_short_reads_total",
			Help:      "Number of advance() calls that returned fewer samples than requested.",
		}),
	}

	registry.MustRegister(
		m.sinkStateTransitions,
		m.bufferBytesResident,
		m.preloadLag,
		m.ingestedSamplesTotal,
		m.shortReadsTotal,
	)

	return m
}

// RecordSinkStateTransition increments the transition counter for from->to.
func (m *PlaybackMetrics) RecordSinkStateTransition(from, to string) {
	if m == nil {
		return
	}
	m.sinkStateTransitions.WithLabelValues(from, to).Inc()
}

// SetBufferResident sets the resident sample count for a sink.
func (m *PlaybackMetrics) SetBufferResident(sinkID string, samples float64) {
	if m == nil {
		return
	}
	m.bufferBytesResident.WithLabelValues(sinkID).Set(samples)
}

// ObservePreloadLag records a preload-satisfaction latency.
func (m *PlaybackMetrics) ObservePreloadLag(seconds float64) {
	if m == nil {
		return
	}
	m.preloadLag.Observe(seconds)
}

// RecordIngestedSamples adds n to the ingested sample count for a sink.
func (m *PlaybackMetrics) RecordIngestedSamples(sinkID string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ingestedSamplesTotal.WithLabelValues(sinkID).Add(float64(n))
}

// RecordShortRead increments the short-read counter.
func (m *PlaybackMetrics) RecordShortRead() {
	if m == nil {
		return
	}
	m.shortReadsTotal.Inc()
}
