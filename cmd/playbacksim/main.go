// playbacksim wires a FakeLoadable through Ingestion, Sink, and Timeline
// and drives it on a ticker, logging PipelineEvents, the way
// cmd/audiocore-test exercises the audiocore pipeline against a real
// device. It is a harness for exercising the playback core end to end,
// not a server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/turntable-fm/playback/internal/config"
	"github.com/turntable-fm/playback/internal/events"
	"github.com/turntable-fm/playback/internal/logging"
	"github.com/turntable-fm/playback/internal/observability/metrics"
	"github.com/turntable-fm/playback/internal/playback"
	"github.com/turntable-fm/playback/internal/playback/testsupport"
)

var configPath string

func main() {
	root := rootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playbacksim",
		Short: "Drive the playback core against an in-memory fake source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a playbacksim config.yaml")
	if err := viper.BindPFlag("config", cmd.PersistentFlags().Lookup("config")); err != nil {
		fmt.Fprintf(os.Stderr, "error binding flags: %v\n", err)
	}

	return cmd
}

// logEventConsumer adapts structured logging into an events.EventConsumer,
// mirroring the teacher's pattern of attaching a logging sink to its event
// bus for visibility during manual testing.
type logEventConsumer struct{}

func (logEventConsumer) Name() string { return "log" }

func (logEventConsumer) ProcessEvent(event events.PipelineEvent) error {
	logging.ForService("playbacksim").Info("pipeline event", "kind", event.Kind(), "at", event.Timestamp())
	return nil
}

func run(ctx context.Context) error {
	logging.Init()
	logger := logging.ForService("playbacksim")

	settings, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if settings.Debug {
		logging.SetLevel(logging.LevelTrace)
	}

	playbackCfg, err := settings.PlaybackConfig()
	if err != nil {
		return fmt.Errorf("building playback config: %w", err)
	}

	registry := prometheus.NewRegistry()
	playbackMetrics := metrics.NewPlaybackMetrics(registry)

	bus := events.New(events.Config{BufferSize: settings.EventBusBufferSize, Workers: settings.EventBusWorkers})
	bus.RegisterConsumer(logEventConsumer{})
	defer bus.Shutdown(5 * time.Second)

	ingestion := playback.NewIngestion(playbackCfg, settings.IngestionConfig(), bus, playbackMetrics, playback.DecodeFloat32LE)
	defer ingestion.Close()

	timeline := playback.NewTimeline(playbackCfg, bus, playbackMetrics)
	logger.Info("timeline created", "player_id", timeline.ID().String())

	trackSamples := 4 * playbackCfg.SampleRate * playbackCfg.ChannelCount
	sinkA := seedSink(ingestion, trackSamples)
	sinkB := seedSink(ingestion, trackSamples)
	timeline.SetSinks([]*playback.Sink{sinkA, sinkB})

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	chunk := playbackCfg.SampleRate * playbackCfg.ChannelCount / 5

	logger.Info("playbacksim started", "sample_rate", playbackCfg.SampleRate, "channels", playbackCfg.ChannelCount)

	for {
		select {
		case <-runCtx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
			for _, intent := range timeline.Preload() {
				ingestion.RequestLoad(intent.SinkID, intent.Offset, playbackCfg.PreloadSizeInSamples())
			}
			reads := timeline.Advance(chunk)
			if len(reads) == 0 {
				logger.Info("playback queue drained")
				return nil
			}
			for _, read := range reads {
				logger.Debug("advanced", "sink_id", read.Sink.ID.String(), "offset", read.Offset, "amount", read.Amount)
			}
		}
	}
}

func seedSink(ingestion *playback.Ingestion, numSamples int) *playback.Sink {
	samples := make([]playback.Sample, numSamples)
	for i := range samples {
		samples[i] = playback.Sample(i % 100)
	}
	loadable := testsupport.NewFakeLoadable(samples)
	sink := ingestion.Ingest(loadable)
	ingestion.RequestLoad(sink.ID, 0, len(samples))
	return sink
}
