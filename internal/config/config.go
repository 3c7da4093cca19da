// Package config loads the settings that drive the cmd/playbacksim harness:
// sample format, preload tuning, event bus sizing, and ingestion worker
// limits. It wraps Viper the way the teacher's internal/conf does, with
// defaults applied before any config file is read.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/turntable-fm/playback/internal/playback"
)

// Settings is immutable once returned by Load; callers that need to change
// a field should construct a new Settings.
type Settings struct {
	SampleRate                int     `mapstructure:"sample_rate" yaml:"sample_rate"`
	ChannelCount              int     `mapstructure:"channel_count" yaml:"channel_count"`
	PreloadThresholdInSeconds float64 `mapstructure:"preload_threshold_seconds" yaml:"preload_threshold_seconds"`
	PreloadSizeInSeconds      float64 `mapstructure:"preload_size_seconds" yaml:"preload_size_seconds"`

	EventBusBufferSize int `mapstructure:"event_bus_buffer_size" yaml:"event_bus_buffer_size"`
	EventBusWorkers    int `mapstructure:"event_bus_workers" yaml:"event_bus_workers"`

	IngestionChunkSizeBytes     int     `mapstructure:"ingestion_chunk_size_bytes" yaml:"ingestion_chunk_size_bytes"`
	IngestionMaxConcurrentLoads int     `mapstructure:"ingestion_max_concurrent_loads" yaml:"ingestion_max_concurrent_loads"`
	IngestionChunkReadsPerSec   float64 `mapstructure:"ingestion_chunk_reads_per_second" yaml:"ingestion_chunk_reads_per_second"`

	MetricsListenAddr string `mapstructure:"metrics_listen_addr" yaml:"metrics_listen_addr"`

	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// applyDefaults seeds viper with the values a fresh install should have,
// mirroring the teacher's setDefaultConfig.
func applyDefaults(v *viper.Viper) {
	v.SetDefault("sample_rate", 44100)
	v.SetDefault("channel_count", 2)
	v.SetDefault("preload_threshold_seconds", 5.0)
	v.SetDefault("preload_size_seconds", 10.0)
	v.SetDefault("event_bus_buffer_size", 1024)
	v.SetDefault("event_bus_workers", 2)
	v.SetDefault("ingestion_chunk_size_bytes", 32*1024)
	v.SetDefault("ingestion_max_concurrent_loads", 4)
	v.SetDefault("ingestion_chunk_reads_per_second", 0.0)
	v.SetDefault("metrics_listen_addr", ":9091")
	v.SetDefault("debug", false)
}

// Load reads path (a YAML file) if it exists, falling back to defaults for
// anything the file omits or when path is empty. Environment variables
// prefixed PLAYBACKSIM_ override both.
func Load(path string) (*Settings, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix("playbacksim")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
			if err := writeDefaultConfig(path); err != nil {
				return nil, fmt.Errorf("config: writing default config to %s: %w", path, err)
			}
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return settings, nil
}

// writeDefaultConfig writes the zero-override default Settings to path as
// YAML, the way the teacher's createDefaultConfig seeds a fresh install. A
// missing config file is not an error; this just makes the next run's
// config file self-documenting.
func writeDefaultConfig(path string) error {
	v := viper.New()
	applyDefaults(v)
	defaults := &Settings{}
	if err := v.Unmarshal(defaults); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}

	data, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// PlaybackConfig derives the immutable playback.Config these settings
// describe.
func (s *Settings) PlaybackConfig() (playback.Config, error) {
	return playback.NewConfig(s.SampleRate, s.ChannelCount, s.PreloadThresholdInSeconds, s.PreloadSizeInSeconds)
}

// IngestionConfig derives the playback.IngestionConfig these settings describe.
func (s *Settings) IngestionConfig() playback.IngestionConfig {
	return playback.IngestionConfig{
		ChunkSizeBytes:      s.IngestionChunkSizeBytes,
		MaxConcurrentLoads:  s.IngestionMaxConcurrentLoads,
		ChunkReadsPerSecond: s.IngestionChunkReadsPerSec,
		BytesPerSample:      4,
	}
}
