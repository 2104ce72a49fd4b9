// Package config provides configuration management for m3u-proxy using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultMaxOpenConns       = 25
	defaultMaxIdleConns       = 10
	defaultConnMaxIdleTime    = 30 * time.Minute
	defaultChunkSize          = 1000
	defaultMaxChunkSize       = 2000
	defaultMinChunkSize       = 20
	defaultMaxConcurrent      = 4
	defaultBufferDepth        = 8
	defaultSpillRecords       = 10000
	defaultGenerationDeadline = 5 * time.Minute
	defaultUpstreamTimeout    = 30 * time.Second
	defaultRetryAttempts      = 3
	defaultRetryBackoff       = 100 * time.Millisecond
	defaultEPGDays            = 7
	defaultLogoConcurrency    = 10
	defaultLogoTimeout        = 30 * time.Second
	defaultLogoRatePerSecond  = 20
	defaultNearDupWindow      = 5 * time.Minute
	defaultSimilarDupWindow   = 10 * time.Minute
	defaultTitleSimilarity    = 0.9
)

// defaultSpillThreshold is the in-memory accumulator size that triggers a
// spill to disk in the hybrid strategy.
var defaultSpillThreshold = ByteSize(50 * Mebibyte)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Memory   MemoryConfig   `mapstructure:"memory"`
}

// ServerConfig holds the externally visible server identity.
// The generation core uses BaseURL to build proxied stream and logo URLs;
// serving those URLs is out of the core's scope.
type ServerConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	// BaseDir is the sandbox root for all file operations.
	BaseDir string `mapstructure:"base_dir"`
	// LogoDir is the subdirectory for cached logo assets.
	LogoDir string `mapstructure:"logo_dir"`
	// TempDir is the subdirectory for per-generation spill sandboxes.
	TempDir string `mapstructure:"temp_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// PipelineConfig holds proxy generation pipeline configuration.
type PipelineConfig struct {
	// ChunkSize is the base number of records moved between stages per chunk.
	// The memory governor scales this down under pressure.
	ChunkSize int `mapstructure:"chunk_size"`
	// MaxChunkSize is the chunk size used at Optimal pressure.
	MaxChunkSize int `mapstructure:"max_chunk_size"`
	// MinChunkSize is the floor applied at Emergency pressure.
	MinChunkSize int `mapstructure:"min_chunk_size"`
	// MaxConcurrentChunks caps in-flight chunks per stage bridge.
	MaxConcurrentChunks int `mapstructure:"max_concurrent_chunks"`
	// BufferDepth is the maximum completed chunks a stage bridge retains.
	BufferDepth int `mapstructure:"buffer_depth"`
	// SpillThreshold is the in-memory accumulator size that triggers a spill.
	SpillThreshold ByteSize `mapstructure:"spill_threshold"`
	// SpillRecordsPerFile is the record count per JSON-lines spill file.
	SpillRecordsPerFile int `mapstructure:"spill_records_per_file"`
	// SpillCompression enables brotli compression of spill files.
	SpillCompression bool `mapstructure:"spill_compression"`
	// GenerationDeadline is the wall-clock limit for one generation run.
	GenerationDeadline Duration `mapstructure:"generation_deadline"`
	// UpstreamTimeout bounds individual database reads.
	UpstreamTimeout Duration `mapstructure:"upstream_timeout"`
	// RetryAttempts is the retry count for transient upstream errors.
	RetryAttempts int `mapstructure:"retry_attempts"`
	// RetryBackoff is the base backoff between retries (doubled per attempt).
	RetryBackoff Duration `mapstructure:"retry_backoff"`
	// EPGDays is the EPG time window loaded per generation.
	EPGDays int `mapstructure:"epg_days"`
	// Logo holds logo prefetch settings.
	Logo LogoConfig `mapstructure:"logo"`
	// Dedup holds program deduplication tunables.
	Dedup DedupConfig `mapstructure:"dedup"`
}

// LogoConfig holds logo prefetch configuration.
type LogoConfig struct {
	// Concurrency is the number of concurrent logo cache operations.
	Concurrency int `mapstructure:"concurrency"`
	// Timeout bounds individual logo cache operations.
	Timeout Duration `mapstructure:"timeout"`
	// RatePerSecond limits logo cache requests.
	RatePerSecond int `mapstructure:"rate_per_second"`
}

// DedupConfig holds program deduplication tunables.
// These are global; the thresholds are not per-proxy configurable.
type DedupConfig struct {
	// NearWindow is the maximum start/stop difference for near-duplicates.
	NearWindow Duration `mapstructure:"near_window"`
	// SimilarWindow is the maximum start difference for title-similar duplicates.
	SimilarWindow Duration `mapstructure:"similar_window"`
	// TitleSimilarity is the Jaccard similarity threshold on title word tokens.
	TitleSimilarity float64 `mapstructure:"title_similarity"`
}

// MemoryConfig holds memory governor configuration.
type MemoryConfig struct {
	// Limit is the configured memory ceiling for pressure classification.
	// Zero disables the governor (always Optimal).
	Limit ByteSize `mapstructure:"limit"`
	// SampleInterval is the minimum time between RSS probes.
	SampleInterval Duration `mapstructure:"sample_interval"`
}

// Load reads configuration from the given file path (optional), environment
// variables, and defaults. Environment variables use the M3U_PROXY_ prefix
// with underscores (e.g. M3U_PROXY_PIPELINE_CHUNK_SIZE).
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("M3U_PROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName("m3u-proxy")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/m3u-proxy")
		v.AddConfigPath("/etc/m3u-proxy")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// decodeHook decodes ByteSize and Duration values from their human-readable
// string forms alongside viper's standard conversions.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// Default returns the configuration with all defaults applied and no file or
// environment input. Useful for tests and library embedding.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg, viper.DecodeHook(decodeHook()))
	return &cfg
}

// setDefaults registers the default value for every recognized option.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.base_url", "http://localhost:8080")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "m3u-proxy.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.base_dir", "data")
	v.SetDefault("storage.logo_dir", "logos")
	v.SetDefault("storage.temp_dir", "temp")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)

	v.SetDefault("pipeline.chunk_size", defaultChunkSize)
	v.SetDefault("pipeline.max_chunk_size", defaultMaxChunkSize)
	v.SetDefault("pipeline.min_chunk_size", defaultMinChunkSize)
	v.SetDefault("pipeline.max_concurrent_chunks", defaultMaxConcurrent)
	v.SetDefault("pipeline.buffer_depth", defaultBufferDepth)
	v.SetDefault("pipeline.spill_threshold", defaultSpillThreshold.Bytes())
	v.SetDefault("pipeline.spill_records_per_file", defaultSpillRecords)
	v.SetDefault("pipeline.spill_compression", false)
	v.SetDefault("pipeline.generation_deadline", int64(defaultGenerationDeadline))
	v.SetDefault("pipeline.upstream_timeout", int64(defaultUpstreamTimeout))
	v.SetDefault("pipeline.retry_attempts", defaultRetryAttempts)
	v.SetDefault("pipeline.retry_backoff", int64(defaultRetryBackoff))
	v.SetDefault("pipeline.epg_days", defaultEPGDays)
	v.SetDefault("pipeline.logo.concurrency", defaultLogoConcurrency)
	v.SetDefault("pipeline.logo.timeout", int64(defaultLogoTimeout))
	v.SetDefault("pipeline.logo.rate_per_second", defaultLogoRatePerSecond)
	v.SetDefault("pipeline.dedup.near_window", int64(defaultNearDupWindow))
	v.SetDefault("pipeline.dedup.similar_window", int64(defaultSimilarDupWindow))
	v.SetDefault("pipeline.dedup.title_similarity", defaultTitleSimilarity)

	v.SetDefault("memory.limit", int64(0))
	v.SetDefault("memory.sample_interval", int64(time.Second))
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	if c.Pipeline.ChunkSize <= 0 {
		return errors.New("pipeline.chunk_size must be positive")
	}
	if c.Pipeline.MinChunkSize <= 0 || c.Pipeline.MinChunkSize > c.Pipeline.ChunkSize {
		return errors.New("pipeline.min_chunk_size must be positive and not exceed pipeline.chunk_size")
	}
	if c.Pipeline.MaxChunkSize < c.Pipeline.ChunkSize {
		return errors.New("pipeline.max_chunk_size must be at least pipeline.chunk_size")
	}
	if c.Pipeline.MaxConcurrentChunks <= 0 {
		return errors.New("pipeline.max_concurrent_chunks must be positive")
	}
	if c.Pipeline.BufferDepth <= 0 {
		return errors.New("pipeline.buffer_depth must be positive")
	}
	if c.Pipeline.SpillRecordsPerFile <= 0 {
		return errors.New("pipeline.spill_records_per_file must be positive")
	}
	if c.Pipeline.Dedup.TitleSimilarity < 0 || c.Pipeline.Dedup.TitleSimilarity > 1 {
		return errors.New("pipeline.dedup.title_similarity must be between 0 and 1")
	}
	if c.Memory.Limit < 0 {
		return errors.New("memory.limit must not be negative")
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'text', got %q", c.Logging.Format)
	}
	return nil
}
