package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, "http://localhost:8080", cfg.Server.BaseURL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 1000, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 2000, cfg.Pipeline.MaxChunkSize)
	assert.Equal(t, 20, cfg.Pipeline.MinChunkSize)
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrentChunks)
	assert.Equal(t, int64(50*1024*1024), cfg.Pipeline.SpillThreshold.Bytes())
	assert.Equal(t, 10000, cfg.Pipeline.SpillRecordsPerFile)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.GenerationDeadline.Duration())
	assert.Equal(t, 3, cfg.Pipeline.RetryAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Pipeline.RetryBackoff.Duration())
	assert.Equal(t, 7, cfg.Pipeline.EPGDays)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.Dedup.NearWindow.Duration())
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.Dedup.SimilarWindow.Duration())
	assert.InDelta(t, 0.9, cfg.Pipeline.Dedup.TitleSimilarity, 0.0001)
	assert.Equal(t, int64(0), cfg.Memory.Limit.Bytes())

	require.NoError(t, cfg.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "m3u-proxy.yaml")
	content := `
server:
  base_url: http://media.example.com
pipeline:
  chunk_size: 500
  spill_threshold: 10MB
memory:
  limit: 256MB
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://media.example.com", cfg.Server.BaseURL)
	assert.Equal(t, 500, cfg.Pipeline.ChunkSize)
	assert.Equal(t, int64(10*1024*1024), cfg.Pipeline.SpillThreshold.Bytes())
	assert.Equal(t, int64(256*1024*1024), cfg.Memory.Limit.Bytes())
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Pipeline.ChunkSize = 0 }},
		{"min above chunk", func(c *Config) { c.Pipeline.MinChunkSize = c.Pipeline.ChunkSize + 1 }},
		{"max below chunk", func(c *Config) { c.Pipeline.MaxChunkSize = c.Pipeline.ChunkSize - 1 }},
		{"zero concurrent chunks", func(c *Config) { c.Pipeline.MaxConcurrentChunks = 0 }},
		{"zero buffer depth", func(c *Config) { c.Pipeline.BufferDepth = 0 }},
		{"similarity above one", func(c *Config) { c.Pipeline.Dedup.TitleSimilarity = 1.5 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
