package testutil

import (
	"testing"

	"github.com/jmylchreest/m3u-proxy/internal/config"
	"github.com/jmylchreest/m3u-proxy/internal/memory"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/repository"
)

// NewState builds a pipeline state with test defaults: default pipeline
// configuration, a temp spill sandbox, and no memory governor.
func NewState(tb testing.TB, cfg *repository.ProxyConfig) *core.State {
	tb.Helper()

	pipelineCfg := config.Default().Pipeline

	state := core.NewState(cfg.Proxy)
	state.Config = cfg
	state.Pipeline = pipelineCfg
	state.BaseURL = "http://media.example.com"
	state.SandboxDir = tb.TempDir()
	state.Selector = memory.NewSelector(
		pipelineCfg.ChunkSize,
		pipelineCfg.MaxChunkSize,
		pipelineCfg.MinChunkSize,
		pipelineCfg.BufferDepth,
	)
	return state
}
