package core

import (
	"log/slog"

	"github.com/jmylchreest/m3u-proxy/internal/config"
	"github.com/jmylchreest/m3u-proxy/internal/memory"
	"github.com/jmylchreest/m3u-proxy/internal/repository"
	"github.com/jmylchreest/m3u-proxy/internal/storage"
)

// Dependencies bundles all dependencies needed by pipeline stages.
// This reduces parameter count and makes dependency injection cleaner.
type Dependencies struct {
	ChannelRepo    repository.ChannelRepository
	EpgChannelRepo repository.EpgChannelRepository
	EpgProgramRepo repository.EpgProgramRepository
	ProxyRepo      repository.StreamProxyRepository

	// Sandbox is the storage root; per-generation spill directories are
	// created beneath its temp area.
	Sandbox *storage.Sandbox

	// LogoCache is the best-effort logo cache consulted by the prefetch stage.
	LogoCache storage.LogoCacher

	// LogoRewriter applies the logo URL rewriting contract.
	LogoRewriter *storage.LogoRewriter

	// Governor is the process-wide memory governor.
	Governor *memory.Governor

	// Config is the pipeline tuning configuration.
	Config config.PipelineConfig

	// BaseURL is the default base URL for proxied URLs; a proxy's own
	// BaseURL overrides it.
	BaseURL string

	Logger *slog.Logger
}

// StageConstructor is a function that creates a stage given dependencies.
type StageConstructor func(deps *Dependencies) Stage

// BuildStages instantiates stages from constructors in registration order.
func BuildStages(deps *Dependencies, constructors []StageConstructor) []Stage {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	stages := make([]Stage, 0, len(constructors))
	for _, constructor := range constructors {
		stages = append(stages, constructor(deps))
	}
	return stages
}
