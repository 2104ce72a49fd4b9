// Package generatem3u implements the M3U generation pipeline stage. It
// consumes the numbered-channel snapshot and renders the final playlist
// text. Two strategies: an in-memory pre-sized builder at low pressure, and
// a file-backed streaming writer that yields control every 100 channels
// otherwise.
package generatem3u

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jmylchreest/m3u-proxy/internal/memory"
	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/observability"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/shared"
	"github.com/jmylchreest/m3u-proxy/pkg/m3u"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "generate_m3u"
	// StageName is the human-readable name for this stage.
	StageName = "Generate M3U"

	// yieldEvery is the channel interval at which the streaming strategy
	// yields control.
	yieldEvery = 100

	// estimatedBytesPerEntry pre-sizes the in-memory builder.
	estimatedBytesPerEntry = 256
)

// Stage generates the M3U playlist from the numbered-channel snapshot.
type Stage struct {
	shared.BaseStage
	logger *slog.Logger
}

// New creates a new M3U generation stage.
func New() *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
	}
}

// NewConstructor returns a stage constructor for use with the engine.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New()
		if deps != nil && deps.Logger != nil {
			s.logger = deps.Logger.With("stage", StageID)
		}
		return s
	}
}

// Execute renders the playlist into state.M3U.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	snap, err := state.NumberedChannels()
	if err != nil {
		return result, err
	}
	channels := snap.Items()

	level := memory.PressureOptimal
	if state.Governor != nil {
		level = state.Governor.Level()
	}

	var text string
	var strategy string
	if level <= memory.PressureHigh {
		strategy = "in_memory"
		text, err = s.renderInMemory(ctx, state, channels)
	} else {
		strategy = "streaming"
		text, err = s.renderStreaming(ctx, state, channels)
	}
	if err != nil {
		return result, err
	}

	state.M3U = text
	state.Counters.ChannelsEmitted = len(channels)
	observability.RecordsProcessed.WithLabelValues(StageID).Add(float64(len(channels)))

	result.RecordsProcessed = len(channels)
	result.Message = fmt.Sprintf("Generated M3U with %d channels", len(channels))

	s.log(ctx, slog.LevelInfo, "M3U generation complete",
		slog.Int("channel_count", len(channels)),
		slog.String("strategy", strategy),
		slog.Int("output_bytes", len(text)))

	return result, nil
}

// renderInMemory renders the playlist into a pre-sized string builder.
func (s *Stage) renderInMemory(ctx context.Context, state *core.State, channels []*models.Channel) (string, error) {
	var sb strings.Builder
	sb.Grow(len(channels)*estimatedBytesPerEntry + 16)

	writer := m3u.NewWriter(&sb)
	if err := writer.WriteHeader(); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrOutputEncoding, err)
	}

	for i, ch := range channels {
		if i%yieldEvery == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}
		if err := writer.WriteEntry(shared.ChannelToM3UEntry(ch, state.BaseURL, state.ProxyID)); err != nil {
			return "", fmt.Errorf("%w: %v", core.ErrOutputEncoding, err)
		}
	}

	return sb.String(), nil
}

// renderStreaming renders the playlist through a sandbox file, yielding
// control every yieldEvery channels to keep peak memory low while the rest
// of the pipeline drains.
func (s *Stage) renderStreaming(ctx context.Context, state *core.State, channels []*models.Channel) (string, error) {
	path := filepath.Join(state.SandboxDir, fmt.Sprintf("%s.m3u", state.ProxyID))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating M3U file: %w", err)
	}
	defer os.Remove(path)
	defer file.Close()

	buffered := bufio.NewWriter(file)
	writer := m3u.NewWriter(buffered)
	if err := writer.WriteHeader(); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrOutputEncoding, err)
	}

	for i, ch := range channels {
		if i > 0 && i%yieldEvery == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			runtime.Gosched()
		}
		if err := writer.WriteEntry(shared.ChannelToM3UEntry(ch, state.BaseURL, state.ProxyID)); err != nil {
			return "", fmt.Errorf("%w: %v", core.ErrOutputEncoding, err)
		}
	}

	if err := buffered.Flush(); err != nil {
		return "", fmt.Errorf("flushing M3U file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading M3U file: %w", err)
	}
	return string(data), nil
}

// log logs a message if the logger is set.
func (s *Stage) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, attrs...)
	}
}

// Ensure Stage implements core.Stage.
var _ core.Stage = (*Stage)(nil)
