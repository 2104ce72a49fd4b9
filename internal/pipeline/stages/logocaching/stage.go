// Package logocaching implements the logo prefetch pipeline stage. For each
// numbered channel whose logo URL resolves to an internal asset, the stage
// ensures the logo is locally cached. Failures are logged and counted; the
// channel still emits with its URL. The pass is optional and never on the
// generation's critical path.
package logocaching

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/shared"
	"github.com/jmylchreest/m3u-proxy/internal/storage"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "logo_caching"
	// StageName is the human-readable name for this stage.
	StageName = "Logo Caching"
)

// Stage prefetches internal logo assets for the numbered channels.
type Stage struct {
	shared.BaseStage
	cache  storage.LogoCacher
	logger *slog.Logger
}

// New creates a new logo caching stage.
func New(cache storage.LogoCacher) *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
		cache:     cache,
	}
}

// NewConstructor returns a stage constructor for use with the engine.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New(deps.LogoCache)
		if deps.Logger != nil {
			s.logger = deps.Logger.With("stage", StageID)
		}
		return s
	}
}

// Execute ensures internal logo assets referenced by the numbered channels
// are cached, with bounded concurrency and rate limiting.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()

	if s.cache == nil || !state.Proxy.CacheChannelLogos {
		result.Message = "Logo caching disabled"
		return result, nil
	}

	snap, err := state.NumberedChannels()
	if err != nil {
		return result, err
	}

	assetPrefix := strings.TrimSuffix(state.BaseURL, "/") + "/api/logos/"

	assetIDs := make([]string, 0)
	seen := make(map[string]struct{})
	for _, ch := range snap.Items() {
		assetID := internalAssetID(ch, assetPrefix)
		if assetID == "" {
			continue
		}
		if _, dup := seen[assetID]; dup {
			continue
		}
		seen[assetID] = struct{}{}
		assetIDs = append(assetIDs, assetID)
	}

	if len(assetIDs) == 0 {
		result.Message = "No internal logo assets referenced"
		return result, nil
	}

	concurrency := state.Pipeline.Logo.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	perSecond := state.Pipeline.Logo.RatePerSecond
	if perSecond <= 0 {
		perSecond = 20
	}
	timeout := state.Pipeline.Logo.Timeout.Duration()

	limiter := rate.NewLimiter(rate.Limit(perSecond), perSecond)

	var failures int
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	failureCh := make(chan string, len(assetIDs))

	for _, assetID := range assetIDs {
		group.Go(func() error {
			if err := limiter.Wait(groupCtx); err != nil {
				return err
			}

			opCtx := groupCtx
			if timeout > 0 {
				var cancel context.CancelFunc
				opCtx, cancel = context.WithTimeout(groupCtx, timeout)
				defer cancel()
			}

			if err := s.cache.Ensure(opCtx, assetID); err != nil {
				s.log(groupCtx, slog.LevelWarn, "logo prefetch failed",
					slog.String("asset_id", assetID),
					slog.String("error", err.Error()))
				failureCh <- assetID
			}
			return nil
		})
	}

	// Cancellation surfaces through the group; prefetch failures do not.
	groupErr := group.Wait()
	close(failureCh)
	for range failureCh {
		failures++
	}
	state.Counters.LogoFailures += failures
	if groupErr != nil {
		return result, groupErr
	}

	result.RecordsProcessed = len(assetIDs)
	result.Message = s.summary(len(assetIDs), failures)

	s.log(ctx, slog.LevelInfo, "logo prefetch complete",
		slog.Int("asset_count", len(assetIDs)),
		slog.Int("failures", failures))

	return result, nil
}

// summary formats the stage result message.
func (s *Stage) summary(total, failures int) string {
	if failures == 0 {
		return "All logo assets cached"
	}
	return "Logo assets cached with failures"
}

// internalAssetID extracts the internal asset id from a channel logo value,
// recognizing both rewritten URLs ({base}/api/logos/{id}) and raw asset
// references.
func internalAssetID(ch *models.Channel, assetPrefix string) string {
	logo := ch.TvgLogo
	if logo == "" {
		return ""
	}
	if id := storage.AssetIDFromLogoField(logo); id != "" {
		return id
	}
	if strings.HasPrefix(logo, assetPrefix) {
		return strings.TrimPrefix(logo, assetPrefix)
	}
	return ""
}

// log logs a message if the logger is set.
func (s *Stage) log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, attrs...)
	}
}

// Ensure Stage implements core.Stage.
var _ core.Stage = (*Stage)(nil)
