// Package repository provides the read-side database access consumed by the
// generation pipeline. Pagination is keyset-based on the ULID primary key, so
// pages are stable across calls within one generation.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/m3u-proxy/internal/models"
)

// ChannelRepository reads channel rows for the stream pipeline.
type ChannelRepository interface {
	// GetPage returns one page of channels for a source, ordered by primary
	// key, starting after the given cursor (zero for the first page).
	// The returned cursor feeds the next call.
	GetPage(ctx context.Context, sourceID models.ULID, after models.ULID, limit int) ([]*models.Channel, models.ULID, error)

	// CountBySourceID returns the number of channels for a source.
	CountBySourceID(ctx context.Context, sourceID models.ULID) (int64, error)
}

// EpgChannelRepository reads EPG channel rows for the EPG pipeline.
type EpgChannelRepository interface {
	GetPage(ctx context.Context, sourceID models.ULID, after models.ULID, limit int) ([]*models.EpgChannel, models.ULID, error)
}

// TimeWindow bounds the programs loaded per generation.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether a program overlapping [start, stop) intersects
// the window.
func (w TimeWindow) Contains(start, stop time.Time) bool {
	return !stop.Before(w.Start) && !start.After(w.End)
}

// EpgProgramRepository reads EPG program rows for the EPG pipeline.
type EpgProgramRepository interface {
	// GetPage returns one page of programs for a source within the time
	// window. A nil allowlist means no channel filter.
	GetPage(ctx context.Context, sourceID models.ULID, allowlist []string, window TimeWindow, after models.ULID, limit int) ([]*models.EpgProgram, models.ULID, error)
}

// ProxyConfig is the fully resolved configuration for one generation run:
// sources in ascending priority order, filters and mapping rules in
// application order, split by source type.
type ProxyConfig struct {
	Proxy         *models.StreamProxy
	Sources       []*models.StreamSource
	EpgSources    []*models.EpgSource
	StreamFilters []*models.Filter
	EpgFilters    []*models.Filter
	StreamRules   []*models.DataMappingRule
	EpgRules      []*models.DataMappingRule
}

// StreamProxyRepository loads proxy configuration and records generation
// outcomes.
type StreamProxyRepository interface {
	// GetByID returns the proxy, or nil when not found.
	GetByID(ctx context.Context, id models.ULID) (*models.StreamProxy, error)

	// LoadConfig resolves the proxy's bound sources (ordered by priority),
	// active filters, and active mapping rules (ordered by priority then
	// binding order).
	LoadConfig(ctx context.Context, id models.ULID) (*ProxyConfig, error)

	// Update persists proxy status bookkeeping.
	Update(ctx context.Context, proxy *models.StreamProxy) error
}

// FilterRepository reads filter rows.
type FilterRepository interface {
	GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.Filter, error)
}

// DataMappingRuleRepository reads data mapping rule rows.
type DataMappingRuleRepository interface {
	GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.DataMappingRule, error)
}
