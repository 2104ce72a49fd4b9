package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/jmylchreest/m3u-proxy/internal/models"
)

// epgChannelRepo implements EpgChannelRepository using GORM.
type epgChannelRepo struct {
	db *gorm.DB
}

// NewEpgChannelRepository creates a new EpgChannelRepository.
func NewEpgChannelRepository(db *gorm.DB) EpgChannelRepository {
	return &epgChannelRepo{db: db}
}

// GetPage returns one keyset page of EPG channels for a source.
func (r *epgChannelRepo) GetPage(ctx context.Context, sourceID models.ULID, after models.ULID, limit int) ([]*models.EpgChannel, models.ULID, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := r.db.WithContext(ctx).
		Where("source_id = ?", sourceID).
		Order("id ASC").
		Limit(limit)
	if !after.IsZero() {
		query = query.Where("id > ?", after)
	}

	var channels []*models.EpgChannel
	if err := query.Find(&channels).Error; err != nil {
		return nil, models.ULID{}, fmt.Errorf("querying epg channels: %w", err)
	}

	next := after
	if len(channels) > 0 {
		next = channels[len(channels)-1].ID
	}
	return channels, next, nil
}

// epgProgramRepo implements EpgProgramRepository using GORM.
type epgProgramRepo struct {
	db *gorm.DB
}

// NewEpgProgramRepository creates a new EpgProgramRepository.
func NewEpgProgramRepository(db *gorm.DB) EpgProgramRepository {
	return &epgProgramRepo{db: db}
}

// GetPage returns one keyset page of programs for a source within the time
// window, optionally restricted to an allowlist of channel ids.
func (r *epgProgramRepo) GetPage(ctx context.Context, sourceID models.ULID, allowlist []string, window TimeWindow, after models.ULID, limit int) ([]*models.EpgProgram, models.ULID, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := r.db.WithContext(ctx).
		Where("source_id = ?", sourceID).
		Where("stop >= ? AND start <= ?", window.Start, window.End).
		Order("id ASC").
		Limit(limit)
	if !after.IsZero() {
		query = query.Where("id > ?", after)
	}
	if allowlist != nil {
		query = query.Where("channel_id IN ?", allowlist)
	}

	var programs []*models.EpgProgram
	if err := query.Find(&programs).Error; err != nil {
		return nil, models.ULID{}, fmt.Errorf("querying epg programs: %w", err)
	}

	next := after
	if len(programs) > 0 {
		next = programs[len(programs)-1].ID
	}
	return programs, next, nil
}

// Ensure implementations satisfy the interfaces at compile time.
var (
	_ EpgChannelRepository = (*epgChannelRepo)(nil)
	_ EpgProgramRepository = (*epgProgramRepo)(nil)
)
