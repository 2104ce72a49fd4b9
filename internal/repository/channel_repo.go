package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/jmylchreest/m3u-proxy/internal/models"
)

// channelRepo implements ChannelRepository using GORM.
type channelRepo struct {
	db *gorm.DB
}

// NewChannelRepository creates a new ChannelRepository.
func NewChannelRepository(db *gorm.DB) ChannelRepository {
	return &channelRepo{db: db}
}

// GetPage returns one keyset page of channels for a source.
func (r *channelRepo) GetPage(ctx context.Context, sourceID models.ULID, after models.ULID, limit int) ([]*models.Channel, models.ULID, error) {
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

	var channels []*models.Channel
	if err := query.Find(&channels).Error; err != nil {
		return nil, models.ULID{}, fmt.Errorf("querying channels: %w", err)
	}

	next := after
	if len(channels) > 0 {
		next = channels[len(channels)-1].ID
	}
	return channels, next, nil
}

// CountBySourceID returns the number of channels for a source.
func (r *channelRepo) CountBySourceID(ctx context.Context, sourceID models.ULID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Channel{}).Where("source_id = ?", sourceID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting channels: %w", err)
	}
	return count, nil
}

// Ensure channelRepo implements ChannelRepository at compile time.
var _ ChannelRepository = (*channelRepo)(nil)
