package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/jmylchreest/m3u-proxy/internal/models"
)

// filterRepo implements FilterRepository using GORM.
type filterRepo struct {
	db *gorm.DB
}

// NewFilterRepository creates a new FilterRepository.
func NewFilterRepository(db *gorm.DB) FilterRepository {
	return &filterRepo{db: db}
}

// GetByIDs retrieves filters by their IDs, in priority order.
func (r *filterRepo) GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.Filter, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var filters []*models.Filter
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("priority ASC").Find(&filters).Error; err != nil {
		return nil, fmt.Errorf("getting filters: %w", err)
	}
	return filters, nil
}

// dataMappingRuleRepo implements DataMappingRuleRepository using GORM.
type dataMappingRuleRepo struct {
	db *gorm.DB
}

// NewDataMappingRuleRepository creates a new DataMappingRuleRepository.
func NewDataMappingRuleRepository(db *gorm.DB) DataMappingRuleRepository {
	return &dataMappingRuleRepo{db: db}
}

// GetByIDs retrieves mapping rules by their IDs, in priority order.
func (r *dataMappingRuleRepo) GetByIDs(ctx context.Context, ids []models.ULID) ([]*models.DataMappingRule, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rules []*models.DataMappingRule
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("priority ASC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("getting data mapping rules: %w", err)
	}
	return rules, nil
}

// Ensure implementations satisfy the interfaces at compile time.
var (
	_ FilterRepository          = (*filterRepo)(nil)
	_ DataMappingRuleRepository = (*dataMappingRuleRepo)(nil)
)
