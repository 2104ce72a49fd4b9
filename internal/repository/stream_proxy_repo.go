package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/jmylchreest/m3u-proxy/internal/models"
)

// streamProxyRepo implements StreamProxyRepository using GORM.
type streamProxyRepo struct {
	db *gorm.DB
}

// NewStreamProxyRepository creates a new StreamProxyRepository.
func NewStreamProxyRepository(db *gorm.DB) StreamProxyRepository {
	return &streamProxyRepo{db: db}
}

// GetByID retrieves a proxy by ID.
func (r *streamProxyRepo) GetByID(ctx context.Context, id models.ULID) (*models.StreamProxy, error) {
	var proxy models.StreamProxy
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&proxy).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting proxy by ID: %w", err)
	}
	return &proxy, nil
}

// LoadConfig resolves the proxy with its bound sources, filters, and mapping
// rules. Sources come back in ascending priority order (lower priority value
// first); filters and rules in ascending rule priority, ties broken by
// binding order.
func (r *streamProxyRepo) LoadConfig(ctx context.Context, id models.ULID) (*ProxyConfig, error) {
	var proxy models.StreamProxy
	err := r.db.WithContext(ctx).
		Preload("Sources.Source").
		Preload("EpgSources.EpgSource").
		Preload("Filters.Filter").
		Preload("MappingRules.MappingRule").
		Where("id = ?", id).
		First(&proxy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading proxy config: %w", err)
	}

	cfg := &ProxyConfig{Proxy: &proxy}

	// Stream sources, ascending priority order.
	bindings := append([]models.ProxySource(nil), proxy.Sources...)
	sort.SliceStable(bindings, func(i, j int) bool {
		return bindings[i].Priority < bindings[j].Priority
	})
	for _, b := range bindings {
		if b.Source != nil && b.Source.IsEnabled() {
			cfg.Sources = append(cfg.Sources, b.Source)
		}
	}

	// EPG sources, ascending priority order.
	epgBindings := append([]models.ProxyEpgSource(nil), proxy.EpgSources...)
	sort.SliceStable(epgBindings, func(i, j int) bool {
		return epgBindings[i].Priority < epgBindings[j].Priority
	})
	for _, b := range epgBindings {
		if b.EpgSource != nil && b.EpgSource.IsEnabled() {
			cfg.EpgSources = append(cfg.EpgSources, b.EpgSource)
		}
	}

	// Filters, by filter priority then binding order, split by source type.
	filterBindings := append([]models.ProxyFilter(nil), proxy.Filters...)
	sort.SliceStable(filterBindings, func(i, j int) bool {
		fi, fj := filterBindings[i].Filter, filterBindings[j].Filter
		if fi != nil && fj != nil && fi.Priority != fj.Priority {
			return fi.Priority < fj.Priority
		}
		return filterBindings[i].Order < filterBindings[j].Order
	})
	for _, b := range filterBindings {
		if b.Filter == nil || !b.Filter.IsEnabled {
			continue
		}
		switch b.Filter.SourceType {
		case models.FilterSourceTypeStream:
			cfg.StreamFilters = append(cfg.StreamFilters, b.Filter)
		case models.FilterSourceTypeEPG:
			cfg.EpgFilters = append(cfg.EpgFilters, b.Filter)
		}
	}

	// Mapping rules, by rule priority then binding order, split by source type.
	ruleBindings := append([]models.ProxyMappingRule(nil), proxy.MappingRules...)
	sort.SliceStable(ruleBindings, func(i, j int) bool {
		ri, rj := ruleBindings[i].MappingRule, ruleBindings[j].MappingRule
		if ri != nil && rj != nil && ri.Priority != rj.Priority {
			return ri.Priority < rj.Priority
		}
		return ruleBindings[i].Order < ruleBindings[j].Order
	})
	for _, b := range ruleBindings {
		if b.MappingRule == nil || !b.MappingRule.IsEnabled {
			continue
		}
		switch b.MappingRule.SourceType {
		case models.DataMappingRuleSourceTypeStream:
			cfg.StreamRules = append(cfg.StreamRules, b.MappingRule)
		case models.DataMappingRuleSourceTypeEPG:
			cfg.EpgRules = append(cfg.EpgRules, b.MappingRule)
		}
	}

	return cfg, nil
}

// Update persists proxy status bookkeeping.
func (r *streamProxyRepo) Update(ctx context.Context, proxy *models.StreamProxy) error {
	if err := r.db.WithContext(ctx).Save(proxy).Error; err != nil {
		return fmt.Errorf("updating proxy: %w", err)
	}
	return nil
}

// Ensure streamProxyRepo implements StreamProxyRepository at compile time.
var _ StreamProxyRepository = (*streamProxyRepo)(nil)
