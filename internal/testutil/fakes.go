package testutil

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/repository"
)

// FakeChannelRepo is an in-memory ChannelRepository.
type FakeChannelRepo struct {
	BySource map[models.ULID][]*models.Channel
	// FailNext makes the next GetPage calls fail with the given error.
	FailNext atomic.Int32
	Err      error
	// Calls counts GetPage invocations.
	Calls atomic.Int64
}

// NewFakeChannelRepo creates an empty fake channel repository.
func NewFakeChannelRepo() *FakeChannelRepo {
	return &FakeChannelRepo{BySource: make(map[models.ULID][]*models.Channel)}
}

// Add appends channels to a source, keeping ID order stable.
func (r *FakeChannelRepo) Add(sourceID models.ULID, channels ...*models.Channel) {
	r.BySource[sourceID] = append(r.BySource[sourceID], channels...)
	sortByID(r.BySource[sourceID])
}

// GetPage implements repository.ChannelRepository.
func (r *FakeChannelRepo) GetPage(ctx context.Context, sourceID models.ULID, after models.ULID, limit int) ([]*models.Channel, models.ULID, error) {
	r.Calls.Add(1)
	if r.FailNext.Load() > 0 {
		r.FailNext.Add(-1)
		return nil, models.ULID{}, r.Err
	}
	page := pageAfter(r.BySource[sourceID], after, limit)
	next := after
	if len(page) > 0 {
		next = page[len(page)-1].ID
	}
	return page, next, nil
}

// CountBySourceID implements repository.ChannelRepository.
func (r *FakeChannelRepo) CountBySourceID(ctx context.Context, sourceID models.ULID) (int64, error) {
	return int64(len(r.BySource[sourceID])), nil
}

// FakeEpgChannelRepo is an in-memory EpgChannelRepository.
type FakeEpgChannelRepo struct {
	BySource map[models.ULID][]*models.EpgChannel
}

// NewFakeEpgChannelRepo creates an empty fake EPG channel repository.
func NewFakeEpgChannelRepo() *FakeEpgChannelRepo {
	return &FakeEpgChannelRepo{BySource: make(map[models.ULID][]*models.EpgChannel)}
}

// Add appends EPG channels to a source.
func (r *FakeEpgChannelRepo) Add(sourceID models.ULID, channels ...*models.EpgChannel) {
	r.BySource[sourceID] = append(r.BySource[sourceID], channels...)
	sortByID(r.BySource[sourceID])
}

// GetPage implements repository.EpgChannelRepository.
func (r *FakeEpgChannelRepo) GetPage(ctx context.Context, sourceID models.ULID, after models.ULID, limit int) ([]*models.EpgChannel, models.ULID, error) {
	page := pageAfter(r.BySource[sourceID], after, limit)
	next := after
	if len(page) > 0 {
		next = page[len(page)-1].ID
	}
	return page, next, nil
}

// FakeEpgProgramRepo is an in-memory EpgProgramRepository.
type FakeEpgProgramRepo struct {
	BySource map[models.ULID][]*models.EpgProgram
}

// NewFakeEpgProgramRepo creates an empty fake program repository.
func NewFakeEpgProgramRepo() *FakeEpgProgramRepo {
	return &FakeEpgProgramRepo{BySource: make(map[models.ULID][]*models.EpgProgram)}
}

// Add appends programs to a source.
func (r *FakeEpgProgramRepo) Add(sourceID models.ULID, programs ...*models.EpgProgram) {
	r.BySource[sourceID] = append(r.BySource[sourceID], programs...)
	sortByID(r.BySource[sourceID])
}

// GetPage implements repository.EpgProgramRepository.
func (r *FakeEpgProgramRepo) GetPage(ctx context.Context, sourceID models.ULID, allowlist []string, window repository.TimeWindow, after models.ULID, limit int) ([]*models.EpgProgram, models.ULID, error) {
	allowed := make(map[string]bool)
	for _, id := range allowlist {
		allowed[id] = true
	}

	filtered := make([]*models.EpgProgram, 0)
	for _, prog := range r.BySource[sourceID] {
		if !window.Start.IsZero() && !window.Contains(prog.Start, prog.Stop) {
			continue
		}
		if allowlist != nil && !allowed[prog.ChannelID] {
			continue
		}
		filtered = append(filtered, prog)
	}

	page := pageAfter(filtered, after, limit)
	next := after
	if len(page) > 0 {
		next = page[len(page)-1].ID
	}
	return page, next, nil
}

// FakeProxyRepo is an in-memory StreamProxyRepository.
type FakeProxyRepo struct {
	Config  *repository.ProxyConfig
	Updates atomic.Int64
}

// NewFakeProxyRepo creates a fake proxy repository serving one config.
func NewFakeProxyRepo(cfg *repository.ProxyConfig) *FakeProxyRepo {
	return &FakeProxyRepo{Config: cfg}
}

// GetByID implements repository.StreamProxyRepository.
func (r *FakeProxyRepo) GetByID(ctx context.Context, id models.ULID) (*models.StreamProxy, error) {
	if r.Config == nil || r.Config.Proxy.ID != id {
		return nil, nil
	}
	return r.Config.Proxy, nil
}

// LoadConfig implements repository.StreamProxyRepository.
func (r *FakeProxyRepo) LoadConfig(ctx context.Context, id models.ULID) (*repository.ProxyConfig, error) {
	if r.Config == nil || r.Config.Proxy.ID != id {
		return nil, nil
	}
	return r.Config, nil
}

// Update implements repository.StreamProxyRepository.
func (r *FakeProxyRepo) Update(ctx context.Context, proxy *models.StreamProxy) error {
	r.Updates.Add(1)
	return nil
}

// identified is satisfied by models with a ULID primary key.
type identified interface {
	GetID() models.ULID
}

// sortByID sorts records by primary key, matching database natural order.
func sortByID[T identified](items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].GetID().String() < items[j].GetID().String()
	})
}

// pageAfter returns up to limit records with IDs greater than after.
func pageAfter[T identified](items []T, after models.ULID, limit int) []T {
	out := make([]T, 0, limit)
	for _, item := range items {
		if !after.IsZero() && item.GetID().String() <= after.String() {
			continue
		}
		out = append(out, item)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Compile-time interface checks.
var (
	_ repository.ChannelRepository     = (*FakeChannelRepo)(nil)
	_ repository.EpgChannelRepository  = (*FakeEpgChannelRepo)(nil)
	_ repository.EpgProgramRepository  = (*FakeEpgProgramRepo)(nil)
	_ repository.StreamProxyRepository = (*FakeProxyRepo)(nil)
)
