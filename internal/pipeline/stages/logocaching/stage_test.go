package logocaching

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/snapshot"
	"github.com/jmylchreest/m3u-proxy/internal/repository"
	"github.com/jmylchreest/m3u-proxy/internal/testutil"
)

// fakeCache records Ensure calls and fails for configured assets.
type fakeCache struct {
	mu      sync.Mutex
	ensured []string
	fail    map[string]bool
}

func (c *fakeCache) Ensure(ctx context.Context, assetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensured = append(c.ensured, assetID)
	if c.fail[assetID] {
		return fmt.Errorf("asset %s unavailable", assetID)
	}
	return nil
}

// logoChannel builds a numbered channel with the given logo value.
func logoChannel(name, logo string) *models.Channel {
	ch := &models.Channel{
		ChannelName: name,
		TvgLogo:     logo,
		StreamURL:   "http://example.com/" + name,
	}
	ch.ID = models.NewULID()
	return ch
}

// run executes the logo caching stage over the given channels.
func run(t *testing.T, cache *fakeCache, channels []*models.Channel) *core.State {
	t.Helper()

	proxy := testutil.SampleProxy("logos")
	proxy.CacheChannelLogos = true

	state := testutil.NewState(t, &repository.ProxyConfig{Proxy: proxy})
	state.Registry.Register(core.SnapshotNumberedChannels, snapshot.New(channels, "final numbered channels"))

	_, err := New(cache).Execute(context.Background(), state)
	require.NoError(t, err)
	return state
}

func TestLogoCaching_EnsuresInternalAssets(t *testing.T) {
	cache := &fakeCache{}
	run(t, cache, []*models.Channel{
		logoChannel("a", "http://media.example.com/api/logos/asset-1"),
		logoChannel("b", "@logo:asset-2"),
		logoChannel("c", "https://cdn.example.net/external.png"),
		logoChannel("d", ""),
	})

	assert.ElementsMatch(t, []string{"asset-1", "asset-2"}, cache.ensured)
}

func TestLogoCaching_DeduplicatesAssets(t *testing.T) {
	cache := &fakeCache{}
	run(t, cache, []*models.Channel{
		logoChannel("a", "@logo:shared"),
		logoChannel("b", "@logo:shared"),
	})

	assert.Len(t, cache.ensured, 1)
}

func TestLogoCaching_FailuresAreCountedNotFatal(t *testing.T) {
	cache := &fakeCache{fail: map[string]bool{"broken": true}}
	state := run(t, cache, []*models.Channel{
		logoChannel("a", "@logo:broken"),
		logoChannel("b", "@logo:fine"),
	})

	assert.Equal(t, 1, state.Counters.LogoFailures)
}

func TestLogoCaching_DisabledOnProxy(t *testing.T) {
	cache := &fakeCache{}

	proxy := testutil.SampleProxy("no-logos")
	proxy.CacheChannelLogos = false

	state := testutil.NewState(t, &repository.ProxyConfig{Proxy: proxy})
	state.Registry.Register(core.SnapshotNumberedChannels,
		snapshot.New([]*models.Channel{logoChannel("a", "@logo:x")}, "final numbered channels"))

	_, err := New(cache).Execute(context.Background(), state)
	require.NoError(t, err)
	assert.Empty(t, cache.ensured)
}
