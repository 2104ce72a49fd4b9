package generatem3u

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/m3u-proxy/internal/memory"
	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/snapshot"
	"github.com/jmylchreest/m3u-proxy/internal/repository"
	"github.com/jmylchreest/m3u-proxy/internal/testutil"
)

// numbered builds a numbered channel.
func numbered(name, tvgID, group string, number int) *models.Channel {
	ch := &models.Channel{
		ChannelName:   name,
		TvgID:         tvgID,
		TvgName:       name,
		GroupTitle:    group,
		ChannelNumber: number,
		StreamURL:     "http://upstream.example.com/" + tvgID,
	}
	ch.ID = models.NewULID()
	return ch
}

// run executes the M3U generation stage over the given numbered channels.
func run(t *testing.T, channels []*models.Channel) *core.State {
	t.Helper()

	state := testutil.NewState(t, &repository.ProxyConfig{Proxy: testutil.SampleProxy("m3u")})
	state.Registry.Register(core.SnapshotNumberedChannels, snapshot.New(channels, "final numbered channels"))

	_, err := New().Execute(context.Background(), state)
	require.NoError(t, err)
	return state
}

func TestGenerate_EmptySnapshot(t *testing.T) {
	state := run(t, nil)
	assert.Equal(t, "#EXTM3U\n", state.M3U)
	assert.Zero(t, state.Counters.ChannelsEmitted)
}

func TestGenerate_EntryFormat(t *testing.T) {
	channels := []*models.Channel{
		numbered("StreamCast One", "sc-one", "Entertainment", 100),
	}
	state := run(t, channels)

	lines := strings.Split(strings.TrimSuffix(state.M3U, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "#EXTM3U", lines[0])
	assert.Equal(t,
		`#EXTINF:-1 tvg-id="sc-one" tvg-name="StreamCast One" tvg-logo="" tvg-chno="100" group-title="Entertainment",StreamCast One`,
		lines[1])

	// Proxied URL shape: {base}/stream/{proxy}/{channel}.
	assert.True(t, strings.HasPrefix(lines[2], "http://media.example.com/stream/"))
	assert.Contains(t, lines[2], channels[0].ID.String())
}

func TestGenerate_SequentialNumbersInOutput(t *testing.T) {
	state := run(t, []*models.Channel{
		numbered("A", "a", "Premium", 100),
		numbered("B", "b", "Premium", 101),
		numbered("C", "c", "Premium", 102),
	})

	assert.Equal(t, 3, state.Counters.ChannelsEmitted)
	assert.Contains(t, state.M3U, `tvg-chno="100"`)
	assert.Contains(t, state.M3U, `tvg-chno="101"`)
	assert.Contains(t, state.M3U, `tvg-chno="102"`)
	assert.Equal(t, 3, strings.Count(state.M3U, "#EXTINF"))
}

func TestGenerate_StreamingStrategyMatchesInMemory(t *testing.T) {
	channels := make([]*models.Channel, 0, 250)
	for i := 0; i < 250; i++ {
		channels = append(channels, numbered("ch", "id", "g", i+1))
	}

	inMemory := run(t, channels)

	// Force the streaming strategy with a Critical-pressure governor.
	state := testutil.NewState(t, &repository.ProxyConfig{Proxy: inMemory.Proxy})
	state.ProxyID = inMemory.ProxyID
	state.Registry.Register(core.SnapshotNumberedChannels, snapshot.New(channels, "final numbered channels"))

	probe := &fakeProbe{rss: 900}
	state.Governor = memory.NewGovernor(1000,
		memory.WithProbe(probe),
		memory.WithSampleInterval(time.Nanosecond),
	)
	state.Governor.Refresh()
	require.Equal(t, memory.PressureCritical, state.Governor.Level())

	_, err := New().Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, inMemory.M3U, state.M3U)
}

func TestGenerate_CancelledContext(t *testing.T) {
	channels := make([]*models.Channel, 0, 500)
	for i := 0; i < 500; i++ {
		channels = append(channels, numbered("ch", "id", "g", i+1))
	}

	state := testutil.NewState(t, &repository.ProxyConfig{Proxy: testutil.SampleProxy("cancel")})
	state.Registry.Register(core.SnapshotNumberedChannels, snapshot.New(channels, "final numbered channels"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Execute(ctx, state)
	assert.Error(t, err)
	assert.Empty(t, state.M3U)
}

// fakeProbe reports a fixed RSS.
type fakeProbe struct {
	rss uint64
}

func (p *fakeProbe) CurrentRSSBytes() (uint64, bool) {
	return p.rss, true
}
