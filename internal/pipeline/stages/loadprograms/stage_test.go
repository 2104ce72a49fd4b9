package loadprograms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/iterator"
	"github.com/jmylchreest/m3u-proxy/internal/repository"
	"github.com/jmylchreest/m3u-proxy/internal/testutil"
)

// epgChannel builds an EPG channel fixture.
func epgChannel(sourceID models.ULID, channelID, icon string) *models.EpgChannel {
	ch := &models.EpgChannel{
		SourceID:    sourceID,
		ChannelID:   channelID,
		DisplayName: channelID,
		Icon:        icon,
	}
	ch.ID = models.NewULID()
	return ch
}

// execute runs the stage and drains the program iterator.
func execute(t *testing.T, cfg *repository.ProxyConfig, channels *testutil.FakeEpgChannelRepo, programs *testutil.FakeEpgProgramRepo) ([]*models.EpgProgram, *core.State) {
	t.Helper()

	state := testutil.NewState(t, cfg)
	stage := New(channels, programs)

	ctx := context.Background()
	_, err := stage.Execute(ctx, state)
	require.NoError(t, err)

	loaded, err := iterator.Collect[*models.EpgProgram](ctx, state.Programs, 100)
	require.NoError(t, err)
	require.NoError(t, state.Programs.Close())
	return loaded, state
}

func TestExecute_NoEpgSources(t *testing.T) {
	cfg := &repository.ProxyConfig{Proxy: testutil.SampleProxy("no-epg")}
	loaded, _ := execute(t, cfg, testutil.NewFakeEpgChannelRepo(), testutil.NewFakeEpgProgramRepo())
	assert.Empty(t, loaded)
}

func TestExecute_ChannelMetadataFirstSourceWins(t *testing.T) {
	primary := testutil.SampleEpgSource("primary")
	secondary := testutil.SampleEpgSource("secondary")

	channels := testutil.NewFakeEpgChannelRepo()
	channels.Add(primary.ID, epgChannel(primary.ID, "one", "http://primary.example.com/one.png"))
	channels.Add(secondary.ID,
		epgChannel(secondary.ID, "one", "http://secondary.example.com/one.png"),
		epgChannel(secondary.ID, "two", ""))

	cfg := &repository.ProxyConfig{
		Proxy:      testutil.SampleProxy("epg-merge"),
		EpgSources: []*models.EpgSource{primary, secondary},
	}

	_, state := execute(t, cfg, channels, testutil.NewFakeEpgProgramRepo())

	snap, err := core.EpgChannelSnapshot(state)
	require.NoError(t, err)
	require.Equal(t, 2, snap.Len())

	// The higher-priority source's metadata (icon) is retained.
	byID := make(map[string]*models.EpgChannel)
	for _, ch := range snap.Items() {
		byID[ch.ChannelID] = ch
	}
	assert.Equal(t, "http://primary.example.com/one.png", byID["one"].Icon)
	assert.Equal(t, primary.ID, byID["one"].SourceID)
}

func TestExecute_ProgramsFromAllSourcesSurviveLoad(t *testing.T) {
	// Program-level deduplication happens downstream; the loader keeps
	// programs from every source even when channel ids collide.
	primary := testutil.SampleEpgSource("primary")
	secondary := testutil.SampleEpgSource("secondary")

	now := time.Now().UTC().Truncate(time.Hour)
	programs := testutil.NewFakeEpgProgramRepo()
	programs.Add(primary.ID, testutil.SampleProgram(primary.ID, "one", "Breaking News", now.Add(time.Hour), time.Hour))
	programs.Add(secondary.ID, testutil.SampleProgram(secondary.ID, "one", "Breaking News", now.Add(time.Hour), time.Hour))

	cfg := &repository.ProxyConfig{
		Proxy:      testutil.SampleProxy("all-programs"),
		EpgSources: []*models.EpgSource{primary, secondary},
	}

	loaded, _ := execute(t, cfg, testutil.NewFakeEpgChannelRepo(), programs)
	assert.Len(t, loaded, 2)
	// Priority order: primary's programs precede secondary's.
	assert.Equal(t, primary.ID, loaded[0].SourceID)
}

func TestExecute_MalformedProgramsDropped(t *testing.T) {
	src := testutil.SampleEpgSource("guide")

	now := time.Now().UTC().Truncate(time.Hour)
	good := testutil.SampleProgram(src.ID, "one", "Morning Briefing", now.Add(time.Hour), time.Hour)
	untitled := testutil.SampleProgram(src.ID, "one", "", now.Add(2*time.Hour), time.Hour)
	inverted := testutil.SampleProgram(src.ID, "one", "Backwards", now.Add(3*time.Hour), -time.Hour)

	programs := testutil.NewFakeEpgProgramRepo()
	programs.Add(src.ID, good, untitled, inverted)

	cfg := &repository.ProxyConfig{
		Proxy:      testutil.SampleProxy("malformed"),
		EpgSources: []*models.EpgSource{src},
	}

	loaded, state := execute(t, cfg, testutil.NewFakeEpgChannelRepo(), programs)
	require.Len(t, loaded, 1)
	assert.Equal(t, "Morning Briefing", loaded[0].Title)
	assert.Equal(t, 2, state.Counters.DroppedMalformed)
}
