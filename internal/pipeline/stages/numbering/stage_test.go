package numbering

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/core"
	"github.com/jmylchreest/m3u-proxy/internal/pipeline/iterator"
	"github.com/jmylchreest/m3u-proxy/internal/repository"
	"github.com/jmylchreest/m3u-proxy/internal/testutil"
)

// testChannel creates a minimal channel for testing.
func testChannel(name string, number int) *models.Channel {
	ch := &models.Channel{
		ChannelName:   name,
		ChannelNumber: number,
		StreamURL:     "http://example.com/" + name,
	}
	ch.ID = models.NewULID()
	return ch
}

// runNumbering executes the stage over the given channels and returns the
// snapshot contents.
func runNumbering(t *testing.T, proxy *models.StreamProxy, channels []*models.Channel) ([]*models.Channel, *Stage, *core.StageResult) {
	t.Helper()

	state := testutil.NewState(t, &repository.ProxyConfig{Proxy: proxy})
	state.Channels = iterator.FromSlice(channels)

	stage := New()
	result, err := stage.Execute(context.Background(), state)
	require.NoError(t, err)

	snap, err := state.NumberedChannels()
	require.NoError(t, err)
	return snap.Items(), stage, result
}

func TestStage_Sequential(t *testing.T) {
	proxy := testutil.SampleProxy("seq")
	proxy.StartingChannelNumber = 100

	numbered, _, result := runNumbering(t, proxy, []*models.Channel{
		testChannel("Channel 1", 0),
		testChannel("Channel 2", 0),
		testChannel("Channel 3", 0),
	})

	assert.Equal(t, 100, numbered[0].ChannelNumber)
	assert.Equal(t, 101, numbered[1].ChannelNumber)
	assert.Equal(t, 102, numbered[2].ChannelNumber)
	assert.Equal(t, 3, result.RecordsProcessed)
	assert.Equal(t, 3, result.RecordsModified)
}

func TestStage_Sequential_IgnoresExplicitNumbers(t *testing.T) {
	proxy := testutil.SampleProxy("seq-explicit")

	numbered, _, _ := runNumbering(t, proxy, []*models.Channel{
		testChannel("A", 500),
		testChannel("B", 7),
	})

	assert.Equal(t, 1, numbered[0].ChannelNumber)
	assert.Equal(t, 2, numbered[1].ChannelNumber)
}

func TestStage_Sequential_ContiguousUnique(t *testing.T) {
	proxy := testutil.SampleProxy("seq-many")
	proxy.StartingChannelNumber = 42

	channels := make([]*models.Channel, 250)
	for i := range channels {
		channels[i] = testChannel("ch", 0)
	}

	numbered, _, _ := runNumbering(t, proxy, channels)

	seen := make(map[int]bool)
	for i, ch := range numbered {
		assert.Equal(t, 42+i, ch.ChannelNumber)
		assert.False(t, seen[ch.ChannelNumber])
		seen[ch.ChannelNumber] = true
	}
}

func TestStage_Preserve_NoConflicts(t *testing.T) {
	proxy := testutil.SampleProxy("preserve")
	proxy.NumberingMode = models.NumberingModePreserve

	numbered, stage, result := runNumbering(t, proxy, []*models.Channel{
		testChannel("Channel 1", 5),
		testChannel("Channel 2", 10),
		testChannel("Channel 3", 0),
	})

	assert.Equal(t, 5, numbered[0].ChannelNumber)
	assert.Equal(t, 10, numbered[1].ChannelNumber)
	assert.Equal(t, 1, numbered[2].ChannelNumber)
	assert.Equal(t, 1, result.RecordsModified)
	assert.Empty(t, stage.GetConflicts())
}

func TestStage_Preserve_WithConflicts(t *testing.T) {
	proxy := testutil.SampleProxy("conflicts")
	proxy.NumberingMode = models.NumberingModePreserve

	numbered, stage, result := runNumbering(t, proxy, []*models.Channel{
		testChannel("Channel A", 5),
		testChannel("Channel B", 5),
		testChannel("Channel C", 5),
		testChannel("Channel D", 10),
	})

	assert.Equal(t, 5, numbered[0].ChannelNumber)
	assert.Equal(t, 6, numbered[1].ChannelNumber)
	assert.Equal(t, 7, numbered[2].ChannelNumber)
	assert.Equal(t, 10, numbered[3].ChannelNumber)

	assert.Equal(t, 2, result.RecordsModified)
	assert.Len(t, stage.GetConflicts(), 2)
	assert.Contains(t, result.Message, "2 conflicts resolved")
}

func TestStage_Group(t *testing.T) {
	proxy := testutil.SampleProxy("grouped")
	proxy.NumberingMode = models.NumberingModeGroup
	proxy.GroupNumberingSize = 100
	proxy.StartingChannelNumber = 100

	mkCh := func(name, group string) *models.Channel {
		ch := testChannel(name, 0)
		ch.GroupTitle = group
		return ch
	}

	numbered, _, _ := runNumbering(t, proxy, []*models.Channel{
		mkCh("News One", "News"),
		mkCh("Movie One", "Movies"),
		mkCh("News Two", "News"),
	})

	// Groups are ordered alphabetically: Movies first, then News.
	byName := make(map[string]int)
	for _, ch := range numbered {
		byName[ch.ChannelName] = ch.ChannelNumber
	}
	assert.Equal(t, 100, byName["Movie One"])
	assert.Equal(t, 200, byName["News One"])
	assert.Equal(t, 201, byName["News Two"])
}

func TestStage_RegistersSnapshot(t *testing.T) {
	proxy := testutil.SampleProxy("snapshot")

	state := testutil.NewState(t, &repository.ProxyConfig{Proxy: proxy})
	state.Channels = iterator.FromSlice([]*models.Channel{testChannel("A", 0)})

	_, err := New().Execute(context.Background(), state)
	require.NoError(t, err)

	snap, err := state.NumberedChannels()
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, "final numbered channels", snap.Description())
}

func TestStage_EmptyInput(t *testing.T) {
	proxy := testutil.SampleProxy("empty")
	numbered, _, result := runNumbering(t, proxy, nil)
	assert.Empty(t, numbered)
	assert.Equal(t, 0, result.RecordsProcessed)
}
