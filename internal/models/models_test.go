package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULID_RoundTrip(t *testing.T) {
	id := NewULID()
	require.False(t, id.IsZero())

	parsed, err := ParseULID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseULID("not-a-ulid")
	assert.Error(t, err)
}

func TestULID_JSON(t *testing.T) {
	id := NewULID()

	data, err := id.MarshalJSON()
	require.NoError(t, err)

	var decoded ULID
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, id, decoded)

	var zero ULID
	data, err = zero.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func validChannel() *Channel {
	return &Channel{
		SourceID:    NewULID(),
		ChannelName: "StreamCast One",
		StreamURL:   "http://streams.example.com/one/index.m3u8",
	}
}

func TestChannel_Validate(t *testing.T) {
	require.NoError(t, validChannel().Validate())

	noSource := validChannel()
	noSource.SourceID = ULID{}
	assert.ErrorIs(t, noSource.Validate(), ErrSourceIDRequired)

	noName := validChannel()
	noName.ChannelName = ""
	assert.ErrorIs(t, noName.Validate(), ErrNameRequired)

	noURL := validChannel()
	noURL.StreamURL = ""
	assert.ErrorIs(t, noURL.Validate(), ErrStreamURLRequired)

	relURL := validChannel()
	relURL.StreamURL = "streams/one.m3u8"
	assert.ErrorIs(t, relURL.Validate(), ErrInvalidURL)

	badShift := validChannel()
	badShift.TvgShift = 30
	assert.ErrorIs(t, badShift.Validate(), ErrInvalidTimeshift)
}

func TestChannel_DedupKey(t *testing.T) {
	withIDs := validChannel()
	withIDs.TvgID = "CNN"
	withIDs.ChannelName = "CNN HD"

	same := validChannel()
	same.TvgID = "cnn"
	same.ChannelName = "cnn hd"
	same.StreamURL = "http://other.example.com/cnn"

	// Key is the lower-cased (tvg_id, name) pair when both are present.
	assert.Equal(t, withIDs.DedupKey(), same.DedupKey())

	// Without a tvg_id the stream URL is the key.
	noID := validChannel()
	assert.Equal(t, noID.StreamURL, noID.DedupKey())
}

func TestChannel_Clone(t *testing.T) {
	original := validChannel()
	original.GroupTitle = "News"

	clone := original.Clone()
	clone.GroupTitle = "Changed"

	assert.Equal(t, "News", original.GroupTitle)
	assert.Equal(t, original.ID, clone.ID)
}

func TestEpgProgram_Validate(t *testing.T) {
	start := Now()
	valid := &EpgProgram{
		SourceID:  NewULID(),
		ChannelID: "one",
		Title:     "Morning Briefing",
		Start:     start,
		Stop:      start.Add(time.Hour),
	}
	require.NoError(t, valid.Validate())

	inverted := *valid
	inverted.Stop = inverted.Start
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidTimeRange)

	untitled := *valid
	untitled.Title = ""
	assert.ErrorIs(t, untitled.Validate(), ErrTitleRequired)
}

func TestStreamSource_Validate(t *testing.T) {
	src := &StreamSource{
		Name: "  primary  ",
		Type: SourceTypeM3U,
		URL:  "http://playlists.example.com/primary.m3u",
	}
	require.NoError(t, src.Validate())
	assert.Equal(t, "primary", src.Name) // sanitized

	xtream := &StreamSource{
		Name: "xt",
		Type: SourceTypeXtream,
		URL:  "http://xtream.example.com",
	}
	assert.ErrorIs(t, xtream.Validate(), ErrXtreamCredentialsRequired)
}

func TestFilter_Validate(t *testing.T) {
	valid := &Filter{
		Name:       "f",
		SourceType: FilterSourceTypeStream,
		Expression: `channel_name contains "x"`,
	}
	require.NoError(t, valid.Validate())
	assert.Equal(t, FilterActionInclude, valid.Action) // defaulted

	badType := &Filter{Name: "f", SourceType: "other", Expression: "x"}
	assert.Error(t, badType.Validate())
}

func TestStreamProxy_StatusTransitions(t *testing.T) {
	proxy := &StreamProxy{Name: "p"}

	proxy.MarkGenerating()
	assert.Equal(t, StreamProxyStatusGenerating, proxy.Status)

	proxy.MarkSuccess(10, 200)
	assert.Equal(t, StreamProxyStatusSuccess, proxy.Status)
	assert.Equal(t, 10, proxy.ChannelCount)
	assert.NotNil(t, proxy.LastGeneratedAt)

	proxy.MarkFailed(assert.AnError)
	assert.Equal(t, StreamProxyStatusFailed, proxy.Status)
	assert.NotEmpty(t, proxy.LastError)
}
