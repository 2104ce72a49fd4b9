package shared

import (
	"fmt"

	"github.com/jmylchreest/m3u-proxy/internal/models"
	"github.com/jmylchreest/m3u-proxy/internal/urlutil"
	"github.com/jmylchreest/m3u-proxy/pkg/m3u"
	"github.com/jmylchreest/m3u-proxy/pkg/xmltv"
)

// BuildProxyStreamURL builds the proxied stream URL for a channel.
// Format: {baseURL}/stream/{proxyId}/{channelId}
func BuildProxyStreamURL(baseURL string, proxyID, channelID models.ULID) string {
	base := urlutil.NormalizeBaseURL(baseURL)
	return urlutil.JoinPath(base, fmt.Sprintf("/stream/%s/%s", proxyID.String(), channelID.String()))
}

// ChannelToM3UEntry converts a numbered Channel to an M3U Entry with the
// proxied stream URL.
func ChannelToM3UEntry(ch *models.Channel, baseURL string, proxyID models.ULID) *m3u.Entry {
	return &m3u.Entry{
		TvgID:         ch.TvgID,
		TvgName:       ch.TvgName,
		TvgLogo:       ch.TvgLogo,
		ChannelNumber: ch.ChannelNumber,
		GroupTitle:    ch.GroupTitle,
		Title:         ch.ChannelName,
		URL:           BuildProxyStreamURL(baseURL, proxyID, ch.ID),
	}
}

// EpgIdentifier returns the identifier a channel is known by in the EPG:
// tvg_id when present, the channel name otherwise.
func EpgIdentifier(ch *models.Channel) string {
	if ch.TvgID != "" {
		return ch.TvgID
	}
	return ch.ChannelName
}

// ChannelToXMLTVChannel converts a Channel to an XMLTV Channel definition.
func ChannelToXMLTVChannel(ch *models.Channel) *xmltv.Channel {
	displayName := ch.TvgName
	if displayName == "" {
		displayName = ch.ChannelName
	}

	return &xmltv.Channel{
		ID:          EpgIdentifier(ch),
		DisplayName: displayName,
		Icon:        ch.TvgLogo,
	}
}

// ProgramToXMLTVProgramme converts an EpgProgram to an XMLTV Programme.
func ProgramToXMLTVProgramme(prog *models.EpgProgram) *xmltv.Programme {
	return &xmltv.Programme{
		Start:       prog.Start,
		Stop:        prog.Stop,
		Channel:     prog.ChannelID,
		Title:       prog.Title,
		SubTitle:    prog.SubTitle,
		Description: prog.Description,
		Category:    prog.Category,
		Icon:        prog.Icon,
		EpisodeNum:  prog.EpisodeNum,
		Rating:      prog.Rating,
		Language:    prog.Language,
		IsNew:       prog.IsNew,
		IsPremiere:  prog.IsPremiere,
	}
}

// ChannelFields flattens a channel into the expression engine's field map.
func ChannelFields(ch *models.Channel) map[string]string {
	return map[string]string{
		"channel_name":   ch.ChannelName,
		"tvg_id":         ch.TvgID,
		"tvg_name":       ch.TvgName,
		"tvg_logo":       ch.TvgLogo,
		"tvg_shift":      fmt.Sprintf("%d", ch.TvgShift),
		"group_title":    ch.GroupTitle,
		"stream_url":     ch.StreamURL,
		"channel_number": fmt.Sprintf("%d", ch.ChannelNumber),
	}
}

// ApplyChannelFields writes mutated field values back onto a channel.
// Read-only fields (stream_url) are not written back.
func ApplyChannelFields(ch *models.Channel, fields map[string]string) {
	ch.ChannelName = fields["channel_name"]
	ch.TvgID = fields["tvg_id"]
	ch.TvgName = fields["tvg_name"]
	ch.TvgLogo = fields["tvg_logo"]
	ch.GroupTitle = fields["group_title"]
	if shift, err := parseInt(fields["tvg_shift"]); err == nil {
		ch.TvgShift = shift
	}
	if number, err := parseInt(fields["channel_number"]); err == nil {
		ch.ChannelNumber = number
	}
}

// ProgramFields flattens a program into the expression engine's field map.
func ProgramFields(prog *models.EpgProgram) map[string]string {
	return map[string]string{
		"channel_id":            prog.ChannelID,
		"programme_title":       prog.Title,
		"programme_subtitle":    prog.SubTitle,
		"programme_description": prog.Description,
		"programme_category":    prog.Category,
		"programme_icon":        prog.Icon,
		"programme_episode":     prog.EpisodeNum,
		"programme_rating":      prog.Rating,
		"programme_language":    prog.Language,
		"programme_start":       prog.Start.UTC().Format("2006-01-02T15:04:05Z"),
		"programme_stop":        prog.Stop.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// ApplyProgramFields writes mutated field values back onto a program.
// Read-only fields (channel_id, times) are not written back.
func ApplyProgramFields(prog *models.EpgProgram, fields map[string]string) {
	prog.Title = fields["programme_title"]
	prog.SubTitle = fields["programme_subtitle"]
	prog.Description = fields["programme_description"]
	prog.Category = fields["programme_category"]
	prog.Icon = fields["programme_icon"]
	prog.EpisodeNum = fields["programme_episode"]
	prog.Rating = fields["programme_rating"]
	prog.Language = fields["programme_language"]
}

// parseInt parses a decimal integer; the empty string yields an error.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
