// Package testutil provides test utilities including sample data generation.
package testutil

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/jmylchreest/m3u-proxy/internal/models"
)

// Standard fictional broadcasters for test data.
// Never use real brand names in fixtures.
var (
	Broadcasters = []string{
		"StreamCast",
		"ViewMedia",
		"AeroVision",
		"GlobalStream",
		"NationalNet",
		"SportsCentral",
		"CinemaMax",
		"MusicMax",
		"NewsFirst",
		"PrimeTV",
	}

	ChannelVariants = []string{
		"One",
		"Two",
		"Three",
		"Prime",
		"Plus",
		"Max",
		"Gold",
		"Extra",
	}

	Groups = []string{
		"News",
		"Sports",
		"Movies",
		"Music",
		"Documentary",
		"Entertainment",
	}

	ProgramTitles = []string{
		"Morning Briefing",
		"The Late Review",
		"Matchday Live",
		"Cooking with Fire",
		"Deep Ocean",
		"City Stories",
		"Night Owls",
		"The Quiz Hour",
	}
)

// SampleStreamSource returns a stream source fixture.
func SampleStreamSource(name string) *models.StreamSource {
	src := &models.StreamSource{
		Name:    name,
		Type:    models.SourceTypeM3U,
		URL:     fmt.Sprintf("http://playlists.example.com/%s.m3u", name),
		Enabled: models.BoolPtr(true),
	}
	src.ID = models.NewULID()
	return src
}

// SampleEpgSource returns an EPG source fixture.
func SampleEpgSource(name string) *models.EpgSource {
	src := &models.EpgSource{
		Name:    name,
		Type:    models.EpgSourceTypeXMLTV,
		URL:     fmt.Sprintf("http://epg.example.com/%s.xml", name),
		Enabled: models.BoolPtr(true),
	}
	src.ID = models.NewULID()
	return src
}

// SampleChannel returns a channel fixture bound to a source.
func SampleChannel(sourceID models.ULID, name, tvgID string) *models.Channel {
	ch := &models.Channel{
		SourceID:    sourceID,
		TvgID:       tvgID,
		TvgName:     name,
		ChannelName: name,
		GroupTitle:  Groups[0],
		StreamURL:   fmt.Sprintf("http://streams.example.com/%s/index.m3u8", tvgID),
	}
	ch.ID = models.NewULID()
	return ch
}

// SampleChannels returns n channel fixtures with generated names.
func SampleChannels(sourceID models.ULID, n int) []*models.Channel {
	rng := rand.New(rand.NewSource(int64(n)))
	channels := make([]*models.Channel, 0, n)
	for i := 0; i < n; i++ {
		broadcaster := Broadcasters[i%len(Broadcasters)]
		variant := ChannelVariants[(i/len(Broadcasters))%len(ChannelVariants)]
		name := fmt.Sprintf("%s %s", broadcaster, variant)
		tvgID := fmt.Sprintf("%s-%s-%03d", broadcaster, variant, i)

		ch := SampleChannel(sourceID, name, tvgID)
		ch.GroupTitle = Groups[rng.Intn(len(Groups))]
		channels = append(channels, ch)
	}
	return channels
}

// SampleProgram returns a program fixture for an EPG channel.
func SampleProgram(sourceID models.ULID, channelID, title string, start time.Time, duration time.Duration) *models.EpgProgram {
	prog := &models.EpgProgram{
		SourceID:  sourceID,
		ChannelID: channelID,
		Title:     title,
		Start:     start.UTC(),
		Stop:      start.Add(duration).UTC(),
	}
	prog.ID = models.NewULID()
	return prog
}

// SamplePrograms returns back-to-back program fixtures for a channel.
func SamplePrograms(sourceID models.ULID, channelID string, start time.Time, n int) []*models.EpgProgram {
	programs := make([]*models.EpgProgram, 0, n)
	at := start
	for i := 0; i < n; i++ {
		title := ProgramTitles[i%len(ProgramTitles)]
		prog := SampleProgram(sourceID, channelID, title, at, time.Hour)
		programs = append(programs, prog)
		at = at.Add(time.Hour)
	}
	return programs
}

// SampleProxy returns a proxy fixture.
func SampleProxy(name string) *models.StreamProxy {
	proxy := &models.StreamProxy{
		Name:                  name,
		IsActive:              true,
		StartingChannelNumber: 1,
		NumberingMode:         models.NumberingModeSequential,
	}
	proxy.ID = models.NewULID()
	return proxy
}
