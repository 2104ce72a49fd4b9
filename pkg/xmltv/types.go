// Package xmltv provides streaming XMLTV document writing in the wire format
// produced by proxy generation.
package xmltv

import "time"

// Channel represents an XMLTV channel definition.
type Channel struct {
	// ID is the channel identifier referenced by programme entries.
	ID string

	// DisplayName is the human-readable channel name.
	DisplayName string

	// Icon is an optional channel icon URL.
	Icon string
}

// Programme represents an XMLTV programme entry.
type Programme struct {
	// Start is the programme start time (serialized as UTC).
	Start time.Time

	// Stop is the programme end time (serialized as UTC).
	Stop time.Time

	// Channel is the id of the channel this programme belongs to.
	Channel string

	// Title is the programme title (required).
	Title string

	// SubTitle is the episode title or subtitle.
	SubTitle string

	// Description is the programme description.
	Description string

	// Category is the genre/category.
	Category string

	// Icon is an optional programme image URL.
	Icon string

	// EpisodeNum is the episode number (onscreen format).
	EpisodeNum string

	// Rating is the content rating.
	Rating string

	// Language is the programme language.
	Language string

	// IsNew marks a new episode.
	IsNew bool

	// IsPremiere marks a premiere.
	IsPremiere bool
}
