package models

import (
	"net/url"
	"strings"

	"gorm.io/gorm"
)

// Channel represents an individual channel parsed from a stream source.
// Channels are read-only input to the generation pipeline; stages operate
// on copies and never mutate stored rows.
type Channel struct {
	BaseModel

	// SourceID is the foreign key to the parent StreamSource.
	SourceID ULID `gorm:"type:varchar(26);not null;index" json:"source_id"`

	// TvgID is the EPG channel identifier for matching with program data.
	TvgID string `gorm:"size:255;index" json:"tvg_id,omitempty"`

	// TvgName is the display name from the M3U tvg-name attribute.
	TvgName string `gorm:"size:512" json:"tvg_name,omitempty"`

	// TvgLogo is the URL to the channel logo, or a cached logo asset reference.
	TvgLogo string `gorm:"size:2048" json:"tvg_logo,omitempty"`

	// TvgShift is the EPG timeshift in whole hours (e.g. +1 for a "+1" rebroadcast).
	TvgShift int `gorm:"default:0" json:"tvg_shift,omitempty"`

	// GroupTitle is the category/group from the M3U group-title attribute.
	GroupTitle string `gorm:"size:255;index" json:"group_title,omitempty"`

	// ChannelName is the display name (from EXTINF title or computed).
	ChannelName string `gorm:"not null;size:512" json:"channel_name"`

	// ChannelNumber is an explicit channel number (tvg-chno) if specified.
	ChannelNumber int `gorm:"default:0" json:"channel_number,omitempty"`

	// StreamURL is the actual stream URL.
	StreamURL string `gorm:"not null;size:4096" json:"stream_url"`

	// Source is the relationship back to the parent StreamSource.
	Source *StreamSource `gorm:"foreignKey:SourceID" json:"source,omitempty"`
}

// TableName returns the table name for Channel.
func (Channel) TableName() string {
	return "channels"
}

// GetSourceID returns the source ID.
func (c *Channel) GetSourceID() ULID {
	return c.SourceID
}

// Validate performs basic validation on the channel.
func (c *Channel) Validate() error {
	if c.SourceID.IsZero() {
		return ErrSourceIDRequired
	}
	if c.ChannelName == "" {
		return ErrNameRequired
	}
	if c.StreamURL == "" {
		return ErrStreamURLRequired
	}
	if u, err := url.Parse(c.StreamURL); err != nil || !u.IsAbs() {
		return ErrInvalidURL
	}
	if c.TvgShift < -24 || c.TvgShift > 24 {
		return ErrInvalidTimeshift
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the channel and generates ULID.
func (c *Channel) BeforeCreate(tx *gorm.DB) error {
	if err := c.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return c.Validate()
}

// BeforeUpdate is a GORM hook that validates the channel before update.
func (c *Channel) BeforeUpdate(tx *gorm.DB) error {
	return c.Validate()
}

// DedupKey returns the key used for first-source-wins deduplication when
// merging channels from multiple sources. When both tvg_id and channel name
// are present the key is the lower-cased pair; otherwise the stream URL.
func (c *Channel) DedupKey() string {
	if c.TvgID != "" && c.ChannelName != "" {
		return strings.ToLower(c.TvgID) + "\x00" + strings.ToLower(c.ChannelName)
	}
	return c.StreamURL
}

// Clone returns a copy of the channel suitable for in-pipeline mutation.
func (c *Channel) Clone() *Channel {
	clone := *c
	clone.Source = nil
	return &clone
}
