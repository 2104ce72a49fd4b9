package models

import (
	"gorm.io/gorm"
)

// EpgChannel represents a channel definition from an EPG source.
// When multiple sources expose the same channel id, the first source in
// priority order wins the channel metadata (display name, icon).
type EpgChannel struct {
	BaseModel

	// SourceID is the foreign key to the parent EpgSource.
	SourceID ULID `gorm:"type:varchar(26);not null;uniqueIndex:idx_epg_channel_unique" json:"source_id"`

	// ChannelID is the EPG channel identifier (matches Channel.TvgID).
	ChannelID string `gorm:"not null;size:255;uniqueIndex:idx_epg_channel_unique" json:"channel_id"`

	// DisplayName is the channel display name.
	DisplayName string `gorm:"size:512" json:"display_name,omitempty"`

	// Icon is the URL to the channel icon.
	Icon string `gorm:"size:2048" json:"icon,omitempty"`

	// Source is the relationship back to the parent EpgSource.
	Source *EpgSource `gorm:"foreignKey:SourceID" json:"source,omitempty"`
}

// TableName returns the table name for EpgChannel.
func (EpgChannel) TableName() string {
	return "epg_channels"
}

// GetSourceID returns the source ID.
func (c *EpgChannel) GetSourceID() ULID {
	return c.SourceID
}

// Validate performs basic validation on the EPG channel.
func (c *EpgChannel) Validate() error {
	if c.SourceID.IsZero() {
		return ErrSourceIDRequired
	}
	if c.ChannelID == "" {
		return ErrChannelIDRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the channel and generates ULID.
func (c *EpgChannel) BeforeCreate(tx *gorm.DB) error {
	if err := c.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return c.Validate()
}
