package models

import (
	"net/url"
	"strings"

	"gorm.io/gorm"
)

// SourceType represents the type of stream source.
type SourceType string

const (
	// SourceTypeM3U represents an M3U playlist source.
	SourceTypeM3U SourceType = "m3u"
	// SourceTypeXtream represents an Xtream Codes API source.
	SourceTypeXtream SourceType = "xtream"
)

// StreamSource represents an upstream channel source (M3U URL or Xtream server).
// The generation core only reads sources; ingestion is handled elsewhere.
type StreamSource struct {
	BaseModel

	// Name is a user-friendly name for the source.
	// Must be unique across all stream sources.
	Name string `gorm:"uniqueIndex;not null;size:255" json:"name"`

	// Type indicates whether this is an M3U or Xtream source.
	Type SourceType `gorm:"not null;size:20" json:"type"`

	// URL is the M3U playlist URL or Xtream server base URL.
	URL string `gorm:"not null;size:2048" json:"url"`

	// Username for Xtream authentication (optional for M3U).
	Username string `gorm:"size:255" json:"username,omitempty"`

	// Password for Xtream authentication (optional for M3U).
	Password string `gorm:"size:255" json:"password,omitempty"`

	// Enabled indicates whether this source should be included in generation.
	// Using pointer to distinguish between "not set" (nil->default true) and "explicitly false".
	Enabled *bool `gorm:"default:true" json:"enabled"`

	// ChannelCount is the number of channels from the last ingestion.
	ChannelCount int `gorm:"default:0" json:"channel_count"`

	// Channels is the relationship to channels from this source.
	Channels []Channel `gorm:"foreignKey:SourceID;constraint:OnDelete:CASCADE" json:"channels,omitempty"`
}

// TableName returns the table name for StreamSource.
func (StreamSource) TableName() string {
	return "stream_sources"
}

// IsM3U returns true if this is an M3U source.
func (s *StreamSource) IsM3U() bool {
	return s.Type == SourceTypeM3U
}

// IsXtream returns true if this is an Xtream source.
func (s *StreamSource) IsXtream() bool {
	return s.Type == SourceTypeXtream
}

// IsEnabled returns whether the source participates in generation.
func (s *StreamSource) IsEnabled() bool {
	return BoolVal(s.Enabled)
}

// Sanitize trims whitespace from user-provided fields.
func (s *StreamSource) Sanitize() {
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)
	s.Username = strings.TrimSpace(s.Username)
	s.Password = strings.TrimSpace(s.Password)
}

// Validate performs basic validation on the source.
func (s *StreamSource) Validate() error {
	s.Sanitize()

	if s.Name == "" {
		return ErrNameRequired
	}
	if s.URL == "" {
		return ErrURLRequired
	}
	if _, err := url.Parse(s.URL); err != nil {
		return ErrInvalidURL
	}
	if s.Type != SourceTypeM3U && s.Type != SourceTypeXtream {
		return ErrInvalidSourceType
	}
	if s.Type == SourceTypeXtream && (s.Username == "" || s.Password == "") {
		return ErrXtreamCredentialsRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the source and generates ULID.
func (s *StreamSource) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return s.Validate()
}

// BeforeUpdate is a GORM hook that validates the source before update.
func (s *StreamSource) BeforeUpdate(tx *gorm.DB) error {
	return s.Validate()
}
