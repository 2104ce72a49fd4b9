package models

import (
	"net/url"
	"strings"

	"gorm.io/gorm"
)

// EpgSourceType represents the type of EPG source.
type EpgSourceType string

const (
	// EpgSourceTypeXMLTV represents an XMLTV file/URL source.
	EpgSourceTypeXMLTV EpgSourceType = "xmltv"
	// EpgSourceTypeXtream represents an Xtream Codes EPG API source.
	EpgSourceTypeXtream EpgSourceType = "xtream"
)

// EpgSource represents an upstream EPG data source (XMLTV or Xtream).
type EpgSource struct {
	BaseModel

	// Name is a user-friendly name for the source.
	// Must be unique across all EPG sources.
	Name string `gorm:"uniqueIndex;not null;size:255" json:"name"`

	// Type indicates whether this is an XMLTV or Xtream EPG source.
	Type EpgSourceType `gorm:"not null;size:20" json:"type"`

	// URL is the XMLTV URL or Xtream server base URL.
	URL string `gorm:"not null;size:2048" json:"url"`

	// Username for Xtream authentication (optional for XMLTV).
	Username string `gorm:"size:255" json:"username,omitempty"`

	// Password for Xtream authentication (optional for XMLTV).
	Password string `gorm:"size:255" json:"password,omitempty"`

	// Enabled indicates whether this source should be included in generation.
	Enabled *bool `gorm:"default:true" json:"enabled"`

	// ProgramCount is the number of programs from the last ingestion.
	ProgramCount int `gorm:"default:0" json:"program_count"`

	// Channels is the relationship to EPG channels from this source.
	Channels []EpgChannel `gorm:"foreignKey:SourceID;constraint:OnDelete:CASCADE" json:"channels,omitempty"`

	// Programs is the relationship to programs from this source.
	Programs []EpgProgram `gorm:"foreignKey:SourceID;constraint:OnDelete:CASCADE" json:"programs,omitempty"`
}

// TableName returns the table name for EpgSource.
func (EpgSource) TableName() string {
	return "epg_sources"
}

// IsEnabled returns whether the source participates in generation.
func (s *EpgSource) IsEnabled() bool {
	return BoolVal(s.Enabled)
}

// Sanitize trims whitespace from user-provided fields.
func (s *EpgSource) Sanitize() {
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)
	s.Username = strings.TrimSpace(s.Username)
	s.Password = strings.TrimSpace(s.Password)
}

// Validate performs basic validation on the EPG source.
func (s *EpgSource) Validate() error {
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
	if s.Type != EpgSourceTypeXMLTV && s.Type != EpgSourceTypeXtream {
		return ErrInvalidEpgSourceType
	}
	if s.Type == EpgSourceTypeXtream && (s.Username == "" || s.Password == "") {
		return ErrXtreamCredentialsRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the source and generates ULID.
func (s *EpgSource) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return s.Validate()
}

// BeforeUpdate is a GORM hook that validates the source before update.
func (s *EpgSource) BeforeUpdate(tx *gorm.DB) error {
	return s.Validate()
}
