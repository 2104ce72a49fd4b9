package expression

import "sync"

// FieldType represents the data type of a field.
type FieldType string

// Field types.
const (
	FieldTypeString   FieldType = "string"
	FieldTypeInteger  FieldType = "integer"
	FieldTypeFloat    FieldType = "float"
	FieldTypeDatetime FieldType = "datetime"
)

// String returns the string representation of the field type.
func (t FieldType) String() string {
	return string(t)
}

// FieldDomain represents a context where a field can be used.
type FieldDomain string

// Field domains.
const (
	DomainStream FieldDomain = "stream" // Channel/stream fields
	DomainEPG    FieldDomain = "epg"    // EPG/programme fields
)

// String returns the string representation of the field domain.
func (d FieldDomain) String() string {
	return string(d)
}

// FieldDefinition describes a field that can be used in expressions.
type FieldDefinition struct {
	// Name is the canonical name of the field.
	Name string

	// Type is the data type of the field.
	Type FieldType

	// Description provides documentation for the field.
	Description string

	// Aliases are alternative names for this field.
	Aliases []string

	// Domains lists where this field can be used.
	Domains []FieldDomain

	// ReadOnly indicates if the field cannot be modified by actions.
	ReadOnly bool
}

// InDomain returns true if the field is valid in the given domain.
func (d *FieldDefinition) InDomain(domain FieldDomain) bool {
	for _, fd := range d.Domains {
		if fd == domain {
			return true
		}
	}
	return false
}

// FieldRegistry maintains a registry of field definitions. Aliases are
// resolved to canonical names before evaluation, so the evaluator only ever
// sees canonical field names.
type FieldRegistry struct {
	mu       sync.RWMutex
	fields   map[string]*FieldDefinition
	aliases  map[string]string // alias -> canonical name
	byDomain map[FieldDomain][]*FieldDefinition
}

// NewFieldRegistry creates a new empty field registry.
func NewFieldRegistry() *FieldRegistry {
	return &FieldRegistry{
		fields:   make(map[string]*FieldDefinition),
		aliases:  make(map[string]string),
		byDomain: make(map[FieldDomain][]*FieldDefinition),
	}
}

// Register adds a field definition to the registry.
func (r *FieldRegistry) Register(def *FieldDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fields[def.Name] = def

	for _, alias := range def.Aliases {
		r.aliases[alias] = def.Name
	}

	for _, domain := range def.Domains {
		r.byDomain[domain] = append(r.byDomain[domain], def)
	}
}

// Get retrieves a field definition by name or alias.
func (r *FieldRegistry) Get(name string) (*FieldDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.fields[name]; ok {
		return def, true
	}

	if canonical, ok := r.aliases[name]; ok {
		if def, ok := r.fields[canonical]; ok {
			return def, true
		}
	}

	return nil, false
}

// Resolve returns the canonical name for a field name or alias.
// If the name is not found, it returns the input unchanged.
func (r *FieldRegistry) Resolve(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.fields[name]; ok {
		return name
	}

	if canonical, ok := r.aliases[name]; ok {
		return canonical
	}

	return name
}

// ListByDomain returns all field definitions valid for the given domain.
func (r *FieldRegistry) ListByDomain(domain FieldDomain) []*FieldDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.byDomain[domain]
}

// NamesForDomain returns every valid name (canonical and alias) for a domain.
func (r *FieldRegistry) NamesForDomain(domain FieldDomain) map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make(map[string]bool)
	for _, def := range r.byDomain[domain] {
		names[def.Name] = true
		for _, alias := range def.Aliases {
			names[alias] = true
		}
	}
	return names
}

// All returns all registered field definitions.
func (r *FieldRegistry) All() []*FieldDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*FieldDefinition, 0, len(r.fields))
	for _, def := range r.fields {
		result = append(result, def)
	}
	return result
}

// defaultRegistry is the singleton default registry.
var (
	defaultRegistry     *FieldRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the default field registry with standard fields.
func DefaultRegistry() *FieldRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewFieldRegistry()
		registerChannelFields(defaultRegistry)
		registerEPGFields(defaultRegistry)
		registerSourceMetadataFields(defaultRegistry)
	})
	return defaultRegistry
}

// registerChannelFields registers standard channel/stream fields.
func registerChannelFields(r *FieldRegistry) {
	r.Register(&FieldDefinition{
		Name:        "channel_name",
		Type:        FieldTypeString,
		Description: "The display name of the channel",
		Aliases:     []string{"name"},
		Domains:     []FieldDomain{DomainStream},
	})

	r.Register(&FieldDefinition{
		Name:        "tvg_id",
		Type:        FieldTypeString,
		Description: "The EPG identifier for the channel",
		Aliases:     []string{"epg_id"},
		Domains:     []FieldDomain{DomainStream},
	})

	r.Register(&FieldDefinition{
		Name:        "tvg_name",
		Type:        FieldTypeString,
		Description: "The TVG name attribute",
		Domains:     []FieldDomain{DomainStream},
	})

	r.Register(&FieldDefinition{
		Name:        "tvg_logo",
		Type:        FieldTypeString,
		Description: "URL to the channel logo",
		Aliases:     []string{"logo"},
		Domains:     []FieldDomain{DomainStream},
	})

	r.Register(&FieldDefinition{
		Name:        "tvg_shift",
		Type:        FieldTypeInteger,
		Description: "EPG time shift in hours",
		Aliases:     []string{"shift", "timeshift"},
		Domains:     []FieldDomain{DomainStream},
	})

	r.Register(&FieldDefinition{
		Name:        "group_title",
		Type:        FieldTypeString,
		Description: "The group/category for the channel",
		Aliases:     []string{"group", "category"},
		Domains:     []FieldDomain{DomainStream},
	})

	r.Register(&FieldDefinition{
		Name:        "stream_url",
		Type:        FieldTypeString,
		Description: "The URL of the stream",
		Aliases:     []string{"url"},
		Domains:     []FieldDomain{DomainStream},
		ReadOnly:    true,
	})

	r.Register(&FieldDefinition{
		Name:        "channel_number",
		Type:        FieldTypeInteger,
		Description: "The assigned channel number",
		Aliases:     []string{"number", "chno"},
		Domains:     []FieldDomain{DomainStream},
	})
}

// registerEPGFields registers standard EPG/programme fields.
func registerEPGFields(r *FieldRegistry) {
	r.Register(&FieldDefinition{
		Name:        "channel_id",
		Type:        FieldTypeString,
		Description: "The EPG channel identifier the programme belongs to",
		Domains:     []FieldDomain{DomainEPG},
		ReadOnly:    true,
	})

	r.Register(&FieldDefinition{
		Name:        "programme_title",
		Type:        FieldTypeString,
		Description: "The title of the programme",
		Aliases:     []string{"program_title", "title"},
		Domains:     []FieldDomain{DomainEPG},
	})

	r.Register(&FieldDefinition{
		Name:        "programme_subtitle",
		Type:        FieldTypeString,
		Description: "The episode title or subtitle of the programme",
		Aliases:     []string{"program_subtitle", "sub_title"},
		Domains:     []FieldDomain{DomainEPG},
	})

	r.Register(&FieldDefinition{
		Name:        "programme_description",
		Type:        FieldTypeString,
		Description: "The description of the programme",
		Aliases:     []string{"program_description", "description", "desc"},
		Domains:     []FieldDomain{DomainEPG},
	})

	r.Register(&FieldDefinition{
		Name:        "programme_start",
		Type:        FieldTypeDatetime,
		Description: "The start time of the programme",
		Aliases:     []string{"program_start", "start", "start_time"},
		Domains:     []FieldDomain{DomainEPG},
		ReadOnly:    true,
	})

	r.Register(&FieldDefinition{
		Name:        "programme_stop",
		Type:        FieldTypeDatetime,
		Description: "The end time of the programme",
		Aliases:     []string{"program_stop", "stop", "end_time"},
		Domains:     []FieldDomain{DomainEPG},
		ReadOnly:    true,
	})

	r.Register(&FieldDefinition{
		Name:        "programme_category",
		Type:        FieldTypeString,
		Description: "The category of the programme",
		Aliases:     []string{"program_category", "genre"},
		Domains:     []FieldDomain{DomainEPG},
	})

	r.Register(&FieldDefinition{
		Name:        "programme_episode",
		Type:        FieldTypeString,
		Description: "Episode number information",
		Aliases:     []string{"program_episode", "episode"},
		Domains:     []FieldDomain{DomainEPG},
	})

	r.Register(&FieldDefinition{
		Name:        "programme_rating",
		Type:        FieldTypeString,
		Description: "The content rating of the programme",
		Aliases:     []string{"program_rating", "rating"},
		Domains:     []FieldDomain{DomainEPG},
	})

	r.Register(&FieldDefinition{
		Name:        "programme_language",
		Type:        FieldTypeString,
		Description: "The language of the programme",
		Aliases:     []string{"program_language", "language", "lang"},
		Domains:     []FieldDomain{DomainEPG},
	})

	r.Register(&FieldDefinition{
		Name:        "programme_icon",
		Type:        FieldTypeString,
		Description: "URL to the programme icon/poster",
		Aliases:     []string{"program_icon", "poster"},
		Domains:     []FieldDomain{DomainEPG},
	})
}

// registerSourceMetadataFields registers source metadata fields.
func registerSourceMetadataFields(r *FieldRegistry) {
	r.Register(&FieldDefinition{
		Name:        "source_name",
		Type:        FieldTypeString,
		Description: "The name of the source that provided this data",
		Domains:     []FieldDomain{DomainStream, DomainEPG},
		ReadOnly:    true,
	})

	r.Register(&FieldDefinition{
		Name:        "source_type",
		Type:        FieldTypeString,
		Description: "The type of source (m3u, xtream, xmltv)",
		Domains:     []FieldDomain{DomainStream, DomainEPG},
		ReadOnly:    true,
	})

	r.Register(&FieldDefinition{
		Name:        "source_url",
		Type:        FieldTypeString,
		Description: "The URL of the source",
		Domains:     []FieldDomain{DomainStream, DomainEPG},
		ReadOnly:    true,
	})
}
