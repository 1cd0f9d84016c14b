package domain

// Collection names used on the CTIS platform.
const (
	CollectionIdentities    = "identities"
	CollectionDossiers      = "x-dossiers"
	CollectionEEIs          = "eeis"
	CollectionAlerts        = "alerts"
	CollectionRelationships = "relationships"
	CollectionSettings      = "settings"
	CollectionSources       = "sources"
)

// Relationship labels and markers.
const (
	RelatedTo = "related-to"
	IsVictim  = "is_victim"
)

// Session is the authenticated context for every CTIS call.
// It is created once by login and never mutated afterwards.
type Session struct {
	BaseURL string
	Token   string
}

// SourceTag is the classification/releasability/TLP attribution block
// attached to every created resource ("x-sources").
type SourceTag struct {
	SourceName     string `json:"source_name"`
	Classification int    `json:"classification"`
	Releasability  int    `json:"releasability"`
	TLP            int    `json:"tlp"`
}

// DefaultSourceTag is the private fallback attribution.
func DefaultSourceTag() SourceTag {
	return SourceTag{SourceName: "default"}
}

// EntityMapping tells where a vendor entity type lands on the platform.
type EntityMapping struct {
	Collection       string `yaml:"type"`
	ValueField       string `yaml:"param"`
	DescriptionField string `yaml:"description"`
	Class            string `yaml:"class"`
}

// MappingTable maps vendor entity types to platform collections.
type MappingTable map[string]EntityMapping

// Lookup returns the mapping for a vendor type.
func (m MappingTable) Lookup(vendorType string) (EntityMapping, bool) {
	em, ok := m[vendorType]
	return em, ok
}

// Relationship is a directed, typed edge between two platform nodes.
type Relationship struct {
	ID               string `json:"_id,omitempty"`
	Type             string `json:"type"`
	Confidence       int    `json:"confidence"`
	SubType          string `json:"sub-type,omitempty"`
	RelationshipType string `json:"relationship_type"`
	SourceRef        string `json:"source_ref"`
	SourceType       string `json:"source_type"`
	TargetRef        string `json:"target_ref"`
	TargetType       string `json:"target_type"`
}

// NodeRef identifies a created (or found) node for relationship linking.
type NodeRef struct {
	ID         string
	Collection string
}
