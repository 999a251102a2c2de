package graph

// EntityType is the closed enumeration of cardiology concept categories.
type EntityType string

const (
	TypeCondition  EntityType = "Condition"
	TypeAnatomy    EntityType = "Anatomy"
	TypeTreatment  EntityType = "Treatment"
	TypeDiagnostic EntityType = "Diagnostic"
	TypeFinding    EntityType = "Finding"
	TypeProcedure  EntityType = "Procedure"
	TypeMechanism  EntityType = "Mechanism"
	TypeOther      EntityType = "Other"
)

// typeRank orders the enumeration for tie-breaking when a surface form
// matches more than one category. Lower rank wins.
var typeRank = map[EntityType]int{
	TypeCondition:  0,
	TypeTreatment:  1,
	TypeProcedure:  2,
	TypeDiagnostic: 3,
	TypeAnatomy:    4,
	TypeFinding:    5,
	TypeMechanism:  6,
	TypeOther:      7,
}

// Valid reports whether t is a member of the entity type enumeration.
func (t EntityType) Valid() bool {
	_, ok := typeRank[t]
	return ok
}

// HigherPriority returns whichever of a and b ranks higher in the fixed
// tie-break order (Condition > Treatment > Procedure > Diagnostic >
// Anatomy > Finding > Mechanism > Other).
func HigherPriority(a, b EntityType) EntityType {
	ra, ok := typeRank[a]
	if !ok {
		return b
	}
	rb, ok := typeRank[b]
	if !ok || ra <= rb {
		return a
	}
	return b
}

// Relation type labels assigned by the extraction patterns.
const (
	RelAffects     = "AFFECTS"
	RelInvolves    = "INVOLVES"
	RelTreats      = "TREATS"
	RelDiagnoses   = "DIAGNOSES"
	RelIndicates   = "INDICATES"
	RelPerformedOn = "PERFORMED_ON"
	RelConnectedTo = "CONNECTED_TO"
	RelLeadsTo     = "LEADS_TO"
)

var knownRelationTypes = map[string]bool{
	RelAffects:     true,
	RelInvolves:    true,
	RelTreats:      true,
	RelDiagnoses:   true,
	RelIndicates:   true,
	RelPerformedOn: true,
	RelConnectedTo: true,
	RelLeadsTo:     true,
}

// KnownRelationType reports whether label is one of the relation types the
// extraction patterns can emit. The relation vocabulary is open in the data
// model but validated at the store boundary.
func KnownRelationType(label string) bool {
	return knownRelationTypes[label]
}

// Tier grades a dual-process classification. The zero value means unset.
type Tier string

const (
	TierNone   Tier = ""
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Entity is a canonical concept node. Name is the case- and
// whitespace-normalized key, unique within the graph.
type Entity struct {
	Name      string     `json:"name"`
	Type      EntityType `json:"type"`
	Frequency int        `json:"frequency"`
	Aliases   []string   `json:"aliases,omitempty"`
}

// Relationship is a directed, typed edge between two entities, aggregated
// over every supporting sentence. Strength is meaningful only when System1
// is true, Relevance only when System2 is true.
type Relationship struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"relation_type"`
	Frequency  int     `json:"frequency"`
	Confidence float64 `json:"confidence"`
	System1    bool    `json:"system1"`
	System2    bool    `json:"system2"`
	Strength   Tier    `json:"strength,omitempty"`
	Relevance  Tier    `json:"relevance,omitempty"`
}

// SourceRef records which document supported an entity mention or a
// relationship, and how often. Provenance records are append-only.
type SourceRef struct {
	SourceTitle  string `json:"source_title"`
	SourceType   string `json:"source_type"`
	MentionCount int    `json:"mention_count"`
}

// EntityMention is a transient, per-sentence entity candidate produced by
// the recognizer before it is merged into the store.
type EntityMention struct {
	Surface string     `json:"surface_form"`
	Name    string     `json:"normalized_name"`
	Type    EntityType `json:"type"`
	Start   int        `json:"start"`
	End     int        `json:"end"`
}

// RelationshipCandidate is a transient, per-sentence relationship proposal
// with its extraction confidence.
type RelationshipCandidate struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"relation_type"`
	Confidence float64 `json:"confidence"`
}

// ViewType selects the dual-process filter applied to an ego-subgraph.
type ViewType string

const (
	ViewComplete ViewType = "complete"
	ViewSystem1  ViewType = "system1"
	ViewSystem2  ViewType = "system2"
)

// Valid reports whether v names one of the three view policies.
func (v ViewType) Valid() bool {
	switch v {
	case ViewComplete, ViewSystem1, ViewSystem2:
		return true
	}
	return false
}

// ViewNode is a node in a rendered view payload.
type ViewNode struct {
	ID      string     `json:"id"`
	Label   string     `json:"label"`
	Type    EntityType `json:"type"`
	Group   EntityType `json:"group"`
	Central bool       `json:"central"`
	Value   int        `json:"value"`
}

// ViewLink is an edge in a rendered view payload. Value carries the
// supporting-sentence count so the front end can scale line width.
type ViewLink struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Label      string  `json:"label"`
	Value      int     `json:"value"`
	Confidence float64 `json:"confidence"`
	System1    bool    `json:"system1"`
	System2    bool    `json:"system2"`
	Strength   Tier    `json:"strength,omitempty"`
	Relevance  Tier    `json:"relevance,omitempty"`
}

// View is the bounded ego-subgraph for one entity under one view policy.
// Found is false when the entity does not exist, which is a normal
// "no data yet" outcome rather than an error.
type View struct {
	ViewType      ViewType   `json:"viewType"`
	CentralEntity string     `json:"centralEntity"`
	Found         bool       `json:"found"`
	Nodes         []ViewNode `json:"nodes"`
	Links         []ViewLink `json:"links"`
	Description   string     `json:"description,omitempty"`
}

// SearchResult is one entry in a ranked entity search response.
type SearchResult struct {
	Name      string     `json:"name"`
	Type      EntityType `json:"type"`
	Frequency int        `json:"frequency"`
}

// RelatedEntity summarizes one neighbor in an entity detail response.
type RelatedEntity struct {
	EntityName   string     `json:"entity_name"`
	EntityType   EntityType `json:"entity_type"`
	Relationship string     `json:"relationship"`
	Frequency    int        `json:"frequency"`
}

// EntityInfo is the entity detail payload served by the query API.
type EntityInfo struct {
	Found           bool            `json:"found"`
	Name            string          `json:"name,omitempty"`
	Type            EntityType      `json:"type,omitempty"`
	Frequency       int             `json:"frequency,omitempty"`
	RelatedEntities []RelatedEntity `json:"related_entities,omitempty"`
	Sources         []SourceRef     `json:"sources,omitempty"`
}
