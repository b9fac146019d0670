package models

// ============================================================================
// Scored Candidates
// ============================================================================

// DomainMatch is a scored domain candidate. Per-request, not persisted.
type DomainMatch struct {
	Domain    DomainInfo `json:"domain"`
	Score     float64    `json:"score"`
	Reasoning string     `json:"reasoning"`
}

// OwnerMatch is a scored owner candidate.
type OwnerMatch struct {
	Owner       OwnerInfo `json:"owner"`
	Score       float64   `json:"score"`
	DomainScore float64   `json:"domain_score"`
	Reasoning   string    `json:"reasoning"`
}

// DisambiguationComponents are the four per-candidate disambiguation scores,
// each in [0,1].
type DisambiguationComponents struct {
	Certification float64 `json:"certification"`
	Freshness     float64 `json:"freshness"`
	Quality       float64 `json:"quality"`
	Context       float64 `json:"context"`
}

// ScoreComponents breaks down a table match's combined score.
type ScoreComponents struct {
	Semantic       float64                  `json:"semantic"`
	Disambiguation float64                  `json:"disambiguation"`
	Historical     float64                  `json:"historical"`
	OwnerBoost     float64                  `json:"owner_boost"`
	Components     DisambiguationComponents `json:"components"`
}

// TableMatch is a scored table candidate.
type TableMatch struct {
	Table             TableInfo       `json:"table"`
	Score             float64         `json:"score"`
	Scores            ScoreComponents `json:"scores"`
	Reasoning         string          `json:"reasoning"`
	MatchedEntities   []string        `json:"matched_entities,omitempty"`
	IsDoubleCertified bool            `json:"is_double_certified"`
	HasProductMatch   bool            `json:"has_product_match"`
}

// ============================================================================
// Ambiguity
// ============================================================================

// AmbiguityType classifies why a result set needs disambiguation.
type AmbiguityType string

const (
	AmbiguityNone             AmbiguityType = "NONE"
	AmbiguityDomainConflict   AmbiguityType = "DOMAIN_CONFLICT"
	AmbiguityMultipleProducts AmbiguityType = "MULTIPLE_PRODUCTS"
	AmbiguityLowConfidence    AmbiguityType = "LOW_CONFIDENCE"
)

// AmbiguityOption is one disambiguation choice presented to the caller.
type AmbiguityOption struct {
	TableID string  `json:"table_id"`
	Label   string  `json:"label"`
	Score   float64 `json:"score"`
}

// Ambiguity describes an ambiguous result set and the options to resolve it.
type Ambiguity struct {
	Type               AmbiguityType     `json:"type"`
	Options            []AmbiguityOption `json:"options,omitempty"`
	ProvisionalTableID string            `json:"provisional_table_id,omitempty"`
	Question           string            `json:"question,omitempty"`
}
