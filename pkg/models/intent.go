package models

// Intent is the normalized form of a user's data request.
// Derived deterministically from (raw query, variable name, context) and
// interned in the intent cache; immutable once built.
type Intent struct {
	DataNeed             string   `json:"data_need"`
	DataType             string   `json:"data_type,omitempty"`
	TargetEntity         string   `json:"target_entity,omitempty"`
	TargetSegment        string   `json:"target_segment,omitempty"`
	TargetProduct        string   `json:"target_product,omitempty"`
	TargetAudience       string   `json:"target_audience,omitempty"`
	Granularity          string   `json:"granularity,omitempty"`
	TimeReference        string   `json:"time_reference,omitempty"`
	InferredDomains      []string `json:"inferred_domains,omitempty"`
	OriginalQuery        string   `json:"original_query"`
	ExtractionConfidence float64  `json:"extraction_confidence"`
}

// IsFallback reports whether the intent was produced by a degraded path
// (LLM failure or request cancellation).
func (i *Intent) IsFallback() bool {
	return i.ExtractionConfidence < 0.5
}
