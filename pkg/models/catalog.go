package models

import "time"

// ============================================================================
// Data Layer
// ============================================================================

// DataLayer is the corporate classification of a table's trust level.
type DataLayer string

const (
	DataLayerSoR  DataLayer = "SoR"  // system of record
	DataLayerSoT  DataLayer = "SoT"  // system of truth
	DataLayerSpec DataLayer = "Spec" // derived / specialized
)

// ValidDataLayers contains all valid data layer values.
var ValidDataLayers = []DataLayer{DataLayerSoR, DataLayerSoT, DataLayerSpec}

// IsValidDataLayer checks if the given layer is valid. Empty is allowed
// (layer unknown).
func IsValidDataLayer(l DataLayer) bool {
	if l == "" {
		return true
	}
	for _, v := range ValidDataLayers {
		if v == l {
			return true
		}
	}
	return false
}

// ============================================================================
// Update Frequency
// ============================================================================

// UpdateFrequency is the declared refresh cadence of a catalog table.
type UpdateFrequency string

const (
	UpdateFrequencyRealtime UpdateFrequency = "realtime"
	UpdateFrequencyDaily    UpdateFrequency = "daily"
	UpdateFrequencyWeekly   UpdateFrequency = "weekly"
	UpdateFrequencyMonthly  UpdateFrequency = "monthly"
)

// ============================================================================
// Catalog Entities
// ============================================================================

// DomainInfo is a business domain in the catalog.
type DomainInfo struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Keywords []string `json:"keywords,omitempty"`
	Chief    string   `json:"chief,omitempty"`
}

// OwnerInfo is a data owner responsible for tables within a domain.
type OwnerInfo struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	DomainID     string  `json:"domain_id"`
	ApprovalRate float64 `json:"approval_rate"` // historical, defaults to 0.5
	TablesCount  int     `json:"tables_count"`
}

// TableInfo is a catalog table. Populated by the external indexing job and
// read-only inside the engine.
type TableInfo struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	DisplayName     string          `json:"display_name,omitempty"`
	Summary         string          `json:"summary,omitempty"` // <= 200 chars
	DomainID        string          `json:"domain_id"`
	OwnerID         string          `json:"owner_id"`
	Keywords        []string        `json:"keywords,omitempty"`
	Granularity     string          `json:"granularity,omitempty"`
	MainEntities    []string        `json:"main_entities,omitempty"`
	DataLayer       DataLayer       `json:"data_layer,omitempty"`
	IsGoldenSource  bool            `json:"is_golden_source"`
	IsVisaoCliente  bool            `json:"is_visao_cliente"`
	UpdateFrequency UpdateFrequency `json:"update_frequency,omitempty"`
	InferredProduct string          `json:"inferred_product,omitempty"`
	LastUpdated     *time.Time      `json:"last_updated,omitempty"`
}

// IsDoubleCertified reports whether the table is both a Golden Source and a
// Visão Cliente (maximum certification).
func (t *TableInfo) IsDoubleCertified() bool {
	return t.IsGoldenSource && t.IsVisaoCliente
}

// ColumnInfo is a single column of a catalog table, indexed separately so
// field-level queries ("qual tabela tem o campo CPF?") can hit it directly.
type ColumnInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TableID     string `json:"table_id"`
	TableName   string `json:"table_name"`
	DataType    string `json:"data_type,omitempty"`
	Description string `json:"description,omitempty"`
}

// ============================================================================
// Data Existence
// ============================================================================

// DataExistence is the engine's verdict on whether the requested data exists
// in the catalog.
type DataExistence string

const (
	DataExists        DataExistence = "EXISTS"
	DataNeedsCreation DataExistence = "NEEDS_CREATION"
	DataUncertain     DataExistence = "UNCERTAIN"
)

// RecommendedAction tells the caller what to do with the top suggestion.
type RecommendedAction string

const (
	ActionUseTable          RecommendedAction = "USE_TABLE"
	ActionConfirmWithOwner  RecommendedAction = "CONFIRM_WITH_OWNER"
	ActionCreateInvolvement RecommendedAction = "CREATE_INVOLVEMENT"
)
