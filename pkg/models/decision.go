package models

import "time"

// ============================================================================
// Decision Outcome
// ============================================================================

// DecisionOutcome is the requester's verdict on a suggested table.
type DecisionOutcome string

const (
	OutcomeApproved DecisionOutcome = "APPROVED"
	OutcomeRejected DecisionOutcome = "REJECTED"
	OutcomeModified DecisionOutcome = "MODIFIED"
)

// ValidDecisionOutcomes contains all valid outcome values.
var ValidDecisionOutcomes = []DecisionOutcome{OutcomeApproved, OutcomeRejected, OutcomeModified}

// IsValidDecisionOutcome checks if the given outcome is valid.
func IsValidDecisionOutcome(o DecisionOutcome) bool {
	for _, v := range ValidDecisionOutcomes {
		if v == o {
			return true
		}
	}
	return false
}

// ============================================================================
// Decision Record
// ============================================================================

// DecisionRecord is a durable feedback entry. Append-only.
// If Outcome is MODIFIED, ActualTableID is required and differs from TableID.
type DecisionRecord struct {
	ID                   int64           `json:"id"`
	RequestID            string          `json:"request_id"`
	ConceptHash          string          `json:"concept_hash"` // 16 hex chars
	DomainID             string          `json:"domain_id,omitempty"`
	OwnerID              string          `json:"owner_id,omitempty"`
	TableID              string          `json:"table_id"`
	Outcome              DecisionOutcome `json:"outcome"`
	ActualTableID        string          `json:"actual_table_id,omitempty"`
	ConfidenceAtDecision float64         `json:"confidence_at_decision"`
	UseCase              string          `json:"use_case,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// TableApproval is a derived aggregate: how often a table was approved for
// a given concept.
type TableApproval struct {
	TableID      string  `json:"table_id"`
	ApprovalRate float64 `json:"approval_rate"`
	SampleCount  int     `json:"sample_count"`
}
