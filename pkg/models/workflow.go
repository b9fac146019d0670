package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Match Status
// ============================================================================

// MatchStatus is the workflow state of a suggested table match.
// State machine:
//
//	SUGGESTED → SELECTED → PENDING_OWNER → PENDING_REQUESTER → APPROVED
//	                            ↓ ↘                  ↓
//	                     REJECTED  REDIRECTED   PENDING_OWNER (requester reject loop)
type MatchStatus string

const (
	MatchStatusSuggested           MatchStatus = "SUGGESTED"
	MatchStatusSelected            MatchStatus = "SELECTED"
	MatchStatusPendingOwner        MatchStatus = "PENDING_OWNER"
	MatchStatusPendingRequester    MatchStatus = "PENDING_REQUESTER"
	MatchStatusPendingValidation   MatchStatus = "PENDING_VALIDATION"
	MatchStatusApproved            MatchStatus = "APPROVED"
	MatchStatusRejected            MatchStatus = "REJECTED"
	MatchStatusRejectedByRequester MatchStatus = "REJECTED_BY_REQUESTER"
	MatchStatusRedirected          MatchStatus = "REDIRECTED"
)

// ValidMatchStatuses contains all valid match status values.
var ValidMatchStatuses = []MatchStatus{
	MatchStatusSuggested,
	MatchStatusSelected,
	MatchStatusPendingOwner,
	MatchStatusPendingRequester,
	MatchStatusPendingValidation,
	MatchStatusApproved,
	MatchStatusRejected,
	MatchStatusRejectedByRequester,
	MatchStatusRedirected,
}

// IsTerminal returns true if the status admits no further transitions.
func (s MatchStatus) IsTerminal() bool {
	switch s {
	case MatchStatusApproved, MatchStatusRejected, MatchStatusRejectedByRequester, MatchStatusRedirected:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if transitioning from this status to the
// target is valid. Transitions are monotonic except the requester-rejection
// loop (PENDING_REQUESTER → PENDING_OWNER) and owner delegation
// (PENDING_OWNER → PENDING_OWNER with a new assignee).
func (s MatchStatus) CanTransitionTo(target MatchStatus) bool {
	switch s {
	case MatchStatusSuggested:
		return target == MatchStatusSelected
	case MatchStatusSelected:
		return target == MatchStatusPendingOwner
	case MatchStatusPendingOwner:
		return target == MatchStatusPendingRequester ||
			target == MatchStatusRejected ||
			target == MatchStatusRedirected ||
			target == MatchStatusPendingOwner
	case MatchStatusPendingRequester:
		return target == MatchStatusApproved ||
			target == MatchStatusPendingOwner ||
			target == MatchStatusRejectedByRequester
	default:
		return false
	}
}

// ============================================================================
// Variable Status
// ============================================================================

// VariableStatus is the lifecycle state of a requested variable.
type VariableStatus string

const (
	VariableStatusPending            VariableStatus = "PENDING"
	VariableStatusAISearching        VariableStatus = "AI_SEARCHING"
	VariableStatusSearching          VariableStatus = "SEARCHING"
	VariableStatusMatched            VariableStatus = "MATCHED"
	VariableStatusNoMatch            VariableStatus = "NO_MATCH"
	VariableStatusOwnerReview        VariableStatus = "OWNER_REVIEW"
	VariableStatusRequesterReview    VariableStatus = "REQUESTER_REVIEW"
	VariableStatusApproved           VariableStatus = "APPROVED"
	VariableStatusInUse              VariableStatus = "IN_USE"
	VariableStatusCancelled          VariableStatus = "CANCELLED"
	VariableStatusPendingInvolvement VariableStatus = "PENDING_INVOLVEMENT"
)

// ============================================================================
// Owner / Requester Responses
// ============================================================================

// OwnerResponseType is what a table owner can answer to a match suggestion.
type OwnerResponseType string

const (
	OwnerConfirmMatch   OwnerResponseType = "CONFIRM_MATCH"
	OwnerCorrectTable   OwnerResponseType = "CORRECT_TABLE"
	OwnerDataNotExist   OwnerResponseType = "DATA_NOT_EXIST"
	OwnerDelegatePerson OwnerResponseType = "DELEGATE_PERSON"
	OwnerDelegateArea   OwnerResponseType = "DELEGATE_AREA"
)

// IsValidOwnerResponseType checks if the given type is valid.
func IsValidOwnerResponseType(t OwnerResponseType) bool {
	switch t {
	case OwnerConfirmMatch, OwnerCorrectTable, OwnerDataNotExist, OwnerDelegatePerson, OwnerDelegateArea:
		return true
	default:
		return false
	}
}

// RequesterResponseType is what the requester can answer after owner
// confirmation.
type RequesterResponseType string

const (
	RequesterApprove          RequesterResponseType = "APPROVE"
	RequesterRejectWrongData  RequesterResponseType = "REJECT_WRONG_DATA"
	RequesterRejectLowQuality RequesterResponseType = "REJECT_LOW_QUALITY"
	RequesterRejectOther      RequesterResponseType = "REJECT_OTHER"
)

// IsRejection returns true for any REJECT_* response type.
func (t RequesterResponseType) IsRejection() bool {
	switch t {
	case RequesterRejectWrongData, RequesterRejectLowQuality, RequesterRejectOther:
		return true
	default:
		return false
	}
}

// IsValidRequesterResponseType checks if the given type is valid.
func IsValidRequesterResponseType(t RequesterResponseType) bool {
	return t == RequesterApprove || t.IsRejection()
}

// OwnerResponse is one owner answer in a match's ordered response sequence.
type OwnerResponse struct {
	ID               uuid.UUID         `json:"id"`
	MatchID          uuid.UUID         `json:"match_id"`
	ResponseType     OwnerResponseType `json:"response_type"`
	UsageCriteria    string            `json:"usage_criteria,omitempty"`
	CorrectedTableID string            `json:"corrected_table_id,omitempty"`
	DelegateToID     string            `json:"delegate_to_id,omitempty"`
	DelegateArea     string            `json:"delegate_area,omitempty"`
	Comment          string            `json:"comment,omitempty"`
	ResponderID      string            `json:"responder_id"`
	CreatedAt        time.Time         `json:"created_at"`
}

// RequesterResponse is one requester answer in a match's ordered response
// sequence. LoopCount counts how many owner↔requester round trips the match
// has been through.
type RequesterResponse struct {
	ID                      uuid.UUID             `json:"id"`
	MatchID                 uuid.UUID             `json:"match_id"`
	ResponseType            RequesterResponseType `json:"response_type"`
	RejectionReason         string                `json:"rejection_reason,omitempty"`
	ExpectedDataDescription string                `json:"expected_data_description,omitempty"`
	ImprovementSuggestions  string                `json:"improvement_suggestions,omitempty"`
	LoopCount               int                   `json:"loop_count"`
	ResponderID             string                `json:"responder_id"`
	CreatedAt               time.Time             `json:"created_at"`
}

// ============================================================================
// Workflow Entities
// ============================================================================

// Variable is a user's requested data variable, the anchor of the validation
// workflow.
type Variable struct {
	ID              uuid.UUID      `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Status          VariableStatus `json:"status"`
	SelectedMatchID *uuid.UUID     `json:"selected_match_id,omitempty"`
	RequesterID     string         `json:"requester_id"`
	UseCase         string         `json:"use_case,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// WorkflowMatch couples a variable to a candidate table. At most one match
// per variable holds IsSelected = true.
type WorkflowMatch struct {
	ID              uuid.UUID   `json:"id"`
	VariableID      uuid.UUID   `json:"variable_id"`
	TableID         string      `json:"table_id"`
	TableName       string      `json:"table_name"`
	DomainID        string      `json:"domain_id,omitempty"`
	AssignedOwnerID string      `json:"assigned_owner_id"`
	Status          MatchStatus `json:"status"`
	IsSelected      bool        `json:"is_selected"`
	Score           float64     `json:"score"`
	Reasoning       string      `json:"reasoning,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// ============================================================================
// Decision History
// ============================================================================

// HistoryOutcome classifies a transition for the learning corpus.
type HistoryOutcome string

const (
	HistoryOutcomePositive HistoryOutcome = "POSITIVE"
	HistoryOutcomeNegative HistoryOutcome = "NEGATIVE"
	HistoryOutcomeNeutral  HistoryOutcome = "NEUTRAL"
)

// DecisionHistory is one append-only record per workflow transition. The
// history table is the training corpus for future learners and is write-only
// from the engine.
type DecisionHistory struct {
	ID               uuid.UUID      `json:"id"`
	VariableID       uuid.UUID      `json:"variable_id"`
	MatchID          uuid.UUID      `json:"match_id"`
	Actor            string         `json:"actor"`
	ActorRole        string         `json:"actor_role"` // owner | requester | system
	PrevMatchStatus  MatchStatus    `json:"prev_match_status"`
	NextMatchStatus  MatchStatus    `json:"next_match_status"`
	PrevVarStatus    VariableStatus `json:"prev_var_status"`
	NextVarStatus    VariableStatus `json:"next_var_status"`
	Outcome          HistoryOutcome `json:"outcome"`
	DecisionReason   string         `json:"decision_reason,omitempty"`
	DecisionDetails  string         `json:"decision_details,omitempty"`
	VariableContext  map[string]any `json:"variable_context,omitempty"`
	TableContext     map[string]any `json:"table_context,omitempty"`
	MatchContext     map[string]any `json:"match_context,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}
