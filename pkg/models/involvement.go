package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Involvement Status
// ============================================================================

// InvolvementStatus is the state of a data-creation request.
// State machine:
//
//	PENDING → IN_PROGRESS → COMPLETED
//	               ↓            ↑
//	            OVERDUE ────────┘
type InvolvementStatus string

const (
	InvolvementPending    InvolvementStatus = "PENDING"
	InvolvementInProgress InvolvementStatus = "IN_PROGRESS"
	InvolvementCompleted  InvolvementStatus = "COMPLETED"
	InvolvementOverdue    InvolvementStatus = "OVERDUE"
)

// IsOpen returns true if the involvement is not yet completed.
func (s InvolvementStatus) IsOpen() bool {
	return s != InvolvementCompleted
}

// CanTransitionTo returns true if transitioning from this status to the
// target is valid.
func (s InvolvementStatus) CanTransitionTo(target InvolvementStatus) bool {
	switch s {
	case InvolvementPending:
		return target == InvolvementInProgress
	case InvolvementInProgress:
		return target == InvolvementOverdue || target == InvolvementCompleted
	case InvolvementOverdue:
		return target == InvolvementCompleted
	default:
		return false
	}
}

// ============================================================================
// Involvement
// ============================================================================

// Involvement is a data-creation request raised when an owner confirms
// ownership but states the data does not yet exist. At most one open
// involvement per variable; COMPLETED requires a non-empty CreatedTableName.
type Involvement struct {
	ID                     uuid.UUID         `json:"id"`
	VariableID             uuid.UUID         `json:"variable_id"`
	ExternalRequestNumber  string            `json:"external_request_number,omitempty"`
	ExternalSystem         string            `json:"external_system,omitempty"`
	RequesterID            string            `json:"requester_id"`
	OwnerID                string            `json:"owner_id"`
	ExpectedCompletionDate *time.Time        `json:"expected_completion_date,omitempty"`
	ActualCompletionDate   *time.Time        `json:"actual_completion_date,omitempty"`
	CreatedTableName       string            `json:"created_table_name,omitempty"`
	CreatedConcept         string            `json:"created_concept,omitempty"`
	Status                 InvolvementStatus `json:"status"`
	ReminderCount          int               `json:"reminder_count"`
	LastReminderAt         *time.Time        `json:"last_reminder_at,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}
