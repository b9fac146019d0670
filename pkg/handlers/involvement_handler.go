package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/workflow"
)

// ============================================================================
// Request Types
// ============================================================================

// CreateInvolvementRequest for POST /involvements.
type CreateInvolvementRequest struct {
	VariableID            uuid.UUID `json:"variable_id"`
	ExternalRequestNumber string    `json:"external_request_number,omitempty"`
	ExternalSystem        string    `json:"external_system,omitempty"`
	OwnerID               string    `json:"owner_id"`
}

// SetInvolvementDateRequest for PUT /involvements/{id}/date.
type SetInvolvementDateRequest struct {
	ExpectedCompletionDate time.Time `json:"expected_completion_date"`
}

// CompleteInvolvementRequest for PUT /involvements/{id}/complete.
type CompleteInvolvementRequest struct {
	CreatedTableName string `json:"created_table_name"`
	CreatedConcept   string `json:"created_concept,omitempty"`
}

// ============================================================================
// Handler
// ============================================================================

// InvolvementHandler drives the data-creation subflow.
type InvolvementHandler struct {
	service *workflow.Service
	logger  *zap.Logger
}

// NewInvolvementHandler creates a new involvement handler.
func NewInvolvementHandler(service *workflow.Service, logger *zap.Logger) *InvolvementHandler {
	return &InvolvementHandler{service: service, logger: logger.Named("involvement_handler")}
}

// RegisterRoutes registers the involvement routes on the given mux.
func (h *InvolvementHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /involvements", h.Create)
	mux.HandleFunc("PUT /involvements/{id}/date", h.SetDate)
	mux.HandleFunc("PUT /involvements/{id}/complete", h.Complete)
}

// Create handles POST /involvements.
func (h *InvolvementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateInvolvementRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	inv, err := h.service.CreateInvolvement(r.Context(), workflow.CreateInvolvementInput{
		VariableID:            req.VariableID,
		ExternalRequestNumber: req.ExternalRequestNumber,
		ExternalSystem:        req.ExternalSystem,
		OwnerID:               req.OwnerID,
	})
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, inv); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// SetDate handles PUT /involvements/{id}/date.
func (h *InvolvementHandler) SetDate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req SetInvolvementDateRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	inv, err := h.service.SetInvolvementDate(r.Context(), id, req.ExpectedCompletionDate)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, inv); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Complete handles PUT /involvements/{id}/complete.
func (h *InvolvementHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req CompleteInvolvementRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	inv, err := h.service.CompleteInvolvement(r.Context(), id, req.CreatedTableName, req.CreatedConcept)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, inv); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func (h *InvolvementHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body"); err != nil {
			h.logger.Error("failed to write error response", zap.Error(err))
		}
		return false
	}
	return true
}

func (h *InvolvementHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_id", "path id must be a UUID"); err != nil {
			h.logger.Error("failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}
