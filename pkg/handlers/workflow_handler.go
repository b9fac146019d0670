package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
	"github.com/catalogo-ai/catalog-engine/pkg/workflow"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// CreateVariableRequest for POST /variables.
type CreateVariableRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	RequesterID string `json:"requester_id"`
	UseCase     string `json:"use_case,omitempty"`
}

// SuggestMatchesRequest for POST /variables/{id}/suggest.
type SuggestMatchesRequest struct {
	Candidates []models.TableMatch `json:"candidates"`
}

// SelectMatchRequest for POST /variables/{id}/select.
type SelectMatchRequest struct {
	MatchID uuid.UUID `json:"match_id"`
}

// OwnerRespondRequest for POST /matches/{id}/owner-respond.
type OwnerRespondRequest struct {
	ResponseType     models.OwnerResponseType `json:"response_type"`
	UsageCriteria    string                   `json:"usage_criteria,omitempty"`
	CorrectedTableID string                   `json:"corrected_table_id,omitempty"`
	DelegateToID     string                   `json:"delegate_to_id,omitempty"`
	DelegateArea     string                   `json:"delegate_area,omitempty"`
	Comment          string                   `json:"comment,omitempty"`
}

// RequesterRespondRequest for POST /matches/{id}/requester-respond.
type RequesterRespondRequest struct {
	ResponseType            models.RequesterResponseType `json:"response_type"`
	RejectionReason         string                       `json:"rejection_reason,omitempty"`
	ExpectedDataDescription string                       `json:"expected_data_description,omitempty"`
	ImprovementSuggestions  string                       `json:"improvement_suggestions,omitempty"`
}

// ============================================================================
// Handler
// ============================================================================

// WorkflowHandler drives the owner/requester validation workflow.
type WorkflowHandler struct {
	service *workflow.Service
	logger  *zap.Logger
}

// NewWorkflowHandler creates a new workflow handler.
func NewWorkflowHandler(service *workflow.Service, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{service: service, logger: logger.Named("workflow_handler")}
}

// RegisterRoutes registers the workflow routes on the given mux.
func (h *WorkflowHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /variables", h.CreateVariable)
	mux.HandleFunc("POST /variables/{id}/suggest", h.SuggestMatches)
	mux.HandleFunc("POST /variables/{id}/select", h.SelectMatch)
	mux.HandleFunc("POST /variables/{id}/confirm-use", h.ConfirmInUse)
	mux.HandleFunc("POST /matches/{id}/owner-respond", h.OwnerRespond)
	mux.HandleFunc("POST /matches/{id}/requester-respond", h.RequesterRespond)
}

// CreateVariable handles POST /variables.
func (h *WorkflowHandler) CreateVariable(w http.ResponseWriter, r *http.Request) {
	var req CreateVariableRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	v := &models.Variable{
		Name:        req.Name,
		Description: req.Description,
		RequesterID: req.RequesterID,
		UseCase:     req.UseCase,
	}
	if err := h.service.CreateVariable(r.Context(), v); err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, v); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// SuggestMatches handles POST /variables/{id}/suggest: persists retrieval
// candidates as SUGGESTED matches so the requester can select one.
func (h *WorkflowHandler) SuggestMatches(w http.ResponseWriter, r *http.Request) {
	variableID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req SuggestMatchesRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	matches, err := h.service.SuggestMatches(r.Context(), variableID, req.Candidates)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, matches); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// SelectMatch handles POST /variables/{id}/select.
func (h *WorkflowHandler) SelectMatch(w http.ResponseWriter, r *http.Request) {
	variableID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req SelectMatchRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	match, err := h.service.SelectMatch(r.Context(), variableID, req.MatchID, actorID(r))
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, match); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// ConfirmInUse handles POST /variables/{id}/confirm-use.
func (h *WorkflowHandler) ConfirmInUse(w http.ResponseWriter, r *http.Request) {
	variableID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	variable, err := h.service.ConfirmInUse(r.Context(), variableID, actorID(r))
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, variable); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// OwnerRespond handles POST /matches/{id}/owner-respond.
func (h *WorkflowHandler) OwnerRespond(w http.ResponseWriter, r *http.Request) {
	matchID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req OwnerRespondRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	match, err := h.service.OwnerRespond(r.Context(), matchID, workflow.OwnerResponseInput{
		ResponseType:     req.ResponseType,
		UsageCriteria:    req.UsageCriteria,
		CorrectedTableID: req.CorrectedTableID,
		DelegateToID:     req.DelegateToID,
		DelegateArea:     req.DelegateArea,
		Comment:          req.Comment,
		ResponderID:      actorID(r),
	})
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, match); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// RequesterRespond handles POST /matches/{id}/requester-respond.
func (h *WorkflowHandler) RequesterRespond(w http.ResponseWriter, r *http.Request) {
	matchID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req RequesterRespondRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	match, err := h.service.RequesterRespond(r.Context(), matchID, workflow.RequesterResponseInput{
		ResponseType:            req.ResponseType,
		RejectionReason:         req.RejectionReason,
		ExpectedDataDescription: req.ExpectedDataDescription,
		ImprovementSuggestions:  req.ImprovementSuggestions,
		ResponderID:             actorID(r),
	})
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, match); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// ============================================================================
// Helpers
// ============================================================================

func (h *WorkflowHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body"); err != nil {
			h.logger.Error("failed to write error response", zap.Error(err))
		}
		return false
	}
	return true
}

func (h *WorkflowHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_id", "path id must be a UUID"); err != nil {
			h.logger.Error("failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// actorID reads the caller identity. Identity is trusted from the gateway;
// there is no auth layer in the engine.
func actorID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}
