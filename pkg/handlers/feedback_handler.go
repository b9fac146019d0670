package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/feedback"
	"github.com/catalogo-ai/catalog-engine/pkg/metrics"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// IntentFields are the salient intent attributes carried flat in feedback
// payloads; they determine the concept hash.
type IntentFields struct {
	DataNeed      string `json:"data_need"`
	TargetEntity  string `json:"target_entity,omitempty"`
	TargetProduct string `json:"target_product,omitempty"`
	TargetSegment string `json:"target_segment,omitempty"`
	Granularity   string `json:"granularity,omitempty"`
}

func (f IntentFields) intent() *models.Intent {
	return &models.Intent{
		DataNeed:      f.DataNeed,
		TargetEntity:  f.TargetEntity,
		TargetProduct: f.TargetProduct,
		TargetSegment: f.TargetSegment,
		Granularity:   f.Granularity,
	}
}

// RecordFeedbackRequest for POST /feedback.
type RecordFeedbackRequest struct {
	IntentFields
	RequestID            string                 `json:"request_id"`
	DomainID             string                 `json:"domain_id,omitempty"`
	OwnerID              string                 `json:"owner_id,omitempty"`
	TableID              string                 `json:"table_id"`
	Outcome              models.DecisionOutcome `json:"outcome"`
	ActualTableID        string                 `json:"actual_table_id,omitempty"`
	ConfidenceAtDecision float64                `json:"confidence_at_decision"`
	UseCase              string                 `json:"use_case,omitempty"`
}

// RecordFeedbackResponse for POST /feedback.
type RecordFeedbackResponse struct {
	RecordID int64  `json:"record_id"`
	Success  bool   `json:"success"`
	Message  string `json:"message"`
}

// CheckFeedbackRequest for POST /feedback/check.
type CheckFeedbackRequest struct {
	IntentFields
	TableID string `json:"table_id"`
}

// CheckFeedbackResponse for POST /feedback/check.
type CheckFeedbackResponse struct {
	ApprovalRate float64 `json:"approval_rate"`
	SampleCount  int     `json:"sample_count"`
	IsReliable   bool    `json:"is_reliable"`
}

// ============================================================================
// Handler
// ============================================================================

// FeedbackHandler records requester decisions and answers reliability checks.
type FeedbackHandler struct {
	store      feedback.Store
	collector  *metrics.Collector
	minSamples int
	logger     *zap.Logger
}

// NewFeedbackHandler creates a new feedback handler. Non-positive minSamples
// defaults to 3.
func NewFeedbackHandler(store feedback.Store, collector *metrics.Collector, minSamples int, logger *zap.Logger) *FeedbackHandler {
	if minSamples <= 0 {
		minSamples = 3
	}
	return &FeedbackHandler{
		store:      store,
		collector:  collector,
		minSamples: minSamples,
		logger:     logger.Named("feedback_handler"),
	}
}

// RegisterRoutes registers the feedback routes on the given mux.
func (h *FeedbackHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /feedback", h.Record)
	mux.HandleFunc("POST /feedback/check", h.Check)
}

// Record handles POST /feedback. A MODIFIED outcome additionally records an
// APPROVED entry for the table the requester actually used.
func (h *FeedbackHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req RecordFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body"); err != nil {
			h.logger.Error("failed to write error response", zap.Error(err))
		}
		return
	}

	conceptHash := feedback.ConceptHash(req.intent())
	rec := &models.DecisionRecord{
		RequestID:            req.RequestID,
		ConceptHash:          conceptHash,
		DomainID:             req.DomainID,
		OwnerID:              req.OwnerID,
		TableID:              req.TableID,
		Outcome:              req.Outcome,
		ActualTableID:        req.ActualTableID,
		ConfidenceAtDecision: req.ConfidenceAtDecision,
		UseCase:              req.UseCase,
	}

	id, err := h.store.RecordDecision(r.Context(), rec)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordFeedback(req.Outcome, req.ConfidenceAtDecision)
	}

	message := "decision recorded"
	if req.Outcome == models.OutcomeModified {
		// The correction teaches the scorer which table was right.
		_, err := h.store.RecordDecision(r.Context(), &models.DecisionRecord{
			RequestID:            req.RequestID,
			ConceptHash:          conceptHash,
			DomainID:             req.DomainID,
			OwnerID:              req.OwnerID,
			TableID:              req.ActualTableID,
			Outcome:              models.OutcomeApproved,
			ConfidenceAtDecision: req.ConfidenceAtDecision,
			UseCase:              req.UseCase,
		})
		if err != nil {
			h.logger.Warn("failed to record correction approval",
				zap.String("request_id", req.RequestID),
				zap.String("actual_table_id", req.ActualTableID),
				zap.Error(err))
		} else {
			message = "decision and correction recorded"
		}
	}

	if err := WriteJSON(w, http.StatusCreated, RecordFeedbackResponse{
		RecordID: id,
		Success:  true,
		Message:  message,
	}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Check handles POST /feedback/check.
func (h *FeedbackHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body"); err != nil {
			h.logger.Error("failed to write error response", zap.Error(err))
		}
		return
	}
	if req.TableID == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "table_id is required"); err != nil {
			h.logger.Error("failed to write error response", zap.Error(err))
		}
		return
	}

	score, count, err := h.store.GetHistoricalScore(r.Context(), feedback.ConceptHash(req.intent()), req.TableID)
	if err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}

	// A cached aggregate was reliable when it was cached.
	reliable := count == feedback.CachedSampleCount || count >= h.minSamples

	if err := WriteJSON(w, http.StatusOK, CheckFeedbackResponse{
		ApprovalRate: score,
		SampleCount:  count,
		IsReliable:   reliable,
	}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
