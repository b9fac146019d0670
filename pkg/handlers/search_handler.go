package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
	"github.com/catalogo-ai/catalog-engine/pkg/services"
	"github.com/catalogo-ai/catalog-engine/pkg/services/dag"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// SearchRequestBody is the shared body of both search endpoints.
type SearchRequestBody struct {
	RawQuery     string            `json:"raw_query"`
	VariableName string            `json:"variable_name,omitempty"`
	VariableType string            `json:"variable_type,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
	UseCase      string            `json:"use_case,omitempty"`
	SearchMode   string            `json:"search_mode,omitempty"`
	EnableRerank *bool             `json:"enable_rerank,omitempty"`
	DomainFilter string            `json:"domain_filter,omitempty"`
}

// SingleSearchResponse is the best-candidate answer for POST /search/single.
type SingleSearchResponse struct {
	RequestID        string                   `json:"request_id"`
	Domain           *models.DomainMatch      `json:"domain,omitempty"`
	Owner            *models.OwnerMatch       `json:"owner,omitempty"`
	Table            *models.TableMatch       `json:"table,omitempty"`
	Scores           *models.ScoreComponents  `json:"scores,omitempty"`
	Ambiguity        models.Ambiguity         `json:"ambiguity"`
	DataExists       models.DataExistence     `json:"data_exists"`
	Action           models.RecommendedAction `json:"action"`
	Reasoning        string                   `json:"reasoning"`
	LLMReranked      bool                     `json:"llm_reranked"`
	ProcessingTimeMS float64                  `json:"processing_time_ms"`
}

// ColumnGroupResponse is one column-search hit group in the ranking answer.
type ColumnGroupResponse struct {
	TableID        string   `json:"table_id"`
	Score          float64  `json:"score"`
	MatchedColumns []string `json:"matched_columns,omitempty"`
}

// RankingSearchResponse is the top-5 listing for POST /search/ranking.
type RankingSearchResponse struct {
	RequestID          string                `json:"request_id"`
	Domains            []models.DomainMatch  `json:"domains"`
	Owners             []models.OwnerMatch   `json:"owners"`
	Tables             []models.TableMatch   `json:"tables"`
	Columns            []ColumnGroupResponse `json:"columns,omitempty"`
	Summary            string                `json:"summary"`
	ClarifyingQuestion string                `json:"clarifying_question,omitempty"`
	ProcessingTimeMS   float64               `json:"processing_time_ms"`
}

const maxRankingResults = 5

// ============================================================================
// Handler
// ============================================================================

// SearchHandler serves the retrieval endpoints over the DAG pipeline.
type SearchHandler struct {
	pipeline *dag.Pipeline
	logger   *zap.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(pipeline *dag.Pipeline, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{pipeline: pipeline, logger: logger.Named("search_handler")}
}

// RegisterRoutes registers the search routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /search/single", h.Single)
	mux.HandleFunc("POST /search/ranking", h.Ranking)
}

// Single handles POST /search/single.
func (h *SearchHandler) Single(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	state := h.pipeline.Run(r.Context(), req)

	resp := SingleSearchResponse{
		RequestID:        req.RequestID,
		Ambiguity:        state.Ambiguity,
		DataExists:       state.DataExistence,
		Action:           state.Action,
		Reasoning:        state.Reasoning,
		LLMReranked:      state.Reranked,
		ProcessingTimeMS: float64(state.Elapsed().Microseconds()) / 1000.0,
	}
	if len(state.DomainMatches) > 0 {
		resp.Domain = &state.DomainMatches[0]
	}
	if len(state.OwnerMatches) > 0 {
		resp.Owner = &state.OwnerMatches[0]
	}
	if top := state.TopMatch(); top != nil {
		resp.Table = top
		resp.Scores = &top.Scores
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Ranking handles POST /search/ranking.
func (h *SearchHandler) Ranking(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	state := h.pipeline.Run(r.Context(), req)

	resp := RankingSearchResponse{
		RequestID:        req.RequestID,
		Domains:          topN(state.DomainMatches, maxRankingResults),
		Owners:           topN(state.OwnerMatches, maxRankingResults),
		Tables:           topN(state.TableMatches, maxRankingResults),
		Columns:          columnGroups(state.ColumnGroups),
		Summary:          rankingSummary(state),
		ProcessingTimeMS: float64(state.Elapsed().Microseconds()) / 1000.0,
	}
	if state.Ambiguity.Type != models.AmbiguityNone {
		resp.ClarifyingQuestion = state.Ambiguity.Question
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// decode parses and validates the shared search body, assigning a request id.
func (h *SearchHandler) decode(w http.ResponseWriter, r *http.Request) (dag.SearchRequest, bool) {
	var body SearchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body"); err != nil {
			h.logger.Error("failed to write error response", zap.Error(err))
		}
		return dag.SearchRequest{}, false
	}
	if body.RawQuery == "" && body.VariableName == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "raw_query or variable_name is required"); err != nil {
			h.logger.Error("failed to write error response", zap.Error(err))
		}
		return dag.SearchRequest{}, false
	}

	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-Id", requestID)

	// Rerank is opt-out.
	skipRerank := body.EnableRerank != nil && !*body.EnableRerank

	return dag.SearchRequest{
		RequestID:    requestID,
		RawQuery:     body.RawQuery,
		VariableName: body.VariableName,
		VariableType: body.VariableType,
		Context:      body.Context,
		UseCase:      body.UseCase,
		SearchMode:   dag.SearchMode(body.SearchMode),
		SkipRerank:   skipRerank,
		DomainFilter: body.DomainFilter,
	}, true
}

func columnGroups(groups []services.ColumnGroup) []ColumnGroupResponse {
	if len(groups) == 0 {
		return nil
	}
	out := make([]ColumnGroupResponse, len(groups))
	for i, g := range groups {
		out[i] = ColumnGroupResponse{
			TableID:        g.TableID,
			Score:          g.Score,
			MatchedColumns: g.MatchedColumns,
		}
	}
	return out
}

func topN[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func rankingSummary(state *dag.SearchState) string {
	query := state.Request.RawQuery
	if query == "" {
		query = state.Request.VariableName
	}
	if len(state.TableMatches) == 0 {
		return fmt.Sprintf("Nenhuma tabela candidata encontrada para %q.", query)
	}
	return fmt.Sprintf("%d domínio(s), %d dono(s) e %d tabela(s) candidatos para %q; melhor: %s (%.2f).",
		len(state.DomainMatches), len(state.OwnerMatches), len(state.TableMatches),
		query, state.TableMatches[0].Table.Name, state.TableMatches[0].Score)
}
