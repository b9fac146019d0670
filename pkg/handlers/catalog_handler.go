package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/apperrors"
	"github.com/catalogo-ai/catalog-engine/pkg/catalog"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
	"github.com/catalogo-ai/catalog-engine/pkg/retriever"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// IndexTablesRequest for POST /catalog/tables.
type IndexTablesRequest struct {
	Tables []models.TableInfo `json:"tables"`
}

// IndexColumnsRequest for POST /catalog/columns.
type IndexColumnsRequest struct {
	Columns []models.ColumnInfo `json:"columns"`
}

// ReloadCatalogRequest for POST /catalog/reload: a full catalog generation.
type ReloadCatalogRequest struct {
	Domains []models.DomainInfo `json:"domains"`
	Owners  []models.OwnerInfo  `json:"owners"`
	Tables  []models.TableInfo  `json:"tables"`
	Columns []models.ColumnInfo `json:"columns"`
}

// IndexResponse reports how many records an indexing call touched.
type IndexResponse struct {
	Indexed    int    `json:"indexed"`
	Generation uint64 `json:"generation"`
}

// ============================================================================
// Handler
// ============================================================================

// CatalogHandler is the doorway for the external indexing job: it upserts
// records into the vector index and publishes fresh catalog snapshots.
type CatalogHandler struct {
	store  *catalog.Store
	index  retriever.Retriever
	logger *zap.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(store *catalog.Store, index retriever.Retriever, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{store: store, index: index, logger: logger.Named("catalog_handler")}
}

// RegisterRoutes registers the catalog routes on the given mux.
func (h *CatalogHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /catalog/tables", h.IndexTables)
	mux.HandleFunc("POST /catalog/columns", h.IndexColumns)
	mux.HandleFunc("POST /catalog/reload", h.Reload)
}

// IndexTables handles POST /catalog/tables: upserts tables into the vector
// index and into the published snapshot.
func (h *CatalogHandler) IndexTables(w http.ResponseWriter, r *http.Request) {
	var req IndexTablesRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	for i := range req.Tables {
		if req.Tables[i].ID == "" || req.Tables[i].Name == "" {
			if err := ErrorResponse(w, http.StatusBadRequest, "validation_error",
				fmt.Sprintf("table at position %d is missing id or name", i)); err != nil {
				h.logger.Error("failed to write error response", zap.Error(err))
			}
			return
		}
	}

	if err := h.index.IndexTables(r.Context(), req.Tables); err != nil {
		ServiceErrorResponse(w, h.logger,
			fmt.Errorf("%w: vector index rejected tables: %v", apperrors.ErrUnavailable, err))
		return
	}

	snap := h.store.Load()
	next := catalog.NewSnapshot(
		snap.Domains(),
		snap.Owners(),
		upsertTables(snap.Tables(), req.Tables),
		snap.Columns(),
	)
	h.store.Replace(next)

	h.logger.Info("tables indexed",
		zap.Int("count", len(req.Tables)),
		zap.Uint64("generation", next.Generation))
	if err := WriteJSON(w, http.StatusOK, IndexResponse{Indexed: len(req.Tables), Generation: next.Generation}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// IndexColumns handles POST /catalog/columns.
func (h *CatalogHandler) IndexColumns(w http.ResponseWriter, r *http.Request) {
	var req IndexColumnsRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	for i := range req.Columns {
		if req.Columns[i].ID == "" || req.Columns[i].TableID == "" {
			if err := ErrorResponse(w, http.StatusBadRequest, "validation_error",
				fmt.Sprintf("column at position %d is missing id or table_id", i)); err != nil {
				h.logger.Error("failed to write error response", zap.Error(err))
			}
			return
		}
	}

	if err := h.index.IndexColumns(r.Context(), req.Columns); err != nil {
		ServiceErrorResponse(w, h.logger,
			fmt.Errorf("%w: vector index rejected columns: %v", apperrors.ErrUnavailable, err))
		return
	}

	snap := h.store.Load()
	next := catalog.NewSnapshot(
		snap.Domains(),
		snap.Owners(),
		snap.Tables(),
		upsertColumns(snap.Columns(), req.Columns),
	)
	h.store.Replace(next)

	h.logger.Info("columns indexed",
		zap.Int("count", len(req.Columns)),
		zap.Uint64("generation", next.Generation))
	if err := WriteJSON(w, http.StatusOK, IndexResponse{Indexed: len(req.Columns), Generation: next.Generation}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Reload handles POST /catalog/reload: replaces the whole snapshot in one
// atomic swap. The vector index is not touched; callers reindex separately.
func (h *CatalogHandler) Reload(w http.ResponseWriter, r *http.Request) {
	var req ReloadCatalogRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	next := catalog.NewSnapshot(req.Domains, req.Owners, req.Tables, req.Columns)
	h.store.Replace(next)

	h.logger.Info("catalog reloaded",
		zap.Int("domains", len(req.Domains)),
		zap.Int("owners", len(req.Owners)),
		zap.Int("tables", len(req.Tables)),
		zap.Int("columns", len(req.Columns)),
		zap.Uint64("generation", next.Generation))
	if err := WriteJSON(w, http.StatusOK, IndexResponse{
		Indexed:    len(req.Tables) + len(req.Columns),
		Generation: next.Generation,
	}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func (h *CatalogHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body"); err != nil {
			h.logger.Error("failed to write error response", zap.Error(err))
		}
		return false
	}
	return true
}

// upsertTables merges incoming tables into the existing set by id.
func upsertTables(existing, incoming []models.TableInfo) []models.TableInfo {
	merged := make([]models.TableInfo, 0, len(existing)+len(incoming))
	replaced := make(map[string]bool, len(incoming))
	for _, t := range incoming {
		replaced[t.ID] = true
	}
	for _, t := range existing {
		if !replaced[t.ID] {
			merged = append(merged, t)
		}
	}
	return append(merged, incoming...)
}

// upsertColumns merges incoming columns into the existing set by id.
func upsertColumns(existing, incoming []models.ColumnInfo) []models.ColumnInfo {
	merged := make([]models.ColumnInfo, 0, len(existing)+len(incoming))
	replaced := make(map[string]bool, len(incoming))
	for _, c := range incoming {
		replaced[c.ID] = true
	}
	for _, c := range existing {
		if !replaced[c.ID] {
			merged = append(merged, c)
		}
	}
	return append(merged, incoming...)
}
