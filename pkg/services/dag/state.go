package dag

import (
	"time"

	"github.com/catalogo-ai/catalog-engine/pkg/catalog"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
	"github.com/catalogo-ai/catalog-engine/pkg/services"
)

// SearchMode selects which retrieval branches run for a request.
type SearchMode string

const (
	ModeAuto       SearchMode = "auto"        // columns only when the query asks for fields
	ModeTableOnly  SearchMode = "table_only"  // skip the column branch
	ModeColumnOnly SearchMode = "column_only" // skip the table branch
	ModeHybrid     SearchMode = "hybrid"      // always run both
)

// SearchRequest is the normalized input to one pipeline run.
type SearchRequest struct {
	RequestID    string
	RawQuery     string
	VariableName string
	VariableType string
	Context      map[string]string
	UseCase      string
	SearchMode   SearchMode
	SkipRerank   bool
	DomainFilter string
}

// UserDomain reads the requester's domain from the request context.
func (r *SearchRequest) UserDomain() string { return r.Context["dominio"] }

// UserProduct reads the requester's product from the request context.
func (r *SearchRequest) UserProduct() string { return r.Context["produto"] }

// SearchState is the shared state the pipeline nodes read and write. Each
// node fills its own fields; no node observes partial output of a later one.
type SearchState struct {
	Request   SearchRequest
	Snapshot  *catalog.Snapshot
	StartedAt time.Time

	Intent          *models.Intent
	IntentFromCache bool

	DomainMatches []models.DomainMatch
	OwnerMatches  []models.OwnerMatch
	TableMatches  []models.TableMatch
	ColumnGroups  []services.ColumnGroup

	DataExistence models.DataExistence
	Ambiguity     models.Ambiguity
	Reranked      bool

	Action    models.RecommendedAction
	Reasoning string

	// Fallback marks a run that short-circuited on cancellation.
	Fallback bool
}

// Elapsed returns the wall time since the pipeline started.
func (s *SearchState) Elapsed() time.Duration { return time.Since(s.StartedAt) }

// TopMatch returns the best table candidate, or nil when there is none.
func (s *SearchState) TopMatch() *models.TableMatch {
	if len(s.TableMatches) == 0 {
		return nil
	}
	return &s.TableMatches[0]
}
