package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// VariableRepository persists requested variables.
type VariableRepository interface {
	Create(ctx context.Context, v *models.Variable) error
	Get(ctx context.Context, id uuid.UUID) (*models.Variable, error)
	Update(ctx context.Context, v *models.Variable) error
}

// MatchRepository persists workflow matches.
type MatchRepository interface {
	Create(ctx context.Context, m *models.WorkflowMatch) error
	Get(ctx context.Context, id uuid.UUID) (*models.WorkflowMatch, error)
	Update(ctx context.Context, m *models.WorkflowMatch) error
	ListByVariable(ctx context.Context, variableID uuid.UUID) ([]models.WorkflowMatch, error)
	// ClearSelection unsets is_selected on every match of the variable except
	// the given one.
	ClearSelection(ctx context.Context, variableID, exceptID uuid.UUID) error
}

// ResponseRepository persists the ordered owner/requester response sequences.
type ResponseRepository interface {
	InsertOwnerResponse(ctx context.Context, r *models.OwnerResponse) error
	InsertRequesterResponse(ctx context.Context, r *models.RequesterResponse) error
	// CountRequesterRejections returns how many rejection responses the match
	// has accumulated, for the loop counter.
	CountRequesterRejections(ctx context.Context, matchID uuid.UUID) (int, error)
}

// InvolvementRepository persists data-creation requests.
type InvolvementRepository interface {
	Create(ctx context.Context, inv *models.Involvement) error
	Get(ctx context.Context, id uuid.UUID) (*models.Involvement, error)
	Update(ctx context.Context, inv *models.Involvement) error
	// GetOpenByVariable returns the variable's open involvement, or nil.
	GetOpenByVariable(ctx context.Context, variableID uuid.UUID) (*models.Involvement, error)
	// ListOpen returns every involvement that is not COMPLETED.
	ListOpen(ctx context.Context) ([]models.Involvement, error)
}

// HistoryRepository is the append-only transition log. Write-only from the
// engine.
type HistoryRepository interface {
	Append(ctx context.Context, h *models.DecisionHistory) error
}

// sameDay reports whether two instants fall on the same UTC calendar day.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
