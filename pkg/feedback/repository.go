package feedback

import (
	"context"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// Repository persists decision records. The production implementation is
// Postgres-backed; tests use the in-memory implementation. Both honor the
// same dedup rule: a second insert with the same (request_id, table_id,
// outcome) returns the existing row's id without adding aggregate weight.
type Repository interface {
	// Insert appends a decision record, returning its id. Duplicate
	// (request_id, table_id, outcome) triples return the original id.
	Insert(ctx context.Context, rec *models.DecisionRecord) (int64, error)

	// Aggregate returns (approved, total) counts for a concept/table pair.
	// MODIFIED outcomes count toward total but not approved.
	Aggregate(ctx context.Context, conceptHash, tableID string) (approved, total int, err error)

	// TopTablesForConcept returns up to limit tables with at least minSamples
	// records for the concept, ordered by approval rate then sample count.
	TopTablesForConcept(ctx context.Context, conceptHash string, limit, minSamples int) ([]models.TableApproval, error)
}
