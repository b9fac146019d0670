// Package retriever provides vector-index access for semantic search over the
// catalog. Tables and columns live in separate collections so field-level
// queries can be answered without diluting table-level recall.
package retriever

import (
	"context"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// TableHit is one scored table from the vector index. Score is cosine
// similarity in [0,1]; callers join TableID against the catalog snapshot for
// the full record.
type TableHit struct {
	TableID string
	Score   float32
}

// ColumnHit is one scored column from the vector index.
type ColumnHit struct {
	ColumnID   string
	ColumnName string
	TableID    string
	Score      float32
}

// Filter narrows a table search to a slice of the catalog. Empty fields are
// ignored.
type Filter struct {
	DomainID string
	OwnerID  string
}

// Retriever is the vector-index boundary. Implementations embed the query
// text themselves so callers never touch raw vectors.
type Retriever interface {
	// EnsureCollections creates the table and column collections and their
	// payload indexes if missing. Idempotent; called once at startup.
	EnsureCollections(ctx context.Context) error

	// IndexTables upserts tables into the index.
	IndexTables(ctx context.Context, tables []models.TableInfo) error

	// IndexColumns upserts columns into the index.
	IndexColumns(ctx context.Context, columns []models.ColumnInfo) error

	// SearchTables returns the top tables for a query, best first.
	SearchTables(ctx context.Context, query string, filter Filter, limit int) ([]TableHit, error)

	// SearchColumns returns the top columns for a query, best first.
	SearchColumns(ctx context.Context, query string, limit int) ([]ColumnHit, error)

	// Healthy returns nil if the index is reachable.
	Healthy(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
