package retriever

import (
	"context"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// MockRetriever is a configurable mock for testing search functionality.
// Set the function fields to control behavior in tests.
type MockRetriever struct {
	EnsureCollectionsFunc func(ctx context.Context) error
	IndexTablesFunc       func(ctx context.Context, tables []models.TableInfo) error
	IndexColumnsFunc      func(ctx context.Context, columns []models.ColumnInfo) error
	SearchTablesFunc      func(ctx context.Context, query string, filter Filter, limit int) ([]TableHit, error)
	SearchColumnsFunc     func(ctx context.Context, query string, limit int) ([]ColumnHit, error)
	HealthyFunc           func(ctx context.Context) error

	// Call tracking for verification
	SearchTablesCalls  int
	SearchColumnsCalls int
	IndexTablesCalls   int
	IndexColumnsCalls  int

	// LastTableQuery and LastFilter record the most recent SearchTables call.
	LastTableQuery  string
	LastFilter      Filter
	LastColumnQuery string
}

var _ Retriever = (*MockRetriever)(nil)

// NewMockRetriever creates a mock whose every method succeeds with empty
// results.
func NewMockRetriever() *MockRetriever {
	return &MockRetriever{}
}

func (m *MockRetriever) EnsureCollections(ctx context.Context) error {
	if m.EnsureCollectionsFunc != nil {
		return m.EnsureCollectionsFunc(ctx)
	}
	return nil
}

func (m *MockRetriever) IndexTables(ctx context.Context, tables []models.TableInfo) error {
	m.IndexTablesCalls++
	if m.IndexTablesFunc != nil {
		return m.IndexTablesFunc(ctx, tables)
	}
	return nil
}

func (m *MockRetriever) IndexColumns(ctx context.Context, columns []models.ColumnInfo) error {
	m.IndexColumnsCalls++
	if m.IndexColumnsFunc != nil {
		return m.IndexColumnsFunc(ctx, columns)
	}
	return nil
}

func (m *MockRetriever) SearchTables(ctx context.Context, query string, filter Filter, limit int) ([]TableHit, error) {
	m.SearchTablesCalls++
	m.LastTableQuery = query
	m.LastFilter = filter
	if m.SearchTablesFunc != nil {
		return m.SearchTablesFunc(ctx, query, filter, limit)
	}
	return nil, nil
}

func (m *MockRetriever) SearchColumns(ctx context.Context, query string, limit int) ([]ColumnHit, error) {
	m.SearchColumnsCalls++
	m.LastColumnQuery = query
	if m.SearchColumnsFunc != nil {
		return m.SearchColumnsFunc(ctx, query, limit)
	}
	return nil, nil
}

func (m *MockRetriever) Healthy(ctx context.Context) error {
	if m.HealthyFunc != nil {
		return m.HealthyFunc(ctx)
	}
	return nil
}

func (m *MockRetriever) Close() error { return nil }
