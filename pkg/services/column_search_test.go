package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
	"github.com/catalogo-ai/catalog-engine/pkg/retriever"
)

func TestShouldSearchColumns(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		intent models.Intent
		want   bool
	}{
		{"campo keyword", "onde tem o campo CPF?", models.Intent{}, true},
		{"coluna keyword", "qual coluna guarda o saldo", models.Intent{}, true},
		{"atributo keyword", "atributo de risco", models.Intent{}, true},
		{"field keyword", "field customer_id", models.Intent{}, true},
		{"cpf entity", "documentos dos clientes", models.Intent{TargetEntity: "cpf"}, true},
		{"cnpj entity", "empresas", models.Intent{TargetEntity: "CNPJ"}, true},
		{"plain table query", "vendas mensais consignado", models.Intent{TargetEntity: "contrato"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldSearchColumns(tt.query, &tt.intent))
		})
	}
}

func TestColumnSearchGroupsByTable(t *testing.T) {
	mock := retriever.NewMockRetriever()
	mock.SearchColumnsFunc = func(context.Context, string, int) ([]retriever.ColumnHit, error) {
		return []retriever.ColumnHit{
			{ColumnID: "c1", ColumnName: "nr_cpf", TableID: "t1", Score: 0.9},
			{ColumnID: "c2", ColumnName: "nm_cliente", TableID: "t1", Score: 0.6},
			{ColumnID: "c3", ColumnName: "nr_cpf_titular", TableID: "t2", Score: 0.7},
		}, nil
	}
	svc := NewColumnSearchService(mock, zap.NewNop())

	groups := svc.Search(context.Background(), "campo cpf")
	require.Len(t, groups, 2)

	assert.Equal(t, "t1", groups[0].TableID)
	assert.InDelta(t, 0.9, groups[0].Score, 1e-9, "best column similarity is the group score")
	assert.Equal(t, []string{"nr_cpf", "nm_cliente"}, groups[0].MatchedColumns)
	assert.Equal(t, "t2", groups[1].TableID)
}

func TestMergeColumnMatchesBoostsExisting(t *testing.T) {
	snap := searchSnapshot()
	tableMatches := []models.TableMatch{
		{Table: *snap.Table("t1"), Score: 0.6, Reasoning: "base"},
		{Table: *snap.Table("t2"), Score: 0.55, Reasoning: "base"},
	}
	groups := []ColumnGroup{{TableID: "t2", Score: 0.9, MatchedColumns: []string{"nr_cpf"}}}

	merged := MergeColumnMatches(snap, tableMatches, groups, "")
	require.Len(t, merged, 2)

	// t2 got +0.15 and overtook t1.
	assert.Equal(t, "t2", merged[0].Table.ID)
	assert.InDelta(t, 0.70, merged[0].Score, 1e-9)
	assert.Equal(t, []string{"nr_cpf"}, merged[0].MatchedEntities)
	assert.Contains(t, merged[0].Reasoning, "nr_cpf")
}

func TestMergeColumnMatchesBoostCapped(t *testing.T) {
	snap := searchSnapshot()
	tableMatches := []models.TableMatch{{Table: *snap.Table("t1"), Score: 0.95}}
	groups := []ColumnGroup{{TableID: "t1", Score: 0.9, MatchedColumns: []string{"x"}}}

	merged := MergeColumnMatches(snap, tableMatches, groups, "")
	assert.InDelta(t, 1.0, merged[0].Score, 1e-9)
}

func TestMergeColumnMatchesInsertsNew(t *testing.T) {
	snap := searchSnapshot()
	tableMatches := []models.TableMatch{{Table: *snap.Table("t1"), Score: 0.6}}
	groups := []ColumnGroup{{TableID: "t2", Score: 0.8, MatchedColumns: []string{"nr_cpf"}}}

	merged := MergeColumnMatches(snap, tableMatches, groups, "")
	require.Len(t, merged, 2)

	var inserted *models.TableMatch
	for i := range merged {
		if merged[i].Table.ID == "t2" {
			inserted = &merged[i]
		}
	}
	require.NotNil(t, inserted)
	assert.InDelta(t, 0.8, inserted.Scores.Semantic, 1e-9)
	assert.InDelta(t, 0.5, inserted.Scores.Historical, 1e-9)
	assert.InDelta(t, 0.5, inserted.Scores.Components.Certification, 1e-9)
	assert.False(t, inserted.IsDoubleCertified)
	assert.False(t, inserted.HasProductMatch)
	assert.Equal(t, []string{"nr_cpf"}, inserted.MatchedEntities)
}

func TestMergeColumnMatchesUnknownTableSkipped(t *testing.T) {
	snap := searchSnapshot()
	merged := MergeColumnMatches(snap, nil, []ColumnGroup{{TableID: "ghost", Score: 0.9}}, "")
	assert.Empty(t, merged)
}

func TestMergeColumnMatchesNoGroupsIsNoop(t *testing.T) {
	snap := searchSnapshot()
	tableMatches := []models.TableMatch{{Table: *snap.Table("t1"), Score: 0.6}}
	assert.Equal(t, tableMatches, MergeColumnMatches(snap, tableMatches, nil, ""))
}
