package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogo-ai/catalog-engine/pkg/catalog"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

func testSnapshot() *catalog.Snapshot {
	return catalog.NewSnapshot(
		[]models.DomainInfo{
			{ID: "vendas", Name: "Vendas", Keywords: []string{"venda", "vendas", "contratação", "consignado"}},
			{ID: "clientes", Name: "Clientes", Keywords: []string{"cliente", "cadastro", "correntista"}},
			{ID: "risco", Name: "Risco", Keywords: []string{"risco", "inadimplencia", "provisão"}},
		},
		[]models.OwnerInfo{
			{ID: "o-vendas-1", Name: "Ana", DomainID: "vendas", ApprovalRate: 0.9},
			{ID: "o-vendas-2", Name: "Bruno", DomainID: "vendas", ApprovalRate: 0.5},
			{ID: "o-clientes-1", Name: "Clara", DomainID: "clientes", ApprovalRate: 0.7},
		},
		nil, nil,
	)
}

func TestSearchDomainsKeywordOverlap(t *testing.T) {
	snap := testSnapshot()
	intent := &models.Intent{DataNeed: "vendas mensais", TargetProduct: "consignado"}

	matches := SearchDomains(snap, intent)
	require.NotEmpty(t, matches)
	assert.Equal(t, "vendas", matches[0].Domain.ID)

	// bag = {vendas, mensais, consignado}; overlap 2 -> 2/3 + 0.3.
	assert.InDelta(t, 2.0/3.0+0.3, matches[0].Score, 1e-9)
}

func TestSearchDomainsScoreCapped(t *testing.T) {
	snap := catalog.NewSnapshot(
		[]models.DomainInfo{{ID: "d", Keywords: []string{"venda"}}},
		nil, nil, nil,
	)
	matches := SearchDomains(snap, &models.Intent{DataNeed: "venda"})
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestSearchDomainsFallback(t *testing.T) {
	snap := testSnapshot()
	intent := &models.Intent{DataNeed: "algo totalmente desconhecido"}

	matches := SearchDomains(snap, intent)
	require.Len(t, matches, 3)
	for _, m := range matches {
		assert.InDelta(t, fallbackDomainScore, m.Score, 1e-9)
		assert.Equal(t, "fallback: no direct match", m.Reasoning)
	}

	// Stable: same input, same order.
	again := SearchDomains(snap, intent)
	assert.Equal(t, matches, again)
}

func TestSearchDomainsEmptyCatalog(t *testing.T) {
	snap := catalog.NewSnapshot(nil, nil, nil, nil)
	assert.Empty(t, SearchDomains(snap, &models.Intent{DataNeed: "vendas"}))
}

func TestSearchDomainsUsesInferredDomains(t *testing.T) {
	snap := testSnapshot()
	intent := &models.Intent{DataNeed: "indicador qualquer", InferredDomains: []string{"risco"}}

	matches := SearchDomains(snap, intent)
	require.NotEmpty(t, matches)
	assert.Equal(t, "risco", matches[0].Domain.ID)
}

func TestSearchOwners(t *testing.T) {
	snap := testSnapshot()
	domainMatches := []models.DomainMatch{
		{Domain: *snap.Domain("vendas"), Score: 0.8},
		{Domain: *snap.Domain("clientes"), Score: 0.5},
	}

	matches := SearchOwners(snap, domainMatches)
	require.Len(t, matches, 3)

	// Ana: 0.6*0.8 + 0.4*0.9 = 0.84 leads.
	assert.Equal(t, "o-vendas-1", matches[0].Owner.ID)
	assert.InDelta(t, 0.84, matches[0].Score, 1e-9)
	assert.InDelta(t, 0.8, matches[0].DomainScore, 1e-9)

	// Bruno: 0.6*0.8 + 0.4*0.5 = 0.68; Clara: 0.6*0.5 + 0.4*0.7 = 0.58.
	assert.Equal(t, "o-vendas-2", matches[1].Owner.ID)
	assert.Equal(t, "o-clientes-1", matches[2].Owner.ID)
}

func TestSearchOwnersNoDuplicates(t *testing.T) {
	snap := testSnapshot()
	domainMatches := []models.DomainMatch{
		{Domain: *snap.Domain("vendas"), Score: 0.8},
		{Domain: *snap.Domain("vendas"), Score: 0.6},
	}

	matches := SearchOwners(snap, domainMatches)
	seen := make(map[string]bool)
	for _, m := range matches {
		assert.False(t, seen[m.Owner.ID], "owner %s duplicated", m.Owner.ID)
		seen[m.Owner.ID] = true
	}
}

func TestSearchOwnersEmptyDomains(t *testing.T) {
	assert.Empty(t, SearchOwners(testSnapshot(), nil))
}
