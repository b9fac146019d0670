package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

func TestSnapshotLookups(t *testing.T) {
	s := NewSnapshot(
		[]models.DomainInfo{{ID: "vendas"}, {ID: "clientes"}},
		[]models.OwnerInfo{
			{ID: "o1", DomainID: "vendas"},
			{ID: "o2", DomainID: "vendas"},
			{ID: "o3", DomainID: "clientes"},
		},
		[]models.TableInfo{{ID: "t1", Name: "tb_vendas", DomainID: "vendas", OwnerID: "o1"}},
		[]models.ColumnInfo{{ID: "c1", Name: "num_cpf", TableID: "t1"}},
	)

	require.NotNil(t, s.Domain("vendas"))
	assert.Nil(t, s.Domain("nope"))

	assert.Len(t, s.OwnersInDomain("vendas"), 2)
	assert.Empty(t, s.OwnersInDomain("nope"))

	require.NotNil(t, s.Table("t1"))
	require.NotNil(t, s.TableByName("tb_vendas"))
	assert.Equal(t, "t1", s.TableByName("tb_vendas").ID)

	assert.Len(t, s.Columns(), 1)
	assert.False(t, s.IsEmpty())
}

func TestSnapshotDomainsStableOrder(t *testing.T) {
	s := NewSnapshot(
		[]models.DomainInfo{{ID: "vendas"}, {ID: "clientes"}, {ID: "risco"}},
		nil, nil, nil,
	)

	ids := make([]string, 0, 3)
	for _, d := range s.Domains() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"clientes", "risco", "vendas"}, ids)
}

func TestStoreReplaceBumpsGeneration(t *testing.T) {
	st := NewStore()

	first := st.Load()
	require.NotNil(t, first)
	assert.True(t, first.IsEmpty())

	st.Replace(NewSnapshot(nil, nil, []models.TableInfo{{ID: "t1", Name: "x"}}, nil))
	second := st.Load()

	assert.Greater(t, second.Generation, first.Generation)
	assert.False(t, second.IsEmpty())
	assert.True(t, first.IsEmpty(), "old snapshot is untouched")
}
