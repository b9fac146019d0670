package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

func TestQualityCacheGetScore(t *testing.T) {
	c := NewQualityCache()

	assert.InDelta(t, 0.5, c.GetScore("missing", 0.5), 1e-9)

	c.Set("tb_vendas", 91, time.Now().Add(-time.Hour))
	assert.InDelta(t, 0.91, c.GetScore("tb_vendas", 0.5), 1e-9)
}

func TestQualityCacheGetReturnsStale(t *testing.T) {
	c := NewQualityCache()
	c.Set("tb_old", 60, time.Now().Add(-90*24*time.Hour))

	m, ok := c.Get("tb_old")
	require.True(t, ok, "stale entries are still returned")
	assert.InDelta(t, 60.0, m.QualityScore, 1e-9)
}

func TestQualityCacheSetBulk(t *testing.T) {
	c := NewQualityCache()

	c.SetBulk([]models.QualityRecord{
		{TableName: "a", QualityScore: 80, LastUpdated: time.Now()},
		{TableName: "b", QualityScore: 70, LastUpdated: time.Now()},
	})

	assert.Equal(t, 2, c.Len())
	assert.InDelta(t, 0.8, c.GetScore("a", 0), 1e-9)
	assert.InDelta(t, 0.7, c.GetScore("b", 0), 1e-9)
}

func TestQualityCacheOldestAge(t *testing.T) {
	c := NewQualityCache()
	assert.Zero(t, c.OldestAge(time.Now()))

	c.Set("a", 50, time.Now())
	age := c.OldestAge(time.Now().Add(49 * time.Hour))
	assert.Greater(t, age, 48*time.Hour)
}
