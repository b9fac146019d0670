package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

func TestIntentCacheGetSet(t *testing.T) {
	c := NewIntentCache(10, time.Hour)

	_, ok := c.Get("k1")
	assert.False(t, ok)

	c.Set("k1", models.Intent{DataNeed: "vendas"})

	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "vendas", got.DataNeed)

	hits, misses, rate := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	assert.InDelta(t, 0.5, rate, 1e-9)
}

func TestIntentCacheVariantKeysAliasOneEntry(t *testing.T) {
	c := NewIntentCache(10, time.Hour)

	c.Set("canonical", models.Intent{DataNeed: "saldo"}, "variant-a", "variant-b")
	assert.Equal(t, 1, c.Len(), "aliases must not create extra entries")

	for _, key := range []string{"canonical", "variant-a", "variant-b"} {
		got, ok := c.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, "saldo", got.DataNeed)
	}

	c.Invalidate("variant-a")
	for _, key := range []string{"canonical", "variant-a", "variant-b"} {
		_, ok := c.Get(key)
		assert.False(t, ok, "invalidating any alias drops the whole entry: %s", key)
	}
}

func TestIntentCacheTTLExpiry(t *testing.T) {
	c := NewIntentCache(10, 10*time.Millisecond)

	c.Set("k", models.Intent{DataNeed: "x"})
	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = c.Get("k")
	assert.False(t, ok, "expired entry must be treated as a miss")
	assert.Equal(t, 0, c.Len(), "expired entry is removed on read")
}

func TestIntentCacheLRUEviction(t *testing.T) {
	c := NewIntentCache(3, time.Hour)

	c.Set("a", models.Intent{DataNeed: "a"})
	c.Set("b", models.Intent{DataNeed: "b"})
	c.Set("c", models.Intent{DataNeed: "c"})

	// Touch "a" so "b" becomes the least recently used.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", models.Intent{DataNeed: "d"})

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, ok := c.Get(key)
		assert.True(t, ok, key)
	}
}

func TestIntentCacheEvictionRemovesAliases(t *testing.T) {
	c := NewIntentCache(1, time.Hour)

	c.Set("first", models.Intent{DataNeed: "1"}, "first-variant")
	c.Set("second", models.Intent{DataNeed: "2"})

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("first-variant")
	assert.False(t, ok, "evicted entry's aliases must be gone")
}

func TestIntentCacheSetReplaces(t *testing.T) {
	c := NewIntentCache(10, time.Hour)

	c.Set("k", models.Intent{DataNeed: "old"}, "old-variant")
	c.Set("k", models.Intent{DataNeed: "new"})

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", got.DataNeed)

	_, ok = c.Get("old-variant")
	assert.False(t, ok, "replacing a key drops the previous entry's aliases")
	assert.Equal(t, 1, c.Len())
}

func TestIntentCacheClearKeepsCounters(t *testing.T) {
	c := NewIntentCache(10, time.Hour)
	c.Set("k", models.Intent{})
	_, _ = c.Get("k")

	c.Clear()

	assert.Equal(t, 0, c.Len())
	hits, _, _ := c.Stats()
	assert.Equal(t, uint64(1), hits)
}

func TestIntentCacheConcurrentAccess(t *testing.T) {
	c := NewIntentCache(100, time.Hour)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k-%d", i%50)
				c.Set(key, models.Intent{DataNeed: key})
				c.Get(key)
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	assert.LessOrEqual(t, c.Len(), 100)
}
