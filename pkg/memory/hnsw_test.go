package memory

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(dim int) *Index {
	config := DefaultIndexConfig()
	config.Dimension = dim
	return NewIndex(config, rand.New(rand.NewSource(42)))
}

func randomVector(rng *rand.Rand, dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = rng.Float32()*2 - 1
	}
	return vec
}

func TestInsertAndExactMatch(t *testing.T) {
	idx := newTestIndex(8)
	vec := []float32{1, 0, 0, 0, 1, 0, 0, 0}

	id := idx.Insert(vec)
	results := idx.Search(vec, 1)

	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := newTestIndex(8)
	assert.Empty(t, idx.Search([]float32{1, 0, 0, 0, 0, 0, 0, 0}, 5))
}

func TestSearchOrdering(t *testing.T) {
	idx := newTestIndex(4)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		idx.Insert(randomVector(rng, 4))
	}

	query := randomVector(rng, 4)
	results := idx.Search(query, 10)

	require.NotEmpty(t, results)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
}

func TestRecallOnClusteredData(t *testing.T) {
	idx := newTestIndex(4)

	// Two well-separated clusters; a query near one cluster must never
	// return points from the other first.
	near := idx.Insert([]float32{1, 0, 0, 0})
	idx.Insert([]float32{0.99, 0.01, 0, 0})
	idx.Insert([]float32{-1, 0, 0, 0})
	idx.Insert([]float32{-0.99, -0.01, 0, 0})

	results := idx.Search([]float32{1, 0.001, 0, 0}, 1)
	require.Len(t, results, 1)
	assert.Equal(t, near, results[0].ID)
}

func TestDeleteScrubsNeighbors(t *testing.T) {
	idx := newTestIndex(4)
	rng := rand.New(rand.NewSource(11))

	ids := make([]uint32, 0, 50)
	for i := 0; i < 50; i++ {
		ids = append(ids, idx.Insert(randomVector(rng, 4)))
	}

	victim := ids[10]
	require.True(t, idx.Delete(victim))
	assert.False(t, idx.Delete(victim))
	assert.Equal(t, 49, idx.Len())

	for _, n := range idx.nodes {
		if n == nil || n.deleted {
			continue
		}
		for _, layer := range n.neighbors {
			for _, nb := range layer {
				assert.NotEqual(t, victim, nb)
			}
		}
	}

	// Search still works and never returns the victim.
	for _, cand := range idx.Search(randomVector(rng, 4), 10) {
		assert.NotEqual(t, victim, cand.ID)
	}
}

// assertSymmetricEdges checks that every edge has its backlink: pruning
// and deletion must never leave a one-sided reference.
func assertSymmetricEdges(t *testing.T, idx *Index) {
	t.Helper()

	for id, n := range idx.nodes {
		if n == nil || n.deleted {
			continue
		}
		for layer, neighbors := range n.neighbors {
			for _, nb := range neighbors {
				other := idx.nodes[nb]
				require.NotNil(t, other, "edge %d->%d points at a freed slot", id, nb)
				require.False(t, other.deleted, "edge %d->%d points at a deleted node", id, nb)
				require.Contains(t, other.neighbors[layer], uint32(id),
					"edge %d->%d at layer %d has no backlink", id, nb, layer)
			}
		}
	}
}

func TestPruneAndDeleteKeepEdgesSymmetric(t *testing.T) {
	// A tiny M forces constant pruning, which is where one-sided edges
	// would appear.
	config := IndexConfig{Dimension: 4, M: 2, EfConstruction: 16, EfSearch: 8}
	idx := NewIndex(config, rand.New(rand.NewSource(13)))
	rng := rand.New(rand.NewSource(17))

	ids := make([]uint32, 0, 200)
	for i := 0; i < 200; i++ {
		ids = append(ids, idx.Insert(randomVector(rng, 4)))
	}
	assertSymmetricEdges(t, idx)

	for _, id := range ids[:100] {
		require.True(t, idx.Delete(id))
	}
	assertSymmetricEdges(t, idx)

	// Search after heavy deletion must not touch freed nodes.
	results := idx.Search(randomVector(rng, 4), 10)
	require.NotEmpty(t, results)
	for _, cand := range results {
		assert.NotNil(t, idx.Vector(cand.ID))
	}

	// Free-list reuse keeps the graph consistent too.
	for i := 0; i < 50; i++ {
		idx.Insert(randomVector(rng, 4))
	}
	assertSymmetricEdges(t, idx)
	require.NotEmpty(t, idx.Search(randomVector(rng, 4), 10))
}

func TestDeleteEntryPointReelection(t *testing.T) {
	idx := newTestIndex(4)
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 30; i++ {
		idx.Insert(randomVector(rng, 4))
	}

	entry := uint32(idx.entry)
	require.True(t, idx.Delete(entry))

	assert.NotEqual(t, int(entry), idx.entry)
	assert.GreaterOrEqual(t, idx.entry, 0)

	// The new entry point carries the max layer of the remaining graph.
	for _, n := range idx.nodes {
		if n == nil || n.deleted {
			continue
		}
		assert.LessOrEqual(t, n.level(), idx.nodes[idx.entry].level())
	}
}

func TestDeleteAllThenSearch(t *testing.T) {
	idx := newTestIndex(4)

	a := idx.Insert([]float32{1, 0, 0, 0})
	b := idx.Insert([]float32{0, 1, 0, 0})

	require.True(t, idx.Delete(a))
	require.True(t, idx.Delete(b))

	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Search([]float32{1, 0, 0, 0}, 3))
}

func TestZeroNormVectorMaxDistance(t *testing.T) {
	assert.Equal(t, 1.0, cosineDistance([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 1.0, cosineDistance([]float32{1, 0}, []float32{0, 0}))
}

func TestRandomLevelBounded(t *testing.T) {
	idx := newTestIndex(4)

	for i := 0; i < 10000; i++ {
		level := idx.randomLevel()
		assert.GreaterOrEqual(t, level, 0)
		assert.LessOrEqual(t, level, maxNodeLevel)
	}
}
