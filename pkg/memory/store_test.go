package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(capacity int) *VectorMemory {
	config := DefaultConfig()
	config.Capacity = capacity
	return NewVectorMemory(NewMockEmbedder(32), config)
}

func TestStoreAndSearch(t *testing.T) {
	vm := newTestStore(100)
	ctx := context.Background()

	stored, err := vm.Store(ctx, "handover threshold tuning for cell edge users", Metadata{
		Tags: []string{"mobility", "tuning"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)
	assert.Equal(t, []string{"mobility", "tuning"}, stored.Metadata.Tags)

	_, err = vm.Store(ctx, "carrier aggregation activation procedure", Metadata{})
	require.NoError(t, err)

	results, err := vm.Search(ctx, "handover threshold tuning for cell edge users", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Identical text embeds identically with the mock embedder.
	assert.Equal(t, stored.ID, results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestSearchEmptyStore(t *testing.T) {
	vm := newTestStore(100)

	results, err := vm.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCapacityEvictsOldest(t *testing.T) {
	vm := newTestStore(3)
	ctx := context.Background()

	base := time.Now()
	oldest, err := vm.Store(ctx, "first", Metadata{Timestamp: base})
	require.NoError(t, err)

	for i, content := range []string{"second", "third", "fourth"} {
		_, err := vm.Store(ctx, content, Metadata{Timestamp: base.Add(time.Duration(i+1) * time.Second)})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, vm.Len())
	_, ok := vm.Get(oldest.ID)
	assert.False(t, ok, "oldest memory should have been evicted")
}

func TestDeleteMemory(t *testing.T) {
	vm := newTestStore(10)
	ctx := context.Background()

	mem, err := vm.Store(ctx, "to be removed", Metadata{})
	require.NoError(t, err)

	assert.True(t, vm.Delete(mem.ID))
	assert.False(t, vm.Delete(mem.ID))
	assert.Equal(t, 0, vm.Len())

	results, err := vm.Search(ctx, "to be removed", 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchReturnsAtMostK(t *testing.T) {
	vm := newTestStore(100)
	ctx := context.Background()

	for _, content := range []string{"a", "b", "c", "d", "e"} {
		_, err := vm.Store(ctx, content, Metadata{})
		require.NoError(t, err)
	}

	results, err := vm.Search(ctx, "a", 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 3)
}

func TestMockEmbedderDeterminism(t *testing.T) {
	embedder := NewMockEmbedder(16)

	a, err := embedder.Embed(context.Background(), "same text")
	require.NoError(t, err)
	b, err := embedder.Embed(context.Background(), "same text")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}
