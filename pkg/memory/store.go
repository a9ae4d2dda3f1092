package memory

import (
	"context"
	"math/rand"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ranswarm/ranswarm/pkg/errors"
)

// Config holds VectorMemory tuning knobs.
type Config struct {
	// Capacity is the max number of memories held before the oldest is
	// evicted. Default 10,000.
	Capacity int
	// Index carries the HNSW parameters.
	Index IndexConfig
	// Seed makes graph construction reproducible. Zero means seed 1.
	Seed int64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Capacity: 10000,
		Index:    DefaultIndexConfig(),
	}
}

/*
VectorMemory is the semantic store owned by one agent: content plus
embedding plus metadata, indexed by an HNSW graph. It is not internally
synchronized; the owning agent serializes access.
*/
type VectorMemory struct {
	config   Config
	embedder Embedder
	index    *Index

	memories map[string]*Memory
	handles  map[string]uint32
	ids      map[uint32]string
}

// NewVectorMemory creates a store around the given embedder.
func NewVectorMemory(embedder Embedder, config Config) *VectorMemory {
	if config.Capacity <= 0 {
		config.Capacity = 10000
	}
	if config.Index.M <= 0 {
		config.Index = DefaultIndexConfig()
	}
	config.Index.Dimension = embedder.Dimensions()

	seed := config.Seed
	if seed == 0 {
		seed = 1
	}

	return &VectorMemory{
		config:   config,
		embedder: embedder,
		index:    NewIndex(config.Index, rand.New(rand.NewSource(seed))),
		memories: make(map[string]*Memory),
		handles:  make(map[string]uint32),
		ids:      make(map[uint32]string),
	}
}

// Len returns the number of stored memories.
func (vm *VectorMemory) Len() int {
	return len(vm.memories)
}

// Store embeds content, evicts the oldest memory when at capacity and
// inserts the new memory into the index.
func (vm *VectorMemory) Store(ctx context.Context, content string, metadata Metadata) (*Memory, error) {
	embedding, err := vm.embedder.Embed(ctx, content)
	if err != nil {
		return nil, err
	}

	if len(embedding) != vm.config.Index.Dimension {
		return nil, errors.ErrDimensionMismatch.WithMessagef(
			"expected %d dimensions, got %d", vm.config.Index.Dimension, len(embedding),
		)
	}

	if metadata.Timestamp.IsZero() {
		metadata.Timestamp = time.Now()
	}

	if len(vm.memories) >= vm.config.Capacity {
		vm.evictOldest()
	}

	mem := &Memory{
		ID:        uuid.NewString(),
		Content:   content,
		Embedding: embedding,
		Metadata:  metadata,
	}

	handle := vm.index.Insert(embedding)
	vm.memories[mem.ID] = mem
	vm.handles[mem.ID] = handle
	vm.ids[handle] = mem.ID

	return mem, nil
}

// Search embeds the query and returns up to k memories ordered by
// descending similarity (1 - cosine distance). An empty store returns an
// empty slice, never an error.
func (vm *VectorMemory) Search(ctx context.Context, query string, k int) ([]Memory, error) {
	if len(vm.memories) == 0 {
		return []Memory{}, nil
	}

	embedding, err := vm.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates := vm.index.Search(embedding, k)

	results := make([]Memory, 0, len(candidates))
	for _, cand := range candidates {
		id, ok := vm.ids[cand.ID]
		if !ok {
			continue
		}
		mem := *vm.memories[id]
		mem.Score = 1 - cand.Distance
		results = append(results, mem)
	}

	return results, nil
}

// Get returns a stored memory by ID.
func (vm *VectorMemory) Get(id string) (*Memory, bool) {
	mem, ok := vm.memories[id]
	return mem, ok
}

// Delete removes a memory and its graph node. Returns false when the ID is
// unknown.
func (vm *VectorMemory) Delete(id string) bool {
	handle, ok := vm.handles[id]
	if !ok {
		return false
	}

	vm.index.Delete(handle)
	delete(vm.memories, id)
	delete(vm.handles, id)
	delete(vm.ids, handle)

	return true
}

// evictOldest drops the memory with the earliest metadata timestamp.
// Nothing to evict is a silent no-op.
func (vm *VectorMemory) evictOldest() {
	var oldestID string
	var oldest time.Time

	for id, mem := range vm.memories {
		if oldestID == "" || mem.Metadata.Timestamp.Before(oldest) {
			oldestID = id
			oldest = mem.Metadata.Timestamp
		}
	}

	if oldestID == "" {
		return
	}

	log.Debug("evicting oldest memory", "id", oldestID, "timestamp", oldest)
	vm.Delete(oldestID)
}
