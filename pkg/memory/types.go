// Package memory provides the semantic vector store backing each feature
// agent, indexed with a Hierarchical Navigable Small World (HNSW) graph for
// sub-linear nearest-neighbor search.
package memory

import (
	"time"
)

// Memory represents a single unit of stored knowledge.
type Memory struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
	Metadata  Metadata  `json:"metadata"`

	// Score is only populated on search results: 1 - cosine distance to
	// the query. It is transient and never persisted.
	Score float64 `json:"score,omitempty"`
}

// Metadata carries the creation timestamp used for capacity eviction plus
// free-form tags.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Tags      []string  `json:"tags,omitempty"`
}
