package memory

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ranswarm/ranswarm/pkg/errors"
)

// Embedder converts text to a fixed-dimension embedding vector. The engine
// treats it as a pluggable collaborator; implementations decide where the
// vectors come from.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// MockEmbedder generates deterministic embeddings from a text hash. It is
// the default for tests and the demo command, where semantic quality does
// not matter but reproducibility does.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder creates a mock embedder of the given dimension.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	return &MockEmbedder{dimensions: dimensions}
}

// Embed creates a unit vector seeded by the FNV hash of the text, so equal
// texts always embed identically.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

/*
OpenAIEmbedder generates embeddings through the OpenAI embeddings API. The
requested dimension is passed through to the model, which supports native
truncation for the text-embedding-3 family.
*/
type OpenAIEmbedder struct {
	client     openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// NewOpenAIEmbedder creates an embedder bound to one model and dimension.
// An empty model defaults to text-embedding-3-small.
func NewOpenAIEmbedder(apiKey, model string, dimensions int) *OpenAIEmbedder {
	embeddingModel := openai.EmbeddingModelTextEmbedding3Small
	if model != "" {
		embeddingModel = openai.EmbeddingModel(model)
	}

	return &OpenAIEmbedder{
		client:     openai.NewClient(option.WithAPIKey(apiKey)),
		model:      embeddingModel,
		dimensions: dimensions,
	}
}

// Embed requests one embedding from the API.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
		Model:      o.model,
		Dimensions: openai.Int(int64(o.dimensions)),
	})
	if err != nil {
		return nil, errors.ErrEmbeddingFailed.WithMessagef("openai embeddings: %v", err)
	}

	if len(resp.Data) == 0 {
		return nil, errors.ErrEmbeddingFailed.WithMessagef("openai returned no embeddings")
	}

	embedding := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		embedding[i] = float32(v)
	}

	if len(embedding) != o.dimensions {
		return nil, errors.ErrDimensionMismatch.WithMessagef(
			"expected %d dimensions, got %d", o.dimensions, len(embedding),
		)
	}

	return embedding, nil
}

// Dimensions returns the embedding size.
func (o *OpenAIEmbedder) Dimensions() int {
	return o.dimensions
}

// normalize converts an embedding to a unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}

	return vec
}
