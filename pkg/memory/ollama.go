package memory

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/ranswarm/ranswarm/pkg/errors"
)

/*
OllamaEmbedder generates embeddings through a local Ollama instance, which
keeps the whole swarm runnable without any hosted API. The model must emit
vectors of the configured dimension; a mismatch is a construction error of
the surrounding store, not something that gets silently truncated.
*/
type OllamaEmbedder struct {
	client     *api.Client
	model      string
	dimensions int
}

// NewOllamaEmbedder creates an embedder talking to the given Ollama host
// (empty host falls back to the OLLAMA_HOST environment convention).
func NewOllamaEmbedder(host, model string, dimensions int) (*OllamaEmbedder, error) {
	var client *api.Client

	if host == "" {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, errors.ErrEmbeddingFailed.WithMessagef("ollama client: %v", err)
		}
	} else {
		base, err := url.Parse(host)
		if err != nil {
			return nil, errors.ErrEmbeddingFailed.WithMessagef("ollama host: %v", err)
		}
		client = api.NewClient(base, http.DefaultClient)
	}

	return &OllamaEmbedder{
		client:     client,
		model:      model,
		dimensions: dimensions,
	}, nil
}

// Embed requests one embedding from Ollama.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  o.model,
		Prompt: text,
	})
	if err != nil {
		return nil, errors.ErrEmbeddingFailed.WithMessagef("ollama embeddings: %v", err)
	}

	if len(resp.Embedding) != o.dimensions {
		return nil, errors.ErrDimensionMismatch.WithMessagef(
			"model %s emits %d dimensions, store expects %d",
			o.model, len(resp.Embedding), o.dimensions,
		)
	}

	embedding := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		embedding[i] = float32(v)
	}

	return embedding, nil
}

// Dimensions returns the embedding size.
func (o *OllamaEmbedder) Dimensions() int {
	return o.dimensions
}
