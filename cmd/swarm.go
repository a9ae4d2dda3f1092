package cmd

import (
	"context"
	"os"

	"github.com/spf13/viper"

	"github.com/ranswarm/ranswarm/pkg/agent"
	"github.com/ranswarm/ranswarm/pkg/lifecycle"
	"github.com/ranswarm/ranswarm/pkg/memory"
	"github.com/ranswarm/ranswarm/pkg/qlearning"
	"github.com/ranswarm/ranswarm/pkg/replay"
	"github.com/ranswarm/ranswarm/pkg/stores/s3"
)

// newEmbedder builds the configured embedding provider. The mock provider
// is the default so the engine runs without external services.
func newEmbedder() (memory.Embedder, error) {
	dimensions := viper.GetInt("memory.dimension")
	if dimensions <= 0 {
		dimensions = 128
	}

	switch viper.GetString("embedder.provider") {
	case "openai":
		return memory.NewOpenAIEmbedder(
			os.Getenv("OPENAI_API_KEY"),
			viper.GetString("embedder.model"),
			dimensions,
		), nil
	case "ollama":
		return memory.NewOllamaEmbedder(
			viper.GetString("embedder.host"),
			viper.GetString("embedder.model"),
			dimensions,
		)
	default:
		return memory.NewMockEmbedder(dimensions), nil
	}
}

// agentConfig assembles one agent's settings from the loaded config file.
func agentConfig(id, feature string, seed int64) agent.Config {
	return agent.Config{
		ID:      id,
		Feature: feature,
		QTable: qlearning.Config{
			Alpha:        viper.GetFloat64("qlearning.alpha"),
			Gamma:        viper.GetFloat64("qlearning.gamma"),
			Epsilon:      viper.GetFloat64("qlearning.epsilon"),
			EpsilonDecay: viper.GetFloat64("qlearning.epsilon_decay"),
			EpsilonMin:   viper.GetFloat64("qlearning.epsilon_min"),
		},
		Buffer: replay.Config{
			Capacity:            viper.GetInt("replay.capacity"),
			SimilarityThreshold: viper.GetFloat64("replay.similarity_threshold"),
			MaxStepDelta:        viper.GetInt("replay.max_step_delta"),
			BatchSize:           viper.GetInt("replay.batch_size"),
		},
		Memory: memory.Config{
			Capacity: viper.GetInt("memory.capacity"),
			Index: memory.IndexConfig{
				Dimension:      viper.GetInt("memory.dimension"),
				M:              viper.GetInt("memory.m"),
				EfConstruction: viper.GetInt("memory.ef_construction"),
				EfSearch:       viper.GetInt("memory.ef_search"),
			},
		},
		ColdStartThreshold: viper.GetInt("agents.cold_start_threshold"),
		SearchK:            viper.GetInt("agents.search_k"),
		Seed:               seed,
	}
}

// buildSwarm creates one agent per feature and registers them.
func buildSwarm(features []string, bus lifecycle.Bus) (*agent.Registry, error) {
	registry := agent.NewRegistry()

	for i, feature := range features {
		embedder, err := newEmbedder()
		if err != nil {
			return nil, err
		}

		fa := agent.NewFeatureAgent(
			agentConfig("agent-"+feature, feature, int64(i+1)),
			embedder,
			bus,
		)
		registry.Register(fa)
	}

	return registry, nil
}

// newCheckpointStore connects to object storage when checkpointing is
// enabled, returning nil otherwise.
func newCheckpointStore(ctx context.Context) (*s3.CheckpointStore, error) {
	if !viper.GetBool("checkpoints.enabled") {
		return nil, nil
	}

	conn, err := s3.NewConn(ctx, s3.ConnConfig{
		Endpoint:  viper.GetString("checkpoints.endpoint"),
		AccessKey: viper.GetString("checkpoints.access_key"),
		SecretKey: viper.GetString("checkpoints.secret_key"),
		UseSSL:    viper.GetBool("checkpoints.use_ssl"),
		Bucket:    viper.GetString("checkpoints.bucket"),
	})
	if err != nil {
		return nil, err
	}

	return s3.NewCheckpointStore(conn), nil
}
