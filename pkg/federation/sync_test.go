package federation

import (
	"context"
	"testing"
	"time"

	"github.com/ranswarm/ranswarm/pkg/agent"
	"github.com/ranswarm/ranswarm/pkg/errors"
	"github.com/ranswarm/ranswarm/pkg/memory"
	"github.com/ranswarm/ranswarm/pkg/qlearning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPeer struct {
	id       string
	entries  map[string]qlearning.Entry
	failures int
	calls    int
}

func (p *stubPeer) ID() string { return p.id }

func (p *stubPeer) FetchEntries(ctx context.Context) (map[string]qlearning.Entry, error) {
	p.calls++
	if p.calls <= p.failures {
		return nil, errors.ErrPeerUnavailable.WithMessagef("%s is down", p.id)
	}
	return p.entries, nil
}

func fastRetry() *errors.RetryConfig {
	return &errors.RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 1,
	}
}

func peerEntries(contextHash string, q float64) map[string]qlearning.Entry {
	state := qlearning.State{QueryType: "fault", Complexity: "high", ContextHash: contextHash}
	return map[string]qlearning.Entry{
		state.Key() + ":" + string(qlearning.ConsultPeer): {QValue: q, Visits: 10},
	}
}

func newLocalAgent() *agent.FeatureAgent {
	config := agent.DefaultAgentConfig("agent-local", "handover")
	config.Seed = 3
	return agent.NewFeatureAgent(config, memory.NewMockEmbedder(16), nil)
}

func TestSyncMergesAllPeers(t *testing.T) {
	local := newLocalAgent()
	syncer := NewSyncer(local, fastRetry())
	syncer.AddPeer(&stubPeer{id: "peer-1", entries: peerEntries("h1", 0.5)})
	syncer.AddPeer(&stubPeer{id: "peer-2", entries: peerEntries("h2", 0.7)})

	result, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Peers)
	assert.Equal(t, 0, result.FailedPeers)
	assert.Equal(t, 2, result.MergedEntries)
}

func TestSyncRetriesTransientFailures(t *testing.T) {
	local := newLocalAgent()
	peer := &stubPeer{id: "peer-flaky", entries: peerEntries("h1", 0.4), failures: 1}

	syncer := NewSyncer(local, fastRetry())
	syncer.AddPeer(peer)

	result, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, peer.calls)
	assert.Equal(t, 1, result.MergedEntries)
}

func TestSyncCollectsFailuresWithoutAborting(t *testing.T) {
	local := newLocalAgent()
	syncer := NewSyncer(local, fastRetry())
	syncer.AddPeer(&stubPeer{id: "peer-dead", failures: 10})
	syncer.AddPeer(&stubPeer{id: "peer-ok", entries: peerEntries("h3", 0.6)})

	result, err := syncer.Sync(context.Background())

	require.Error(t, err)
	assert.Equal(t, 1, result.FailedPeers)
	assert.Equal(t, 1, result.MergedEntries, "healthy peer still merged")

	multi, ok := err.(*errors.Multi)
	require.True(t, ok)
	assert.Len(t, multi.Errs, 1)
}
