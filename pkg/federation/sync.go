// Package federation exchanges learned Q-table entries between peer agents
// so specialists benefit from each other's experience without sharing raw
// interactions.
package federation

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/ranswarm/ranswarm/pkg/agent"
	"github.com/ranswarm/ranswarm/pkg/errors"
	"github.com/ranswarm/ranswarm/pkg/qlearning"
)

// Peer is a remote source of Q-table entries. Transport (gossip, HTTP,
// message bus) is the implementer's concern; the engine only needs the
// entries delivered.
type Peer interface {
	ID() string
	FetchEntries(ctx context.Context) (map[string]qlearning.Entry, error)
}

// RoundResult summarizes one sync round.
type RoundResult struct {
	Peers         int `json:"peers"`
	FailedPeers   int `json:"failedPeers"`
	MergedEntries int `json:"mergedEntries"`
}

/*
Syncer pulls entries from a set of peers and merges them into a local
agent. Rounds run one peer at a time: the agent's own mutex serializes the
merge against local updates, and the syncer's lock serializes overlapping
rounds so the single-writer discipline of the Q-table holds.
*/
type Syncer struct {
	mu    sync.Mutex
	local *agent.FeatureAgent
	peers []Peer
	retry *errors.RetryConfig
}

// NewSyncer creates a syncer for a local agent. A nil retry config uses the
// defaults.
func NewSyncer(local *agent.FeatureAgent, retry *errors.RetryConfig) *Syncer {
	if retry == nil {
		retry = errors.DefaultRetryConfig()
	}

	return &Syncer{
		local: local,
		retry: retry,
	}
}

// AddPeer registers a peer for future rounds.
func (s *Syncer) AddPeer(peer Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = append(s.peers, peer)
}

/*
Sync runs one federation round: fetch each peer's entries with retry and
merge them locally. A failing peer does not abort the round; its error is
collected and the aggregate is returned alongside the partial result.
*/
func (s *Syncer) Sync(ctx context.Context) (RoundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := RoundResult{Peers: len(s.peers)}
	multi := errors.NewMulti()

	for _, peer := range s.peers {
		var entries map[string]qlearning.Entry

		err := errors.RetryWithBackoff(s.retry, func() error {
			var fetchErr error
			entries, fetchErr = peer.FetchEntries(ctx)
			return fetchErr
		})
		if err != nil {
			result.FailedPeers++
			multi.Add(errors.ErrPeerUnavailable.WithMessagef(
				"peer %s: %v", peer.ID(), err,
			))
			continue
		}

		merged := s.local.Merge(entries)
		result.MergedEntries += merged

		log.Debug("peer sync complete", "peer", peer.ID(), "entries", len(entries), "merged", merged)
	}

	if multi.HasErrors() {
		return result, multi
	}

	return result, nil
}
