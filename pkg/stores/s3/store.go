// Package s3 persists agent checkpoints (Q-table snapshots plus stored
// trajectories) in S3-compatible object storage.
package s3

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ranswarm/ranswarm/pkg/agent"
	"github.com/ranswarm/ranswarm/pkg/errors"
)

const latestKey = "latest.json"

/*
CheckpointStore reads and writes agent checkpoints. Each Save writes a
timestamped object and updates the agent's latest pointer, so history is
kept for rollback while Load stays a single read.
*/
type CheckpointStore struct {
	conn *Conn
}

// NewCheckpointStore creates a store over an established connection.
func NewCheckpointStore(conn *Conn) *CheckpointStore {
	return &CheckpointStore{conn: conn}
}

// Save persists a checkpoint and returns the timestamped key it was written
// under.
func (store *CheckpointStore) Save(ctx context.Context, checkpoint agent.Checkpoint) (string, error) {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return "", errors.ErrCheckpointCorrupt.WithMessagef(
			"failed to encode checkpoint for %s: %v", checkpoint.AgentID, err,
		)
	}

	key := fmt.Sprintf("%s/%s.json", checkpoint.AgentID, checkpoint.CreatedAt.UTC().Format(time.RFC3339Nano))

	if err := store.conn.Put(ctx, key, data); err != nil {
		log.Error("failed to store checkpoint", "agent", checkpoint.AgentID, "error", err)
		return "", err
	}

	if err := store.conn.Put(ctx, checkpoint.AgentID+"/"+latestKey, data); err != nil {
		log.Error("failed to update latest checkpoint pointer", "agent", checkpoint.AgentID, "error", err)
		return "", err
	}

	log.Info("checkpoint saved", "agent", checkpoint.AgentID, "key", key)
	return key, nil
}

// Load retrieves the most recent checkpoint for an agent.
func (store *CheckpointStore) Load(ctx context.Context, agentID string) (agent.Checkpoint, error) {
	return store.load(ctx, agentID+"/"+latestKey)
}

// LoadAt retrieves a specific historical checkpoint by key.
func (store *CheckpointStore) LoadAt(ctx context.Context, key string) (agent.Checkpoint, error) {
	return store.load(ctx, key)
}

func (store *CheckpointStore) load(ctx context.Context, key string) (agent.Checkpoint, error) {
	buf, err := store.conn.Get(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			return agent.Checkpoint{}, errors.ErrCheckpointNotFound.WithMessagef(
				"no checkpoint at %s", key,
			)
		}
		return agent.Checkpoint{}, err
	}

	var checkpoint agent.Checkpoint
	if err := json.Unmarshal(buf, &checkpoint); err != nil {
		return agent.Checkpoint{}, errors.ErrCheckpointCorrupt.WithMessagef(
			"failed to decode checkpoint at %s: %v", key, err,
		)
	}

	return checkpoint, nil
}

// History lists the timestamped checkpoint keys for an agent, excluding the
// latest pointer.
func (store *CheckpointStore) History(ctx context.Context, agentID string) ([]string, error) {
	keys, err := store.conn.List(ctx, agentID+"/")
	if err != nil {
		return nil, err
	}

	out := keys[:0]
	for _, key := range keys {
		if key != agentID+"/"+latestKey {
			out = append(out, key)
		}
	}

	return out, nil
}

// Prune removes historical checkpoints, keeping the newest keep entries and
// the latest pointer.
func (store *CheckpointStore) Prune(ctx context.Context, agentID string, keep int) error {
	history, err := store.History(ctx, agentID)
	if err != nil {
		return err
	}

	if len(history) <= keep {
		return nil
	}

	// Keys embed RFC 3339 timestamps, so lexical listing order is
	// chronological; everything before the tail gets removed.
	for _, key := range history[:len(history)-keep] {
		if err := store.conn.Delete(ctx, key); err != nil {
			return err
		}
		log.Debug("pruned checkpoint", "agent", agentID, "key", key)
	}

	return nil
}
