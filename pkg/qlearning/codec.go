package qlearning

import (
	"encoding/json"

	"github.com/ranswarm/ranswarm/pkg/errors"
)

// Snapshot is the serialized form of a Q-table used for checkpointing and
// federation transport.
type Snapshot struct {
	Entries      map[string]Entry `json:"entries"`
	Epsilon      float64          `json:"epsilon"`
	TotalUpdates uint64           `json:"totalUpdates"`
}

// Snapshot captures the table for persistence.
func (qt *QTable) Snapshot() Snapshot {
	return Snapshot{
		Entries:      qt.Export(),
		Epsilon:      qt.epsilon,
		TotalUpdates: qt.totalUpdates,
	}
}

// Restore replaces the table contents from a snapshot.
func (qt *QTable) Restore(snapshot Snapshot) {
	qt.Import(snapshot.Entries)
	qt.epsilon = snapshot.Epsilon
	if qt.epsilon < qt.config.EpsilonMin {
		qt.epsilon = qt.config.EpsilonMin
	}
	qt.totalUpdates = snapshot.TotalUpdates
}

// EncodeSnapshot serializes a snapshot to JSON.
func EncodeSnapshot(snapshot Snapshot) ([]byte, error) {
	buf, err := json.Marshal(snapshot)
	if err != nil {
		return nil, errors.ErrCheckpointCorrupt.WithMessagef(
			"failed to encode q-table snapshot: %v", err,
		)
	}
	return buf, nil
}

// DecodeSnapshot parses a JSON snapshot.
func DecodeSnapshot(buf []byte) (Snapshot, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(buf, &snapshot); err != nil {
		return Snapshot{}, errors.ErrCheckpointCorrupt.WithMessagef(
			"failed to decode q-table snapshot: %v", err,
		)
	}
	if snapshot.Entries == nil {
		snapshot.Entries = make(map[string]Entry)
	}
	return snapshot, nil
}
