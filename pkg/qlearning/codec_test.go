package qlearning

import (
	"math/rand"
	"testing"

	"github.com/tj/assert"
)

func TestSnapshotRoundTrip(t *testing.T) {
	qt := New(DefaultConfig(), rand.New(rand.NewSource(1)))
	state := State{QueryType: "performance", Complexity: "high", ContextHash: "p0"}

	for i := 0; i < 25; i++ {
		qt.Update(state, ContextAnswer, 0.8, state)
	}

	buf, err := EncodeSnapshot(qt.Snapshot())
	assert.NoError(t, err)

	snapshot, err := DecodeSnapshot(buf)
	assert.NoError(t, err)

	restored := New(DefaultConfig(), rand.New(rand.NewSource(1)))
	restored.Restore(snapshot)

	assert.Equal(t, qt.Lookup(state, ContextAnswer), restored.Lookup(state, ContextAnswer))
	assert.Equal(t, qt.Epsilon(), restored.Epsilon())
	assert.Equal(t, qt.Stats().TotalUpdates, restored.Stats().TotalUpdates)
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	_, err := DecodeSnapshot([]byte("{not json"))
	assert.Error(t, err)
}

func TestDecodeSnapshotEmptyObject(t *testing.T) {
	snapshot, err := DecodeSnapshot([]byte("{}"))
	assert.NoError(t, err)
	assert.NotNil(t, snapshot.Entries)
}
