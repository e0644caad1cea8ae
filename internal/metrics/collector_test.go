package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsTimings(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpGenerate, 100*time.Millisecond)
	c.RecordTiming(OpGenerate, 300*time.Millisecond)
	c.RecordTiming(OpCommit, 20*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.Generate)
	assert.Equal(t, int64(2), snap.Generate.Count)
	assert.Equal(t, int64(400), snap.Generate.TotalTimeMs)
	assert.InDelta(t, 200, snap.Generate.AvgTimeMs, 0.01)
	assert.Equal(t, int64(100), snap.Generate.MinTimeMs)
	assert.Equal(t, int64(300), snap.Generate.MaxTimeMs)

	require.NotNil(t, snap.Commit)
	assert.Equal(t, int64(1), snap.Commit.Count)
}

func TestCollectorEmptyOpsAreNil(t *testing.T) {
	snap := NewCollector().Snapshot()
	assert.Nil(t, snap.Generate)
	assert.Nil(t, snap.Extract)
	assert.Nil(t, snap.ConsistencyCheck)
	assert.Nil(t, snap.Commit)
	assert.Nil(t, snap.Embedding)
}

func TestCollectorConcurrentRecording(t *testing.T) {
	c := NewCollector()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				c.RecordTiming(OpExtract, time.Millisecond)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	snap := c.Snapshot()
	require.NotNil(t, snap.Extract)
	assert.Equal(t, int64(800), snap.Extract.Count)
}
