package latency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistogram_Percentiles(t *testing.T) {
	h := NewHistogram(StageSimulation, 100)
	for i := 1; i <= 10; i++ {
		h.Record(time.Duration(i) * time.Millisecond)
	}

	assert.Equal(t, 10, h.Count())
	assert.InDelta(t, 5.5, h.Percentile(0.5), 0.01)
	assert.InDelta(t, 5.5, h.Average(), 0.01)
	assert.InDelta(t, 10.0, h.Percentile(1.0), 0.01)
}

func TestHistogram_EmptyReturnsZero(t *testing.T) {
	h := NewHistogram(StageFees, 10)

	assert.Equal(t, 0, h.Count())
	assert.Equal(t, 0.0, h.Percentile(0.99))
	assert.Equal(t, 0.0, h.Average())
}

func TestHistogram_RollingWindowOverwritesOldest(t *testing.T) {
	h := NewHistogram(StageImpact, 4)
	for i := 1; i <= 8; i++ {
		h.Record(time.Duration(i) * time.Millisecond)
	}

	// Only 5..8 remain.
	assert.Equal(t, 4, h.Count())
	assert.InDelta(t, 6.5, h.Average(), 0.01)
}

func TestTracker_RecordAndMetrics(t *testing.T) {
	tr := NewTracker(50)
	tr.Record(StageSlippage, 2*time.Millisecond)
	tr.Record(StageSlippage, 4*time.Millisecond)
	tr.Record(Stage("custom"), time.Millisecond)

	metrics := tr.AllMetrics()
	require.Contains(t, metrics, StageSlippage)
	assert.Equal(t, 2, metrics[StageSlippage].Count)
	require.Contains(t, metrics, Stage("custom"), "unknown stages are created on first use")
}

func TestTimer_RecordsOnStop(t *testing.T) {
	tr := NewTracker(50)
	timer := tr.StartTimer(StageBatch)
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()

	assert.Greater(t, elapsed, time.Duration(0))
	assert.Equal(t, 1, tr.Stage(StageBatch).Count())
}
