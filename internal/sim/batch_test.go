package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForBatch(t *testing.T, e *Engine, id string) *BatchResult {
	t.Helper()
	require.Eventually(t, func() bool {
		return !e.IsBatchRunning(id)
	}, 5*time.Second, 5*time.Millisecond)

	br, ok := e.BatchResult(id, false)
	require.True(t, ok, "batch %s has no result", id)
	return br
}

func TestStartBatch_QuantityVariations(t *testing.T) {
	e := newTestEngine(t)
	ob, metrics := testBook()
	e.UpdateMarketData(ob, metrics)

	base := Request{
		Exchange: "OKX",
		Symbol:   "BTC-USDT-SWAP",
		Side:     "buy",
		FeeTier:  "TIER1",
	}
	variations := []Variation{
		{Quantity: 0.05},
		{Quantity: 0.1},
		{Quantity: 0.2},
	}

	id, err := e.StartBatch(base, variations)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	br := waitForBatch(t, e, id)

	assert.Equal(t, 3, br.Count)
	require.Len(t, br.Results, 3)

	// Items preserve submission order, echo their variation, and inherit
	// the base fields
	for i, want := range []float64{0.05, 0.1, 0.2} {
		assert.InDelta(t, want, br.Results[i].Variation.Quantity, 1e-9)
		res := br.Results[i].Result
		require.Empty(t, res.Error)
		assert.InDelta(t, want, res.Quantity, 1e-9)
		assert.Equal(t, "buy", res.Side)
		assert.Equal(t, "TIER1", res.FeeTier)
	}

	// Larger orders never cost less in absolute terms
	assert.LessOrEqual(t, br.Results[0].Result.NetCost, br.Results[1].Result.NetCost)
	assert.LessOrEqual(t, br.Results[1].Result.NetCost, br.Results[2].Result.NetCost)

	assert.GreaterOrEqual(t, br.ProcessingMs, 0.0)
	assert.False(t, br.CompletedAt.Before(br.SubmittedAt))
}

func TestStartBatch_ItemErrorsAreIsolated(t *testing.T) {
	e := newTestEngine(t)
	ob, metrics := testBook()
	e.UpdateMarketData(ob, metrics)

	// The base carries no quantity, so the empty variation fails while
	// its sibling succeeds.
	base := Request{Symbol: "BTC-USDT-SWAP", Side: "buy"}

	id, err := e.StartBatch(base, []Variation{{}, {Quantity: 2}})
	require.NoError(t, err)
	br := waitForBatch(t, e, id)

	require.Len(t, br.Results, 2)
	assert.Contains(t, br.Results[0].Result.Error, "invalid quantity")
	assert.Empty(t, br.Results[1].Result.Error)
	assert.InDelta(t, 2.0, br.Results[1].Variation.Quantity, 1e-9)
}

func TestStartBatch_EmptyBatch(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.StartBatch(Request{Symbol: "X"}, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestBatchResult_Evict(t *testing.T) {
	e := newTestEngine(t)
	ob, metrics := testBook()
	e.UpdateMarketData(ob, metrics)

	id, err := e.StartBatch(Request{Symbol: "BTC-USDT-SWAP"}, []Variation{{Quantity: 1}})
	require.NoError(t, err)
	waitForBatch(t, e, id)

	assert.Contains(t, e.CompletedBatchIDs(), id)

	_, ok := e.BatchResult(id, true)
	require.True(t, ok)

	_, ok = e.BatchResult(id, false)
	assert.False(t, ok)
	assert.NotContains(t, e.CompletedBatchIDs(), id)
}

func TestBatch_MultipleConcurrentBatches(t *testing.T) {
	e := newTestEngine(t)
	ob, metrics := testBook()
	e.UpdateMarketData(ob, metrics)

	base := Request{Symbol: "BTC-USDT-SWAP", Side: "sell"}

	firstID, err := e.StartBatch(base, []Variation{{Quantity: 0.5}, {Quantity: 1.0}})
	require.NoError(t, err)
	secondID, err := e.StartBatch(base, []Variation{{Quantity: 2.0}})
	require.NoError(t, err)
	require.NotEqual(t, firstID, secondID)

	first := waitForBatch(t, e, firstID)
	second := waitForBatch(t, e, secondID)

	assert.Equal(t, 2, first.Count)
	assert.Equal(t, 1, second.Count)
	assert.InDelta(t, 2.0, second.Results[0].Result.Quantity, 1e-9)
}

func TestShutdown_RejectsNewBatches(t *testing.T) {
	e := newTestEngine(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	_, err := e.StartBatch(Request{Symbol: "X"}, []Variation{{Quantity: 1}})
	assert.ErrorIs(t, err, ErrShuttingDown)

	// Shutdown is idempotent
	require.NoError(t, e.Shutdown(ctx))
}
